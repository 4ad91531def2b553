// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlstore

import (
	"errors"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"gorm.io/gorm"
)

// AddContractInstance registers a new contract instance
func (d *Store) AddContractInstance(
	instance *models.ContractInstance,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	return db.Create(instance).Error
}

func (d *Store) GetContractInstance(
	address string,
	txn types.Txn,
) (*models.ContractInstance, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	ret := &models.ContractInstance{}
	result := db.First(ret, "address = ?", address)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrContractNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

func (d *Store) GetContractInstances(
	txn types.Txn,
) ([]models.ContractInstance, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.ContractInstance
	if result := db.Order("created_at, address").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// AddContractEvents appends events to the journal
func (d *Store) AddContractEvents(
	events []models.ContractEvent,
	txn types.Txn,
) error {
	if len(events) == 0 {
		return nil
	}
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	return db.Create(&events).Error
}

// GetContractEvents returns journaled events of a contract with a sequence
// greater than afterSequence, oldest first
func (d *Store) GetContractEvents(
	contract string,
	afterSequence uint64,
	txn types.Txn,
) ([]models.ContractEvent, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.ContractEvent
	result := db.Where("contract = ? AND sequence > ?", contract, afterSequence).
		Order("sequence, id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetLastEventSequence returns the highest journaled sequence, or 0
func (d *Store) GetLastEventSequence(txn types.Txn) (uint64, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return 0, err
	}
	var ret uint64
	result := db.Model(&models.ContractEvent{}).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&ret)
	if result.Error != nil {
		return 0, result.Error
	}
	return ret, nil
}
