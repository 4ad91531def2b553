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
	"gorm.io/gorm/clause"
)

var ErrSagaNotFound = errors.New("saga not found")

// SaveSaga inserts or updates a saga and all of its legs
func (d *Store) SaveSaga(saga *models.Saga, txn types.Txn) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	result := db.Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "pending", "error", "updated_at"}),
		}).
		Create(saga)
	if result.Error != nil {
		return result.Error
	}
	for i := range saga.Legs {
		leg := &saga.Legs[i]
		leg.SagaID = saga.ID
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "saga_id"}, {Name: "step"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "error"}),
		}).Create(leg)
		if result.Error != nil {
			return result.Error
		}
	}
	return nil
}

// GetSaga returns a saga with its legs in order
func (d *Store) GetSaga(id string, txn types.Txn) (*models.Saga, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	ret := &models.Saga{}
	result := db.Preload("Legs", func(db *gorm.DB) *gorm.DB {
		return db.Order("saga_leg.step")
	}).First(ret, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSagaNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetSagasByState returns all sagas in the given state, oldest first
func (d *Store) GetSagasByState(
	state string,
	txn types.Txn,
) ([]models.Saga, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.Saga
	result := db.Preload("Legs", func(db *gorm.DB) *gorm.DB {
		return db.Order("saga_leg.step")
	}).Where("state = ?", state).Order("created_at").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
