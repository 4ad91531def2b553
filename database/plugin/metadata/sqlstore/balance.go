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

// GetBalance returns the balance of denom held by address, zero when there
// is no record
func (d *Store) GetBalance(
	address string,
	denom string,
	txn types.Txn,
) (types.Uint128, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return types.Uint128{}, err
	}
	var ret models.Balance
	result := db.Where("address = ? AND denom = ?", address, denom).
		First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return types.Uint128{}, nil
		}
		return types.Uint128{}, result.Error
	}
	return ret.Amount, nil
}

// GetBalances returns every balance held by address. Zero balances have no
// record.
func (d *Store) GetBalances(
	address string,
	txn types.Txn,
) ([]models.Balance, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.Balance
	result := db.Where("address = ?", address).
		Order("denom").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// SetBalance writes the balance of denom held by address. A zero amount
// removes the record.
func (d *Store) SetBalance(
	address string,
	denom string,
	amount types.Uint128,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return db.Where("address = ? AND denom = ?", address, denom).
			Delete(&models.Balance{}).Error
	}
	tmpBalance := models.Balance{
		Address: address,
		Denom:   denom,
		Amount:  amount,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}, {Name: "denom"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount"}),
	}).Create(&tmpBalance).Error
}

// GetSupply returns the total supply of denom
func (d *Store) GetSupply(denom string, txn types.Txn) (types.Uint128, error) {
	db, err := d.resolveDB(txn)
	if err != nil {
		return types.Uint128{}, err
	}
	var ret models.Supply
	result := db.Where("denom = ?", denom).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return types.Uint128{}, nil
		}
		return types.Uint128{}, result.Error
	}
	return ret.Amount, nil
}

func (d *Store) SetSupply(
	denom string,
	amount types.Uint128,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	tmpSupply := models.Supply{
		Denom:  denom,
		Amount: amount,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "denom"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount"}),
	}).Create(&tmpSupply).Error
}
