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

package models

import "github.com/blinklabs-io/warden/database/types"

// Balance is the amount of one denom held by one address
type Balance struct {
	Address string        `gorm:"size:90;uniqueIndex:idx_balance_address_denom;not null"`
	Denom   string        `gorm:"size:128;uniqueIndex:idx_balance_address_denom;not null"`
	Amount  types.Uint128 `gorm:"not null"`
	ID      uint          `gorm:"primarykey"`
}

func (Balance) TableName() string {
	return "balance"
}

// Supply is the total amount of a denom in existence
type Supply struct {
	Denom  string        `gorm:"size:128;uniqueIndex;not null"`
	Amount types.Uint128 `gorm:"not null"`
	ID     uint          `gorm:"primarykey"`
}

func (Supply) TableName() string {
	return "supply"
}
