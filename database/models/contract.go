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

import (
	"errors"
	"time"
)

var ErrContractNotFound = errors.New("contract not found")

// ContractInstance records an instantiated contract and the config it was
// created with
type ContractInstance struct {
	CreatedAt time.Time
	Address   string `gorm:"size:90;primarykey"`
	Kind      string `gorm:"size:64;index;not null"`
	Creator   string `gorm:"size:90"`
	Config    []byte
}

func (ContractInstance) TableName() string {
	return "contract_instance"
}

// ContractEvent is one event emitted by a committed contract call
type ContractEvent struct {
	Time       time.Time
	Contract   string `gorm:"size:90;index;not null"`
	Type       string `gorm:"size:64;index;not null"`
	Attributes []byte
	ID         uint   `gorm:"primarykey"`
	Sequence   uint64 `gorm:"index"`
}

func (ContractEvent) TableName() string {
	return "contract_event"
}
