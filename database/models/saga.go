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

import "time"

const (
	SagaStateRunning     = "running"
	SagaStateCompleted   = "completed"
	SagaStateCompensated = "compensated"
	SagaStateStuck       = "stuck"
	// SagaStateResolved is a stuck saga that a party settled by hand
	SagaStateResolved = "resolved"

	SagaLegStatePending     = "pending"
	SagaLegStateCommitted   = "committed"
	SagaLegStateFailed      = "failed"
	SagaLegStateCompensated = "compensated"
)

// Saga is the journal entry of a multi-transaction operation
type Saga struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	ID        string    `gorm:"size:36;primarykey"`
	Kind      string    `gorm:"size:64;index"`
	Contract  string    `gorm:"size:90;index"`
	State     string    `gorm:"size:16;index"`
	Error     string
	Legs      []SagaLeg `gorm:"foreignKey:SagaID;constraint:OnDelete:CASCADE"`
	Pending   int
}

func (Saga) TableName() string {
	return "saga"
}

// Terminal reports whether the saga has reached a final state
func (s *Saga) Terminal() bool {
	switch s.State {
	case SagaStateCompleted, SagaStateCompensated, SagaStateStuck, SagaStateResolved:
		return true
	}
	return false
}

// SagaLeg is the progress of one leg, keyed by saga and position
type SagaLeg struct {
	SagaID string `gorm:"size:36;primaryKey"`
	Name   string `gorm:"size:64"`
	State  string `gorm:"size:16"`
	Error  string
	Step   int `gorm:"primaryKey;autoIncrement:false"`
}

func (SagaLeg) TableName() string {
	return "saga_leg"
}
