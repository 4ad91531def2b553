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

package event

import "time"

const (
	ContractInstantiatedEventType = EventType("contract.instantiated")
	ContractEventType             = EventType("contract.event")
	SagaFinishedEventType         = EventType("saga.finished")
)

type Attribute struct {
	Key   string
	Value string
}

// ContractEvent is published for every event a contract emits, after the
// call that emitted it has committed
type ContractEvent struct {
	Time       time.Time
	Contract   string
	Caller     string
	Type       string
	Attributes []Attribute
	Sequence   uint64
}

// ContractInstantiatedEvent is published when a contract instance is created
type ContractInstantiatedEvent struct {
	Time    time.Time
	Address string
	Kind    string
	Creator string
}

// SagaFinishedEvent is published when a saga reaches a terminal state
type SagaFinishedEvent struct {
	ID       string
	Kind     string
	Contract string
	State    string
	Error    string
}
