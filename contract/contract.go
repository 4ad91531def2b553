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

package contract

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/saga"
)

// Contract is the behavior of one contract kind. Implementations hold no
// state of their own: everything lives in the store reached through Ctx.
type Contract interface {
	Kind() string
	// Instantiate initializes a new instance from a config produced by the
	// kind's Definition.Config
	Instantiate(c *Ctx, config any) error
	Execute(c *Ctx, msg any) error
	Query(c *Ctx, query any) (any, error)
}

// Definition describes a contract kind to the runtime. Messages and
// Queries map names used in scenario files to constructors of the
// matching pointer types.
type Definition struct {
	Contract Contract
	Config   func() any
	Messages map[string]func() any
	Queries  map[string]func() any
}

var (
	definitions     = map[string]Definition{}
	definitionsLock sync.RWMutex
)

// Register adds a contract kind. Registering a kind twice panics.
func Register(def Definition) {
	definitionsLock.Lock()
	defer definitionsLock.Unlock()
	kind := def.Contract.Kind()
	if _, ok := definitions[kind]; ok {
		panic(fmt.Sprintf("contract kind %q already registered", kind))
	}
	definitions[kind] = def
}

// Lookup returns the definition of a contract kind
func Lookup(kind string) (Definition, bool) {
	definitionsLock.RLock()
	defer definitionsLock.RUnlock()
	def, ok := definitions[kind]
	return def, ok
}

// Kinds returns all registered contract kinds, sorted
func Kinds() []string {
	definitionsLock.RLock()
	defer definitionsLock.RUnlock()
	ret := make([]string, 0, len(definitions))
	for kind := range definitions {
		ret = append(ret, kind)
	}
	sort.Strings(ret)
	return ret
}

// Merge combines constructor maps. Later maps win on duplicate names.
func Merge(sets ...map[string]func() any) map[string]func() any {
	ret := map[string]func() any{}
	for _, set := range sets {
		maps.Copy(ret, set)
	}
	return ret
}

// Attribute is a key/value pair attached to an event
type Attribute struct {
	Key   string
	Value string
}

func Attr(key string, value any) Attribute {
	return Attribute{Key: key, Value: fmt.Sprint(value)}
}

// Event is emitted by a contract call and published only if the call commits
type Event struct {
	Type       string
	Attributes []Attribute
}

// Ctx is the environment of a single contract call
type Ctx struct {
	context.Context
	Now      time.Time
	Txn      *database.Txn
	Store    *database.KeyedStore
	Bank     *bank.Bank
	Logger   *slog.Logger
	state    *callState
	Caller   string
	Contract string
}

// callState collects the effects of a call. Copies made by As share it.
type callState struct {
	events []Event
	sagas  []*saga.Saga
}

// NewCtx builds the call environment for contract at address
func NewCtx(
	ctx context.Context,
	txn *database.Txn,
	b *bank.Bank,
	logger *slog.Logger,
	address string,
	caller string,
	now time.Time,
) *Ctx {
	return &Ctx{
		Context:  ctx,
		Now:      now,
		Txn:      txn,
		Store:    txn.KeyedStore(address),
		Bank:     b,
		Logger:   logger,
		Caller:   caller,
		Contract: address,
		state:    &callState{},
	}
}

// Emit records an event for publication after commit
func (c *Ctx) Emit(eventType string, attrs ...Attribute) {
	c.state.events = append(
		c.state.events,
		Event{
			Type:       eventType,
			Attributes: attrs,
		},
	)
}

func (c *Ctx) Events() []Event {
	return c.state.events
}

// StartSaga schedules a saga to run after the current call commits
func (c *Ctx) StartSaga(s *saga.Saga) {
	c.state.sagas = append(c.state.sagas, s)
}

func (c *Ctx) Sagas() []*saga.Saga {
	return c.state.sagas
}

// As returns a copy of the context acting as a different caller, used
// when a contract calls into logic that checks the caller itself. Events
// and sagas from the copy belong to the same call.
func (c *Ctx) As(caller string) *Ctx {
	ret := *c
	ret.Caller = caller
	return &ret
}
