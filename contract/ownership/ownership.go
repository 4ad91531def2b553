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

// Package ownership implements two-phase admin handover. It is embedded by
// contracts that gate operations on an owner.
package ownership

import (
	"fmt"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
)

func init() {
	types.RegisterNamespace(types.NamespaceOwnership, "ownership")
}

// State is the ownership record of one contract
type State struct {
	Owner    string `yaml:"owner"`
	Proposed string `yaml:"proposed,omitempty"`
	// Governor may propose owners in addition to the owner
	Governor string `yaml:"governor,omitempty"`
}

type ProposeOwner struct {
	NewOwner string `yaml:"new_owner"`
}

type AcceptOwner struct{}

type CancelOwnershipTransfer struct{}

// OwnerAction is a privileged effect only the owner may trigger
type OwnerAction struct {
	Send *Send `yaml:"send"`
}

// Send pays coins out of the contract's account
type Send struct {
	Recipient string      `yaml:"recipient"`
	Coins     []bank.Coin `yaml:"coins"`
}

// GetOwnership queries the ownership State
type GetOwnership struct{}

// Dispatcher carries out an owner action on behalf of the embedding contract
type Dispatcher func(c *contract.Ctx, action OwnerAction) error

// FreeFunds returns a Dispatcher that pays sends only out of funds the
// contract does not owe to anybody
func FreeFunds(r contract.Reserver) Dispatcher {
	return func(c *contract.Ctx, action OwnerAction) error {
		if action.Send == nil {
			return fmt.Errorf("%w: empty owner action", contract.ErrInvalidRequest)
		}
		if err := contract.ValidateAddress(action.Send.Recipient); err != nil {
			return err
		}
		if len(action.Send.Coins) == 0 {
			return fmt.Errorf("%w: send without coins", contract.ErrInvalidRequest)
		}
		return c.PayFree(r, action.Send.Recipient, action.Send.Coins...)
	}
}

var stateItem = database.NewItem[State](types.NamespaceOwnership, "state")

// Manager implements the ownership messages against the store of the
// contract that embeds it
type Manager struct {
	dispatch Dispatcher
}

func NewManager(dispatch Dispatcher) Manager {
	return Manager{dispatch: dispatch}
}

// Messages returns the message constructors handled by the manager
func Messages() map[string]func() any {
	return map[string]func() any{
		"propose_owner":             func() any { return &ProposeOwner{} },
		"accept_owner":              func() any { return &AcceptOwner{} },
		"cancel_ownership_transfer": func() any { return &CancelOwnershipTransfer{} },
		"owner_action":              func() any { return &OwnerAction{} },
	}
}

// Queries returns the query constructors handled by the manager
func Queries() map[string]func() any {
	return map[string]func() any{
		"ownership": func() any { return &GetOwnership{} },
	}
}

// Init records the initial owner. An empty governor disables governed
// proposals.
func (m Manager) Init(c *contract.Ctx, owner string, governor string) error {
	if err := contract.ValidateAddress(owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if governor != "" {
		if err := contract.ValidateAddress(governor); err != nil {
			return fmt.Errorf("governor: %w", err)
		}
	}
	return stateItem.Save(c.Store, State{Owner: owner, Governor: governor})
}

func (m Manager) Load(c *contract.Ctx) (State, error) {
	return stateItem.MustLoad(c.Store)
}

// AssertOwner fails unless the caller is the current owner
func (m Manager) AssertOwner(c *contract.Ctx) error {
	state, err := m.Load(c)
	if err != nil {
		return err
	}
	if c.Caller != state.Owner {
		return fmt.Errorf("%w: %s", contract.ErrNotOwner, c.Caller)
	}
	return nil
}

// Handle executes msg if it is an ownership message. The boolean reports
// whether the message was recognized.
func (m Manager) Handle(c *contract.Ctx, msg any) (bool, error) {
	switch msg := msg.(type) {
	case *ProposeOwner:
		return true, m.ProposeOwner(c, msg.NewOwner)
	case *AcceptOwner:
		return true, m.AcceptOwner(c)
	case *CancelOwnershipTransfer:
		return true, m.CancelOwnershipTransfer(c)
	case *OwnerAction:
		return true, m.OwnerAction(c, *msg)
	}
	return false, nil
}

// HandleQuery answers q if it is an ownership query
func (m Manager) HandleQuery(c *contract.Ctx, q any) (any, bool, error) {
	if _, ok := q.(*GetOwnership); ok {
		state, err := m.Load(c)
		return state, true, err
	}
	return nil, false, nil
}

// ProposeOwner starts a handover. The owner or the governor may call it.
func (m Manager) ProposeOwner(c *contract.Ctx, newOwner string) error {
	state, err := m.Load(c)
	if err != nil {
		return err
	}
	if c.Caller != state.Owner && (state.Governor == "" || c.Caller != state.Governor) {
		return fmt.Errorf("%w: %s may not propose an owner", contract.ErrUnauthorized, c.Caller)
	}
	if err := contract.ValidateAddress(newOwner); err != nil {
		return err
	}
	state.Proposed = newOwner
	if err := stateItem.Save(c.Store, state); err != nil {
		return err
	}
	c.Emit(
		"ownership_proposed",
		contract.Attr("owner", state.Owner),
		contract.Attr("proposed", newOwner),
	)
	return nil
}

// AcceptOwner completes a handover. Only the proposed owner may call it.
func (m Manager) AcceptOwner(c *contract.Ctx) error {
	state, err := m.Load(c)
	if err != nil {
		return err
	}
	if state.Proposed == "" {
		return contract.ErrNoPendingOwner
	}
	if c.Caller != state.Proposed {
		return fmt.Errorf("%w: %s is not the proposed owner", contract.ErrUnauthorized, c.Caller)
	}
	previous := state.Owner
	state.Owner = state.Proposed
	state.Proposed = ""
	if err := stateItem.Save(c.Store, state); err != nil {
		return err
	}
	c.Emit(
		"ownership_transferred",
		contract.Attr("previous", previous),
		contract.Attr("owner", state.Owner),
	)
	return nil
}

// CancelOwnershipTransfer clears a pending proposal. Only the owner may call it.
func (m Manager) CancelOwnershipTransfer(c *contract.Ctx) error {
	if err := m.AssertOwner(c); err != nil {
		return err
	}
	state, err := m.Load(c)
	if err != nil {
		return err
	}
	if state.Proposed == "" {
		return contract.ErrNoPendingOwner
	}
	cancelled := state.Proposed
	state.Proposed = ""
	if err := stateItem.Save(c.Store, state); err != nil {
		return err
	}
	c.Emit(
		"ownership_transfer_cancelled",
		contract.Attr("proposed", cancelled),
	)
	return nil
}

// OwnerAction runs a privileged action through the embedding contract's
// dispatcher. Only the owner may call it.
func (m Manager) OwnerAction(c *contract.Ctx, action OwnerAction) error {
	if err := m.AssertOwner(c); err != nil {
		return err
	}
	if m.dispatch == nil {
		return fmt.Errorf("%w: owner actions are disabled", contract.ErrInvalidRequest)
	}
	if err := m.dispatch(c, action); err != nil {
		return err
	}
	c.Emit("owner_action", contract.Attr("owner", c.Caller))
	return nil
}
