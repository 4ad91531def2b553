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

// Package lockup holds time-locked deposits. A lockup can be withdrawn by its
// owner once its unlock time has passed.
package lockup

import (
	"fmt"
	"slices"
	"time"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
)

const Kind = "lockup"

const (
	DefaultDenom          = "uawesome"
	DefaultMinimumDeposit = 10_000
	DefaultLockPeriod     = 24 * time.Hour
)

func init() {
	types.RegisterNamespace(types.NamespaceLockupConfig, "lockup/config")
	types.RegisterNamespace(types.NamespaceLockupSequence, "lockup/state")
	types.RegisterNamespace(types.NamespaceLockup, "lockup/lockups")
	contract.Register(contract.Definition{
		Contract: New(),
		Config:   func() any { c := DefaultConfig(); return &c },
		Messages: map[string]func() any{
			"deposit":  func() any { return &Deposit{} },
			"withdraw": func() any { return &Withdraw{} },
		},
		Queries: map[string]func() any{
			"lockup":  func() any { return &GetLockup{} },
			"lockups": func() any { return &ListLockups{} },
			"config":  func() any { return &GetConfig{} },
			"state":   func() any { return &GetState{} },
		},
	})
}

type Config struct {
	Denom          string        `yaml:"denom"`
	MinimumDeposit types.Uint128 `yaml:"minimum_deposit"`
	LockPeriod     time.Duration `yaml:"lock_period"`
}

func DefaultConfig() Config {
	return Config{
		Denom:          DefaultDenom,
		MinimumDeposit: types.NewUint128(DefaultMinimumDeposit),
		LockPeriod:     DefaultLockPeriod,
	}
}

// Lockup is one time-locked deposit
type Lockup struct {
	UnlockTime time.Time
	Owner      string
	Amount     types.Uint128
	ID         uint64
}

// State holds the id sequence and the sum of all open lockups
type State struct {
	TotalLocked types.Uint128
	NextID      uint64
}

type Deposit struct {
	Amount types.Uint128 `yaml:"amount"`
}

// Withdraw redeems lockups. Repeated ids count once.
type Withdraw struct {
	IDs []uint64 `yaml:"ids"`
}

type GetLockup struct {
	ID uint64 `yaml:"id"`
}

type ListLockups struct {
	Owner string `yaml:"owner"`
}

type GetConfig struct{}

type GetState struct{}

var (
	configItem = database.NewItem[Config](types.NamespaceLockupConfig, "config")
	stateItem  = database.NewItem[State](types.NamespaceLockupSequence, "state")
	lockups    = database.NewMap[Lockup](types.NamespaceLockup)
)

type Ledger struct{}

func New() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Kind() string {
	return Kind
}

func (l *Ledger) Instantiate(c *contract.Ctx, config any) error {
	cfg, ok := config.(*Config)
	if !ok {
		return fmt.Errorf("%w: %T", contract.ErrInvalidConfig, config)
	}
	if err := bank.ValidateDenom(cfg.Denom); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
	}
	if cfg.MinimumDeposit.IsZero() {
		return fmt.Errorf("%w: minimum deposit must be positive", contract.ErrInvalidConfig)
	}
	if cfg.LockPeriod < 0 {
		return fmt.Errorf("%w: negative lock period", contract.ErrInvalidConfig)
	}
	if err := configItem.Save(c.Store, *cfg); err != nil {
		return err
	}
	return stateItem.Save(c.Store, State{NextID: 1})
}

func (l *Ledger) Execute(c *contract.Ctx, msg any) error {
	switch msg := msg.(type) {
	case *Deposit:
		_, err := l.Deposit(c, msg.Amount)
		return err
	case *Withdraw:
		_, err := l.Withdraw(c, msg.IDs)
		return err
	}
	return contract.UnknownMessage(Kind, msg)
}

func (l *Ledger) Query(c *contract.Ctx, q any) (any, error) {
	switch q := q.(type) {
	case *GetLockup:
		lockup, ok, err := lockups.Load(c.Store, types.Uint64Key(q.ID))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("lockup %d: %w", q.ID, contract.ErrNotFound)
		}
		return lockup, nil
	case *ListLockups:
		ret := []Lockup{}
		err := lockups.Range(c.Store, nil, func(_ []byte, lockup Lockup) error {
			if q.Owner == "" || lockup.Owner == q.Owner {
				ret = append(ret, lockup)
			}
			return nil
		})
		return ret, err
	case *GetConfig:
		return configItem.MustLoad(c.Store)
	case *GetState:
		return stateItem.MustLoad(c.Store)
	}
	return nil, contract.UnknownMessage(Kind, q)
}

// Deposit escrows amount from the caller into a new lockup and returns it
func (l *Ledger) Deposit(c *contract.Ctx, amount types.Uint128) (Lockup, error) {
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return Lockup{}, err
	}
	if amount.Lt(cfg.MinimumDeposit) {
		return Lockup{}, fmt.Errorf(
			"%w: deposit %s is below %s",
			contract.ErrBelowMinimum,
			amount,
			cfg.MinimumDeposit,
		)
	}
	state, err := stateItem.MustLoad(c.Store)
	if err != nil {
		return Lockup{}, err
	}
	total, err := state.TotalLocked.CheckedAdd(amount)
	if err != nil {
		return Lockup{}, err
	}
	lockup := Lockup{
		ID:         state.NextID,
		Owner:      c.Caller,
		Amount:     amount,
		UnlockTime: c.Now.Add(cfg.LockPeriod),
	}
	if err := c.Escrow(bank.Coin{Denom: cfg.Denom, Amount: amount}); err != nil {
		return Lockup{}, err
	}
	if err := lockups.Save(c.Store, types.Uint64Key(lockup.ID), lockup); err != nil {
		return Lockup{}, err
	}
	state.NextID++
	state.TotalLocked = total
	if err := stateItem.Save(c.Store, state); err != nil {
		return Lockup{}, err
	}
	c.Emit(
		"lockup_deposit",
		contract.Attr("id", lockup.ID),
		contract.Attr("owner", lockup.Owner),
		contract.Attr("amount", lockup.Amount),
		contract.Attr("unlock_time", lockup.UnlockTime.Format(time.RFC3339)),
	)
	return lockup, nil
}

// Withdraw pays the caller the sum of the given lockups and deletes them.
// Every id is validated before anything is deleted.
func (l *Ledger) Withdraw(c *contract.Ctx, ids []uint64) (types.Uint128, error) {
	if len(ids) == 0 {
		return types.Uint128{}, fmt.Errorf("%w: no lockup ids", contract.ErrInvalidRequest)
	}
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	var sum types.Uint128
	for _, id := range unique {
		lockup, ok, err := lockups.Load(c.Store, types.Uint64Key(id))
		if err != nil {
			return types.Uint128{}, err
		}
		if !ok {
			return types.Uint128{}, fmt.Errorf("lockup %d: %w", id, contract.ErrNotFound)
		}
		if lockup.Owner != c.Caller {
			return types.Uint128{}, fmt.Errorf("lockup %d: %w", id, contract.ErrNotOwner)
		}
		if c.Now.Before(lockup.UnlockTime) {
			return types.Uint128{}, fmt.Errorf(
				"lockup %d: %w until %s",
				id,
				contract.ErrStillLocked,
				lockup.UnlockTime.Format(time.RFC3339),
			)
		}
		if sum, err = sum.CheckedAdd(lockup.Amount); err != nil {
			return types.Uint128{}, err
		}
	}
	for _, id := range unique {
		if err := lockups.Remove(c.Store, types.Uint64Key(id)); err != nil {
			return types.Uint128{}, err
		}
	}
	state, err := stateItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	if state.TotalLocked, err = state.TotalLocked.CheckedSub(sum); err != nil {
		return types.Uint128{}, err
	}
	if err := stateItem.Save(c.Store, state); err != nil {
		return types.Uint128{}, err
	}
	if err := c.Pay(c.Caller, bank.Coin{Denom: cfg.Denom, Amount: sum}); err != nil {
		return types.Uint128{}, err
	}
	c.Emit(
		"lockup_withdraw",
		contract.Attr("owner", c.Caller),
		contract.Attr("ids", unique),
		contract.Attr("amount", sum),
	)
	return sum, nil
}
