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

// Package treasury holds deposits on behalf of users and tracks the top
// depositor. The top depositor is recorded apart from ownership and grants
// no privileges.
package treasury

import (
	"fmt"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/ownership"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
)

const Kind = "treasury"

const (
	DefaultDenom     = "uawesome"
	DefaultThreshold = 99
)

func init() {
	types.RegisterNamespace(types.NamespaceTreasuryConfig, "treasury/config")
	types.RegisterNamespace(types.NamespaceTreasuryBalance, "treasury/balances")
	types.RegisterNamespace(types.NamespaceTreasuryTop, "treasury/top")
	types.RegisterNamespace(types.NamespaceTreasuryTotals, "treasury/totals")
	contract.Register(contract.Definition{
		Contract: New(),
		Config:   func() any { c := DefaultConfig(); return &c },
		Messages: contract.Merge(
			ownership.Messages(),
			map[string]func() any{
				"deposit":  func() any { return &Deposit{} },
				"withdraw": func() any { return &Withdraw{} },
			},
		),
		Queries: contract.Merge(
			ownership.Queries(),
			map[string]func() any{
				"top":     func() any { return &GetTop{} },
				"balance": func() any { return &GetBalance{} },
				"config":  func() any { return &GetConfig{} },
				"totals":  func() any { return &GetTotals{} },
			},
		),
	})
}

type Config struct {
	Denom string `yaml:"denom"`
	Owner string `yaml:"owner"`
	// Threshold is the balance a depositor must exceed to become top
	Threshold types.Uint128 `yaml:"threshold"`
}

func DefaultConfig() Config {
	return Config{
		Denom:     DefaultDenom,
		Threshold: types.NewUint128(DefaultThreshold),
	}
}

type TopDepositor struct {
	Address string
	Balance types.Uint128
}

type Totals struct {
	TotalDeposits types.Uint128
}

type Deposit struct {
	Amount types.Uint128 `yaml:"amount"`
}

type Withdraw struct {
	Amount types.Uint128 `yaml:"amount"`
}

type GetTop struct{}

type GetBalance struct {
	Address string `yaml:"address"`
}

type GetConfig struct{}

type GetTotals struct{}

var (
	configItem = database.NewItem[Config](types.NamespaceTreasuryConfig, "config")
	totalsItem = database.NewItem[Totals](types.NamespaceTreasuryTotals, "totals")
	topItem    = database.NewItem[string](types.NamespaceTreasuryTop, "address")
	balances   = database.NewMap[types.Uint128](types.NamespaceTreasuryBalance)
)

type Treasury struct {
	owner ownership.Manager
}

func New() *Treasury {
	t := &Treasury{}
	t.owner = ownership.NewManager(ownership.FreeFunds(t))
	return t
}

func (t *Treasury) Kind() string {
	return Kind
}

func (t *Treasury) Instantiate(c *contract.Ctx, config any) error {
	cfg, ok := config.(*Config)
	if !ok {
		return fmt.Errorf("%w: %T", contract.ErrInvalidConfig, config)
	}
	if err := bank.ValidateDenom(cfg.Denom); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
	}
	owner := cfg.Owner
	if owner == "" {
		owner = c.Caller
	}
	if err := t.owner.Init(c, owner, ""); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
	}
	if err := configItem.Save(c.Store, *cfg); err != nil {
		return err
	}
	return totalsItem.Save(c.Store, Totals{})
}

func (t *Treasury) Execute(c *contract.Ctx, msg any) error {
	switch msg := msg.(type) {
	case *Deposit:
		return t.Deposit(c, msg.Amount)
	case *Withdraw:
		return t.Withdraw(c, msg.Amount)
	}
	if ok, err := t.owner.Handle(c, msg); ok {
		return err
	}
	return contract.UnknownMessage(Kind, msg)
}

func (t *Treasury) Query(c *contract.Ctx, q any) (any, error) {
	switch q := q.(type) {
	case *GetTop:
		return t.Top(c)
	case *GetBalance:
		return t.balance(c, q.Address)
	case *GetConfig:
		return configItem.MustLoad(c.Store)
	case *GetTotals:
		return totalsItem.MustLoad(c.Store)
	}
	if res, ok, err := t.owner.HandleQuery(c, q); ok {
		return res, err
	}
	return nil, contract.UnknownMessage(Kind, q)
}

// Reserved is the sum of all user balances
func (t *Treasury) Reserved(c *contract.Ctx, denom string) (types.Uint128, error) {
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	if denom != cfg.Denom {
		return types.Uint128{}, nil
	}
	totals, err := totalsItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	return totals.TotalDeposits, nil
}

// Top returns the top depositor with their current balance. The address
// is empty until somebody passes the threshold.
func (t *Treasury) Top(c *contract.Ctx) (TopDepositor, error) {
	addr, ok, err := topItem.Load(c.Store)
	if err != nil || !ok {
		return TopDepositor{}, err
	}
	bal, err := t.balance(c, addr)
	if err != nil {
		return TopDepositor{}, err
	}
	return TopDepositor{Address: addr, Balance: bal}, nil
}

func (t *Treasury) Deposit(c *contract.Ctx, amount types.Uint128) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: deposit of zero", contract.ErrInvalidAmount)
	}
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return err
	}
	totals, err := totalsItem.MustLoad(c.Store)
	if err != nil {
		return err
	}
	bal, err := t.balance(c, c.Caller)
	if err != nil {
		return err
	}
	if bal, err = bal.CheckedAdd(amount); err != nil {
		return err
	}
	if totals.TotalDeposits, err = totals.TotalDeposits.CheckedAdd(amount); err != nil {
		return err
	}
	if err := c.Escrow(bank.Coin{Denom: cfg.Denom, Amount: amount}); err != nil {
		return err
	}
	if err := balances.Save(c.Store, types.StringKey(c.Caller), bal); err != nil {
		return err
	}
	if err := totalsItem.Save(c.Store, totals); err != nil {
		return err
	}
	c.Emit(
		"treasury_deposit",
		contract.Attr("depositor", c.Caller),
		contract.Attr("amount", amount),
	)
	if !bal.Gt(cfg.Threshold) {
		return nil
	}
	top, err := t.Top(c)
	if err != nil {
		return err
	}
	if top.Address == c.Caller || (top.Address != "" && !bal.Gt(top.Balance)) {
		return nil
	}
	if err := topItem.Save(c.Store, c.Caller); err != nil {
		return err
	}
	c.Emit(
		"top_depositor",
		contract.Attr("depositor", c.Caller),
		contract.Attr("balance", bal),
	)
	return nil
}

func (t *Treasury) Withdraw(c *contract.Ctx, amount types.Uint128) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: withdraw of zero", contract.ErrInvalidAmount)
	}
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return err
	}
	totals, err := totalsItem.MustLoad(c.Store)
	if err != nil {
		return err
	}
	bal, err := t.balance(c, c.Caller)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf(
			"%w: %s deposited, %s requested",
			contract.ErrInsufficientFunds,
			bal,
			amount,
		)
	}
	if bal, err = bal.CheckedSub(amount); err != nil {
		return err
	}
	if totals.TotalDeposits, err = totals.TotalDeposits.CheckedSub(amount); err != nil {
		return err
	}
	if bal.IsZero() {
		err = balances.Remove(c.Store, types.StringKey(c.Caller))
	} else {
		err = balances.Save(c.Store, types.StringKey(c.Caller), bal)
	}
	if err != nil {
		return err
	}
	if err := totalsItem.Save(c.Store, totals); err != nil {
		return err
	}
	if err := c.Pay(c.Caller, bank.Coin{Denom: cfg.Denom, Amount: amount}); err != nil {
		return err
	}
	c.Emit(
		"treasury_withdraw",
		contract.Attr("depositor", c.Caller),
		contract.Attr("amount", amount),
	)
	return nil
}

func (t *Treasury) balance(c *contract.Ctx, addr string) (types.Uint128, error) {
	bal, _, err := balances.Load(c.Store, types.StringKey(addr))
	return bal, err
}
