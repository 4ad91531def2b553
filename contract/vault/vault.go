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

// Package vault issues shares against deposited assets. Share prices are
// computed from the vault's own asset counter, so coins sent to the vault
// outside of Mint do not move them.
package vault

import (
	"fmt"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/ownership"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
)

const Kind = "vault"

const DefaultDenom = "uawesome"

func init() {
	types.RegisterNamespace(types.NamespaceVaultConfig, "vault/config")
	types.RegisterNamespace(types.NamespaceVaultState, "vault/state")
	types.RegisterNamespace(types.NamespaceVaultShares, "vault/shares")
	contract.Register(contract.Definition{
		Contract: New(),
		Config:   func() any { c := DefaultConfig(); return &c },
		Messages: contract.Merge(
			ownership.Messages(),
			map[string]func() any{
				"mint": func() any { return &Mint{} },
				"burn": func() any { return &Burn{} },
			},
		),
		Queries: contract.Merge(
			ownership.Queries(),
			map[string]func() any{
				"user_balance": func() any { return &GetUserBalance{} },
				"state":        func() any { return &GetState{} },
				"config":       func() any { return &GetConfig{} },
			},
		),
	})
}

type Config struct {
	Denom string `yaml:"denom"`
	Owner string `yaml:"owner"`
}

func DefaultConfig() Config {
	return Config{Denom: DefaultDenom}
}

// State counts the assets backing the shares. TotalAssets only changes on
// Mint and Burn.
type State struct {
	TotalAssets types.Uint128
	TotalShares types.Uint128
}

type Balance struct {
	Address string
	Shares  types.Uint128
}

// Mint deposits Amount and issues shares for it
type Mint struct {
	Amount types.Uint128 `yaml:"amount"`
}

// Burn redeems Shares for their part of the assets
type Burn struct {
	Shares types.Uint128 `yaml:"shares"`
}

type GetUserBalance struct {
	Address string `yaml:"address"`
}

type GetState struct{}

type GetConfig struct{}

var (
	configItem = database.NewItem[Config](types.NamespaceVaultConfig, "config")
	stateItem  = database.NewItem[State](types.NamespaceVaultState, "state")
	shares     = database.NewMap[types.Uint128](types.NamespaceVaultShares)
)

type Vault struct {
	owner ownership.Manager
}

func New() *Vault {
	v := &Vault{}
	v.owner = ownership.NewManager(ownership.FreeFunds(v))
	return v
}

func (v *Vault) Kind() string {
	return Kind
}

func (v *Vault) Instantiate(c *contract.Ctx, config any) error {
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
	if err := v.owner.Init(c, owner, ""); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
	}
	if err := configItem.Save(c.Store, *cfg); err != nil {
		return err
	}
	return stateItem.Save(c.Store, State{})
}

func (v *Vault) Execute(c *contract.Ctx, msg any) error {
	switch msg := msg.(type) {
	case *Mint:
		_, err := v.Mint(c, msg.Amount)
		return err
	case *Burn:
		_, err := v.Burn(c, msg.Shares)
		return err
	}
	if ok, err := v.owner.Handle(c, msg); ok {
		return err
	}
	return contract.UnknownMessage(Kind, msg)
}

func (v *Vault) Query(c *contract.Ctx, q any) (any, error) {
	switch q := q.(type) {
	case *GetUserBalance:
		held, err := v.shares(c, q.Address)
		if err != nil {
			return nil, err
		}
		return Balance{Address: q.Address, Shares: held}, nil
	case *GetState:
		return stateItem.MustLoad(c.Store)
	case *GetConfig:
		return configItem.MustLoad(c.Store)
	}
	if res, ok, err := v.owner.HandleQuery(c, q); ok {
		return res, err
	}
	return nil, contract.UnknownMessage(Kind, q)
}

// Reserved is every asset backing issued shares. Anything above it was
// sent to the vault directly and may be swept by the owner.
func (v *Vault) Reserved(c *contract.Ctx, denom string) (types.Uint128, error) {
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	if denom != cfg.Denom {
		return types.Uint128{}, nil
	}
	state, err := stateItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	return state.TotalAssets, nil
}

func (v *Vault) Mint(c *contract.Ctx, amount types.Uint128) (types.Uint128, error) {
	if amount.IsZero() {
		return types.Uint128{}, fmt.Errorf("%w: mint of zero", contract.ErrInvalidAmount)
	}
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	state, err := stateItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	issued := amount
	if !state.TotalShares.IsZero() {
		if state.TotalAssets.IsZero() {
			return types.Uint128{}, fmt.Errorf("%w: shares outstanding with no assets", contract.ErrInvalidRequest)
		}
		if issued, _, err = amount.CheckedMulDiv(state.TotalShares, state.TotalAssets); err != nil {
			return types.Uint128{}, err
		}
	}
	if issued.IsZero() {
		return types.Uint128{}, fmt.Errorf("%w: %s buys no shares", contract.ErrInvalidAmount, amount)
	}
	held, err := v.shares(c, c.Caller)
	if err != nil {
		return types.Uint128{}, err
	}
	if held, err = held.CheckedAdd(issued); err != nil {
		return types.Uint128{}, err
	}
	if state.TotalShares, err = state.TotalShares.CheckedAdd(issued); err != nil {
		return types.Uint128{}, err
	}
	if state.TotalAssets, err = state.TotalAssets.CheckedAdd(amount); err != nil {
		return types.Uint128{}, err
	}
	if err := c.Escrow(bank.Coin{Denom: cfg.Denom, Amount: amount}); err != nil {
		return types.Uint128{}, err
	}
	if err := shares.Save(c.Store, types.StringKey(c.Caller), held); err != nil {
		return types.Uint128{}, err
	}
	if err := stateItem.Save(c.Store, state); err != nil {
		return types.Uint128{}, err
	}
	c.Emit(
		"vault_mint",
		contract.Attr("owner", c.Caller),
		contract.Attr("amount", amount),
		contract.Attr("shares", issued),
	)
	return issued, nil
}

func (v *Vault) Burn(c *contract.Ctx, burned types.Uint128) (types.Uint128, error) {
	if burned.IsZero() {
		return types.Uint128{}, fmt.Errorf("%w: burn of zero", contract.ErrInvalidAmount)
	}
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	state, err := stateItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	held, err := v.shares(c, c.Caller)
	if err != nil {
		return types.Uint128{}, err
	}
	if held.Lt(burned) {
		return types.Uint128{}, fmt.Errorf(
			"%w: %s shares held, %s requested",
			contract.ErrInsufficientFunds,
			held,
			burned,
		)
	}
	assets, _, err := burned.CheckedMulDiv(state.TotalAssets, state.TotalShares)
	if err != nil {
		return types.Uint128{}, err
	}
	if held, err = held.CheckedSub(burned); err != nil {
		return types.Uint128{}, err
	}
	if state.TotalShares, err = state.TotalShares.CheckedSub(burned); err != nil {
		return types.Uint128{}, err
	}
	if state.TotalAssets, err = state.TotalAssets.CheckedSub(assets); err != nil {
		return types.Uint128{}, err
	}
	if held.IsZero() {
		err = shares.Remove(c.Store, types.StringKey(c.Caller))
	} else {
		err = shares.Save(c.Store, types.StringKey(c.Caller), held)
	}
	if err != nil {
		return types.Uint128{}, err
	}
	if err := stateItem.Save(c.Store, state); err != nil {
		return types.Uint128{}, err
	}
	if !assets.IsZero() {
		if err := c.Pay(c.Caller, bank.Coin{Denom: cfg.Denom, Amount: assets}); err != nil {
			return types.Uint128{}, err
		}
	}
	c.Emit(
		"vault_burn",
		contract.Attr("owner", c.Caller),
		contract.Attr("shares", burned),
		contract.Attr("amount", assets),
	)
	return assets, nil
}

func (v *Vault) shares(c *contract.Ctx, addr string) (types.Uint128, error) {
	held, _, err := shares.Load(c.Store, types.StringKey(addr))
	return held, err
}
