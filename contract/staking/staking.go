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

// Package staking keeps per-owner staked balances and the voting power
// derived from them
package staking

import (
	"fmt"
	"time"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
)

const Kind = "staking"

const (
	DefaultDenom      = "uawesome"
	DefaultLockPeriod = 24 * time.Hour
)

func init() {
	types.RegisterNamespace(types.NamespaceStakeConfig, "staking/config")
	types.RegisterNamespace(types.NamespaceStakeAccount, "staking/accounts")
	types.RegisterNamespace(types.NamespaceStakeTotals, "staking/totals")
	contract.Register(contract.Definition{
		Contract: NewContract(),
		Config:   func() any { c := DefaultConfig(); return &c },
		Messages: Messages(),
		Queries:  Queries(),
	})
}

type Config struct {
	Denom string `yaml:"denom"`
	// LockPeriod is how long stake stays locked after the last stake
	LockPeriod time.Duration `yaml:"lock_period"`
	// VotingPowerPerToken scales staked tokens into voting power
	VotingPowerPerToken types.Uint128 `yaml:"voting_power_per_token"`
}

func DefaultConfig() Config {
	return Config{
		Denom:               DefaultDenom,
		LockPeriod:          DefaultLockPeriod,
		VotingPowerPerToken: types.NewUint128(1),
	}
}

// Account is the stake of one owner. Staked never exceeds TotalTokens.
type Account struct {
	LastStakeTime time.Time
	Owner         string
	TotalTokens   types.Uint128
	Staked        types.Uint128
	VotingPower   types.Uint128
}

// Unstaked returns the deposited tokens that are not staked
func (a Account) Unstaked() (types.Uint128, error) {
	return a.TotalTokens.CheckedSub(a.Staked)
}

type Totals struct {
	TotalTokens types.Uint128
	TotalStaked types.Uint128
}

type Deposit struct {
	Amount types.Uint128 `yaml:"amount"`
}

type Stake struct {
	Amount types.Uint128 `yaml:"amount"`
}

type Unstake struct {
	Amount types.Uint128 `yaml:"amount"`
}

// Withdraw pays out deposited tokens that are not staked
type Withdraw struct {
	Amount types.Uint128 `yaml:"amount"`
}

type GetAccount struct {
	Owner string `yaml:"owner"`
}

type GetVotingPower struct {
	Owner string `yaml:"owner"`
}

type GetTotals struct{}

type GetConfig struct{}

func Messages() map[string]func() any {
	return map[string]func() any{
		"deposit":  func() any { return &Deposit{} },
		"stake":    func() any { return &Stake{} },
		"unstake":  func() any { return &Unstake{} },
		"withdraw": func() any { return &Withdraw{} },
	}
}

func Queries() map[string]func() any {
	return map[string]func() any{
		"account":      func() any { return &GetAccount{} },
		"voting_power": func() any { return &GetVotingPower{} },
		"totals":       func() any { return &GetTotals{} },
		"config":       func() any { return &GetConfig{} },
	}
}

// Hooks observe every change of an owner's stake. Before runs with the
// account and total as they were, After with the new values.
type Hooks interface {
	BeforeStakeChange(c *contract.Ctx, account Account, totalStaked types.Uint128) error
	AfterStakeChange(c *contract.Ctx, account Account, totalStaked types.Uint128) error
}

var (
	configItem = database.NewItem[Config](types.NamespaceStakeConfig, "config")
	totalsItem = database.NewItem[Totals](types.NamespaceStakeTotals, "totals")
	accounts   = database.NewMap[Account](types.NamespaceStakeAccount)
)

// Service implements staking on the store of the contract that embeds it
type Service struct {
	hooks Hooks
}

func NewService(hooks Hooks) *Service {
	return &Service{hooks: hooks}
}

func (s *Service) Init(c *contract.Ctx, cfg Config) error {
	if err := bank.ValidateDenom(cfg.Denom); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
	}
	if cfg.LockPeriod < 0 {
		return fmt.Errorf("%w: negative lock period", contract.ErrInvalidConfig)
	}
	if cfg.VotingPowerPerToken.IsZero() {
		return fmt.Errorf("%w: voting power per token must be positive", contract.ErrInvalidConfig)
	}
	if err := configItem.Save(c.Store, cfg); err != nil {
		return err
	}
	return totalsItem.Save(c.Store, Totals{})
}

func (s *Service) Config(c *contract.Ctx) (Config, error) {
	return configItem.MustLoad(c.Store)
}

func (s *Service) Totals(c *contract.Ctx) (Totals, error) {
	return totalsItem.MustLoad(c.Store)
}

// Account returns the stake of owner. Owners who never deposited have an
// empty account.
func (s *Service) Account(c *contract.Ctx, owner string) (Account, error) {
	acct, ok, err := accounts.Load(c.Store, types.StringKey(owner))
	if err != nil {
		return Account{}, err
	}
	if !ok {
		acct.Owner = owner
	}
	return acct, nil
}

// Reserved is the amount of denom owed to depositors
func (s *Service) Reserved(c *contract.Ctx, denom string) (types.Uint128, error) {
	cfg, err := s.Config(c)
	if err != nil {
		return types.Uint128{}, err
	}
	if denom != cfg.Denom {
		return types.Uint128{}, nil
	}
	totals, err := s.Totals(c)
	if err != nil {
		return types.Uint128{}, err
	}
	return totals.TotalTokens, nil
}

func (s *Service) Handle(c *contract.Ctx, msg any) (bool, error) {
	switch msg := msg.(type) {
	case *Deposit:
		return true, s.Deposit(c, msg.Amount)
	case *Stake:
		return true, s.Stake(c, msg.Amount)
	case *Unstake:
		return true, s.Unstake(c, msg.Amount)
	case *Withdraw:
		return true, s.Withdraw(c, msg.Amount)
	}
	return false, nil
}

func (s *Service) HandleQuery(c *contract.Ctx, q any) (any, bool, error) {
	switch q := q.(type) {
	case *GetAccount:
		acct, err := s.Account(c, q.Owner)
		return acct, true, err
	case *GetVotingPower:
		acct, err := s.Account(c, q.Owner)
		return acct.VotingPower, true, err
	case *GetTotals:
		totals, err := s.Totals(c)
		return totals, true, err
	case *GetConfig:
		cfg, err := s.Config(c)
		return cfg, true, err
	}
	return nil, false, nil
}

// Deposit escrows amount from the caller without staking it
func (s *Service) Deposit(c *contract.Ctx, amount types.Uint128) error {
	cfg, err := s.Config(c)
	if err != nil {
		return err
	}
	acct, err := s.Account(c, c.Caller)
	if err != nil {
		return err
	}
	totals, err := s.Totals(c)
	if err != nil {
		return err
	}
	if acct.TotalTokens, err = acct.TotalTokens.CheckedAdd(amount); err != nil {
		return err
	}
	if totals.TotalTokens, err = totals.TotalTokens.CheckedAdd(amount); err != nil {
		return err
	}
	if err := c.Escrow(bank.Coin{Denom: cfg.Denom, Amount: amount}); err != nil {
		return err
	}
	if err := s.save(c, acct, totals); err != nil {
		return err
	}
	c.Emit(
		"stake_deposit",
		contract.Attr("owner", c.Caller),
		contract.Attr("amount", amount),
	)
	return nil
}

// Stake moves deposited tokens into stake
func (s *Service) Stake(c *contract.Ctx, amount types.Uint128) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: stake of zero", contract.ErrInvalidAmount)
	}
	cfg, err := s.Config(c)
	if err != nil {
		return err
	}
	acct, err := s.Account(c, c.Caller)
	if err != nil {
		return err
	}
	unstaked, err := acct.Unstaked()
	if err != nil {
		return err
	}
	if unstaked.Lt(amount) {
		return fmt.Errorf(
			"%w: %s unstaked, %s requested",
			contract.ErrInsufficientFunds,
			unstaked,
			amount,
		)
	}
	return s.change(c, cfg, acct, func(acct *Account, totals *Totals) error {
		var err error
		if acct.Staked, err = acct.Staked.CheckedAdd(amount); err != nil {
			return err
		}
		if totals.TotalStaked, err = totals.TotalStaked.CheckedAdd(amount); err != nil {
			return err
		}
		acct.LastStakeTime = c.Now
		c.Emit(
			"stake",
			contract.Attr("owner", acct.Owner),
			contract.Attr("amount", amount),
		)
		return nil
	})
}

// Unstake moves staked tokens back to the deposited balance
func (s *Service) Unstake(c *contract.Ctx, amount types.Uint128) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: unstake of zero", contract.ErrInvalidAmount)
	}
	cfg, err := s.Config(c)
	if err != nil {
		return err
	}
	acct, err := s.Account(c, c.Caller)
	if err != nil {
		return err
	}
	if amount.Gt(acct.Staked) {
		return fmt.Errorf(
			"%w: %s staked, %s requested",
			contract.ErrInsufficientStake,
			acct.Staked,
			amount,
		)
	}
	if unlock := acct.LastStakeTime.Add(cfg.LockPeriod); c.Now.Before(unlock) {
		return fmt.Errorf(
			"%w: stake is locked until %s",
			contract.ErrStillLocked,
			unlock.Format(time.RFC3339),
		)
	}
	return s.change(c, cfg, acct, func(acct *Account, totals *Totals) error {
		var err error
		if acct.Staked, err = acct.Staked.CheckedSub(amount); err != nil {
			return err
		}
		if totals.TotalStaked, err = totals.TotalStaked.CheckedSub(amount); err != nil {
			return err
		}
		c.Emit(
			"unstake",
			contract.Attr("owner", acct.Owner),
			contract.Attr("amount", amount),
		)
		return nil
	})
}

// Withdraw pays out deposited tokens that are not staked
func (s *Service) Withdraw(c *contract.Ctx, amount types.Uint128) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: withdraw of zero", contract.ErrInvalidAmount)
	}
	cfg, err := s.Config(c)
	if err != nil {
		return err
	}
	acct, err := s.Account(c, c.Caller)
	if err != nil {
		return err
	}
	totals, err := s.Totals(c)
	if err != nil {
		return err
	}
	unstaked, err := acct.Unstaked()
	if err != nil {
		return err
	}
	if unstaked.Lt(amount) {
		return fmt.Errorf(
			"%w: %s unstaked, %s requested",
			contract.ErrInsufficientFunds,
			unstaked,
			amount,
		)
	}
	if acct.TotalTokens, err = acct.TotalTokens.CheckedSub(amount); err != nil {
		return err
	}
	if totals.TotalTokens, err = totals.TotalTokens.CheckedSub(amount); err != nil {
		return err
	}
	if err := s.save(c, acct, totals); err != nil {
		return err
	}
	if err := c.Pay(c.Caller, bank.Coin{Denom: cfg.Denom, Amount: amount}); err != nil {
		return err
	}
	c.Emit(
		"stake_withdraw",
		contract.Attr("owner", c.Caller),
		contract.Attr("amount", amount),
	)
	return nil
}

// change applies a stake mutation between the hooks and recomputes the
// voting power
func (s *Service) change(
	c *contract.Ctx,
	cfg Config,
	acct Account,
	mutate func(*Account, *Totals) error,
) error {
	totals, err := s.Totals(c)
	if err != nil {
		return err
	}
	if s.hooks != nil {
		if err := s.hooks.BeforeStakeChange(c, acct, totals.TotalStaked); err != nil {
			return err
		}
	}
	if err := mutate(&acct, &totals); err != nil {
		return err
	}
	if acct.VotingPower, err = acct.Staked.CheckedMul(cfg.VotingPowerPerToken); err != nil {
		return err
	}
	if err := s.save(c, acct, totals); err != nil {
		return err
	}
	if s.hooks != nil {
		if err := s.hooks.AfterStakeChange(c, acct, totals.TotalStaked); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) save(c *contract.Ctx, acct Account, totals Totals) error {
	if err := accounts.Save(c.Store, types.StringKey(acct.Owner), acct); err != nil {
		return err
	}
	return totalsItem.Save(c.Store, totals)
}

// Contract is the standalone staking contract
type Contract struct {
	*Service
}

func NewContract() *Contract {
	return &Contract{Service: NewService(nil)}
}

func (s *Contract) Kind() string {
	return Kind
}

func (s *Contract) Instantiate(c *contract.Ctx, config any) error {
	cfg, ok := config.(*Config)
	if !ok {
		return fmt.Errorf("%w: %T", contract.ErrInvalidConfig, config)
	}
	return s.Init(c, *cfg)
}

func (s *Contract) Execute(c *contract.Ctx, msg any) error {
	if ok, err := s.Handle(c, msg); ok {
		return err
	}
	return contract.UnknownMessage(Kind, msg)
}

func (s *Contract) Query(c *contract.Ctx, q any) (any, error) {
	if res, ok, err := s.HandleQuery(c, q); ok {
		return res, err
	}
	return nil, contract.UnknownMessage(Kind, q)
}
