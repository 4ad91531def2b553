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

// Package rewards distributes rewards to stakers in proportion to their
// stake and the time it was staked, using a reward-per-share accumulator.
package rewards

import (
	"fmt"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/ownership"
	"github.com/blinklabs-io/warden/contract/staking"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
)

const Kind = "rewards"

// Precision scales the accumulator so that small rewards over a large
// stake do not round to zero
const Precision = 1_000_000_000_000

const DefaultRewardDenom = "ureward"

var precision = types.NewUint128(Precision)

func init() {
	types.RegisterNamespace(types.NamespaceRewardConfig, "rewards/config")
	types.RegisterNamespace(types.NamespaceRewardPool, "rewards/pool")
	types.RegisterNamespace(types.NamespaceRewardUser, "rewards/users")
	contract.Register(contract.Definition{
		Contract: New(),
		Config:   func() any { c := DefaultConfig(); return &c },
		Messages: contract.Merge(
			staking.Messages(),
			ownership.Messages(),
			map[string]func() any{
				"increase_reward": func() any { return &IncreaseReward{} },
				"claim_rewards":   func() any { return &ClaimRewards{} },
			},
		),
		Queries: contract.Merge(
			staking.Queries(),
			ownership.Queries(),
			map[string]func() any{
				"pool":         func() any { return &GetPool{} },
				"user_rewards": func() any { return &GetUserRewards{} },
				"solvency":     func() any { return &GetSolvency{} },
			},
		),
	})
}

type Config struct {
	RewardDenom string         `yaml:"reward_denom"`
	Owner       string         `yaml:"owner"`
	Governor    string         `yaml:"governor"`
	Staking     staking.Config `yaml:"staking"`
}

func DefaultConfig() Config {
	return Config{
		RewardDenom: DefaultRewardDenom,
		Staking:     staking.DefaultConfig(),
	}
}

// Pool is the global reward state. RewardBalance counts every reward not
// yet claimed, including the undistributed bucket.
type Pool struct {
	TotalStaked         types.Uint128
	AccRewardPerShare   types.Uint128
	RewardBalance       types.Uint128
	UndistributedBucket types.Uint128
	// RewardDust is the remainder of the last accumulator division, in
	// reward units scaled by Precision
	RewardDust types.Uint128
}

// UserInfo is the reward state of one staker
type UserInfo struct {
	Owner            string
	Staked           types.Uint128
	RewardCheckpoint types.Uint128
	PendingRewards   types.Uint128
}

// Solvency compares what the pool holds with what it owes
type Solvency struct {
	RewardBalance types.Uint128
	Owed          types.Uint128
}

// IncreaseReward adds rewards for current stakers. Owner only.
type IncreaseReward struct {
	Amount types.Uint128 `yaml:"amount"`
}

type ClaimRewards struct{}

type GetPool struct{}

// GetUserRewards returns a UserInfo with accrual up to now included
type GetUserRewards struct {
	Owner string `yaml:"owner"`
}

type GetSolvency struct{}

var (
	configItem = database.NewItem[Config](types.NamespaceRewardConfig, "config")
	poolItem   = database.NewItem[Pool](types.NamespaceRewardPool, "pool")
	users      = database.NewMap[UserInfo](types.NamespaceRewardUser)
)

type Distributor struct {
	stake *staking.Service
	owner ownership.Manager
}

func New() *Distributor {
	d := &Distributor{}
	d.stake = staking.NewService(d)
	d.owner = ownership.NewManager(ownership.FreeFunds(d))
	return d
}

func (d *Distributor) Kind() string {
	return Kind
}

func (d *Distributor) Instantiate(c *contract.Ctx, config any) error {
	cfg, ok := config.(*Config)
	if !ok {
		return fmt.Errorf("%w: %T", contract.ErrInvalidConfig, config)
	}
	if err := bank.ValidateDenom(cfg.RewardDenom); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
	}
	owner := cfg.Owner
	if owner == "" {
		owner = c.Caller
	}
	if err := d.owner.Init(c, owner, cfg.Governor); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
	}
	if err := d.stake.Init(c, cfg.Staking); err != nil {
		return err
	}
	if err := configItem.Save(c.Store, *cfg); err != nil {
		return err
	}
	return poolItem.Save(c.Store, Pool{})
}

func (d *Distributor) Execute(c *contract.Ctx, msg any) error {
	switch msg := msg.(type) {
	case *IncreaseReward:
		return d.IncreaseReward(c, msg.Amount)
	case *ClaimRewards:
		_, err := d.ClaimRewards(c)
		return err
	}
	if ok, err := d.stake.Handle(c, msg); ok {
		return err
	}
	if ok, err := d.owner.Handle(c, msg); ok {
		return err
	}
	return contract.UnknownMessage(Kind, msg)
}

func (d *Distributor) Query(c *contract.Ctx, q any) (any, error) {
	switch q := q.(type) {
	case *GetPool:
		return poolItem.MustLoad(c.Store)
	case *GetUserRewards:
		return d.UserRewards(c, q.Owner)
	case *GetSolvency:
		return d.Solvency(c)
	}
	if res, ok, err := d.stake.HandleQuery(c, q); ok {
		return res, err
	}
	if res, ok, err := d.owner.HandleQuery(c, q); ok {
		return res, err
	}
	return nil, contract.UnknownMessage(Kind, q)
}

// Reserved is the stake owed to depositors plus the unclaimed rewards
func (d *Distributor) Reserved(c *contract.Ctx, denom string) (types.Uint128, error) {
	ret, err := d.stake.Reserved(c, denom)
	if err != nil {
		return types.Uint128{}, err
	}
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	if denom != cfg.RewardDenom {
		return ret, nil
	}
	pool, err := poolItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	return ret.CheckedAdd(pool.RewardBalance)
}

// BeforeStakeChange fixes the owner's rewards against the stake they had
func (d *Distributor) BeforeStakeChange(
	c *contract.Ctx,
	acct staking.Account,
	_ types.Uint128,
) error {
	_, err := d.settle(c, acct.Owner)
	return err
}

// AfterStakeChange records the owner's new stake and the new total
func (d *Distributor) AfterStakeChange(
	c *contract.Ctx,
	acct staking.Account,
	totalStaked types.Uint128,
) error {
	user, err := d.user(c, acct.Owner)
	if err != nil {
		return err
	}
	user.Staked = acct.Staked
	if err := users.Save(c.Store, types.StringKey(user.Owner), user); err != nil {
		return err
	}
	pool, err := poolItem.MustLoad(c.Store)
	if err != nil {
		return err
	}
	pool.TotalStaked = totalStaked
	return poolItem.Save(c.Store, pool)
}

// IncreaseReward escrows amount from the owner and credits it to the
// current stakers. With nobody staked it is parked until the next increase.
func (d *Distributor) IncreaseReward(c *contract.Ctx, amount types.Uint128) error {
	if err := d.owner.AssertOwner(c); err != nil {
		return err
	}
	if amount.IsZero() {
		return fmt.Errorf("%w: reward of zero", contract.ErrInvalidAmount)
	}
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return err
	}
	pool, err := poolItem.MustLoad(c.Store)
	if err != nil {
		return err
	}
	if pool.RewardBalance, err = pool.RewardBalance.CheckedAdd(amount); err != nil {
		return err
	}
	if pool.TotalStaked.IsZero() {
		if pool.UndistributedBucket, err = pool.UndistributedBucket.CheckedAdd(amount); err != nil {
			return err
		}
	} else {
		distributable, err := amount.CheckedAdd(pool.UndistributedBucket)
		if err != nil {
			return err
		}
		scaled, err := distributable.CheckedMul(precision)
		if err != nil {
			return err
		}
		if scaled, err = scaled.CheckedAdd(pool.RewardDust); err != nil {
			return err
		}
		increment, dust, err := scaled.CheckedMulDiv(types.NewUint128(1), pool.TotalStaked)
		if err != nil {
			return err
		}
		if pool.AccRewardPerShare, err = pool.AccRewardPerShare.CheckedAdd(increment); err != nil {
			return err
		}
		pool.RewardDust = dust
		pool.UndistributedBucket = types.Uint128{}
	}
	if err := c.Escrow(bank.Coin{Denom: cfg.RewardDenom, Amount: amount}); err != nil {
		return err
	}
	if err := poolItem.Save(c.Store, pool); err != nil {
		return err
	}
	c.Emit(
		"reward_increase",
		contract.Attr("amount", amount),
		contract.Attr("acc_reward_per_share", pool.AccRewardPerShare),
		contract.Attr("undistributed", pool.UndistributedBucket),
	)
	return nil
}

// ClaimRewards pays the caller everything they have accrued
func (d *Distributor) ClaimRewards(c *contract.Ctx) (types.Uint128, error) {
	user, err := d.settle(c, c.Caller)
	if err != nil {
		return types.Uint128{}, err
	}
	if user.PendingRewards.IsZero() {
		return types.Uint128{}, fmt.Errorf("%w: no rewards to claim", contract.ErrInvalidRequest)
	}
	pool, err := poolItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	paid := user.PendingRewards
	if pool.RewardBalance.Lt(paid) {
		return types.Uint128{}, fmt.Errorf(
			"%w: pool holds %s, owes %s",
			contract.ErrInsufficientPool,
			pool.RewardBalance,
			paid,
		)
	}
	if pool.RewardBalance, err = pool.RewardBalance.CheckedSub(paid); err != nil {
		return types.Uint128{}, err
	}
	user.PendingRewards = types.Uint128{}
	if err := users.Save(c.Store, types.StringKey(user.Owner), user); err != nil {
		return types.Uint128{}, err
	}
	if err := poolItem.Save(c.Store, pool); err != nil {
		return types.Uint128{}, err
	}
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return types.Uint128{}, err
	}
	if err := c.Pay(c.Caller, bank.Coin{Denom: cfg.RewardDenom, Amount: paid}); err != nil {
		return types.Uint128{}, err
	}
	c.Emit(
		"reward_claim",
		contract.Attr("owner", c.Caller),
		contract.Attr("amount", paid),
	)
	return paid, nil
}

// UserRewards returns the reward state of owner with accrual up to now
// included, without writing anything
func (d *Distributor) UserRewards(c *contract.Ctx, owner string) (UserInfo, error) {
	user, err := d.user(c, owner)
	if err != nil {
		return UserInfo{}, err
	}
	pool, err := poolItem.MustLoad(c.Store)
	if err != nil {
		return UserInfo{}, err
	}
	return accrue(user, pool)
}

// Solvency sums what every staker could claim right now
func (d *Distributor) Solvency(c *contract.Ctx) (Solvency, error) {
	pool, err := poolItem.MustLoad(c.Store)
	if err != nil {
		return Solvency{}, err
	}
	ret := Solvency{RewardBalance: pool.RewardBalance}
	err = users.Range(c.Store, nil, func(_ []byte, user UserInfo) error {
		settled, err := accrue(user, pool)
		if err != nil {
			return err
		}
		ret.Owed, err = ret.Owed.CheckedAdd(settled.PendingRewards)
		return err
	})
	if err != nil {
		return Solvency{}, err
	}
	return ret, nil
}

// CheckSolvency fails when the pool owes more than it holds
func (d *Distributor) CheckSolvency(c *contract.Ctx) error {
	s, err := d.Solvency(c)
	if err != nil {
		return err
	}
	if s.RewardBalance.Lt(s.Owed) {
		return fmt.Errorf(
			"%w: pool holds %s, owes %s",
			contract.ErrInsufficientPool,
			s.RewardBalance,
			s.Owed,
		)
	}
	return nil
}

func (d *Distributor) user(c *contract.Ctx, owner string) (UserInfo, error) {
	user, ok, err := users.Load(c.Store, types.StringKey(owner))
	if err != nil {
		return UserInfo{}, err
	}
	if !ok {
		pool, err := poolItem.MustLoad(c.Store)
		if err != nil {
			return UserInfo{}, err
		}
		// New stakers start at the current accumulator
		user = UserInfo{Owner: owner, RewardCheckpoint: pool.AccRewardPerShare}
	}
	return user, nil
}

// settle moves the owner's accrual into PendingRewards and advances the
// checkpoint
func (d *Distributor) settle(c *contract.Ctx, owner string) (UserInfo, error) {
	user, err := d.user(c, owner)
	if err != nil {
		return UserInfo{}, err
	}
	pool, err := poolItem.MustLoad(c.Store)
	if err != nil {
		return UserInfo{}, err
	}
	if user, err = accrue(user, pool); err != nil {
		return UserInfo{}, err
	}
	if err := users.Save(c.Store, types.StringKey(owner), user); err != nil {
		return UserInfo{}, err
	}
	return user, nil
}

func accrue(user UserInfo, pool Pool) (UserInfo, error) {
	delta, err := pool.AccRewardPerShare.CheckedSub(user.RewardCheckpoint)
	if err != nil {
		return UserInfo{}, err
	}
	accrued, _, err := user.Staked.CheckedMulDiv(delta, precision)
	if err != nil {
		return UserInfo{}, err
	}
	if user.PendingRewards, err = user.PendingRewards.CheckedAdd(accrued); err != nil {
		return UserInfo{}, err
	}
	user.RewardCheckpoint = pool.AccRewardPerShare
	return user, nil
}
