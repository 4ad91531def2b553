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

// Package governance runs stake-weighted proposals. Voters stake with the
// engine itself and vote with the voting power of that stake. One proposal
// may be open at a time; the weight of a vote stays locked in the voter's
// stake until the proposal is resolved, whatever the outcome.
package governance

import (
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/ownership"
	"github.com/blinklabs-io/warden/contract/staking"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
)

const Kind = "governance"

const (
	DefaultVotingPeriod  = 7 * 24 * time.Hour
	DefaultQuorumPercent = 33
)

const (
	StatusOpen     = "open"
	StatusPassed   = "passed"
	StatusRejected = "rejected"
)

func init() {
	types.RegisterNamespace(types.NamespaceGovConfig, "governance/config")
	types.RegisterNamespace(types.NamespaceGovSequence, "governance/sequence")
	types.RegisterNamespace(types.NamespaceGovProposal, "governance/proposals")
	types.RegisterNamespace(types.NamespaceGovSlot, "governance/slot")
	types.RegisterNamespace(types.NamespaceGovVote, "governance/votes")
	contract.Register(contract.Definition{
		Contract: New(),
		Config:   func() any { c := DefaultConfig(); return &c },
		Messages: contract.Merge(
			staking.Messages(),
			ownership.Messages(),
			map[string]func() any{
				"propose":          func() any { return &Propose{} },
				"cast_vote":        func() any { return &CastVote{} },
				"resolve_proposal": func() any { return &ResolveProposal{} },
			},
		),
		Queries: contract.Merge(
			staking.Queries(),
			ownership.Queries(),
			map[string]func() any{
				"proposal":        func() any { return &GetProposal{} },
				"active_proposal": func() any { return &GetActiveProposal{} },
				"vote":            func() any { return &GetVote{} },
				"config":          func() any { return &GetConfig{} },
			},
		),
	})
}

type Config struct {
	VotingPeriod time.Duration `yaml:"voting_period"`
	// QuorumPercent of the total voting power at proposal time must vote
	// for a proposal to pass
	QuorumPercent uint64         `yaml:"quorum_percent"`
	Owner         string         `yaml:"owner"`
	Staking       staking.Config `yaml:"staking"`
}

func DefaultConfig() Config {
	return Config{
		VotingPeriod:  DefaultVotingPeriod,
		QuorumPercent: DefaultQuorumPercent,
		Staking:       staking.DefaultConfig(),
	}
}

// Action is what a passed proposal does. Exactly one field is set.
type Action struct {
	ChangeOwner *ActionChangeOwner `yaml:"change_owner,omitempty"`
	Transfer    *ActionTransfer    `yaml:"transfer,omitempty"`
}

// ActionChangeOwner proposes a new owner for this contract. The new owner
// still has to accept.
type ActionChangeOwner struct {
	NewOwner string `yaml:"new_owner"`
}

// ActionTransfer pays out of funds not held for stakers
type ActionTransfer struct {
	Recipient string    `yaml:"recipient"`
	Coin      bank.Coin `yaml:"coin"`
}

func (a Action) Validate() error {
	switch {
	case a.ChangeOwner != nil && a.Transfer == nil:
		return contract.ValidateAddress(a.ChangeOwner.NewOwner)
	case a.Transfer != nil && a.ChangeOwner == nil:
		if err := contract.ValidateAddress(a.Transfer.Recipient); err != nil {
			return err
		}
		if err := a.Transfer.Coin.Validate(); err != nil {
			return err
		}
		if a.Transfer.Coin.Amount.IsZero() {
			return fmt.Errorf("%w: transfer of zero", contract.ErrInvalidAmount)
		}
		return nil
	}
	return fmt.Errorf("%w: proposal needs exactly one action", contract.ErrInvalidRequest)
}

type Proposal struct {
	Deadline       time.Time
	Proposer       string
	Status         string
	ExecutionError string
	Action         Action
	VotesFor       types.Uint128
	QuorumSnapshot types.Uint128
	ID             uint64
	Executed       bool
}

type VoteRecord struct {
	Voter      string
	Amount     types.Uint128
	ProposalID uint64
	Refunded   bool
}

type Propose struct {
	Action Action `yaml:"action"`
}

// CastVote commits Amount of the caller's voting power to the open proposal
type CastVote struct {
	Amount types.Uint128 `yaml:"amount"`
}

type ResolveProposal struct{}

type GetProposal struct {
	ID uint64 `yaml:"id"`
}

type GetActiveProposal struct{}

type GetVote struct {
	ProposalID uint64 `yaml:"proposal_id"`
	Voter      string `yaml:"voter"`
}

type GetConfig struct{}

var (
	configItem = database.NewItem[Config](types.NamespaceGovConfig, "config")
	nextID     = database.NewItem[uint64](types.NamespaceGovSequence, "next")
	// slot holds the id of the open proposal, if any
	slot      = database.NewItem[uint64](types.NamespaceGovSlot, "active")
	proposals = database.NewMap[Proposal](types.NamespaceGovProposal)
	votes     = database.NewMap[VoteRecord](types.NamespaceGovVote)
)

func voteKey(proposalID uint64, voter string) []byte {
	return types.JoinKeys(types.Uint64Key(proposalID), types.StringKey(voter))
}

type Engine struct {
	stake *staking.Service
	owner ownership.Manager
}

func New() *Engine {
	e := &Engine{}
	e.stake = staking.NewService(e)
	e.owner = ownership.NewManager(ownership.FreeFunds(e))
	return e
}

func (e *Engine) Kind() string {
	return Kind
}

func (e *Engine) Instantiate(c *contract.Ctx, config any) error {
	cfg, ok := config.(*Config)
	if !ok {
		return fmt.Errorf("%w: %T", contract.ErrInvalidConfig, config)
	}
	if cfg.VotingPeriod <= 0 {
		return fmt.Errorf("%w: voting period must be positive", contract.ErrInvalidConfig)
	}
	if cfg.QuorumPercent == 0 || cfg.QuorumPercent > 100 {
		return fmt.Errorf("%w: quorum percent must be in 1-100", contract.ErrInvalidConfig)
	}
	owner := cfg.Owner
	if owner == "" {
		owner = c.Caller
	}
	// The engine governs its own ownership
	if err := e.owner.Init(c, owner, c.Contract); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
	}
	if err := e.stake.Init(c, cfg.Staking); err != nil {
		return err
	}
	if err := configItem.Save(c.Store, *cfg); err != nil {
		return err
	}
	return nextID.Save(c.Store, 1)
}

func (e *Engine) Execute(c *contract.Ctx, msg any) error {
	switch msg := msg.(type) {
	case *Propose:
		_, err := e.Propose(c, msg.Action)
		return err
	case *CastVote:
		return e.CastVote(c, msg.Amount)
	case *ResolveProposal:
		_, err := e.ResolveProposal(c)
		return err
	}
	if ok, err := e.stake.Handle(c, msg); ok {
		return err
	}
	if ok, err := e.owner.Handle(c, msg); ok {
		return err
	}
	return contract.UnknownMessage(Kind, msg)
}

func (e *Engine) Query(c *contract.Ctx, q any) (any, error) {
	switch q := q.(type) {
	case *GetProposal:
		return e.proposal(c, q.ID)
	case *GetActiveProposal:
		p, ok, err := e.active(c)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, contract.ErrNoActiveProposal
		}
		return p, nil
	case *GetVote:
		v, ok, err := votes.Load(c.Store, voteKey(q.ProposalID, q.Voter))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: vote by %s on proposal %d", contract.ErrNotFound, q.Voter, q.ProposalID)
		}
		return v, nil
	case *GetConfig:
		return configItem.MustLoad(c.Store)
	}
	if res, ok, err := e.stake.HandleQuery(c, q); ok {
		return res, err
	}
	if res, ok, err := e.owner.HandleQuery(c, q); ok {
		return res, err
	}
	return nil, contract.UnknownMessage(Kind, q)
}

// Reserved is what stakers have deposited with the engine
func (e *Engine) Reserved(c *contract.Ctx, denom string) (types.Uint128, error) {
	return e.stake.Reserved(c, denom)
}

func (e *Engine) BeforeStakeChange(*contract.Ctx, staking.Account, types.Uint128) error {
	return nil
}

// AfterStakeChange refuses any stake change that would leave a voter with
// less voting power than they committed to the open proposal
func (e *Engine) AfterStakeChange(c *contract.Ctx, acct staking.Account, _ types.Uint128) error {
	locked, err := e.committed(c, acct.Owner)
	if err != nil {
		return err
	}
	if acct.VotingPower.Lt(locked) {
		return fmt.Errorf(
			"%w: %s voting power is committed to the open proposal",
			contract.ErrStillLocked,
			locked,
		)
	}
	return nil
}

// committed returns the voting power voter has cast on the open proposal
func (e *Engine) committed(c *contract.Ctx, voter string) (types.Uint128, error) {
	p, ok, err := e.active(c)
	if err != nil || !ok {
		return types.Uint128{}, err
	}
	v, ok, err := votes.Load(c.Store, voteKey(p.ID, voter))
	if err != nil || !ok || v.Refunded {
		return types.Uint128{}, err
	}
	return v.Amount, nil
}

// Propose opens a proposal. The quorum is measured against the total
// voting power staked at this moment.
func (e *Engine) Propose(c *contract.Ctx, action Action) (uint64, error) {
	if err := action.Validate(); err != nil {
		return 0, err
	}
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return 0, err
	}
	if p, ok, err := e.active(c); err != nil {
		return 0, err
	} else if ok {
		return 0, fmt.Errorf("%w: proposal %d is still open", contract.ErrProposalActive, p.ID)
	}
	totals, err := e.stake.Totals(c)
	if err != nil {
		return 0, err
	}
	supply, err := totals.TotalStaked.CheckedMul(cfg.Staking.VotingPowerPerToken)
	if err != nil {
		return 0, err
	}
	if supply.IsZero() {
		return 0, fmt.Errorf("%w: nothing is staked", contract.ErrInvalidRequest)
	}
	id, err := nextID.MustLoad(c.Store)
	if err != nil {
		return 0, err
	}
	p := Proposal{
		ID:             id,
		Proposer:       c.Caller,
		Action:         action,
		QuorumSnapshot: supply,
		Deadline:       c.Now.Add(cfg.VotingPeriod),
		Status:         StatusOpen,
	}
	if err := proposals.Save(c.Store, types.Uint64Key(id), p); err != nil {
		return 0, err
	}
	if err := nextID.Save(c.Store, id+1); err != nil {
		return 0, err
	}
	if err := slot.Save(c.Store, id); err != nil {
		return 0, err
	}
	c.Emit(
		"proposal_created",
		contract.Attr("id", id),
		contract.Attr("proposer", c.Caller),
		contract.Attr("quorum_snapshot", supply),
		contract.Attr("deadline", p.Deadline),
	)
	return id, nil
}

func (e *Engine) CastVote(c *contract.Ctx, amount types.Uint128) error {
	if amount.IsZero() {
		return fmt.Errorf("%w: vote of zero", contract.ErrInvalidAmount)
	}
	p, ok, err := e.active(c)
	if err != nil {
		return err
	}
	if !ok {
		return contract.ErrNoActiveProposal
	}
	if !c.Now.Before(p.Deadline) {
		return fmt.Errorf("%w: proposal %d closed at %s", contract.ErrVotingClosed, p.ID, p.Deadline.Format(time.RFC3339))
	}
	key := voteKey(p.ID, c.Caller)
	if voted, err := votes.Has(c.Store, key); err != nil {
		return err
	} else if voted {
		return fmt.Errorf("%w: %s on proposal %d", contract.ErrAlreadyVoted, c.Caller, p.ID)
	}
	acct, err := e.stake.Account(c, c.Caller)
	if err != nil {
		return err
	}
	if acct.VotingPower.Lt(amount) {
		return fmt.Errorf(
			"%w: %s has %s voting power, %s requested",
			contract.ErrInsufficientStake,
			c.Caller,
			acct.VotingPower,
			amount,
		)
	}
	if p.VotesFor, err = p.VotesFor.CheckedAdd(amount); err != nil {
		return err
	}
	vote := VoteRecord{ProposalID: p.ID, Voter: c.Caller, Amount: amount}
	if err := votes.Save(c.Store, key, vote); err != nil {
		return err
	}
	if err := proposals.Save(c.Store, types.Uint64Key(p.ID), p); err != nil {
		return err
	}
	c.Emit(
		"vote_cast",
		contract.Attr("id", p.ID),
		contract.Attr("voter", c.Caller),
		contract.Attr("amount", amount),
	)
	return nil
}

// ResolveProposal closes the open proposal once its deadline has passed,
// releases every vote and runs the action if the quorum was reached. A
// failing action leaves the proposal passed but not executed.
func (e *Engine) ResolveProposal(c *contract.Ctx) (Proposal, error) {
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return Proposal{}, err
	}
	p, ok, err := e.active(c)
	if err != nil {
		return Proposal{}, err
	}
	if !ok {
		return Proposal{}, fmt.Errorf("%w: no open proposal", contract.ErrAlreadyResolved)
	}
	if c.Now.Before(p.Deadline) {
		return Proposal{}, fmt.Errorf("%w: voting ends at %s", contract.ErrTooEarly, p.Deadline.Format(time.RFC3339))
	}
	votesPct, err := p.VotesFor.CheckedMul(types.NewUint128(100))
	if err != nil {
		return Proposal{}, err
	}
	required, err := p.QuorumSnapshot.CheckedMul(types.NewUint128(cfg.QuorumPercent))
	if err != nil {
		return Proposal{}, err
	}
	passed := !votesPct.Lt(required)
	if err := e.refund(c, p.ID); err != nil {
		return Proposal{}, err
	}
	p.Status = StatusRejected
	if passed {
		p.Status = StatusPassed
	}
	if err := slot.Remove(c.Store); err != nil {
		return Proposal{}, err
	}
	if passed && !p.Executed {
		if err := e.run(c, p.Action); err != nil {
			if !isContractError(err) {
				return Proposal{}, err
			}
			c.Logger.Warn(
				"proposal action failed",
				"component", "governance",
				"proposal", p.ID,
				"error", err,
			)
			p.ExecutionError = err.Error()
			c.Emit(
				"proposal_execution_failed",
				contract.Attr("id", p.ID),
				contract.Attr("error", err),
			)
		} else {
			p.Executed = true
		}
	}
	if err := proposals.Save(c.Store, types.Uint64Key(p.ID), p); err != nil {
		return Proposal{}, err
	}
	c.Emit(
		"proposal_resolved",
		contract.Attr("id", p.ID),
		contract.Attr("status", p.Status),
		contract.Attr("votes_for", p.VotesFor),
		contract.Attr("executed", p.Executed),
	)
	return p, nil
}

// refund releases the stake locked behind every vote on proposal id
func (e *Engine) refund(c *contract.Ctx, id uint64) error {
	var pending []VoteRecord
	err := votes.Range(c.Store, types.Uint64Key(id), func(_ []byte, v VoteRecord) error {
		if !v.Refunded {
			pending = append(pending, v)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, v := range pending {
		v.Refunded = true
		if err := votes.Save(c.Store, voteKey(id, v.Voter), v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) run(c *contract.Ctx, action Action) error {
	switch {
	case action.ChangeOwner != nil:
		return e.owner.ProposeOwner(c.As(c.Contract), action.ChangeOwner.NewOwner)
	case action.Transfer != nil:
		return c.PayFree(e, action.Transfer.Recipient, action.Transfer.Coin)
	}
	return fmt.Errorf("%w: empty action", contract.ErrInvalidRequest)
}

func (e *Engine) active(c *contract.Ctx) (Proposal, bool, error) {
	id, ok, err := slot.Load(c.Store)
	if err != nil || !ok {
		return Proposal{}, false, err
	}
	p, err := e.proposal(c, id)
	if err != nil {
		return Proposal{}, false, err
	}
	return p, true, nil
}

func (e *Engine) proposal(c *contract.Ctx, id uint64) (Proposal, error) {
	p, ok, err := proposals.Load(c.Store, types.Uint64Key(id))
	if err != nil {
		return Proposal{}, err
	}
	if !ok {
		return Proposal{}, fmt.Errorf("%w: proposal %d", contract.ErrNotFound, id)
	}
	return p, nil
}

// isContractError reports whether err is a rejection by contract logic
// rather than a storage failure
func isContractError(err error) bool {
	for _, target := range []error{
		contract.ErrInsufficientFunds,
		contract.ErrUnauthorized,
		contract.ErrInvalidAddress,
		contract.ErrInvalidAmount,
		contract.ErrInvalidRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
