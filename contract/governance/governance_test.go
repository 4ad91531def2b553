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

package governance_test

import (
	"testing"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/contracttest"
	"github.com/blinklabs-io/warden/contract/governance"
	"github.com/blinklabs-io/warden/contract/ownership"
	"github.com/blinklabs-io/warden/contract/staking"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	denom = staking.DefaultDenom
	addr  = "gov1"
)

func amt(v uint64) types.Uint128 {
	return types.NewUint128(v)
}

func newEngine(t *testing.T, cfg governance.Config) *contracttest.Harness {
	h := contracttest.New(t)
	h.MustInstantiate(governance.New(), addr, "admin", &cfg)
	return h
}

// stake deposits and stakes amount with the engine on behalf of owner
func stake(h *contracttest.Harness, owner string, amount uint64) {
	h.Mint(owner, bank.NewCoin(denom, amount))
	h.MustExecute(addr, owner, &staking.Deposit{Amount: amt(amount)})
	h.MustExecute(addr, owner, &staking.Stake{Amount: amt(amount)})
}

// setup stakes a total voting power of 120,000. Stake has no lock period
// of its own so only votes hold it.
func setup(t *testing.T) *contracttest.Harness {
	cfg := governance.DefaultConfig()
	cfg.Staking.LockPeriod = 0
	h := newEngine(t, cfg)
	stake(h, "alice", 39_000)
	stake(h, "bob", 10_000)
	stake(h, "carol", 71_000)
	return h
}

func changeOwner(newOwner string) *governance.Propose {
	return &governance.Propose{Action: governance.Action{
		ChangeOwner: &governance.ActionChangeOwner{NewOwner: newOwner},
	}}
}

func resolve(t *testing.T, h *contracttest.Harness, id uint64) governance.Proposal {
	t.Helper()
	h.Advance(governance.DefaultVotingPeriod)
	h.MustExecute(addr, "anyone", &governance.ResolveProposal{})
	return contracttest.MustQuery[governance.Proposal](h, addr, &governance.GetProposal{ID: id})
}

func TestBelowQuorumFailsAndRefunds(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "alice", changeOwner("mallory"))
	h.MustExecute(addr, "alice", &governance.CastVote{Amount: amt(39_000)})

	p := resolve(t, h, 1)
	assert.Equal(t, governance.StatusRejected, p.Status)
	assert.Equal(t, "120000", p.QuorumSnapshot.String())
	assert.False(t, p.Executed)
	vote := contracttest.MustQuery[governance.VoteRecord](h, addr, &governance.GetVote{ProposalID: 1, Voter: "alice"})
	assert.True(t, vote.Refunded)

	// Refunded votes carry no weight in the next proposal
	h.MustExecute(addr, "bob", changeOwner("mallory"))
	h.MustExecute(addr, "bob", &governance.CastVote{Amount: amt(10_000)})
	active := contracttest.MustQuery[governance.Proposal](h, addr, &governance.GetActiveProposal{})
	assert.Equal(t, uint64(2), active.ID)
	assert.Equal(t, "10000", active.VotesFor.String())
	p = resolve(t, h, 2)
	assert.Equal(t, governance.StatusRejected, p.Status)

	state := contracttest.MustQuery[ownership.State](h, addr, &ownership.GetOwnership{})
	assert.Equal(t, "admin", state.Owner)
	assert.Empty(t, state.Proposed)
}

func TestStakedWeightVotes(t *testing.T) {
	h := setup(t)
	h.Mint("dave", bank.NewCoin(denom, 20_000))
	h.MustExecute(addr, "carol", changeOwner("erin"))

	// Tokens held outside the engine have no voting power
	err := h.Execute(addr, "dave", &governance.CastVote{Amount: amt(1)})
	require.ErrorIs(t, err, contract.ErrInsufficientStake)

	power := contracttest.MustQuery[types.Uint128](h, addr, &staking.GetVotingPower{Owner: "carol"})
	assert.Equal(t, "71000", power.String())
	h.MustExecute(addr, "carol", &governance.CastVote{Amount: power})

	// The committed weight cannot leave while the proposal is open
	err = h.Execute(addr, "carol", &staking.Unstake{Amount: amt(1)})
	require.ErrorIs(t, err, contract.ErrStillLocked)
	acct := contracttest.MustQuery[staking.Account](h, addr, &staking.GetAccount{Owner: "carol"})
	assert.Equal(t, "71000", acct.Staked.String())

	// Adding stake is always allowed
	stake(h, "carol", 1_000)

	p := resolve(t, h, 1)
	assert.Equal(t, governance.StatusPassed, p.Status)
	assert.True(t, p.Executed)

	// Resolving releases the weight
	h.MustExecute(addr, "carol", &staking.Unstake{Amount: amt(72_000)})
	h.MustExecute(addr, "carol", &staking.Withdraw{Amount: amt(72_000)})
	assert.Equal(t, "72000", h.Balance("carol", denom).String())
}

func TestUncommittedStakeCanLeave(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "alice", changeOwner("mallory"))
	h.MustExecute(addr, "alice", &governance.CastVote{Amount: amt(30_000)})
	h.MustExecute(addr, "alice", &staking.Unstake{Amount: amt(9_000)})
	err := h.Execute(addr, "alice", &staking.Unstake{Amount: amt(1)})
	require.ErrorIs(t, err, contract.ErrStillLocked)
	// Non-voters are unaffected
	h.MustExecute(addr, "bob", &staking.Unstake{Amount: amt(10_000)})
}

func TestVotingPowerScalesQuorum(t *testing.T) {
	cfg := governance.DefaultConfig()
	cfg.Staking.VotingPowerPerToken = amt(3)
	h := newEngine(t, cfg)
	stake(h, "alice", 1_000)
	stake(h, "bob", 2_000)
	h.MustExecute(addr, "alice", changeOwner("dave"))
	active := contracttest.MustQuery[governance.Proposal](h, addr, &governance.GetActiveProposal{})
	assert.Equal(t, "9000", active.QuorumSnapshot.String())
	err := h.Execute(addr, "alice", &governance.CastVote{Amount: amt(3_001)})
	require.ErrorIs(t, err, contract.ErrInsufficientStake)
	h.MustExecute(addr, "alice", &governance.CastVote{Amount: amt(3_000)})
	p := resolve(t, h, 1)
	assert.Equal(t, governance.StatusPassed, p.Status)
}

func TestProposeNeedsStake(t *testing.T) {
	h := newEngine(t, governance.DefaultConfig())
	err := h.Execute(addr, "alice", changeOwner("dave"))
	require.ErrorIs(t, err, contract.ErrInvalidRequest)
}

func TestPassedChangeOwner(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "carol", changeOwner("dave"))
	h.MustExecute(addr, "carol", &governance.CastVote{Amount: amt(71_000)})
	p := resolve(t, h, 1)
	assert.Equal(t, governance.StatusPassed, p.Status)
	assert.True(t, p.Executed)

	state := contracttest.MustQuery[ownership.State](h, addr, &ownership.GetOwnership{})
	assert.Equal(t, "admin", state.Owner)
	assert.Equal(t, "dave", state.Proposed)
	h.MustExecute(addr, "dave", &ownership.AcceptOwner{})
	state = contracttest.MustQuery[ownership.State](h, addr, &ownership.GetOwnership{})
	assert.Equal(t, "dave", state.Owner)
}

func TestQuorumBoundary(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "carol", changeOwner("dave"))
	// 33% of 120,000
	h.MustExecute(addr, "carol", &governance.CastVote{Amount: amt(39_600)})
	p := resolve(t, h, 1)
	assert.Equal(t, governance.StatusPassed, p.Status)
}

func TestQuorumSnapshotIsFixed(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "carol", changeOwner("dave"))
	// Stake added after creation does not move the denominator
	stake(h, "dave", 1_000_000)
	h.MustExecute(addr, "carol", &governance.CastVote{Amount: amt(71_000)})
	p := resolve(t, h, 1)
	assert.Equal(t, "120000", p.QuorumSnapshot.String())
	assert.Equal(t, governance.StatusPassed, p.Status)
}

func TestTransferAction(t *testing.T) {
	h := setup(t)
	h.Mint(addr, bank.NewCoin(denom, 500))
	h.MustExecute(addr, "carol", &governance.Propose{Action: governance.Action{
		Transfer: &governance.ActionTransfer{Recipient: "erin", Coin: bank.NewCoin(denom, 500)},
	}})
	h.MustExecute(addr, "carol", &governance.CastVote{Amount: amt(71_000)})
	p := resolve(t, h, 1)
	assert.True(t, p.Executed)
	assert.Equal(t, "500", h.Balance("erin", denom).String())
	assert.Equal(t, "120000", h.Balance(addr, denom).String())
}

func TestTransferActionCannotSpendStake(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "carol", &governance.Propose{Action: governance.Action{
		Transfer: &governance.ActionTransfer{Recipient: "carol", Coin: bank.NewCoin(denom, 1_000)},
	}})
	h.MustExecute(addr, "carol", &governance.CastVote{Amount: amt(71_000)})
	p := resolve(t, h, 1)
	assert.Equal(t, governance.StatusPassed, p.Status)
	assert.False(t, p.Executed)
	assert.NotEmpty(t, p.ExecutionError)
	assert.True(t, h.Balance("carol", denom).IsZero())
	assert.Equal(t, "120000", h.Balance(addr, denom).String())
	assert.Contains(t, h.EventTypes(), "proposal_execution_failed")
}

func TestSingleOpenProposal(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "alice", changeOwner("mallory"))
	err := h.Execute(addr, "bob", changeOwner("dave"))
	require.ErrorIs(t, err, contract.ErrProposalActive)
	// Still blocked after the deadline until resolved
	h.Advance(governance.DefaultVotingPeriod)
	err = h.Execute(addr, "bob", changeOwner("dave"))
	require.ErrorIs(t, err, contract.ErrProposalActive)
	h.MustExecute(addr, "bob", &governance.ResolveProposal{})
	h.MustExecute(addr, "bob", changeOwner("dave"))
}

func TestVotingRules(t *testing.T) {
	h := setup(t)
	err := h.Execute(addr, "alice", &governance.CastVote{Amount: amt(1)})
	require.ErrorIs(t, err, contract.ErrNoActiveProposal)

	h.MustExecute(addr, "alice", changeOwner("mallory"))
	h.MustExecute(addr, "alice", &governance.CastVote{Amount: amt(100)})
	err = h.Execute(addr, "alice", &governance.CastVote{Amount: amt(100)})
	require.ErrorIs(t, err, contract.ErrAlreadyVoted)
	err = h.Execute(addr, "bob", &governance.CastVote{Amount: amt(10_001)})
	require.ErrorIs(t, err, contract.ErrInsufficientStake)
	err = h.Execute(addr, "bob", &governance.CastVote{})
	require.ErrorIs(t, err, contract.ErrInvalidAmount)

	err = h.Execute(addr, "bob", &governance.ResolveProposal{})
	require.ErrorIs(t, err, contract.ErrTooEarly)

	h.Advance(governance.DefaultVotingPeriod)
	err = h.Execute(addr, "bob", &governance.CastVote{Amount: amt(1)})
	require.ErrorIs(t, err, contract.ErrVotingClosed)

	h.MustExecute(addr, "bob", &governance.ResolveProposal{})
	err = h.Execute(addr, "bob", &governance.ResolveProposal{})
	require.ErrorIs(t, err, contract.ErrAlreadyResolved)
}

func TestProposeValidatesAction(t *testing.T) {
	h := setup(t)
	err := h.Execute(addr, "alice", &governance.Propose{})
	require.ErrorIs(t, err, contract.ErrInvalidRequest)
	err = h.Execute(addr, "alice", changeOwner("Mallory"))
	require.ErrorIs(t, err, contract.ErrInvalidAddress)
}

func TestOwnerProposalsAlsoAccepted(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "admin", &ownership.ProposeOwner{NewOwner: "dave"})
	err := h.Execute(addr, "mallory", &ownership.AcceptOwner{})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
	h.MustExecute(addr, "dave", &ownership.AcceptOwner{})
}
