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

package treasury_test

import (
	"testing"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/contracttest"
	"github.com/blinklabs-io/warden/contract/ownership"
	"github.com/blinklabs-io/warden/contract/treasury"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	denom = treasury.DefaultDenom
	addr  = "treasury1"
)

func amt(v uint64) types.Uint128 {
	return types.NewUint128(v)
}

func setup(t *testing.T) *contracttest.Harness {
	h := contracttest.New(t)
	cfg := treasury.DefaultConfig()
	h.MustInstantiate(treasury.New(), addr, "admin", &cfg)
	return h
}

func top(h *contracttest.Harness) treasury.TopDepositor {
	return contracttest.MustQuery[treasury.TopDepositor](h, addr, &treasury.GetTop{})
}

func TestDepositAndWithdraw(t *testing.T) {
	h := setup(t)
	h.Mint("user1", bank.NewCoin(denom, 100))
	h.MustExecute(addr, "user1", &treasury.Deposit{Amount: amt(100)})
	assert.True(t, h.Balance("user1", denom).IsZero())
	assert.Equal(t, "user1", top(h).Address)

	err := h.Execute(addr, "user1", &treasury.Withdraw{Amount: amt(101)})
	require.ErrorIs(t, err, contract.ErrInsufficientFunds)
	h.MustExecute(addr, "user1", &treasury.Withdraw{Amount: amt(100)})
	assert.Equal(t, "100", h.Balance("user1", denom).String())
	totals := contracttest.MustQuery[treasury.Totals](h, addr, &treasury.GetTotals{})
	assert.True(t, totals.TotalDeposits.IsZero())
}

func TestTopDepositorNeedsThreshold(t *testing.T) {
	h := setup(t)
	h.Mint("user1", bank.NewCoin(denom, 99))
	h.MustExecute(addr, "user1", &treasury.Deposit{Amount: amt(99)})
	assert.Empty(t, top(h).Address)
}

func TestTopDepositorCannotBecomeOwner(t *testing.T) {
	h := setup(t)
	h.Mint("grug", bank.NewCoin(denom, 1_000))
	h.Mint("hacker", bank.NewCoin(denom, 1_001))
	h.MustExecute(addr, "grug", &treasury.Deposit{Amount: amt(1_000)})
	h.MustExecute(addr, "hacker", &treasury.Deposit{Amount: amt(1_001)})
	assert.Equal(t, treasury.TopDepositor{Address: "hacker", Balance: amt(1_001)}, top(h))

	state := contracttest.MustQuery[ownership.State](h, addr, &ownership.GetOwnership{})
	assert.Equal(t, "admin", state.Owner)
	err := h.Execute(addr, "hacker", &ownership.OwnerAction{Send: &ownership.Send{
		Recipient: "hacker",
		Coins:     []bank.Coin{bank.NewCoin(denom, 2_001)},
	}})
	require.ErrorIs(t, err, contract.ErrNotOwner)
	assert.Equal(t, "2001", h.Balance(addr, denom).String())

	// The owner cannot send deposits either
	err = h.Execute(addr, "admin", &ownership.OwnerAction{Send: &ownership.Send{
		Recipient: "admin",
		Coins:     []bank.Coin{bank.NewCoin(denom, 1)},
	}})
	require.ErrorIs(t, err, contract.ErrInsufficientFunds)
}

func TestSmallerDepositKeepsTop(t *testing.T) {
	h := setup(t)
	h.Mint("user1", bank.NewCoin(denom, 500))
	h.Mint("user2", bank.NewCoin(denom, 500))
	h.MustExecute(addr, "user1", &treasury.Deposit{Amount: amt(500)})
	h.MustExecute(addr, "user2", &treasury.Deposit{Amount: amt(500)})
	assert.Equal(t, "user1", top(h).Address)
}

func TestRecordNamespaces(t *testing.T) {
	for ns, want := range map[types.Namespace]string{
		types.NamespaceTreasuryConfig:  "treasury/config",
		types.NamespaceTreasuryBalance: "treasury/balances",
		types.NamespaceTreasuryTop:     "treasury/top",
		types.NamespaceTreasuryTotals:  "treasury/totals",
	} {
		name, ok := types.NamespaceName(ns)
		require.True(t, ok)
		assert.Equal(t, want, name)
	}
}
