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

package vault_test

import (
	"testing"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/contracttest"
	"github.com/blinklabs-io/warden/contract/ownership"
	"github.com/blinklabs-io/warden/contract/vault"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	denom = vault.DefaultDenom
	addr  = "vault1"
)

func amt(v uint64) types.Uint128 {
	return types.NewUint128(v)
}

func setup(t *testing.T) *contracttest.Harness {
	h := contracttest.New(t)
	cfg := vault.DefaultConfig()
	h.MustInstantiate(vault.New(), addr, "admin", &cfg)
	h.Mint("user", bank.NewCoin(denom, 10_000))
	h.Mint("user2", bank.NewCoin(denom, 10_000))
	return h
}

func sharesOf(h *contracttest.Harness, owner string) types.Uint128 {
	return contracttest.MustQuery[vault.Balance](h, addr, &vault.GetUserBalance{Address: owner}).Shares
}

func TestMintAndBurn(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "user", &vault.Mint{Amount: amt(10_000)})
	h.MustExecute(addr, "user2", &vault.Mint{Amount: amt(10_000)})
	held := sharesOf(h, "user")
	assert.Equal(t, "10000", held.String())
	h.MustExecute(addr, "user", &vault.Burn{Shares: held})
	h.MustExecute(addr, "user2", &vault.Burn{Shares: held})
	assert.Equal(t, "10000", h.Balance("user", denom).String())
	assert.Equal(t, "10000", h.Balance("user2", denom).String())
	assert.True(t, h.Balance(addr, denom).IsZero())
	state := contracttest.MustQuery[vault.State](h, addr, &vault.GetState{})
	assert.True(t, state.TotalAssets.IsZero())
	assert.True(t, state.TotalShares.IsZero())
}

func TestDonationDoesNotDilute(t *testing.T) {
	h := setup(t)
	// Coins sent straight to the vault
	require.NoError(t, h.DB.Update(func(txn *database.Txn) error {
		return h.Bank.Transfer(txn, "user", addr, bank.NewCoin(denom, 5_000))
	}))
	h.MustExecute(addr, "user", &vault.Mint{Amount: amt(10)})
	h.MustExecute(addr, "user2", &vault.Mint{Amount: amt(10_000)})
	assert.Equal(t, "10", sharesOf(h, "user").String())
	assert.Equal(t, "10000", sharesOf(h, "user2").String())

	h.MustExecute(addr, "user", &vault.Burn{Shares: amt(10)})
	assert.Equal(t, "5000", h.Balance("user", denom).String())
	h.MustExecute(addr, "user2", &vault.Burn{Shares: amt(10_000)})
	assert.Equal(t, "10000", h.Balance("user2", denom).String())

	// The donation is not backing any shares, so the owner may sweep it
	err := h.Execute(addr, "user", &ownership.OwnerAction{Send: &ownership.Send{
		Recipient: "user",
		Coins:     []bank.Coin{bank.NewCoin(denom, 5_000)},
	}})
	require.ErrorIs(t, err, contract.ErrNotOwner)
	h.MustExecute(addr, "admin", &ownership.OwnerAction{Send: &ownership.Send{
		Recipient: "user",
		Coins:     []bank.Coin{bank.NewCoin(denom, 5_000)},
	}})
	assert.Equal(t, "10000", h.Balance("user", denom).String())
}

func TestOwnerCannotSweepBackedAssets(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "user", &vault.Mint{Amount: amt(1_000)})
	err := h.Execute(addr, "admin", &ownership.OwnerAction{Send: &ownership.Send{
		Recipient: "admin",
		Coins:     []bank.Coin{bank.NewCoin(denom, 1)},
	}})
	require.ErrorIs(t, err, contract.ErrInsufficientFunds)
}

func TestBurnMoreThanHeld(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "user", &vault.Mint{Amount: amt(100)})
	err := h.Execute(addr, "user", &vault.Burn{Shares: amt(101)})
	require.ErrorIs(t, err, contract.ErrInsufficientFunds)
	err = h.Execute(addr, "user2", &vault.Burn{Shares: amt(1)})
	require.ErrorIs(t, err, contract.ErrInsufficientFunds)
}

func TestZeroAmountsRejected(t *testing.T) {
	h := setup(t)
	require.ErrorIs(t, h.Execute(addr, "user", &vault.Mint{}), contract.ErrInvalidAmount)
	require.ErrorIs(t, h.Execute(addr, "user", &vault.Burn{}), contract.ErrInvalidAmount)
}
