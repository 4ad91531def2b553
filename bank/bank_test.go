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

package bank_test

import (
	"testing"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMintAndTransfer(t *testing.T) {
	db := newTestDatabase(t)
	b := bank.New(nil)
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		if err := b.Mint(txn, "alice", bank.NewCoin("uatom", 1000)); err != nil {
			return err
		}
		return b.Transfer(txn, "alice", "bob", bank.NewCoin("uatom", 400))
	}))
	require.NoError(t, db.View(func(txn *database.Txn) error {
		alice, err := b.BalanceOf(txn, "alice", "uatom")
		require.NoError(t, err)
		assert.Equal(t, "600", alice.String())
		bob, err := b.BalanceOf(txn, "bob", "uatom")
		require.NoError(t, err)
		assert.Equal(t, "400", bob.String())
		supply, err := b.Supply(txn, "uatom")
		require.NoError(t, err)
		assert.Equal(t, "1000", supply.String())
		coins, err := b.Balances(txn, "bob")
		require.NoError(t, err)
		assert.Equal(t, []bank.Coin{bank.NewCoin("uatom", 400)}, coins)
		return nil
	}))
}

func TestTransferInsufficientFunds(t *testing.T) {
	db := newTestDatabase(t)
	b := bank.New(nil)
	err := db.Update(func(txn *database.Txn) error {
		if err := b.Mint(txn, "alice", bank.NewCoin("uatom", 10)); err != nil {
			return err
		}
		return b.Transfer(txn, "alice", "bob", bank.NewCoin("uatom", 11))
	})
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	// The failed call minted nothing either
	require.NoError(t, db.View(func(txn *database.Txn) error {
		supply, err := b.Supply(txn, "uatom")
		require.NoError(t, err)
		assert.True(t, supply.IsZero())
		return nil
	}))
}

func TestSelfTransferNeedsFunds(t *testing.T) {
	db := newTestDatabase(t)
	b := bank.New(nil)
	err := db.Update(func(txn *database.Txn) error {
		return b.Transfer(txn, "alice", "alice", bank.NewCoin("uatom", 1))
	})
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
}

func TestMintOverflow(t *testing.T) {
	db := newTestDatabase(t)
	b := bank.New(nil)
	err := db.Update(func(txn *database.Txn) error {
		if err := b.Mint(txn, "alice", bank.Coin{Denom: "uatom", Amount: types.MaxUint128()}); err != nil {
			return err
		}
		return b.Mint(txn, "bob", bank.NewCoin("uatom", 1))
	})
	require.ErrorIs(t, err, types.ErrOverflow)
}

func TestAddressValidation(t *testing.T) {
	testDefs := []struct {
		addr  string
		valid bool
	}{
		{addr: "alice", valid: true},
		{addr: "new_owner", valid: true},
		{addr: "cosmos1abc.def-9", valid: true},
		{addr: "ab", valid: false},
		{addr: "Alice", valid: false},
		{addr: "new owner", valid: false},
		{addr: "", valid: false},
	}
	for _, testDef := range testDefs {
		err := bank.ValidateAddress(testDef.addr)
		if testDef.valid {
			assert.NoError(t, err, testDef.addr)
		} else {
			assert.ErrorIs(t, err, bank.ErrInvalidAddress, testDef.addr)
		}
	}
	db := newTestDatabase(t)
	b := bank.New(nil)
	err := db.Update(func(txn *database.Txn) error {
		return b.Mint(txn, "Alice", bank.NewCoin("uatom", 1))
	})
	require.ErrorIs(t, err, bank.ErrInvalidAddress)
}

func TestDenomValidation(t *testing.T) {
	require.NoError(t, bank.ValidateDenom("uatom"))
	require.NoError(t, bank.ValidateDenom("ibc/27394FB0"))
	require.ErrorIs(t, bank.ValidateDenom("1atom"), bank.ErrInvalidDenom)
	require.ErrorIs(t, bank.ValidateDenom("u"), bank.ErrInvalidDenom)
}
