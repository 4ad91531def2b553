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

package sqlstore_test

import (
	"testing"
	"time"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/plugin/metadata/sqlstore"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.NewSqlite("", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInMemoryStoresAreIsolated(t *testing.T) {
	store1 := newTestStore(t)
	store2 := newTestStore(t)
	require.NoError(t, store1.SetBalance("alice", "uatom", types.NewUint128(5), nil))
	bal, err := store2.GetBalance("alice", "uatom", nil)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestBalanceUpsertAndDelete(t *testing.T) {
	store := newTestStore(t)
	bal, err := store.GetBalance("alice", "uatom", nil)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	require.NoError(t, store.SetBalance("alice", "uatom", types.NewUint128(100), nil))
	require.NoError(t, store.SetBalance("alice", "uatom", types.NewUint128(250), nil))
	require.NoError(t, store.SetBalance("alice", "ubtc", types.NewUint128(1), nil))
	bal, err = store.GetBalance("alice", "uatom", nil)
	require.NoError(t, err)
	assert.Equal(t, "250", bal.String())

	balances, err := store.GetBalances("alice", nil)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "uatom", balances[0].Denom)
	assert.Equal(t, "ubtc", balances[1].Denom)

	require.NoError(t, store.SetBalance("alice", "ubtc", types.Uint128{}, nil))
	balances, err = store.GetBalances("alice", nil)
	require.NoError(t, err)
	require.Len(t, balances, 1)
}

func TestLargeAmountRoundTrip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SetSupply("uatom", types.MaxUint128(), nil))
	supply, err := store.GetSupply("uatom", nil)
	require.NoError(t, err)
	assert.True(t, supply.Eq(types.MaxUint128()))
}

func TestTransactionRollback(t *testing.T) {
	store := newTestStore(t)
	txn := store.Transaction()
	require.NoError(t, store.SetBalance("bob", "uatom", types.NewUint128(7), txn))
	bal, err := store.GetBalance("bob", "uatom", txn)
	require.NoError(t, err)
	assert.Equal(t, "7", bal.String())
	require.NoError(t, txn.Rollback())

	bal, err = store.GetBalance("bob", "uatom", nil)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	// A finished transaction cannot be reused
	_, err = store.GetBalance("bob", "uatom", txn)
	require.Error(t, err)
}

func TestCommitTimestamp(t *testing.T) {
	store := newTestStore(t)
	ts, err := store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Zero(t, ts)
	require.NoError(t, store.SetCommitTimestamp(42, nil))
	require.NoError(t, store.SetCommitTimestamp(43, nil))
	ts, err = store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(43), ts)
}

func TestSagaJournal(t *testing.T) {
	store := newTestStore(t)
	saga := &models.Saga{
		ID:       "saga-1",
		Kind:     "swap",
		Contract: "swap1",
		State:    models.SagaStateRunning,
		Pending:  2,
		Legs: []models.SagaLeg{
			{Step: 0, Name: "pay-taker", State: models.SagaLegStatePending},
			{Step: 1, Name: "pay-maker", State: models.SagaLegStatePending},
		},
	}
	require.NoError(t, store.SaveSaga(saga, nil))

	saga.Legs[0].State = models.SagaLegStateCommitted
	saga.Pending = 1
	require.NoError(t, store.SaveSaga(saga, nil))

	got, err := store.GetSaga("saga-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Pending)
	require.Len(t, got.Legs, 2)
	assert.Equal(t, models.SagaLegStateCommitted, got.Legs[0].State)
	assert.Equal(t, "pay-maker", got.Legs[1].Name)
	assert.False(t, got.Terminal())

	running, err := store.GetSagasByState(models.SagaStateRunning, nil)
	require.NoError(t, err)
	assert.Len(t, running, 1)

	_, err = store.GetSaga("missing", nil)
	require.ErrorIs(t, err, sqlstore.ErrSagaNotFound)
}

func TestContractRegistryAndEvents(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddContractInstance(&models.ContractInstance{
		Address:   "lockup1",
		Kind:      "lockup",
		Creator:   "admin",
		CreatedAt: time.Unix(100, 0),
	}, nil))
	// Addresses are unique
	require.Error(t, store.AddContractInstance(&models.ContractInstance{
		Address: "lockup1",
		Kind:    "lockup",
	}, nil))
	_, err := store.GetContractInstance("nope", nil)
	require.ErrorIs(t, err, models.ErrContractNotFound)

	require.NoError(t, store.AddContractEvents([]models.ContractEvent{
		{Contract: "lockup1", Type: "deposit", Sequence: 1},
		{Contract: "lockup1", Type: "withdraw", Sequence: 2},
		{Contract: "other1", Type: "deposit", Sequence: 2},
	}, nil))
	events, err := store.GetContractEvents("lockup1", 1, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "withdraw", events[0].Type)

	seq, err := store.GetLastEventSequence(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}
