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

package swap_test

import (
	"testing"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/contracttest"
	"github.com/blinklabs-io/warden/contract/swap"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/saga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "swap1"

func setup(t *testing.T) *contracttest.Harness {
	h := contracttest.New(t)
	h.MustInstantiate(swap.New(), addr, "admin", &swap.Config{})
	h.Mint("maker", bank.NewCoin("uapple", 100))
	h.Mint("taker", bank.NewCoin("upear", 50))
	return h
}

func offer(h *contracttest.Harness, id uint64) swap.Offer {
	return contracttest.MustQuery[swap.Offer](h, addr, &swap.GetOffer{ID: id})
}

func TestSwapFills(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "maker", &swap.CreateOffer{
		Taker: "taker",
		Give:  bank.NewCoin("uapple", 100),
		Want:  bank.NewCoin("upear", 50),
	})
	assert.Equal(t, "100", h.Balance(addr, "uapple").String())

	h.MustExecute(addr, "taker", &swap.AcceptOffer{ID: 1})
	o := offer(h, 1)
	assert.Equal(t, swap.StatusFilled, o.Status)
	assert.Equal(t, "100", h.Balance("taker", "uapple").String())
	assert.Equal(t, "50", h.Balance("maker", "upear").String())
	assert.True(t, h.Balance(addr, "uapple").IsZero())

	rec, err := h.Sagas.Get(o.SagaID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateCompleted, rec.State)
	assert.Equal(t, 0, rec.Pending)
}

func TestFailedLegCompensates(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "maker", &swap.CreateOffer{
		Give: bank.NewCoin("uapple", 100),
		Want: bank.NewCoin("upear", 80),
	})
	err := h.Execute(addr, "taker", &swap.AcceptOffer{ID: 1})
	require.ErrorIs(t, err, saga.ErrCompensated)
	require.ErrorIs(t, err, contract.ErrInsufficientFunds)

	o := offer(h, 1)
	assert.Equal(t, swap.StatusOpen, o.Status)
	assert.Empty(t, o.Taker)
	assert.Empty(t, o.SagaID)
	assert.True(t, h.Balance("taker", "uapple").IsZero())
	assert.Equal(t, "50", h.Balance("taker", "upear").String())
	assert.Equal(t, "100", h.Balance(addr, "uapple").String())

	// The offer can still be taken by someone who can pay
	h.Mint("rich", bank.NewCoin("upear", 80))
	h.MustExecute(addr, "rich", &swap.AcceptOffer{ID: 1})
	assert.Equal(t, swap.StatusFilled, offer(h, 1).Status)
	assert.Equal(t, "80", h.Balance("maker", "upear").String())
}

func TestCancelOffer(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "maker", &swap.CreateOffer{
		Give: bank.NewCoin("uapple", 60),
		Want: bank.NewCoin("upear", 10),
	})
	err := h.Execute(addr, "taker", &swap.CancelOffer{ID: 1})
	require.ErrorIs(t, err, contract.ErrNotOwner)
	h.MustExecute(addr, "maker", &swap.CancelOffer{ID: 1})
	assert.Equal(t, "100", h.Balance("maker", "uapple").String())
	err = h.Execute(addr, "taker", &swap.AcceptOffer{ID: 1})
	require.ErrorIs(t, err, contract.ErrInvalidRequest)
	open := contracttest.MustQuery[[]swap.Offer](h, addr, &swap.ListOffers{})
	assert.Empty(t, open)
}

func TestReservedTaker(t *testing.T) {
	h := setup(t)
	h.Mint("other", bank.NewCoin("upear", 50))
	h.MustExecute(addr, "maker", &swap.CreateOffer{
		Taker: "taker",
		Give:  bank.NewCoin("uapple", 10),
		Want:  bank.NewCoin("upear", 10),
	})
	err := h.Execute(addr, "other", &swap.AcceptOffer{ID: 1})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
	err = h.Execute(addr, "maker", &swap.CreateOffer{
		Give: bank.NewCoin("uapple", 0),
		Want: bank.NewCoin("upear", 10),
	})
	require.ErrorIs(t, err, contract.ErrInvalidAmount)
}

// interrupt leaves the held settlement saga as a crash would, with the
// first leg committed when delivered is set, and recovers it as stuck
func interrupt(t *testing.T, h *contracttest.Harness, delivered bool) string {
	t.Helper()
	require.Len(t, h.Held, 1)
	s := h.Held[0]
	rec := &models.Saga{
		ID:       s.ID(),
		Kind:     s.Kind(),
		Contract: s.Contract(),
		State:    models.SagaStateRunning,
		Pending:  2,
		Legs: []models.SagaLeg{
			{Step: 0, Name: "deliver", State: models.SagaLegStatePending},
			{Step: 1, Name: "settle", State: models.SagaLegStatePending},
		},
	}
	require.NoError(t, h.DB.Update(func(txn *database.Txn) error {
		if delivered {
			if err := h.Bank.Transfer(txn, addr, "taker", bank.NewCoin("uapple", 100)); err != nil {
				return err
			}
			rec.Pending = 1
			rec.Legs[0].State = models.SagaLegStateCommitted
		}
		return h.DB.Metadata().SaveSaga(rec, txn.Metadata())
	}))
	count, err := h.Sagas.Recover()
	require.NoError(t, err)
	require.Equal(t, 1, count)
	return s.ID()
}

func acceptHeld(t *testing.T, h *contracttest.Harness) {
	t.Helper()
	h.MustExecute(addr, "maker", &swap.CreateOffer{
		Give: bank.NewCoin("uapple", 100),
		Want: bank.NewCoin("upear", 50),
	})
	h.HoldSagas = true
	h.MustExecute(addr, "taker", &swap.AcceptOffer{ID: 1})
	h.HoldSagas = false
	assert.Equal(t, swap.StatusSettling, offer(h, 1).Status)
}

func TestResolveStuckBeforeDelivery(t *testing.T) {
	h := setup(t)
	acceptHeld(t, h)
	id := interrupt(t, h, false)

	h.MustExecute(addr, "maker", &swap.ResolveOffer{ID: 1})
	assert.Equal(t, swap.StatusCancelled, offer(h, 1).Status)
	assert.Equal(t, "100", h.Balance("maker", "uapple").String())
	assert.True(t, h.Balance(addr, "uapple").IsZero())
	assert.Equal(t, "50", h.Balance("taker", "upear").String())

	rec, err := h.Sagas.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateResolved, rec.State)
	assert.Contains(t, rec.Error, "refunded")
	assert.Contains(t, h.EventTypes(), "offer_resolved")
}

func TestResolveStuckCompletesTrade(t *testing.T) {
	h := setup(t)
	acceptHeld(t, h)
	id := interrupt(t, h, true)

	h.MustExecute(addr, "taker", &swap.ResolveOffer{ID: 1})
	assert.Equal(t, swap.StatusFilled, offer(h, 1).Status)
	assert.Equal(t, "100", h.Balance("taker", "uapple").String())
	assert.Equal(t, "50", h.Balance("maker", "upear").String())

	rec, err := h.Sagas.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateResolved, rec.State)
	assert.Contains(t, rec.Error, "filled")

	err = h.Execute(addr, "taker", &swap.ResolveOffer{ID: 1})
	require.ErrorIs(t, err, contract.ErrInvalidRequest)
}

func TestResolveStuckReversesWhenTakerCannotPay(t *testing.T) {
	h := setup(t)
	acceptHeld(t, h)
	interrupt(t, h, true)
	require.NoError(t, h.DB.Update(func(txn *database.Txn) error {
		return h.Bank.Transfer(txn, "taker", "elsewhere", bank.NewCoin("upear", 50))
	}))

	h.MustExecute(addr, "maker", &swap.ResolveOffer{ID: 1})
	assert.Equal(t, swap.StatusCancelled, offer(h, 1).Status)
	assert.Equal(t, "100", h.Balance("maker", "uapple").String())
	assert.True(t, h.Balance("taker", "uapple").IsZero())
}

func TestResolveOfferRules(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "maker", &swap.CreateOffer{
		Give: bank.NewCoin("uapple", 100),
		Want: bank.NewCoin("upear", 50),
	})
	// Only settling offers with a stuck saga can be resolved
	err := h.Execute(addr, "maker", &swap.ResolveOffer{ID: 1})
	require.ErrorIs(t, err, contract.ErrInvalidRequest)

	h.HoldSagas = true
	h.MustExecute(addr, "taker", &swap.AcceptOffer{ID: 1})
	h.HoldSagas = false
	interrupt(t, h, false)
	err = h.Execute(addr, "stranger", &swap.ResolveOffer{ID: 1})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
	err = h.Execute(addr, "maker", &swap.ResolveOffer{ID: 2})
	require.ErrorIs(t, err, contract.ErrNotFound)
}
