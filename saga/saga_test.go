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

package saga_test

import (
	"context"
	"errors"
	"testing"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/saga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sagaFixture struct {
	db     *database.Database
	bank   *bank.Bank
	runner *saga.Runner
}

func newFixture(t *testing.T) *sagaFixture {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	f := &sagaFixture{
		db:     db,
		bank:   bank.New(nil),
		runner: saga.NewRunner(db, nil),
	}
	require.NoError(t, db.Update(func(txn *database.Txn) error {
		if err := f.bank.Mint(txn, "escrow", bank.NewCoin("ugold", 100)); err != nil {
			return err
		}
		return f.bank.Mint(txn, "taker", bank.NewCoin("usilver", 50))
	}))
	return f
}

func (f *sagaFixture) balance(t *testing.T, addr, denom string) string {
	t.Helper()
	var ret string
	require.NoError(t, f.db.View(func(txn *database.Txn) error {
		bal, err := f.bank.BalanceOf(txn, addr, denom)
		ret = bal.String()
		return err
	}))
	return ret
}

func (f *sagaFixture) move(from, to string, coin bank.Coin) saga.Step {
	return func(txn *database.Txn) error {
		return f.bank.Transfer(txn, from, to, coin)
	}
}

func (f *sagaFixture) swapLegs(want uint64) []saga.Leg {
	give := bank.NewCoin("ugold", 100)
	return []saga.Leg{
		{
			Name:       "pay-taker",
			Do:         f.move("escrow", "taker", give),
			Compensate: f.move("taker", "escrow", give),
		},
		{
			Name: "pay-maker",
			Do:   f.move("taker", "maker", bank.NewCoin("usilver", want)),
		},
	}
}

func TestSagaCompletes(t *testing.T) {
	f := newFixture(t)
	s := saga.New("swap", "swap1", f.swapLegs(50)...)
	assert.Equal(t, 2, s.Pending())
	require.NoError(t, f.runner.Execute(context.Background(), s))
	assert.Equal(t, models.SagaStateCompleted, s.State())
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, "100", f.balance(t, "taker", "ugold"))
	assert.Equal(t, "50", f.balance(t, "maker", "usilver"))

	rec, err := f.runner.Get(s.ID())
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateCompleted, rec.State)
	require.Len(t, rec.Legs, 2)
	assert.Equal(t, models.SagaLegStateCommitted, rec.Legs[0].State)
	assert.Equal(t, models.SagaLegStateCommitted, rec.Legs[1].State)

	// A saga runs once
	require.ErrorIs(t, f.runner.Execute(context.Background(), s), saga.ErrFinished)
}

func TestSagaCompensatesFailedLeg(t *testing.T) {
	f := newFixture(t)
	// The taker only has 50 usilver
	s := saga.New("swap", "swap1", f.swapLegs(60)...)
	err := f.runner.Execute(context.Background(), s)
	require.ErrorIs(t, err, saga.ErrCompensated)
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	assert.Equal(t, models.SagaStateCompensated, s.State())
	assert.Equal(t, 2, s.Pending())

	// Nothing moved
	assert.Equal(t, "100", f.balance(t, "escrow", "ugold"))
	assert.Equal(t, "0", f.balance(t, "taker", "ugold"))
	assert.Equal(t, "50", f.balance(t, "taker", "usilver"))

	rec, err := f.runner.Get(s.ID())
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateCompensated, rec.State)
	assert.Equal(t, models.SagaLegStateCompensated, rec.Legs[0].State)
	assert.Equal(t, models.SagaLegStateFailed, rec.Legs[1].State)
	assert.NotEmpty(t, rec.Error)
}

func TestSagaStuckWhenCompensationFails(t *testing.T) {
	f := newFixture(t)
	errBroken := errors.New("broken compensation")
	legs := f.swapLegs(60)
	legs[0].Compensate = func(*database.Txn) error { return errBroken }
	s := saga.New("swap", "swap1", legs...)
	err := f.runner.Execute(context.Background(), s)
	require.ErrorIs(t, err, saga.ErrStuck)
	require.ErrorIs(t, err, errBroken)
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	assert.Equal(t, models.SagaStateStuck, s.State())
	assert.Equal(t, 1, s.Pending())

	rec, err := f.runner.Get(s.ID())
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateStuck, rec.State)
	assert.Equal(t, models.SagaLegStateCommitted, rec.Legs[0].State)
}

func TestSagaFailedLegLeavesNoPartialWrite(t *testing.T) {
	f := newFixture(t)
	errLate := errors.New("late failure")
	s := saga.New("test", "swap1", saga.Leg{
		Name: "half",
		Do: func(txn *database.Txn) error {
			if err := f.bank.Transfer(txn, "escrow", "taker", bank.NewCoin("ugold", 1)); err != nil {
				return err
			}
			return errLate
		},
	})
	err := f.runner.Execute(context.Background(), s)
	require.ErrorIs(t, err, errLate)
	assert.Equal(t, "100", f.balance(t, "escrow", "ugold"))
}

func TestSagaWithoutLegs(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.runner.Execute(context.Background(), saga.New("test", "swap1")), saga.ErrNoLegs)
}

func TestSagaCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := saga.New("swap", "swap1", f.swapLegs(50)...)
	err := f.runner.Execute(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, saga.ErrCompensated)
	assert.Equal(t, "100", f.balance(t, "escrow", "ugold"))
}

func TestRecoverMarksInterruptedSagas(t *testing.T) {
	f := newFixture(t)
	rec := &models.Saga{
		ID:      "interrupted",
		Kind:    "swap",
		State:   models.SagaStateRunning,
		Pending: 1,
		Legs: []models.SagaLeg{
			{Step: 0, Name: "pay-taker", State: models.SagaLegStateCommitted},
			{Step: 1, Name: "pay-maker", State: models.SagaLegStatePending},
		},
	}
	require.NoError(t, f.db.Update(func(txn *database.Txn) error {
		return f.db.Metadata().SaveSaga(rec, txn.Metadata())
	}))
	count, err := f.runner.Recover()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	got, err := f.runner.Get("interrupted")
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateStuck, got.State)
	assert.True(t, got.Terminal())
}
