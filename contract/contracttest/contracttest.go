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

// Package contracttest runs contracts against an in-memory database for
// unit tests
package contracttest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/saga"
	"github.com/stretchr/testify/require"
)

// Genesis is the starting time of every harness
var Genesis = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Harness executes contract calls one at a time, each in its own
// transaction, the way the runtime does
type Harness struct {
	t         testing.TB
	DB        *database.Database
	Bank      *bank.Bank
	Sagas     *saga.Runner
	logger    *slog.Logger
	contracts map[string]contract.Contract
	Now       time.Time
	Events    []contract.Event
	// HoldSagas collects scheduled sagas in Held instead of running them
	HoldSagas bool
	Held      []*saga.Saga
}

func New(t testing.TB) *Harness {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return &Harness{
		t:         t,
		DB:        db,
		Bank:      bank.New(logger),
		Sagas:     saga.NewRunner(db, logger),
		logger:    logger,
		contracts: make(map[string]contract.Contract),
		Now:       Genesis,
	}
}

// Advance moves the clock forward
func (h *Harness) Advance(d time.Duration) {
	h.Now = h.Now.Add(d)
}

// Mint credits coins to addr
func (h *Harness) Mint(addr string, coins ...bank.Coin) {
	h.t.Helper()
	require.NoError(h.t, h.DB.Update(func(txn *database.Txn) error {
		for _, coin := range coins {
			if err := h.Bank.Mint(txn, addr, coin); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Balance returns the balance of denom held by addr
func (h *Harness) Balance(addr string, denom string) types.Uint128 {
	h.t.Helper()
	var ret types.Uint128
	require.NoError(h.t, h.DB.View(func(txn *database.Txn) error {
		var err error
		ret, err = h.Bank.BalanceOf(txn, addr, denom)
		return err
	}))
	return ret
}

// Instantiate creates a contract instance at address
func (h *Harness) Instantiate(
	c contract.Contract,
	address string,
	creator string,
	config any,
) error {
	if _, ok := h.contracts[address]; ok {
		return errors.New("address already in use")
	}
	err := h.call(address, creator, func(ctx *contract.Ctx) error {
		return c.Instantiate(ctx, config)
	})
	if err == nil {
		h.contracts[address] = c
	}
	return err
}

// MustInstantiate is Instantiate that fails the test on error
func (h *Harness) MustInstantiate(
	c contract.Contract,
	address string,
	creator string,
	config any,
) {
	h.t.Helper()
	require.NoError(h.t, h.Instantiate(c, address, creator, config))
}

// Execute delivers msg from caller to the contract at address. Sagas
// started by the call run after it commits.
func (h *Harness) Execute(address string, caller string, msg any) error {
	c, ok := h.contracts[address]
	if !ok {
		return contract.ErrNotFound
	}
	return h.call(address, caller, func(ctx *contract.Ctx) error {
		return c.Execute(ctx, msg)
	})
}

// MustExecute is Execute that fails the test on error
func (h *Harness) MustExecute(address string, caller string, msg any) {
	h.t.Helper()
	require.NoError(h.t, h.Execute(address, caller, msg))
}

// Query runs q against the contract at address in a read-only transaction
func (h *Harness) Query(address string, q any) (any, error) {
	c, ok := h.contracts[address]
	if !ok {
		return nil, contract.ErrNotFound
	}
	var ret any
	err := h.DB.View(func(txn *database.Txn) error {
		ctx := contract.NewCtx(context.Background(), txn, h.Bank, h.logger, address, "", h.Now)
		var err error
		ret, err = c.Query(ctx, q)
		return err
	})
	return ret, err
}

// MustQuery runs q and asserts the result type
func MustQuery[T any](h *Harness, address string, q any) T {
	h.t.Helper()
	res, err := h.Query(address, q)
	require.NoError(h.t, err)
	ret, ok := res.(T)
	require.Truef(h.t, ok, "query result is %T", res)
	return ret
}

func (h *Harness) call(
	address string,
	caller string,
	fn func(*contract.Ctx) error,
) error {
	var ctx *contract.Ctx
	err := h.DB.Update(func(txn *database.Txn) error {
		ctx = contract.NewCtx(context.Background(), txn, h.Bank, h.logger, address, caller, h.Now)
		return fn(ctx)
	})
	if err != nil {
		return err
	}
	h.Events = append(h.Events, ctx.Events()...)
	if h.HoldSagas {
		h.Held = append(h.Held, ctx.Sagas()...)
		return nil
	}
	var sagaErr error
	for _, s := range ctx.Sagas() {
		sagaErr = errors.Join(sagaErr, h.Sagas.Execute(context.Background(), s))
	}
	return sagaErr
}

// EventTypes returns the types of all events emitted so far
func (h *Harness) EventTypes() []string {
	ret := make([]string, 0, len(h.Events))
	for _, evt := range h.Events {
		ret = append(ret, evt.Type)
	}
	return ret
}
