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

package warden

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/saga"
)

// callResult holds the effects of a committed call that are released
// only after commit
type callResult struct {
	events []event.ContractEvent
	sagas  []*saga.Saga
}

// call runs fn in a single read-write transaction stamped with the
// runtime clock. Emitted events are journaled in the same transaction.
func (r *Runtime) call(
	ctx context.Context,
	address string,
	caller string,
	fn func(*contract.Ctx) error,
) (*callResult, error) {
	now := r.config.clock().UTC()
	res := &callResult{}
	err := r.db.Update(func(txn *database.Txn) error {
		if err := advanceClock(txn, now); err != nil {
			return err
		}
		c := contract.NewCtx(ctx, txn, r.bank, r.config.logger, address, caller, now)
		if err := fn(c); err != nil {
			return err
		}
		events, err := r.journal(txn, c)
		if err != nil {
			return fmt.Errorf("journal events: %w", err)
		}
		res.events = events
		res.sagas = c.Sagas()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// advanceClock refuses a call stamped earlier than the last committed one
func advanceClock(txn *database.Txn, now time.Time) error {
	store := txn.KeyedStore(runtimeScope)
	last, ok, err := lastCallTime.Load(store)
	if err != nil {
		return err
	}
	if ok {
		if now.Before(last) {
			return fmt.Errorf(
				"%w: %s is before %s",
				ErrClockRegression,
				now.Format(time.RFC3339Nano),
				last.Format(time.RFC3339Nano),
			)
		}
		if now.Equal(last) {
			return nil
		}
	}
	return lastCallTime.Save(store, now)
}

func (r *Runtime) journal(txn *database.Txn, c *contract.Ctx) ([]event.ContractEvent, error) {
	emitted := c.Events()
	if len(emitted) == 0 {
		return nil, nil
	}
	meta := r.db.Metadata()
	seq, err := meta.GetLastEventSequence(txn.Metadata())
	if err != nil {
		return nil, err
	}
	rows := make([]models.ContractEvent, 0, len(emitted))
	ret := make([]event.ContractEvent, 0, len(emitted))
	for _, evt := range emitted {
		seq++
		attrs := make([]event.Attribute, 0, len(evt.Attributes))
		for _, attr := range evt.Attributes {
			attrs = append(attrs, event.Attribute{Key: attr.Key, Value: attr.Value})
		}
		raw, err := database.EncodeValue(attrs)
		if err != nil {
			return nil, err
		}
		rows = append(rows, models.ContractEvent{
			Time:       c.Now,
			Contract:   c.Contract,
			Type:       evt.Type,
			Attributes: raw,
			Sequence:   seq,
		})
		ret = append(ret, event.ContractEvent{
			Time:       c.Now,
			Contract:   c.Contract,
			Caller:     c.Caller,
			Type:       evt.Type,
			Attributes: attrs,
			Sequence:   seq,
		})
	}
	if err := meta.AddContractEvents(rows, txn.Metadata()); err != nil {
		return nil, err
	}
	return ret, nil
}

func (r *Runtime) publish(res *callResult) {
	for _, evt := range res.events {
		r.eventBus.Publish(
			event.ContractEventType,
			event.NewEvent(event.ContractEventType, evt),
		)
	}
}

// runSagas runs sagas one after another. Every saga runs even when an
// earlier one failed.
func (r *Runtime) runSagas(ctx context.Context, sagas []*saga.Saga) error {
	var ret error
	for _, s := range sagas {
		err := r.sagas.Execute(ctx, s)
		r.metrics.sagas.WithLabelValues(s.Kind(), s.State()).Inc()
		finished := event.SagaFinishedEvent{
			ID:       s.ID(),
			Kind:     s.Kind(),
			Contract: s.Contract(),
			State:    s.State(),
		}
		if err != nil {
			finished.Error = err.Error()
			ret = errors.Join(ret, err)
			level := r.config.logger.Warn
			if errors.Is(err, saga.ErrStuck) {
				level = r.config.logger.Error
			}
			level(
				fmt.Sprintf("saga did not complete: %s", err),
				"component", "runtime",
				"saga", s.ID(),
				"kind", s.Kind(),
				"state", s.State(),
			)
		}
		r.eventBus.Publish(
			event.SagaFinishedEventType,
			event.NewEvent(event.SagaFinishedEventType, finished),
		)
	}
	return ret
}
