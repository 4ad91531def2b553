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

// Package saga runs operations that span several transactions. Each leg
// commits on its own; when a later leg fails, the committed legs are undone
// by their compensating steps in reverse order. Progress is journaled in
// the metadata store in the same transaction as each leg.
package saga

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/google/uuid"
)

var (
	ErrCompensated = errors.New("saga compensated")
	ErrStuck       = errors.New("saga stuck")
	ErrNoLegs      = errors.New("saga has no legs")
	ErrFinished    = errors.New("saga already finished")
	ErrNotStuck    = errors.New("saga is not stuck")
)

// Step is one unit of work, run inside a read-write transaction
type Step func(txn *database.Txn) error

// Leg is a step with the step that undoes it
type Leg struct {
	Do         Step
	Compensate Step
	Name       string
}

// Saga is a multi-leg operation and its progress
type Saga struct {
	record models.Saga
	legs   []Leg
}

// New creates a saga for contract. Every leg starts pending.
func New(kind string, contract string, legs ...Leg) *Saga {
	s := &Saga{
		legs: legs,
		record: models.Saga{
			ID:       uuid.NewString(),
			Kind:     kind,
			Contract: contract,
			State:    models.SagaStateRunning,
			Pending:  len(legs),
		},
	}
	for i, leg := range legs {
		s.record.Legs = append(
			s.record.Legs,
			models.SagaLeg{
				SagaID: s.record.ID,
				Step:   i,
				Name:   leg.Name,
				State:  models.SagaLegStatePending,
			},
		)
	}
	return s
}

func (s *Saga) ID() string       { return s.record.ID }
func (s *Saga) Kind() string     { return s.record.Kind }
func (s *Saga) Contract() string { return s.record.Contract }
func (s *Saga) State() string    { return s.record.State }

// Pending returns the number of legs that are not committed
func (s *Saga) Pending() int { return s.record.Pending }

// Runner executes sagas against a database
type Runner struct {
	db     *database.Database
	logger *slog.Logger
}

func NewRunner(db *database.Database, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Runner{db: db, logger: logger}
}

// Execute runs every leg of s in order. It returns nil when all legs
// committed, an error wrapping ErrCompensated when a leg failed and every
// committed leg was undone, and an error wrapping ErrStuck when undoing
// failed too.
func (r *Runner) Execute(ctx context.Context, s *Saga) error {
	if len(s.legs) == 0 {
		return ErrNoLegs
	}
	if s.record.State != models.SagaStateRunning || s.record.Pending != len(s.legs) {
		return fmt.Errorf("%w: %s", ErrFinished, s.record.ID)
	}
	if err := r.journal(s); err != nil {
		return fmt.Errorf("journal saga %s: %w", s.record.ID, err)
	}
	for i := range s.legs {
		var legErr error
		if err := ctx.Err(); err != nil {
			legErr = err
		} else {
			legErr = r.runLeg(s, i)
		}
		if legErr == nil {
			continue
		}
		r.logger.Warn(
			fmt.Sprintf("saga leg failed, compensating: %s", legErr),
			"component", "saga",
			"saga", s.record.ID,
			"kind", s.record.Kind,
			"leg", s.legs[i].Name,
		)
		s.record.Legs[i].State = models.SagaLegStateFailed
		s.record.Legs[i].Error = legErr.Error()
		return r.compensate(s, i, legErr)
	}
	s.record.State = models.SagaStateCompleted
	if err := r.journal(s); err != nil {
		return fmt.Errorf("journal saga %s: %w", s.record.ID, err)
	}
	return nil
}

// runLeg commits leg i together with its journal update
func (r *Runner) runLeg(s *Saga, i int) error {
	leg := s.legs[i]
	err := r.db.Update(func(txn *database.Txn) error {
		if err := leg.Do(txn); err != nil {
			return err
		}
		s.record.Pending--
		s.record.Legs[i].State = models.SagaLegStateCommitted
		if err := txn.DB().Metadata().SaveSaga(&s.record, txn.Metadata()); err != nil {
			s.record.Pending++
			s.record.Legs[i].State = models.SagaLegStatePending
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("leg %s: %w", leg.Name, err)
	}
	return nil
}

// compensate undoes legs before failed in reverse order
func (r *Runner) compensate(s *Saga, failed int, legErr error) error {
	var compErr error
	for i := failed - 1; i >= 0; i-- {
		leg := s.legs[i]
		if leg.Compensate == nil {
			continue
		}
		err := r.db.Update(func(txn *database.Txn) error {
			if err := leg.Compensate(txn); err != nil {
				return err
			}
			s.record.Pending++
			s.record.Legs[i].State = models.SagaLegStateCompensated
			if err := txn.DB().Metadata().SaveSaga(&s.record, txn.Metadata()); err != nil {
				s.record.Pending--
				s.record.Legs[i].State = models.SagaLegStateCommitted
				return err
			}
			return nil
		})
		if err != nil {
			compErr = fmt.Errorf("compensate leg %s: %w", leg.Name, err)
			break
		}
	}
	if compErr != nil {
		s.record.State = models.SagaStateStuck
		s.record.Error = errors.Join(legErr, compErr).Error()
		r.logger.Error(
			fmt.Sprintf("saga stuck: %s", s.record.Error),
			"component", "saga",
			"saga", s.record.ID,
			"kind", s.record.Kind,
		)
		err := fmt.Errorf("%w: %w", ErrStuck, errors.Join(legErr, compErr))
		if jErr := r.journal(s); jErr != nil {
			return errors.Join(err, jErr)
		}
		return err
	}
	s.record.State = models.SagaStateCompensated
	s.record.Error = legErr.Error()
	err := fmt.Errorf("%w: %w", ErrCompensated, legErr)
	if jErr := r.journal(s); jErr != nil {
		return errors.Join(err, jErr)
	}
	return err
}

func (r *Runner) journal(s *Saga) error {
	return r.db.Update(func(txn *database.Txn) error {
		return txn.DB().Metadata().SaveSaga(&s.record, txn.Metadata())
	})
}

// Recover marks sagas left running by an interrupted process as stuck.
// Their steps are not persisted, so they cannot be resumed.
func (r *Runner) Recover() (int, error) {
	var count int
	err := r.db.Update(func(txn *database.Txn) error {
		meta := txn.DB().Metadata()
		running, err := meta.GetSagasByState(models.SagaStateRunning, txn.Metadata())
		if err != nil {
			return err
		}
		for i := range running {
			rec := &running[i]
			rec.State = models.SagaStateStuck
			rec.Error = "interrupted at " + time.Now().UTC().Format(time.RFC3339)
			if err := meta.SaveSaga(rec, txn.Metadata()); err != nil {
				return err
			}
			r.logger.Error(
				"found interrupted saga",
				"component", "saga",
				"saga", rec.ID,
				"kind", rec.Kind,
				"pending", rec.Pending,
			)
		}
		count = len(running)
		return nil
	})
	return count, err
}

// Lookup returns the journal record of a saga as seen by txn
func Lookup(txn *database.Txn, id string) (*models.Saga, error) {
	return txn.DB().Metadata().GetSaga(id, txn.Metadata())
}

// Resolve marks a stuck saga as settled by hand. The outcome is kept next
// to the error that left it stuck.
func Resolve(txn *database.Txn, rec *models.Saga, outcome string) error {
	if rec.State != models.SagaStateStuck {
		return fmt.Errorf("%w: %s is %s", ErrNotStuck, rec.ID, rec.State)
	}
	rec.State = models.SagaStateResolved
	if rec.Error == "" {
		rec.Error = "resolved: " + outcome
	} else {
		rec.Error = rec.Error + "; resolved: " + outcome
	}
	return txn.DB().Metadata().SaveSaga(rec, txn.Metadata())
}

// Get returns the journal record of a saga
func (r *Runner) Get(id string) (*models.Saga, error) {
	var ret *models.Saga
	err := r.db.View(func(txn *database.Txn) error {
		var err error
		ret, err = txn.DB().Metadata().GetSaga(id, txn.Metadata())
		return err
	})
	return ret, err
}
