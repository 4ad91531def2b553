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

// Package warden hosts custody and governance contracts over a shared
// transactional ledger. Calls are serialized: each runs in one database
// transaction that commits to both stores or to neither.
package warden

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/saga"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrClockRegression = errors.New("clock moved backwards")
	ErrUnknownKind     = errors.New("unknown contract kind")
	ErrAddressInUse    = errors.New("address already in use")
	ErrStopped         = errors.New("runtime stopped")
)

// Runtime state lives outside any contract address, which are all at
// least 3 bytes long
const runtimeScope = ""

var lastCallTime = database.NewItem[time.Time](types.NamespaceClock, "last")

func init() {
	types.RegisterNamespace(types.NamespaceClock, "runtime/clock")
}

type Runtime struct {
	config        Config
	db            *database.Database
	bank          *bank.Bank
	sagas         *saga.Runner
	eventBus      *event.EventBus
	metrics       runtimeMetrics
	shutdownFuncs []func(context.Context) error
	mu            sync.Mutex
	stopped       bool
}

// New opens the database and prepares the runtime. A database whose two
// stores disagree on their last commit is refused.
func New(cfg Config) (*Runtime, error) {
	r := &Runtime{
		config: cfg,
	}
	if r.config.logger == nil {
		r.config = NewConfig()
	}
	if r.config.clock == nil {
		r.config.clock = time.Now
	}
	logger := r.config.logger
	if r.config.tracing {
		if err := r.setupTracing(); err != nil {
			return nil, err
		}
	}
	db, err := database.New(&database.Config{
		Logger:         logger,
		PromRegistry:   r.config.promRegistry,
		DataDir:        r.config.dataDir,
		BlobPlugin:     r.config.blobPlugin,
		MetadataPlugin: r.config.metadataPlugin,
		MetadataDSN:    r.config.metadataDSN,
	})
	if err != nil {
		var tsErr database.CommitTimestampError
		if errors.As(err, &tsErr) {
			logger.Error(
				"stores disagree on last commit, refusing to start",
				"component", "runtime",
				"error", err,
			)
		}
		if db != nil {
			err = errors.Join(err, db.Close())
		}
		return nil, errors.Join(fmt.Errorf("failed to open database: %w", err), r.runShutdownFuncs())
	}
	r.db = db
	r.bank = bank.New(logger)
	r.sagas = saga.NewRunner(db, logger)
	r.eventBus = event.NewEventBus(r.config.promRegistry, logger)
	r.metrics.init(r.config.promRegistry)
	stuck, err := r.sagas.Recover()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to recover sagas: %w", err), r.Stop())
	}
	if stuck > 0 {
		logger.Warn(
			fmt.Sprintf("marked %d interrupted sagas as stuck", stuck),
			"component", "runtime",
		)
	}
	instances, err := r.Instances()
	if err != nil {
		return nil, errors.Join(err, r.Stop())
	}
	r.metrics.contracts.Set(float64(len(instances)))
	return r, nil
}

// EventBus returns the bus that committed events are published on
func (r *Runtime) EventBus() *event.EventBus {
	return r.eventBus
}

// Database returns the underlying database
func (r *Runtime) Database() *database.Database {
	return r.db
}

// Instantiate creates a contract of kind at address. A nil config uses the
// kind's defaults.
func (r *Runtime) Instantiate(
	ctx context.Context,
	kind string,
	address string,
	creator string,
	config any,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	ctx, span := r.tracer().Start(
		ctx,
		"warden.Instantiate",
		trace.WithAttributes(
			attribute.String("contract.kind", kind),
			attribute.String("contract.address", address),
		),
	)
	defer span.End()
	start := time.Now()
	err := r.instantiate(ctx, kind, address, creator, config)
	r.metrics.observeCall(kind, "instantiate", start, err)
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	r.metrics.contracts.Inc()
	r.config.logger.Info(
		"instantiated contract",
		"component", "runtime",
		"kind", kind,
		"address", address,
	)
	return nil
}

func (r *Runtime) instantiate(
	ctx context.Context,
	kind string,
	address string,
	creator string,
	config any,
) error {
	def, ok := contract.Lookup(kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if err := bank.ValidateAddress(address); err != nil {
		return err
	}
	if err := bank.ValidateAddress(creator); err != nil {
		return err
	}
	if config == nil {
		config = def.Config()
	}
	rawConfig, err := database.EncodeValue(config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var now time.Time
	res, err := r.call(ctx, address, creator, func(c *contract.Ctx) error {
		now = c.Now
		meta := r.db.Metadata()
		_, err := meta.GetContractInstance(address, c.Txn.Metadata())
		if err == nil {
			return fmt.Errorf("%w: %s", ErrAddressInUse, address)
		}
		if !errors.Is(err, models.ErrContractNotFound) {
			return err
		}
		err = meta.AddContractInstance(
			&models.ContractInstance{
				CreatedAt: c.Now,
				Address:   address,
				Kind:      kind,
				Creator:   creator,
				Config:    rawConfig,
			},
			c.Txn.Metadata(),
		)
		if err != nil {
			return err
		}
		return def.Contract.Instantiate(c, config)
	})
	if res != nil {
		r.eventBus.Publish(
			event.ContractInstantiatedEventType,
			event.NewEvent(
				event.ContractInstantiatedEventType,
				event.ContractInstantiatedEvent{
					Time:    now,
					Address: address,
					Kind:    kind,
					Creator: creator,
				},
			),
		)
		r.publish(res)
		err = errors.Join(err, r.runSagas(ctx, res.sagas))
	}
	return err
}

// Execute delivers msg from caller to the contract at address. The call
// commits or rolls back as a whole. Sagas it starts run after commit and
// their failures are returned alongside a nil call error.
func (r *Runtime) Execute(
	ctx context.Context,
	address string,
	caller string,
	msg any,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	ctx, span := r.tracer().Start(
		ctx,
		"warden.Execute",
		trace.WithAttributes(
			attribute.String("contract.address", address),
			attribute.String("contract.caller", caller),
			attribute.String("contract.message", fmt.Sprintf("%T", msg)),
		),
	)
	defer span.End()
	start := time.Now()
	var kind string
	if err := bank.ValidateAddress(caller); err != nil {
		r.metrics.observeCall(kind, "execute", start, err)
		recordSpanError(span, err)
		return err
	}
	res, err := r.call(ctx, address, caller, func(c *contract.Ctx) error {
		def, err := r.lookup(c.Txn, address)
		if err != nil {
			return err
		}
		kind = def.Contract.Kind()
		return def.Contract.Execute(c, msg)
	})
	span.SetAttributes(attribute.String("contract.kind", kind))
	r.metrics.observeCall(kind, "execute", start, err)
	if err != nil {
		r.config.logger.Debug(
			"contract call rejected",
			"component", "runtime",
			"contract", address,
			"caller", caller,
			"error", err,
		)
		recordSpanError(span, err)
		return err
	}
	r.publish(res)
	if err := r.runSagas(ctx, res.sagas); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

// Query runs q against the contract at address in a read-only transaction
func (r *Runtime) Query(ctx context.Context, address string, q any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrStopped
	}
	ctx, span := r.tracer().Start(
		ctx,
		"warden.Query",
		trace.WithAttributes(
			attribute.String("contract.address", address),
			attribute.String("contract.query", fmt.Sprintf("%T", q)),
		),
	)
	defer span.End()
	start := time.Now()
	var kind string
	var ret any
	err := r.db.View(func(txn *database.Txn) error {
		def, err := r.lookup(txn, address)
		if err != nil {
			return err
		}
		kind = def.Contract.Kind()
		c := contract.NewCtx(ctx, txn, r.bank, r.config.logger, address, "", r.config.clock().UTC())
		ret, err = def.Contract.Query(c, q)
		return err
	})
	r.metrics.observeCall(kind, "query", start, err)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return ret, nil
}

// Mint credits newly created coins to address, outside of any contract
func (r *Runtime) Mint(address string, coins ...bank.Coin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	return r.db.Update(func(txn *database.Txn) error {
		for _, coin := range coins {
			if err := r.bank.Mint(txn, address, coin); err != nil {
				return err
			}
		}
		return nil
	})
}

// Balance returns the amount of denom held by address
func (r *Runtime) Balance(address string, denom string) (types.Uint128, error) {
	var ret types.Uint128
	err := r.db.View(func(txn *database.Txn) error {
		var err error
		ret, err = r.bank.BalanceOf(txn, address, denom)
		return err
	})
	return ret, err
}

// Balances returns every non-zero coin held by address
func (r *Runtime) Balances(address string) ([]bank.Coin, error) {
	var ret []bank.Coin
	err := r.db.View(func(txn *database.Txn) error {
		var err error
		ret, err = r.bank.Balances(txn, address)
		return err
	})
	return ret, err
}

// Instances returns every instantiated contract, oldest first
func (r *Runtime) Instances() ([]models.ContractInstance, error) {
	var ret []models.ContractInstance
	err := r.db.View(func(txn *database.Txn) error {
		var err error
		ret, err = r.db.Metadata().GetContractInstances(txn.Metadata())
		return err
	})
	return ret, err
}

// Events returns the journaled events of the contract at address with a
// sequence greater than after
func (r *Runtime) Events(address string, after uint64) ([]event.ContractEvent, error) {
	var rows []models.ContractEvent
	err := r.db.View(func(txn *database.Txn) error {
		var err error
		rows, err = r.db.Metadata().GetContractEvents(address, after, txn.Metadata())
		return err
	})
	if err != nil {
		return nil, err
	}
	ret := make([]event.ContractEvent, 0, len(rows))
	for _, row := range rows {
		var attrs []event.Attribute
		if len(row.Attributes) > 0 {
			if err := database.DecodeValue(row.Attributes, &attrs); err != nil {
				return nil, fmt.Errorf("decode event %d: %w", row.Sequence, err)
			}
		}
		ret = append(ret, event.ContractEvent{
			Time:       row.Time,
			Contract:   row.Contract,
			Type:       row.Type,
			Attributes: attrs,
			Sequence:   row.Sequence,
		})
	}
	return ret, nil
}

// Saga returns the journal record of a saga
func (r *Runtime) Saga(id string) (*models.Saga, error) {
	return r.sagas.Get(id)
}

// Stop shuts the runtime down. Calls made afterwards fail with ErrStopped.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true
	r.config.logger.Debug("starting graceful shutdown", "component", "runtime")
	err := r.runShutdownFuncs()
	if r.eventBus != nil {
		r.eventBus.Stop()
	}
	if r.db != nil {
		if closeErr := r.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}
	r.config.logger.Debug("graceful shutdown complete", "component", "runtime")
	return err
}

func (r *Runtime) runShutdownFuncs() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.shutdownTimeout)
	defer cancel()
	var err error
	for _, fn := range r.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	r.shutdownFuncs = nil
	return err
}

func (r *Runtime) lookup(txn *database.Txn, address string) (contract.Definition, error) {
	inst, err := r.db.Metadata().GetContractInstance(address, txn.Metadata())
	if err != nil {
		if errors.Is(err, models.ErrContractNotFound) {
			return contract.Definition{}, fmt.Errorf("%w: contract %s", contract.ErrNotFound, address)
		}
		return contract.Definition{}, err
	}
	def, ok := contract.Lookup(inst.Kind)
	if !ok {
		return contract.Definition{}, fmt.Errorf("%w: %s", ErrUnknownKind, inst.Kind)
	}
	return def, nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
