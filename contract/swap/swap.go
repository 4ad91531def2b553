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

// Package swap exchanges coins between two parties. The maker's side is
// escrowed when the offer is made; acceptance runs as a two-leg saga.
package swap

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/saga"
)

const Kind = "swap"

const (
	StatusOpen      = "open"
	StatusSettling  = "settling"
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
)

const (
	legDeliver = "deliver"
	legSettle  = "settle"
)

func init() {
	types.RegisterNamespace(types.NamespaceSwapConfig, "swap/config")
	types.RegisterNamespace(types.NamespaceSwapSequence, "swap/sequence")
	types.RegisterNamespace(types.NamespaceSwapOffer, "swap/offers")
	contract.Register(contract.Definition{
		Contract: New(),
		Config:   func() any { return &Config{} },
		Messages: map[string]func() any{
			"create_offer":  func() any { return &CreateOffer{} },
			"cancel_offer":  func() any { return &CancelOffer{} },
			"accept_offer":  func() any { return &AcceptOffer{} },
			"resolve_offer": func() any { return &ResolveOffer{} },
		},
		Queries: map[string]func() any{
			"offer":  func() any { return &GetOffer{} },
			"offers": func() any { return &ListOffers{} },
		},
	})
}

type Config struct {
	// Denoms limits the coins that may be offered or asked for. Empty
	// allows any denom.
	Denoms []string `yaml:"denoms"`
}

type Offer struct {
	CreatedAt time.Time
	Maker     string
	// Taker is the only address allowed to accept. Empty allows anybody.
	Taker  string
	Status string
	SagaID string
	Give   bank.Coin
	Want   bank.Coin
	ID     uint64
}

type CreateOffer struct {
	Taker string    `yaml:"taker"`
	Give  bank.Coin `yaml:"give"`
	Want  bank.Coin `yaml:"want"`
}

type CancelOffer struct {
	ID uint64 `yaml:"id"`
}

type AcceptOffer struct {
	ID uint64 `yaml:"id"`
}

// ResolveOffer settles an offer whose settlement saga is stuck
type ResolveOffer struct {
	ID uint64 `yaml:"id"`
}

type GetOffer struct {
	ID uint64 `yaml:"id"`
}

// ListOffers returns open offers, optionally only those of Maker
type ListOffers struct {
	Maker string `yaml:"maker"`
}

var (
	configItem = database.NewItem[Config](types.NamespaceSwapConfig, "config")
	nextID     = database.NewItem[uint64](types.NamespaceSwapSequence, "next")
	offers     = database.NewMap[Offer](types.NamespaceSwapOffer)
)

type Swap struct{}

func New() *Swap {
	return &Swap{}
}

func (s *Swap) Kind() string {
	return Kind
}

func (s *Swap) Instantiate(c *contract.Ctx, config any) error {
	cfg, ok := config.(*Config)
	if !ok {
		return fmt.Errorf("%w: %T", contract.ErrInvalidConfig, config)
	}
	for _, denom := range cfg.Denoms {
		if err := bank.ValidateDenom(denom); err != nil {
			return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
		}
	}
	if err := configItem.Save(c.Store, *cfg); err != nil {
		return err
	}
	return nextID.Save(c.Store, 1)
}

func (s *Swap) Execute(c *contract.Ctx, msg any) error {
	switch msg := msg.(type) {
	case *CreateOffer:
		_, err := s.CreateOffer(c, msg.Taker, msg.Give, msg.Want)
		return err
	case *CancelOffer:
		return s.CancelOffer(c, msg.ID)
	case *AcceptOffer:
		_, err := s.AcceptOffer(c, msg.ID)
		return err
	case *ResolveOffer:
		_, err := s.ResolveOffer(c, msg.ID)
		return err
	}
	return contract.UnknownMessage(Kind, msg)
}

func (s *Swap) Query(c *contract.Ctx, q any) (any, error) {
	switch q := q.(type) {
	case *GetOffer:
		return s.offer(c.Store, q.ID)
	case *ListOffers:
		var ret []Offer
		err := offers.Range(c.Store, nil, func(_ []byte, o Offer) error {
			if o.Status == StatusOpen && (q.Maker == "" || o.Maker == q.Maker) {
				ret = append(ret, o)
			}
			return nil
		})
		return ret, err
	}
	return nil, contract.UnknownMessage(Kind, q)
}

func (s *Swap) CreateOffer(c *contract.Ctx, taker string, give, want bank.Coin) (uint64, error) {
	if taker != "" {
		if err := contract.ValidateAddress(taker); err != nil {
			return 0, err
		}
		if taker == c.Caller {
			return 0, fmt.Errorf("%w: offer to self", contract.ErrInvalidRequest)
		}
	}
	cfg, err := configItem.MustLoad(c.Store)
	if err != nil {
		return 0, err
	}
	for _, coin := range []bank.Coin{give, want} {
		if err := coin.Validate(); err != nil {
			return 0, err
		}
		if coin.Amount.IsZero() {
			return 0, fmt.Errorf("%w: %s", contract.ErrInvalidAmount, coin)
		}
		if len(cfg.Denoms) > 0 && !slices.Contains(cfg.Denoms, coin.Denom) {
			return 0, fmt.Errorf("%w: denom %s is not traded here", contract.ErrInvalidRequest, coin.Denom)
		}
	}
	id, err := nextID.MustLoad(c.Store)
	if err != nil {
		return 0, err
	}
	if err := c.Escrow(give); err != nil {
		return 0, err
	}
	o := Offer{
		ID:        id,
		Maker:     c.Caller,
		Taker:     taker,
		Give:      give,
		Want:      want,
		Status:    StatusOpen,
		CreatedAt: c.Now,
	}
	if err := offers.Save(c.Store, types.Uint64Key(id), o); err != nil {
		return 0, err
	}
	if err := nextID.Save(c.Store, id+1); err != nil {
		return 0, err
	}
	c.Emit(
		"offer_created",
		contract.Attr("id", id),
		contract.Attr("maker", c.Caller),
		contract.Attr("give", give),
		contract.Attr("want", want),
	)
	return id, nil
}

// CancelOffer refunds the maker's escrow. Only open offers can be
// cancelled.
func (s *Swap) CancelOffer(c *contract.Ctx, id uint64) error {
	o, err := s.offer(c.Store, id)
	if err != nil {
		return err
	}
	if o.Maker != c.Caller {
		return fmt.Errorf("offer %d: %w", id, contract.ErrNotOwner)
	}
	if o.Status != StatusOpen {
		return fmt.Errorf("%w: offer %d is %s", contract.ErrInvalidRequest, id, o.Status)
	}
	o.Status = StatusCancelled
	if err := offers.Save(c.Store, types.Uint64Key(id), o); err != nil {
		return err
	}
	if err := c.Pay(o.Maker, o.Give); err != nil {
		return err
	}
	c.Emit("offer_cancelled", contract.Attr("id", id))
	return nil
}

// AcceptOffer marks the offer as settling and schedules the saga that
// delivers both sides. The saga runs after the call commits.
func (s *Swap) AcceptOffer(c *contract.Ctx, id uint64) (*saga.Saga, error) {
	o, err := s.offer(c.Store, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusOpen {
		return nil, fmt.Errorf("%w: offer %d is %s", contract.ErrInvalidRequest, id, o.Status)
	}
	if o.Taker != "" && o.Taker != c.Caller {
		return nil, fmt.Errorf("%w: offer %d is reserved for %s", contract.ErrUnauthorized, id, o.Taker)
	}
	if o.Maker == c.Caller {
		return nil, fmt.Errorf("%w: maker cannot accept own offer", contract.ErrInvalidRequest)
	}
	plan := s.plan(c.Bank, c.Contract, c.Caller, o)
	o.Status = StatusSettling
	o.Taker = c.Caller
	o.SagaID = plan.ID()
	if err := offers.Save(c.Store, types.Uint64Key(id), o); err != nil {
		return nil, err
	}
	c.StartSaga(plan)
	c.Emit(
		"offer_accepted",
		contract.Attr("id", id),
		contract.Attr("taker", c.Caller),
		contract.Attr("saga", plan.ID()),
	)
	return plan, nil
}

// plan builds the settlement saga. The first leg hands the escrow to the
// taker, the second collects the taker's side for the maker.
func (s *Swap) plan(b *bank.Bank, address string, taker string, o Offer) *saga.Saga {
	update := func(txn *database.Txn, fn func(*Offer)) error {
		store := txn.KeyedStore(address)
		cur, err := s.offer(store, o.ID)
		if err != nil {
			return err
		}
		fn(&cur)
		return offers.Save(store, types.Uint64Key(o.ID), cur)
	}
	return saga.New(
		Kind,
		address,
		saga.Leg{
			Name: legDeliver,
			Do: func(txn *database.Txn) error {
				return b.Transfer(txn, address, taker, o.Give)
			},
			Compensate: func(txn *database.Txn) error {
				if err := b.Transfer(txn, taker, address, o.Give); err != nil {
					return err
				}
				return update(txn, func(cur *Offer) {
					cur.Status = StatusOpen
					cur.Taker = o.Taker
					cur.SagaID = ""
				})
			},
		},
		saga.Leg{
			Name: legSettle,
			Do: func(txn *database.Txn) error {
				if err := b.Transfer(txn, taker, o.Maker, o.Want); err != nil {
					return err
				}
				return update(txn, func(cur *Offer) {
					cur.Status = StatusFilled
				})
			},
		},
	)
}

// ResolveOffer settles an offer whose saga got stuck, either party may call
// it. When nothing was delivered the escrow goes back to the maker. When
// the taker already holds the maker's coin the trade is completed if the
// taker can still pay, and reversed otherwise.
func (s *Swap) ResolveOffer(c *contract.Ctx, id uint64) (string, error) {
	o, err := s.offer(c.Store, id)
	if err != nil {
		return "", err
	}
	if c.Caller != o.Maker && c.Caller != o.Taker {
		return "", fmt.Errorf("%w: only the parties of offer %d can resolve it", contract.ErrUnauthorized, id)
	}
	if o.Status != StatusSettling {
		return "", fmt.Errorf("%w: offer %d is %s", contract.ErrInvalidRequest, id, o.Status)
	}
	rec, err := saga.Lookup(c.Txn, o.SagaID)
	if err != nil {
		return "", err
	}
	if rec.State != models.SagaStateStuck {
		return "", fmt.Errorf("%w: saga %s is %s", contract.ErrInvalidRequest, rec.ID, rec.State)
	}
	var outcome string
	if !legCommitted(rec, legDeliver) {
		if err := c.Pay(o.Maker, o.Give); err != nil {
			return "", err
		}
		o.Status = StatusCancelled
		outcome = "refunded"
	} else {
		err := c.Bank.Transfer(c.Txn, o.Taker, o.Maker, o.Want)
		switch {
		case err == nil:
			o.Status = StatusFilled
			outcome = "filled"
		case errors.Is(err, contract.ErrInsufficientFunds):
			if err := c.Bank.Transfer(c.Txn, o.Taker, o.Maker, o.Give); err != nil {
				return "", err
			}
			o.Status = StatusCancelled
			outcome = "reversed"
		default:
			return "", err
		}
	}
	if err := saga.Resolve(c.Txn, rec, outcome); err != nil {
		return "", err
	}
	if err := offers.Save(c.Store, types.Uint64Key(id), o); err != nil {
		return "", err
	}
	c.Emit(
		"offer_resolved",
		contract.Attr("id", id),
		contract.Attr("saga", rec.ID),
		contract.Attr("outcome", outcome),
	)
	return outcome, nil
}

func legCommitted(rec *models.Saga, name string) bool {
	for _, leg := range rec.Legs {
		if leg.Name == name {
			return leg.State == models.SagaLegStateCommitted
		}
	}
	return false
}

func (s *Swap) offer(store *database.KeyedStore, id uint64) (Offer, error) {
	o, ok, err := offers.Load(store, types.Uint64Key(id))
	if err != nil {
		return Offer{}, err
	}
	if !ok {
		return Offer{}, fmt.Errorf("%w: offer %d", contract.ErrNotFound, id)
	}
	return o, nil
}
