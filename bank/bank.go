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

package bank

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Bank is the ledger service. It exclusively custodies fungible value:
// balances and supplies live in the metadata store and move only through
// the methods below, inside the caller's transaction.
type Bank struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Bank {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Bank{logger: logger}
}

// BalanceOf returns the amount of denom held by address
func (b *Bank) BalanceOf(
	txn *database.Txn,
	address string,
	denom string,
) (types.Uint128, error) {
	return txn.DB().Metadata().GetBalance(address, denom, txn.Metadata())
}

// Balances returns every coin held by address, ordered by denom
func (b *Bank) Balances(txn *database.Txn, address string) ([]Coin, error) {
	balances, err := txn.DB().Metadata().GetBalances(address, txn.Metadata())
	if err != nil {
		return nil, err
	}
	ret := make([]Coin, 0, len(balances))
	for _, bal := range balances {
		ret = append(ret, Coin{Denom: bal.Denom, Amount: bal.Amount})
	}
	return ret, nil
}

// Supply returns the total amount of denom in existence
func (b *Bank) Supply(txn *database.Txn, denom string) (types.Uint128, error) {
	return txn.DB().Metadata().GetSupply(denom, txn.Metadata())
}

// Mint creates new coins and credits them to address
func (b *Bank) Mint(txn *database.Txn, address string, coin Coin) error {
	if err := ValidateAddress(address); err != nil {
		return err
	}
	if err := coin.Validate(); err != nil {
		return err
	}
	if coin.Amount.IsZero() {
		return nil
	}
	meta := txn.DB().Metadata()
	supply, err := meta.GetSupply(coin.Denom, txn.Metadata())
	if err != nil {
		return err
	}
	newSupply, err := supply.CheckedAdd(coin.Amount)
	if err != nil {
		return fmt.Errorf("mint %s: supply: %w", coin, err)
	}
	if err := b.credit(txn, address, coin); err != nil {
		return err
	}
	if err := meta.SetSupply(coin.Denom, newSupply, txn.Metadata()); err != nil {
		return err
	}
	b.logger.Debug(
		"minted coins",
		"component", "bank",
		"address", address,
		"coin", coin.String(),
	)
	return nil
}

// Transfer moves coins from one address to another. Zero amounts are a
// no-op. Either every coin moves or the error leaves the caller's
// transaction to be rolled back.
func (b *Bank) Transfer(
	txn *database.Txn,
	from string,
	to string,
	coins ...Coin,
) error {
	if err := ValidateAddress(from); err != nil {
		return err
	}
	if err := ValidateAddress(to); err != nil {
		return err
	}
	for _, coin := range coins {
		if err := coin.Validate(); err != nil {
			return err
		}
		if coin.Amount.IsZero() {
			continue
		}
		if err := b.debit(txn, from, coin); err != nil {
			return err
		}
		if err := b.credit(txn, to, coin); err != nil {
			return err
		}
		b.logger.Debug(
			"transferred coins",
			"component", "bank",
			"from", from,
			"to", to,
			"coin", coin.String(),
		)
	}
	return nil
}

func (b *Bank) debit(txn *database.Txn, address string, coin Coin) error {
	meta := txn.DB().Metadata()
	bal, err := meta.GetBalance(address, coin.Denom, txn.Metadata())
	if err != nil {
		return err
	}
	if bal.Lt(coin.Amount) {
		return fmt.Errorf(
			"%w: %s has %s, needs %s",
			ErrInsufficientFunds,
			address,
			bal.String()+coin.Denom,
			coin,
		)
	}
	newBal, err := bal.CheckedSub(coin.Amount)
	if err != nil {
		return err
	}
	return meta.SetBalance(address, coin.Denom, newBal, txn.Metadata())
}

func (b *Bank) credit(txn *database.Txn, address string, coin Coin) error {
	meta := txn.DB().Metadata()
	bal, err := meta.GetBalance(address, coin.Denom, txn.Metadata())
	if err != nil {
		return err
	}
	newBal, err := bal.CheckedAdd(coin.Amount)
	if err != nil {
		return fmt.Errorf("credit %s to %s: %w", coin, address, err)
	}
	return meta.SetBalance(address, coin.Denom, newBal, txn.Metadata())
}
