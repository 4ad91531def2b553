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

package contract

import (
	"fmt"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/database/types"
)

// Escrow moves coin from the caller into the contract's account
func (c *Ctx) Escrow(coin bank.Coin) error {
	if coin.Amount.IsZero() {
		return fmt.Errorf("%w: escrow of zero %s", ErrInvalidAmount, coin.Denom)
	}
	return c.Bank.Transfer(c.Txn, c.Caller, c.Contract, coin)
}

// Pay moves coin from the contract's account to recipient
func (c *Ctx) Pay(recipient string, coin bank.Coin) error {
	return c.Bank.Transfer(c.Txn, c.Contract, recipient, coin)
}

// Balance returns the contract's own balance of denom
func (c *Ctx) Balance(denom string) (types.Uint128, error) {
	return c.Bank.BalanceOf(c.Txn, c.Contract, denom)
}

// Reserver reports how much of a denom the contract's records owe to users.
// Funds above that amount are free for privileged use.
type Reserver interface {
	Reserved(c *Ctx, denom string) (types.Uint128, error)
}

// FreeBalance returns the part of the contract's balance of denom that is
// not owed to anybody
func (c *Ctx) FreeBalance(r Reserver, denom string) (types.Uint128, error) {
	bal, err := c.Balance(denom)
	if err != nil {
		return types.Uint128{}, err
	}
	reserved, err := r.Reserved(c, denom)
	if err != nil {
		return types.Uint128{}, err
	}
	if bal.Lt(reserved) {
		// Records claim more than the ledger holds
		return types.Uint128{}, fmt.Errorf(
			"%w: contract %s holds %s%s but owes %s%s",
			ErrInsufficientFunds,
			c.Contract,
			bal, denom,
			reserved, denom,
		)
	}
	return bal.CheckedSub(reserved)
}

// PayFree pays recipient from funds not owed to anybody
func (c *Ctx) PayFree(r Reserver, recipient string, coins ...bank.Coin) error {
	for _, coin := range coins {
		free, err := c.FreeBalance(r, coin.Denom)
		if err != nil {
			return err
		}
		if free.Lt(coin.Amount) {
			return fmt.Errorf(
				"%w: only %s%s of the contract balance is unreserved",
				ErrInsufficientFunds,
				free, coin.Denom,
			)
		}
		if err := c.Pay(recipient, coin); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAddress checks that addr is a canonical address
func ValidateAddress(addr string) error {
	return bank.ValidateAddress(addr)
}
