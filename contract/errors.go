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
	"errors"
	"fmt"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/database/types"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotOwner          = fmt.Errorf("%w: not the owner", ErrUnauthorized)
	ErrInsufficientStake = errors.New("insufficient stake")
	ErrInsufficientPool  = errors.New("insufficient reward pool")
	ErrAlreadyVoted      = errors.New("already voted")
	ErrStillLocked       = errors.New("still locked")
	ErrProposalActive    = errors.New("a proposal is already active")
	ErrAlreadyResolved   = errors.New("proposal already resolved")
	ErrTooEarly          = errors.New("voting period has not ended")
	ErrNoActiveProposal  = errors.New("no active proposal")
	ErrVotingClosed      = errors.New("voting period has ended")
	ErrNoPendingOwner    = errors.New("no pending owner")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrBelowMinimum      = fmt.Errorf("%w: below minimum", ErrInvalidAmount)
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrNotWhitelisted    = fmt.Errorf("%w: not whitelisted", ErrUnauthorized)
	ErrUnknownMessage    = errors.New("unknown message")

	// Shared with the ledger service so errors.Is matches across layers
	ErrInsufficientFunds  = bank.ErrInsufficientFunds
	ErrInvalidAddress     = bank.ErrInvalidAddress
	ErrArithmeticOverflow = types.ErrOverflow
)

// UnknownMessage returns an error for a message a contract does not handle
func UnknownMessage(kind string, msg any) error {
	return fmt.Errorf("%w: %s does not handle %T", ErrUnknownMessage, kind, msg)
}
