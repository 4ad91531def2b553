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

	"github.com/blinklabs-io/warden/database/types"
)

var ErrInvalidAddress = errors.New("invalid address")

var ErrInvalidDenom = errors.New("invalid denom")

// Coin is an amount of one denom
type Coin struct {
	Denom  string        `yaml:"denom"`
	Amount types.Uint128 `yaml:"amount"`
}

func NewCoin(denom string, amount uint64) Coin {
	return Coin{Denom: denom, Amount: types.NewUint128(amount)}
}

func (c Coin) String() string {
	return c.Amount.String() + c.Denom
}

func (c Coin) Validate() error {
	return ValidateDenom(c.Denom)
}

// ValidateAddress checks that addr is in canonical form: 3 to 90 characters
// of lowercase letters, digits, '_', '-' or '.'. Addresses are compared
// byte for byte everywhere, so non-canonical input is rejected rather than
// folded.
func ValidateAddress(addr string) error {
	if len(addr) < 3 || len(addr) > 90 {
		return fmt.Errorf("%w: %q: length must be between 3 and 90", ErrInvalidAddress, addr)
	}
	for i := range len(addr) {
		c := addr[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-' || c == '.':
		default:
			return fmt.Errorf("%w: %q: illegal character %q", ErrInvalidAddress, addr, c)
		}
	}
	return nil
}

// ValidateDenom checks that denom is 2 to 128 characters of letters, digits,
// '/', ':', '.', '_' or '-', starting with a letter
func ValidateDenom(denom string) error {
	if len(denom) < 2 || len(denom) > 128 {
		return fmt.Errorf("%w: %q", ErrInvalidDenom, denom)
	}
	for i := range len(denom) {
		c := denom[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		case i > 0 && (c == '/' || c == ':' || c == '.' || c == '_' || c == '-'):
		default:
			return fmt.Errorf("%w: %q", ErrInvalidDenom, denom)
		}
	}
	return nil
}
