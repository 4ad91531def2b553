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

package types

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrDivideByZero   = errors.New("division by zero")
	ErrInvalidUint128 = errors.New("invalid uint128 value")
)

const uint128Bits = 128

// Uint128 is an unsigned 128-bit quantity. All arithmetic is checked and
// reports ErrOverflow instead of wrapping, regardless of build flags.
// Intermediate products are computed at 256 bits.
//
//nolint:recvcheck
type Uint128 struct {
	v uint256.Int
}

func NewUint128(val uint64) Uint128 {
	var ret Uint128
	ret.v.SetUint64(val)
	return ret
}

// MaxUint128 returns 2^128 - 1
func MaxUint128() Uint128 {
	var ret Uint128
	ret.v.Lsh(uint256.NewInt(1), uint128Bits)
	ret.v.SubUint64(&ret.v, 1)
	return ret
}

func ParseUint128(s string) (Uint128, error) {
	var ret Uint128
	if err := ret.v.SetFromDecimal(s); err != nil {
		return Uint128{}, fmt.Errorf("%w: %q: %w", ErrInvalidUint128, s, err)
	}
	if ret.v.BitLen() > uint128Bits {
		return Uint128{}, fmt.Errorf("%w: %q exceeds 128 bits", ErrOverflow, s)
	}
	return ret, nil
}

func fromUint256(v *uint256.Int) (Uint128, error) {
	if v.BitLen() > uint128Bits {
		return Uint128{}, ErrOverflow
	}
	return Uint128{v: *v}, nil
}

func (u Uint128) IsZero() bool {
	return u.v.IsZero()
}

// Cmp returns -1, 0 or +1
func (u Uint128) Cmp(o Uint128) int {
	return u.v.Cmp(&o.v)
}

func (u Uint128) Lt(o Uint128) bool { return u.v.Lt(&o.v) }
func (u Uint128) Gt(o Uint128) bool { return u.v.Gt(&o.v) }
func (u Uint128) Eq(o Uint128) bool { return u.v.Eq(&o.v) }

func (u Uint128) String() string {
	return u.v.Dec()
}

// Uint64 returns the value as a uint64 and whether it fits
func (u Uint128) Uint64() (uint64, bool) {
	return u.v.Uint64(), u.v.IsUint64()
}

func (u Uint128) CheckedAdd(o Uint128) (Uint128, error) {
	var res uint256.Int
	res.Add(&u.v, &o.v)
	ret, err := fromUint256(&res)
	if err != nil {
		return Uint128{}, fmt.Errorf("%w: %s + %s", err, u, o)
	}
	return ret, nil
}

func (u Uint128) CheckedSub(o Uint128) (Uint128, error) {
	if u.v.Lt(&o.v) {
		return Uint128{}, fmt.Errorf("%w: %s - %s underflows", ErrOverflow, u, o)
	}
	var res uint256.Int
	res.Sub(&u.v, &o.v)
	return Uint128{v: res}, nil
}

func (u Uint128) CheckedMul(o Uint128) (Uint128, error) {
	var res uint256.Int
	// Two 128-bit operands cannot overflow 256 bits
	res.Mul(&u.v, &o.v)
	ret, err := fromUint256(&res)
	if err != nil {
		return Uint128{}, fmt.Errorf("%w: %s * %s", err, u, o)
	}
	return ret, nil
}

// CheckedMulDiv returns floor(u * mul / div) and the remainder, with a
// 256-bit intermediate product
func (u Uint128) CheckedMulDiv(mul, div Uint128) (Uint128, Uint128, error) {
	if div.IsZero() {
		return Uint128{}, Uint128{}, ErrDivideByZero
	}
	var prod, quo, rem uint256.Int
	prod.Mul(&u.v, &mul.v)
	quo.DivMod(&prod, &div.v, &rem)
	ret, err := fromUint256(&quo)
	if err != nil {
		return Uint128{}, Uint128{}, fmt.Errorf(
			"%w: %s * %s / %s",
			err,
			u,
			mul,
			div,
		)
	}
	return ret, Uint128{v: rem}, nil
}

func (u Uint128) CheckedDiv(div Uint128) (Uint128, error) {
	if div.IsZero() {
		return Uint128{}, ErrDivideByZero
	}
	var res uint256.Int
	res.Div(&u.v, &div.v)
	return Uint128{v: res}, nil
}

func MinUint128(a, b Uint128) Uint128 {
	if a.Lt(b) {
		return a
	}
	return b
}

func (u Uint128) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(u.v.Bytes())
}

func (u *Uint128) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) > uint128Bits/8 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidUint128, len(raw))
	}
	u.v.SetBytes(raw)
	return nil
}

func (u Uint128) MarshalText() ([]byte, error) {
	return []byte(u.v.Dec()), nil
}

func (u *Uint128) UnmarshalText(text []byte) error {
	tmp, err := ParseUint128(string(text))
	if err != nil {
		return err
	}
	*u = tmp
	return nil
}

func (u Uint128) Value() (driver.Value, error) {
	return u.v.Dec(), nil
}

func (u *Uint128) Scan(val any) error {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf(
			"value was not expected type, wanted string, got %T",
			val,
		)
	}
	tmp, err := ParseUint128(s)
	if err != nil {
		return err
	}
	*u = tmp
	return nil
}

// GormDataType stores the value as a decimal string column
func (Uint128) GormDataType() string {
	return "string"
}
