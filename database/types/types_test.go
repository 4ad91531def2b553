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

package types_test

import (
	"errors"
	"testing"

	"github.com/blinklabs-io/warden/database/types"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint128CheckedAddOverflow(t *testing.T) {
	maxVal := types.MaxUint128()
	assert.Equal(t, "340282366920938463463374607431768211455", maxVal.String())
	_, err := maxVal.CheckedAdd(types.NewUint128(1))
	require.ErrorIs(t, err, types.ErrOverflow)
	sum, err := types.NewUint128(40).CheckedAdd(types.NewUint128(2))
	require.NoError(t, err)
	assert.Equal(t, "42", sum.String())
}

func TestUint128CheckedSubUnderflow(t *testing.T) {
	// 1000 - 1001 must never produce a value near 2^128
	_, err := types.NewUint128(1000).CheckedSub(types.NewUint128(1001))
	require.ErrorIs(t, err, types.ErrOverflow)
	diff, err := types.NewUint128(1000).CheckedSub(types.NewUint128(1000))
	require.NoError(t, err)
	assert.True(t, diff.IsZero())
}

func TestUint128CheckedMul(t *testing.T) {
	big, err := types.ParseUint128("18446744073709551616") // 2^64
	require.NoError(t, err)
	_, err = big.CheckedMul(big)
	require.ErrorIs(t, err, types.ErrOverflow)
	prod, err := types.NewUint128(1_000_000).CheckedMul(types.NewUint128(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "1000000000000", prod.String())
}

func TestUint128CheckedMulDiv(t *testing.T) {
	// The 256-bit intermediate allows u*mul to exceed 128 bits
	maxVal := types.MaxUint128()
	quo, rem, err := maxVal.CheckedMulDiv(types.NewUint128(3), types.NewUint128(3))
	require.NoError(t, err)
	assert.True(t, quo.Eq(maxVal))
	assert.True(t, rem.IsZero())
	quo, rem, err = types.NewUint128(10).CheckedMulDiv(types.NewUint128(1), types.NewUint128(3))
	require.NoError(t, err)
	assert.Equal(t, "3", quo.String())
	assert.Equal(t, "1", rem.String())
	_, _, err = types.NewUint128(1).CheckedMulDiv(types.NewUint128(1), types.Uint128{})
	require.ErrorIs(t, err, types.ErrDivideByZero)
	_, _, err = maxVal.CheckedMulDiv(types.NewUint128(2), types.NewUint128(1))
	require.ErrorIs(t, err, types.ErrOverflow)
}

func TestUint128Parse(t *testing.T) {
	_, err := types.ParseUint128("340282366920938463463374607431768211456")
	require.ErrorIs(t, err, types.ErrOverflow)
	_, err = types.ParseUint128("abc")
	require.ErrorIs(t, err, types.ErrInvalidUint128)
	var u types.Uint128
	require.NoError(t, u.UnmarshalText([]byte("10000")))
	assert.Equal(t, "10000", u.String())
}

func TestUint128Encoding(t *testing.T) {
	type record struct {
		Amount types.Uint128
		Name   string
	}
	in := record{Amount: types.MaxUint128(), Name: "x"}
	data, err := cbor.Marshal(in)
	require.NoError(t, err)
	var out record
	require.NoError(t, cbor.Unmarshal(data, &out))
	assert.True(t, out.Amount.Eq(in.Amount))
	// A 17-byte value cannot be a uint128
	bad, err := cbor.Marshal(make([]byte, 17))
	require.NoError(t, err)
	var u types.Uint128
	require.Error(t, cbor.Unmarshal(bad, &u))
}

func TestUint128SQL(t *testing.T) {
	val, err := types.NewUint128(12345).Value()
	require.NoError(t, err)
	assert.Equal(t, "12345", val)
	var u types.Uint128
	require.NoError(t, u.Scan("67890"))
	assert.Equal(t, "67890", u.String())
	require.Error(t, u.Scan(12))
}

func TestScopedKeysDoNotCollide(t *testing.T) {
	a := types.ScopedKey(types.NamespaceTreasuryTop, "contract1", nil)
	b := types.ScopedKey(types.NamespaceOwnership, "contract1", nil)
	assert.NotEqual(t, a, b)
	// Length prefixing keeps "ab"+"c" distinct from "a"+"bc"
	k1 := types.JoinKeys(types.StringKey("ab"), types.StringKey("c"))
	k2 := types.JoinKeys(types.StringKey("a"), types.StringKey("bc"))
	assert.NotEqual(t, k1, k2)
	s, rest, err := types.KeyString(k1)
	require.NoError(t, err)
	assert.Equal(t, "ab", s)
	s, _, err = types.KeyString(rest)
	require.NoError(t, err)
	assert.Equal(t, "c", s)
}

func TestRegisterNamespaceConflict(t *testing.T) {
	types.RegisterNamespace(0xfe, "test.first")
	// Re-registering under the same name is allowed
	types.RegisterNamespace(0xfe, "test.first")
	assert.Panics(t, func() {
		types.RegisterNamespace(0xfe, "test.second")
	})
	name, ok := types.NamespaceName(0xfe)
	assert.True(t, ok)
	assert.Equal(t, "test.first", name)
	_, err := types.KeyUint64([]byte{1})
	assert.True(t, err != nil && !errors.Is(err, types.ErrOverflow))
}
