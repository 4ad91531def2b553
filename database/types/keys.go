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
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
)

// Namespace is the leading key byte of every record in the blob store. Each
// record type owns exactly one namespace, so two concepts can never share a key.
type Namespace byte

const (
	NamespaceSystem Namespace = 0x00
	NamespaceClock  Namespace = 0x01

	NamespaceOwnership Namespace = 0x10

	NamespaceLockupConfig   Namespace = 0x20
	NamespaceLockupSequence Namespace = 0x21
	NamespaceLockup         Namespace = 0x22

	NamespaceStakeConfig  Namespace = 0x30
	NamespaceStakeAccount Namespace = 0x31
	NamespaceStakeTotals  Namespace = 0x32

	NamespaceRewardConfig Namespace = 0x40
	NamespaceRewardPool   Namespace = 0x41
	NamespaceRewardUser   Namespace = 0x42

	NamespaceGovConfig   Namespace = 0x50
	NamespaceGovSequence Namespace = 0x51
	NamespaceGovProposal Namespace = 0x52
	NamespaceGovSlot     Namespace = 0x53
	NamespaceGovVote     Namespace = 0x54

	NamespaceVaultConfig Namespace = 0x60
	NamespaceVaultState  Namespace = 0x61
	NamespaceVaultShares Namespace = 0x62

	NamespaceTreasuryConfig  Namespace = 0x70
	NamespaceTreasuryBalance Namespace = 0x71
	NamespaceTreasuryTop     Namespace = 0x72
	NamespaceTreasuryTotals  Namespace = 0x73

	NamespaceMintConfig    Namespace = 0x80
	NamespaceMintWhitelist Namespace = 0x81
	NamespaceMintCount     Namespace = 0x82
	NamespaceMintToken     Namespace = 0x83
	NamespaceMintSequence  Namespace = 0x84

	NamespaceSwapConfig   Namespace = 0x90
	NamespaceSwapSequence Namespace = 0x91
	NamespaceSwapOffer    Namespace = 0x92
)

var (
	namespaceNames = map[Namespace]string{}
	namespaceMutex sync.Mutex
)

// RegisterNamespace claims a namespace for a named record type. Claiming an
// already registered namespace under a different name panics, which turns a
// key collision into a startup failure instead of silent aliasing.
func RegisterNamespace(ns Namespace, name string) {
	namespaceMutex.Lock()
	defer namespaceMutex.Unlock()
	if existing, ok := namespaceNames[ns]; ok && existing != name {
		panic(
			fmt.Sprintf(
				"namespace 0x%02x already registered to %q, cannot register %q",
				byte(ns),
				existing,
				name,
			),
		)
	}
	namespaceNames[ns] = name
}

// NamespaceName returns the registered name for a namespace
func NamespaceName(ns Namespace) (string, bool) {
	namespaceMutex.Lock()
	defer namespaceMutex.Unlock()
	name, ok := namespaceNames[ns]
	return name, ok
}

// ScopedKey builds the full blob key for a record: namespace, length-prefixed
// contract address, then the record key.
func ScopedKey(ns Namespace, contract string, key []byte) []byte {
	ret := make([]byte, 0, 2+len(contract)+len(key))
	ret = append(ret, byte(ns), byte(len(contract))) //nolint:gosec // addresses are validated to <= 90 bytes
	ret = append(ret, contract...)
	return append(ret, key...)
}

func Uint64Key(input uint64) []byte {
	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, input)
	return ret
}

func KeyUint64(key []byte) (uint64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("key too short for uint64: %d bytes", len(key))
	}
	return binary.BigEndian.Uint64(key[:8]), nil
}

// StringKey length-prefixes a string so that composite keys stay unambiguous
func StringKey(input string) []byte {
	ret := make([]byte, 2, 2+len(input))
	binary.BigEndian.PutUint16(ret, uint16(len(input))) //nolint:gosec
	return append(ret, input...)
}

func KeyString(key []byte) (string, []byte, error) {
	if len(key) < 2 {
		return "", nil, fmt.Errorf("key too short for string: %d bytes", len(key))
	}
	l := int(binary.BigEndian.Uint16(key[:2]))
	if len(key) < 2+l {
		return "", nil, fmt.Errorf("key truncated: want %d bytes, have %d", l, len(key)-2)
	}
	return string(key[2 : 2+l]), key[2+l:], nil
}

func JoinKeys(parts ...[]byte) []byte {
	return slices.Concat(parts...)
}
