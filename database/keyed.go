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

package database

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/warden/database/types"
	"github.com/fxamacker/cbor/v2"
)

var cborEncMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	// Keep sub-second precision of deadlines
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeValue encodes a record with deterministic CBOR
func EncodeValue(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func DecodeValue(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// KeyedStore is the view of the blob store that one contract sees within a
// transaction. Every key is prefixed with a namespace and the contract
// address, so contracts cannot reach each other's records.
type KeyedStore struct {
	txn      *Txn
	contract string
}

// KeyedStore returns the store scoped to a contract address
func (t *Txn) KeyedStore(contract string) *KeyedStore {
	return &KeyedStore{txn: t, contract: contract}
}

// Contract returns the address the store is scoped to
func (s *KeyedStore) Contract() string {
	return s.contract
}

// Get returns the raw value under key, or types.ErrBlobKeyNotFound
func (s *KeyedStore) Get(ns types.Namespace, key []byte) ([]byte, error) {
	return s.txn.db.blob.Get(
		s.txn.blobTxn,
		types.ScopedKey(ns, s.contract, key),
	)
}

func (s *KeyedStore) Set(ns types.Namespace, key []byte, val []byte) error {
	return s.txn.db.blob.Set(
		s.txn.blobTxn,
		types.ScopedKey(ns, s.contract, key),
		val,
	)
}

func (s *KeyedStore) Delete(ns types.Namespace, key []byte) error {
	return s.txn.db.blob.Delete(
		s.txn.blobTxn,
		types.ScopedKey(ns, s.contract, key),
	)
}

// Range calls fn for every record in ns whose key starts with prefix, in
// ascending key order. Keys passed to fn have the namespace and contract
// prefix removed.
func (s *KeyedStore) Range(
	ns types.Namespace,
	prefix []byte,
	fn func(key []byte, val []byte) error,
) error {
	base := types.ScopedKey(ns, s.contract, nil)
	fullPrefix := types.ScopedKey(ns, s.contract, prefix)
	it := s.txn.db.blob.NewIterator(
		s.txn.blobTxn,
		types.BlobIteratorOptions{Prefix: fullPrefix},
	)
	defer it.Close()
	for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.Key()[len(base):], val); err != nil {
			return err
		}
	}
	return it.Err()
}

// Item is a single typed record stored under a fixed key
type Item[T any] struct {
	key []byte
	ns  types.Namespace
}

func NewItem[T any](ns types.Namespace, name string) Item[T] {
	return Item[T]{ns: ns, key: []byte(name)}
}

// Load returns the stored value and whether it exists
func (i Item[T]) Load(s *KeyedStore) (T, bool, error) {
	return load[T](s, i.ns, i.key)
}

// MustLoad returns the stored value or an error wrapping
// types.ErrBlobKeyNotFound when it is missing
func (i Item[T]) MustLoad(s *KeyedStore) (T, error) {
	ret, ok, err := i.Load(s)
	if err != nil {
		return ret, err
	}
	if !ok {
		return ret, fmt.Errorf("%s: %w", i.key, types.ErrBlobKeyNotFound)
	}
	return ret, nil
}

func (i Item[T]) Save(s *KeyedStore, v T) error {
	return save(s, i.ns, i.key, v)
}

func (i Item[T]) Remove(s *KeyedStore) error {
	return s.Delete(i.ns, i.key)
}

// Map is a keyed collection of typed records in one namespace
type Map[T any] struct {
	ns types.Namespace
}

func NewMap[T any](ns types.Namespace) Map[T] {
	return Map[T]{ns: ns}
}

// Load returns the value under key and whether it exists
func (m Map[T]) Load(s *KeyedStore, key []byte) (T, bool, error) {
	return load[T](s, m.ns, key)
}

func (m Map[T]) Has(s *KeyedStore, key []byte) (bool, error) {
	_, err := s.Get(m.ns, key)
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m Map[T]) Save(s *KeyedStore, key []byte, v T) error {
	return save(s, m.ns, key, v)
}

func (m Map[T]) Remove(s *KeyedStore, key []byte) error {
	return s.Delete(m.ns, key)
}

// Range calls fn for every record whose key starts with prefix
func (m Map[T]) Range(
	s *KeyedStore,
	prefix []byte,
	fn func(key []byte, v T) error,
) error {
	return s.Range(m.ns, prefix, func(key []byte, val []byte) error {
		var v T
		if err := DecodeValue(val, &v); err != nil {
			return fmt.Errorf("decode record %x: %w", key, err)
		}
		return fn(key, v)
	})
}

func load[T any](s *KeyedStore, ns types.Namespace, key []byte) (T, bool, error) {
	var ret T
	val, err := s.Get(ns, key)
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return ret, false, nil
		}
		return ret, false, err
	}
	if err := DecodeValue(val, &ret); err != nil {
		return ret, false, fmt.Errorf("decode record %x: %w", key, err)
	}
	return ret, true, nil
}

func save[T any](s *KeyedStore, ns types.Namespace, key []byte, v T) error {
	val, err := EncodeValue(v)
	if err != nil {
		return fmt.Errorf("encode record %x: %w", key, err)
	}
	return s.Set(ns, key, val)
}
