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

package badger

import (
	"encoding/binary"
	"errors"

	"github.com/blinklabs-io/warden/database/types"
)

// commitTimestampKey lives in the system namespace so it can never collide
// with contract state
var commitTimestampKey = types.ScopedKey(
	types.NamespaceSystem,
	"",
	[]byte("commit_timestamp"),
)

// GetCommitTimestamp returns the last commit timestamp written to the store,
// or 0 for a fresh store
func (d *BlobStoreBadger) GetCommitTimestamp() (int64, error) {
	txn := d.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck

	val, err := d.Get(txn, commitTimestampKey)
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(val) != 8 {
		return 0, errors.New("malformed commit timestamp")
	}
	return int64(binary.BigEndian.Uint64(val)), nil //nolint:gosec
}

func (d *BlobStoreBadger) SetCommitTimestamp(
	timestamp int64,
	txn types.Txn,
) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(timestamp)) //nolint:gosec
	return d.Set(txn, commitTimestampKey, val)
}
