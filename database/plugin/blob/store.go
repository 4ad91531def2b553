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

package blob

import (
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/warden/database/plugin/blob/badger"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultPlugin = "badger"

// BlobStore is the ordered key-value store backing contract state
type BlobStore interface {
	Close() error
	NewTransaction(update bool) types.Txn
	Get(txn types.Txn, key []byte) ([]byte, error)
	Set(txn types.Txn, key, val []byte) error
	Delete(txn types.Txn, key []byte) error
	NewIterator(txn types.Txn, opts types.BlobIteratorOptions) types.BlobIterator

	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(timestamp int64, txn types.Txn) error
}

// Options holds the settings shared by all blob plugins
type Options struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	DataDir      string
}

// New returns the blob store selected by name. An empty data dir opens an
// in-memory store.
func New(pluginName string, opts Options) (BlobStore, error) {
	switch pluginName {
	case "", DefaultPlugin:
		return badger.New(
			badger.WithLogger(opts.Logger),
			badger.WithPromRegistry(opts.PromRegistry),
			badger.WithDataDir(opts.DataDir),
			// GC only makes sense when there is a value log on disk
			badger.WithGc(opts.DataDir != ""),
		)
	default:
		return nil, fmt.Errorf("unknown blob plugin: %s", pluginName)
	}
}
