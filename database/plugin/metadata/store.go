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

package metadata

import (
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/plugin/metadata/sqlstore"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const DefaultPlugin = sqlstore.DialectSqlite

type MetadataStore interface {
	// Database
	Close() error
	DB() *gorm.DB
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(int64, types.Txn) error
	Transaction() types.Txn

	// Bank
	GetBalance(string, string, types.Txn) (types.Uint128, error)
	GetBalances(string, types.Txn) ([]models.Balance, error)
	SetBalance(string, string, types.Uint128, types.Txn) error
	GetSupply(string, types.Txn) (types.Uint128, error)
	SetSupply(string, types.Uint128, types.Txn) error

	// Sagas
	SaveSaga(*models.Saga, types.Txn) error
	GetSaga(string, types.Txn) (*models.Saga, error)
	GetSagasByState(string, types.Txn) ([]models.Saga, error)

	// Contracts and events
	AddContractInstance(*models.ContractInstance, types.Txn) error
	GetContractInstance(string, types.Txn) (*models.ContractInstance, error)
	GetContractInstances(types.Txn) ([]models.ContractInstance, error)
	AddContractEvents([]models.ContractEvent, types.Txn) error
	GetContractEvents(string, uint64, types.Txn) ([]models.ContractEvent, error)
	GetLastEventSequence(types.Txn) (uint64, error)
}

// Options holds the settings shared by all metadata plugins
type Options struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// DataDir is used by sqlite. Empty means in-memory.
	DataDir string
	// DSN is used by postgres and mysql
	DSN string
}

// New returns the metadata store selected by name
func New(pluginName string, opts Options) (MetadataStore, error) {
	switch pluginName {
	case "", sqlstore.DialectSqlite:
		return sqlstore.NewSqlite(opts.DataDir, opts.Logger, opts.PromRegistry)
	case sqlstore.DialectPostgres:
		return sqlstore.NewPostgres(opts.DSN, opts.Logger, opts.PromRegistry)
	case sqlstore.DialectMysql:
		return sqlstore.NewMysql(opts.DSN, opts.Logger, opts.PromRegistry)
	default:
		return nil, fmt.Errorf("unknown metadata plugin: %s", pluginName)
	}
}
