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

package sqlstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

const (
	DialectSqlite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMysql    = "mysql"
)

// sqlTxn wraps a gorm transaction and implements types.Txn
type sqlTxn struct {
	db       *gorm.DB
	beginErr error
	finished bool
}

func (t *sqlTxn) Commit() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	return t.db.Commit().Error
}

func (t *sqlTxn) Rollback() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	return t.db.Rollback().Error
}

// Store is a gorm-backed metadata store. It holds bank balances, the saga
// and event journals, the contract registry and the commit timestamp.
type Store struct {
	promRegistry prometheus.Registerer
	db           *gorm.DB
	logger       *slog.Logger
	timerVacuum  *time.Timer
	dialect      string
	dataDir      string
	timerMutex   sync.Mutex
	vacuumWG     sync.WaitGroup
	closed       bool
}

var gormConfig = gorm.Config{
	Logger:                 gormlogger.Discard,
	SkipDefaultTransaction: true,
}

// NewSqlite opens a SQLite store under dataDir. An empty dataDir opens a
// private in-memory database.
func NewSqlite(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Store, error) {
	var dsn string
	if dataDir == "" {
		// Each in-memory store gets its own name so that stores opened in the
		// same process never see each other's tables
		dsn = fmt.Sprintf(
			"file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)",
			uuid.NewString(),
		)
	} else {
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
			filepath.Join(dataDir, "metadata.sqlite"),
		)
	}
	gormDb, err := gorm.Open(sqlite.Open(dsn), &gormConfig)
	if err != nil {
		return nil, err
	}
	if dataDir == "" {
		// A shared-cache memory database locks whole tables, so a single
		// connection avoids SQLITE_LOCKED between concurrent readers and writers
		sqlDb, err := gormDb.DB()
		if err != nil {
			return nil, err
		}
		sqlDb.SetMaxOpenConns(1)
	}
	return newStore(gormDb, DialectSqlite, dataDir, logger, promRegistry)
}

// NewPostgres connects to a Postgres server with the given DSN
func NewPostgres(
	dsn string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Store, error) {
	gormDb, err := gorm.Open(postgres.Open(dsn), &gormConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return newStore(gormDb, DialectPostgres, "", logger, promRegistry)
}

// NewMysql connects to a MySQL server with the given DSN
func NewMysql(
	dsn string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Store, error) {
	gormDb, err := gorm.Open(mysql.Open(dsn), &gormConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}
	return newStore(gormDb, DialectMysql, "", logger, promRegistry)
}

func newStore(
	gormDb *gorm.DB,
	dialect string,
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Store, error) {
	d := &Store{
		db:           gormDb,
		dialect:      dialect,
		dataDir:      dataDir,
		logger:       logger,
		promRegistry: promRegistry,
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	if d.promRegistry != nil {
		sqlDb, err := d.db.DB()
		if err != nil {
			return nil, err
		}
		d.promRegistry.MustRegister(
			collectors.NewDBStatsCollector(sqlDb, "warden_metadata"),
		)
	}
	d.logger.Debug(
		fmt.Sprintf("creating table: %#v", &CommitTimestamp{}),
		"component", "database",
	)
	if err := d.db.AutoMigrate(&CommitTimestamp{}); err != nil {
		return d, err
	}
	for _, model := range models.MigrateModels {
		d.logger.Debug(
			fmt.Sprintf("creating table: %#v", model),
			"component", "database",
		)
		if err := d.db.AutoMigrate(model); err != nil {
			return d, err
		}
	}
	if d.dialect == DialectSqlite && d.dataDir != "" {
		d.scheduleDailyVacuum()
	}
	return d, nil
}

func (d *Store) runVacuum() error {
	d.timerMutex.Lock()
	if d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	d.vacuumWG.Add(1)
	d.timerMutex.Unlock()
	defer d.vacuumWG.Done()
	return d.db.Exec("VACUUM").Error
}

func (d *Store) scheduleDailyVacuum() {
	d.timerMutex.Lock()
	defer d.timerMutex.Unlock()
	if d.closed {
		return
	}
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
	}
	f := func() {
		defer d.scheduleDailyVacuum()
		d.logger.Debug(
			"running vacuum on sqlite metadata database",
			"component", "database",
		)
		if err := d.runVacuum(); err != nil {
			d.logger.Error(
				"failed to free unused space in metadata store",
				"component", "database",
				"error", err,
			)
		}
	}
	d.timerVacuum = time.AfterFunc(24*time.Hour, f)
}

// Dialect returns the SQL dialect of the underlying database
func (d *Store) Dialect() string {
	return d.dialect
}

// Close stops background maintenance and closes the database connection
func (d *Store) Close() error {
	d.timerMutex.Lock()
	d.closed = true
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
		d.timerVacuum = nil
	}
	d.timerMutex.Unlock()
	d.vacuumWG.Wait()
	sqlDb, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDb.Close()
}

// DB returns the underlying gorm handle
func (d *Store) DB() *gorm.DB {
	return d.db
}

// Transaction begins a new transaction
func (d *Store) Transaction() types.Txn {
	tx := d.db.Begin()
	if tx.Error != nil {
		return &sqlTxn{beginErr: tx.Error}
	}
	return &sqlTxn{db: tx}
}

// resolveDB returns the gorm handle for txn, or the base handle when txn is nil
func (d *Store) resolveDB(txn types.Txn) (*gorm.DB, error) {
	if txn == nil {
		return d.db, nil
	}
	stx, ok := txn.(*sqlTxn)
	if !ok || stx == nil {
		return nil, types.ErrTxnWrongType
	}
	if stx.beginErr != nil {
		return nil, stx.beginErr
	}
	if stx.finished {
		return nil, errors.New("transaction already finished")
	}
	return stx.db, nil
}
