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

package warden

import (
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const DefaultShutdownTimeout = 30 * time.Second

// Clock supplies the time of each call
type Clock func() time.Time

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	clock           Clock
	dataDir         string
	blobPlugin      string
	metadataPlugin  string
	metadataDSN     string
	shutdownTimeout time.Duration
	tracing         bool
	tracingStdout   bool
}

// ConfigOptionFunc is a type that represents functions that modify the runtime config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new warden config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:          slog.New(slog.NewJSONHandler(io.Discard, nil)),
		clock:           time.Now,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDatabasePath specifies the persistent data directory. An empty path
// keeps all state in memory.
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin selects the blob store plugin
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin selects the metadata store plugin
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithMetadataDSN specifies the connection string for postgres and mysql
func WithMetadataDSN(dsn string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataDSN = dsn
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies how long Stop waits for shutdown functions
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		if timeout > 0 {
			c.shutdownTimeout = timeout
		}
	}
}

// WithClock replaces the wall clock used to stamp calls
func WithClock(clock Clock) ConfigOptionFunc {
	return func(c *Config) {
		if clock != nil {
			c.clock = clock
		}
	}
}
