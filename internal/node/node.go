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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/warden"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// NewRuntime builds a runtime from the loaded configuration
func NewRuntime(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
	opts ...warden.ConfigOptionFunc,
) (*warden.Runtime, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	opts = append(
		[]warden.ConfigOptionFunc{
			warden.WithLogger(logger),
			warden.WithDatabasePath(cfg.DatabasePath),
			warden.WithBlobPlugin(cfg.BlobPlugin),
			warden.WithMetadataPlugin(cfg.MetadataPlugin),
			warden.WithMetadataDSN(cfg.MetadataDsn),
			warden.WithPrometheusRegistry(promRegistry),
			warden.WithTracing(cfg.TracingEnabled),
			warden.WithTracingStdout(cfg.TracingStdout),
			warden.WithShutdownTimeout(shutdownTimeout),
		},
		opts...,
	)
	return warden.New(warden.NewConfig(opts...))
}

// Run opens the runtime, serves metrics and blocks until ctx is done or
// SIGINT/SIGTERM arrives
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	rt, err := NewRuntime(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	// Log committed contract events
	rt.EventBus().SubscribeFunc(
		event.ContractEventType,
		func(evt event.Event) {
			data, ok := evt.Data.(event.ContractEvent)
			if !ok {
				return
			}
			logger.Debug(
				"contract event",
				"component", "node",
				"contract", data.Contract,
				"type", data.Type,
				"sequence", data.Sequence,
			)
		},
	)
	instances, err := rt.Instances()
	if err != nil {
		return errors.Join(err, rt.Stop())
	}
	logger.Info(
		fmt.Sprintf("runtime ready with %d contract instances", len(instances)),
		"component", "node",
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	signalCtx, signalCtxStop := signal.NotifyContext(
		ctx,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()
	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component", "node",
		)
		if err := metricsServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown", "component", "node")
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		var err error
		if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
			err = errors.Join(err, fmt.Errorf("metrics server shutdown: %w", shutdownErr))
		}
		if stopErr := rt.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("runtime shutdown: %w", stopErr))
		}
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("shutdown errors occurred", "component", "node", "error", err)
		return err
	}
	logger.Info("shutdown complete", "component", "node")
	return nil
}
