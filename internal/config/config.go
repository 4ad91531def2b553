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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "warden.config"

const (
	DefaultBlobPlugin      = "badger"
	DefaultMetadataPlugin  = "sqlite"
	DefaultShutdownTimeout = "30s"
	DefaultMetricsPort     = 12799
)

var ErrInvalidConfig = errors.New("invalid config")

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config   *Config         `yaml:"config,omitempty"`
	Database *databaseConfig `yaml:"database,omitempty"`
}

type databaseConfig struct {
	Blob     string `yaml:"blob,omitempty"`
	Metadata string `yaml:"metadata,omitempty"`
	Dsn      string `yaml:"dsn,omitempty"`
}

type Config struct {
	DatabasePath    string `yaml:"databasePath"    split_words:"true"`
	BlobPlugin      string `yaml:"blobPlugin"      split_words:"true"`
	MetadataPlugin  string `yaml:"metadataPlugin"  split_words:"true"`
	MetadataDsn     string `yaml:"metadataDsn"     split_words:"true"`
	BindAddr        string `yaml:"bindAddr"        split_words:"true"`
	ShutdownTimeout string `yaml:"shutdownTimeout" split_words:"true"`
	MetricsPort     uint   `yaml:"metricsPort"     split_words:"true"`
	TracingEnabled  bool   `yaml:"tracingEnabled"  split_words:"true"`
	TracingStdout   bool   `yaml:"tracingStdout"   split_words:"true"`
}

// DefaultConfig returns a config with every field at its default
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    ".warden",
		BlobPlugin:      DefaultBlobPlugin,
		MetadataPlugin:  DefaultMetadataPlugin,
		BindAddr:        "0.0.0.0",
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsPort:     DefaultMetricsPort,
	}
}

// ShutdownTimeoutDuration parses ShutdownTimeout
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("%w: shutdownTimeout: %w", ErrInvalidConfig, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: shutdownTimeout must be positive", ErrInvalidConfig)
	}
	return d, nil
}

func (c *Config) validate() error {
	switch c.BlobPlugin {
	case DefaultBlobPlugin:
	default:
		return fmt.Errorf("%w: unknown blob plugin %q", ErrInvalidConfig, c.BlobPlugin)
	}
	switch c.MetadataPlugin {
	case "sqlite":
	case "postgres", "mysql":
		if c.MetadataDsn == "" {
			return fmt.Errorf(
				"%w: metadata plugin %q needs metadataDsn",
				ErrInvalidConfig,
				c.MetadataPlugin,
			)
		}
	default:
		return fmt.Errorf("%w: unknown metadata plugin %q", ErrInvalidConfig, c.MetadataPlugin)
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads configFile, or ~/.warden/warden.yaml or
// /etc/warden/warden.yaml when it is empty, over the defaults and then
// applies WARDEN_* environment variables
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".warden", "warden.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/warden/warden.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		var tempCfg tempConfig
		if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		if tempCfg.Config != nil {
			// Overlay the config section onto the defaults
			configBytes, err := yaml.Marshal(tempCfg.Config)
			if err != nil {
				return nil, fmt.Errorf("error re-marshalling config: %w", err)
			}
			if err := yaml.Unmarshal(configBytes, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(buf, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
		if db := tempCfg.Database; db != nil {
			if db.Blob != "" {
				cfg.BlobPlugin = db.Blob
			}
			if db.Metadata != "" {
				cfg.MetadataPlugin = db.Metadata
			}
			if db.Dsn != "" {
				cfg.MetadataDsn = db.Dsn
			}
		}
	}
	if err := envconfig.Process("warden", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
