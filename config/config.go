// Copyright 2025 Poiesic Systems
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

// Package config loads eventscout settings from the environment.
//
// Variables use the EVENTSCOUT_ prefix, for example EVENTSCOUT_DB_PATH.
// Optional .env files are read first; variables already set in the
// environment take precedence over file values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/poiesic/eventscout/ai"
)

// Prefix is the environment variable prefix.
const Prefix = "EVENTSCOUT"

// Config holds every setting the CLI and MCP server need.
type Config struct {
	DBPath     string `envconfig:"DB_PATH" default:"./eventscout_db"`
	Collection string `envconfig:"COLLECTION" default:"neurips_papers"`

	EmbeddingHost  string `envconfig:"EMBEDDING_HOST" default:"http://localhost:11434/v1"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"all-minilm"`
	APIToken       string `envconfig:"API_TOKEN" default:"none"`

	BatchSize  int           `envconfig:"BATCH_SIZE" default:"100"`
	PoolSize   int           `envconfig:"POOL_SIZE" default:"4"`
	EmbedRate  float64       `envconfig:"EMBED_RATE" default:"0"`
	EmbedBurst int           `envconfig:"EMBED_BURST" default:"1"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryDelay time.Duration `envconfig:"RETRY_DELAY" default:"1s"`
	Sources    string        `envconfig:"SOURCES" default:""`
	DataDir    string        `envconfig:"DATA_DIR" default:"data"`

	ScanCap         int `envconfig:"SCAN_CAP" default:"10000"`
	OverfetchFactor int `envconfig:"OVERFETCH_FACTOR" default:"5"`
	WideningRounds  int `envconfig:"WIDENING_ROUNDS" default:"0"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`
}

// Load reads the given .env files, skipping any that do not exist, then
// processes the environment and validates the result.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if strings.TrimSpace(file) == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%s_DB_PATH is required", Prefix)
	}
	if strings.TrimSpace(c.Collection) == "" {
		return fmt.Errorf("%s_COLLECTION is required", Prefix)
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		return fmt.Errorf("%s_EMBEDDING_MODEL is required", Prefix)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%s_BATCH_SIZE must be >= 1", Prefix)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("%s_POOL_SIZE must be >= 1", Prefix)
	}
	if c.EmbedRate < 0 {
		return fmt.Errorf("%s_EMBED_RATE must be >= 0", Prefix)
	}
	if c.EmbedRate > 0 && c.EmbedBurst < 1 {
		return fmt.Errorf("%s_EMBED_BURST must be >= 1 when a rate is set", Prefix)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%s_MAX_RETRIES must be >= 1", Prefix)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%s_RETRY_DELAY must be >= 0", Prefix)
	}
	if c.ScanCap < 1 {
		return fmt.Errorf("%s_SCAN_CAP must be >= 1", Prefix)
	}
	if c.OverfetchFactor < 1 {
		return fmt.Errorf("%s_OVERFETCH_FACTOR must be >= 1", Prefix)
	}
	if c.WideningRounds < 0 {
		return fmt.Errorf("%s_WIDENING_ROUNDS must be >= 0", Prefix)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return c.AIConfig().Validate()
}

// AIConfig returns the embedding service configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.EmbeddingHost),
		ai.WithEmbeddingModel(c.EmbeddingModel),
		ai.WithAPIToken(c.APIToken),
	)
}

// Level returns the configured slog level, or info if it is invalid.
func (c *Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}

// Getenv returns the prefixed variable's value.
func Getenv(key string) string {
	return os.Getenv(Prefix + "_" + key)
}
