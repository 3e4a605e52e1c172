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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/eventscout/ai"
	"github.com/poiesic/eventscout/ai/openai"
	"github.com/poiesic/eventscout/config"
	"github.com/urfave/cli/v2"
)

// version is set at build time.
var version = "dev"

// newProvider builds the embedding provider. Tests replace it.
var newProvider = func(cfg *ai.Config) (ai.AIProvider, error) {
	return openai.NewProvider(cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "eventscout",
		Usage:   "Hybrid semantic and metadata search over conference events",
		Version: version,

		// Filter values such as affiliations contain commas; keep each -f whole
		DisableSliceFlagSeparator: true,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Optional .env file with EVENTSCOUT_* settings",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (default from EVENTSCOUT_DB_PATH)",
			},
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Index collection name (default from EVENTSCOUT_COLLECTION)",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL (default from EVENTSCOUT_EMBEDDING_HOST)",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name (default from EVENTSCOUT_EMBEDDING_MODEL)",
			},
			&cli.StringFlag{
				Name:  "sources",
				Usage: "YAML sources manifest (default from EVENTSCOUT_SOURCES)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Rebuild the index from the event sources",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "Directory holding the default export files when no manifest is given",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of events to embed and write in each batch",
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of concurrent embedding workers",
					},
					&cli.Float64Flag{
						Name:  "embed-rate",
						Usage: "Maximum embedding requests per second (0 = unlimited)",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts for each batch embedding",
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Normalize and canonicalize only; report counts without touching the index",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search events by meaning and metadata",
				ArgsUsage: "[query words...]",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   10,
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Maximum cosine distance for semantic results",
					},
					&cli.StringSliceFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Metadata filter key=value (affiliation, author, session, day, ampm); repeat a key to OR values",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				},
			},
			{
				Name:   "filters",
				Usage:  "List the distinct filter values in the index",
				Action: filtersCommand,
			},
			{
				Name:   "status",
				Usage:  "Report the index and source file status",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "Directory holding the default export files when no manifest is given",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all indexed events with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of events to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N events",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "serve-mcp",
				Usage:  "Serve the search tools over MCP on stdio",
				Action: serveMCPCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Expose Prometheus metrics on this address, e.g. :9090 (default from EVENTSCOUT_METRICS_ADDR)",
					},
				},
			},
		},
	}
}

// loadSettings reads the environment configuration and applies global
// flags that were set explicitly.
func loadSettings(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}

	override := func(flag string, dst *string) {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	override("db", &cfg.DBPath)
	override("collection", &cfg.Collection)
	override("embedding-host", &cfg.EmbeddingHost)
	override("embedding-model", &cfg.EmbeddingModel)
	override("sources", &cfg.Sources)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))
	if !c.IsSet("log-level") {
		if env := config.Getenv("LOG_LEVEL"); env != "" {
			levelStr = strings.ToLower(env)
		}
	}

	level, err := config.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Logs go to stderr; stdout carries results and the MCP protocol
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
