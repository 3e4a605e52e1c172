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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/poiesic/eventscout"
	"github.com/poiesic/eventscout/config"
	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/ingestion"
	"github.com/poiesic/eventscout/mcp"
	"github.com/poiesic/eventscout/metrics"
	"github.com/poiesic/eventscout/reembed"
	"github.com/poiesic/eventscout/search"
	"github.com/poiesic/eventscout/sources"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

// loadManifest returns the configured manifest, or the default layout
// under dataDir.
func loadManifest(cfg *config.Config, dataDir string) (*sources.Manifest, error) {
	if cfg.Sources != "" {
		m, err := sources.LoadManifest(cfg.Sources)
		if err != nil {
			return nil, fmt.Errorf("failed to load sources manifest: %w", err)
		}
		return m, nil
	}
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	return sources.DefaultManifest(dataDir), nil
}

// openDatabase opens the configured store. Exclusions come from the
// manifest so filter options hide the same sessions ingestion drops.
func openDatabase(cfg *config.Config, manifest *sources.Manifest, extra ...eventscout.DatabaseOption) (*eventscout.Database, error) {
	provider, err := newProvider(cfg.AIConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	opts := []eventscout.DatabaseOption{
		eventscout.WithProvider(provider),
		eventscout.WithCollectionName(cfg.Collection),
		eventscout.WithExclusions(manifest.IngestionExclusions()),
		eventscout.WithScanCap(cfg.ScanCap),
		eventscout.WithSearchOptions(
			search.WithOverfetchFactor(cfg.OverfetchFactor),
			search.WithWidening(cfg.WideningRounds),
		),
		eventscout.WithLogger(slog.Default()),
	}
	db, err := eventscout.NewDatabase(cfg.DBPath, append(opts, extra...)...)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func ingestCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	if c.IsSet("batch-size") {
		cfg.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("pool-size") {
		cfg.PoolSize = c.Int("pool-size")
	}
	if c.IsSet("embed-rate") {
		cfg.EmbedRate = c.Float64("embed-rate")
	}
	if c.IsSet("max-retries") {
		cfg.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("retry-delay") {
		cfg.RetryDelay = c.Duration("retry-delay")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	manifest, err := loadManifest(cfg, c.String("data-dir"))
	if err != nil {
		return err
	}

	loader, err := sources.NewLoader(sources.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	rows, loadReport, err := loader.Load(ctx, manifest)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}

	out := c.App.Writer
	for _, f := range loadReport.Files {
		if f.Skipped {
			fmt.Fprintf(out, "Skipped missing optional source %s\n", f.Path)
			continue
		}
		fmt.Fprintf(out, "Loaded %d rows from %s\n", f.Rows, f.Path)
	}

	schema := manifest.IngestionSchema()
	exclusions := manifest.IngestionExclusions()

	if c.Bool("dry-run") {
		records, nr := ingestion.Normalize(rows, schema, exclusions)
		_, cr := ingestion.Canonicalize(records)
		printPrepared(out, nr, cr)
		return nil
	}

	db, err := openDatabase(cfg, manifest)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []ingestion.Option{
		ingestion.WithSchema(schema),
		ingestion.WithExclusions(exclusions),
		ingestion.WithBatchSize(cfg.BatchSize),
		ingestion.WithPoolSize(cfg.PoolSize),
		ingestion.WithRetry(cfg.MaxRetries, cfg.RetryDelay),
		ingestion.WithProgress(c.App.ErrWriter),
	}
	if cfg.EmbedRate > 0 {
		opts = append(opts, ingestion.WithRateLimit(cfg.EmbedRate, cfg.EmbedBurst))
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.DBPath)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	report, err := db.Ingest(ctx, rows, opts...)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	printPrepared(out, report.Normalize, report.Canonicalize)
	fmt.Fprintf(out, "Indexed %d events into %s in %v (run %s)\n",
		report.Indexed, report.Collection, report.Duration.Round(time.Millisecond), report.RunID)
	return nil
}

func printPrepared(w io.Writer, nr ingestion.NormalizeReport, cr ingestion.CanonicalizeReport) {
	fmt.Fprintf(w, "Rows: %d, excluded: %d, without title: %d\n", nr.Input, nr.Excluded, nr.Untitled)
	fmt.Fprintf(w, "Canonicalized %d records into %d events\n", cr.Input, cr.Output)
}

func searchCommand(c *cli.Context) error {
	filters, err := parseFilterFlags(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	req := search.Request{
		Query:   strings.Join(c.Args().Slice(), " "),
		Limit:   c.Int("limit"),
		Filters: filters,
	}
	if c.IsSet("threshold") {
		threshold := c.Float64("threshold")
		req.Threshold = &threshold
	}

	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	manifest, err := loadManifest(cfg, "")
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg, manifest)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.Search(c.Context, req)
	if err != nil {
		if eventscout.IsNotInitialized(err) {
			return fmt.Errorf("%w: run the ingest command first", err)
		}
		return err
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, results)
	}
	printResults(c.App.Writer, results, req.ScanMode())
	return nil
}

// parseFilterFlags turns repeated key=value flags into Filters. Values for
// the same key are OR-ed.
func parseFilterFlags(flags []string) (search.Filters, error) {
	grouped := make(map[string][]string)
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return search.Filters{}, fmt.Errorf("%w: expected key=value, got %q", core.ErrInvalidFilter, f)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		grouped[key] = append(grouped[key], value)
	}

	raw := make(map[string]any, len(grouped))
	for key, values := range grouped {
		if len(values) == 1 {
			raw[key] = values[0]
		} else {
			raw[key] = values
		}
	}
	return search.ParseFilters(raw)
}

func printResults(w io.Writer, results []core.SearchResult, scan bool) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching events")
		return
	}
	fmt.Fprintf(w, "Found %d events\n", len(results))
	for i, r := range results {
		if scan {
			fmt.Fprintf(w, "%d: %s\n", i+1, r.Title)
		} else {
			fmt.Fprintf(w, "%d: %s [%0.3f]\n", i+1, r.Title, r.Distance)
		}
		if r.Session != "" {
			fmt.Fprintf(w, "   session: %s\n", r.Session)
		}
		if r.Day != "" {
			fmt.Fprintf(w, "   when: %s %s\n", r.Day, r.AMPM)
		}
		if r.Authors != "" {
			fmt.Fprintf(w, "   authors: %s\n", r.Authors)
		}
	}
}

func filtersCommand(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	manifest, err := loadManifest(cfg, "")
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg, manifest)
	if err != nil {
		return err
	}
	defer db.Close()

	opts, err := db.FilterOptions(c.Context)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, opts)
}

// statusReport combines the index state with the presence of the sources.
type statusReport struct {
	Database   string                `json:"database"`
	Collection core.CollectionStatus `json:"collection"`
	Sources    []sources.FileStatus  `json:"sources"`
}

func statusCommand(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	manifest, err := loadManifest(cfg, c.String("data-dir"))
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg, manifest)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := db.Status(c.Context)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, statusReport{
		Database:   cfg.DBPath,
		Collection: status,
		Sources:    sources.Stat(manifest),
	})
}

func reembedCommand(c *cli.Context) error {
	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}

	// Create reembedding config
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	manifest, err := loadManifest(cfg, "")
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg, manifest)
	if err != nil {
		return err
	}
	defer db.Close()

	// Run reembedding
	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.DBPath)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := db.Reembed(c.Context, reembedConfig, c.App.ErrWriter); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func serveMCPCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadSettings(c)
	if err != nil {
		return err
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	manifest, err := loadManifest(cfg, "")
	if err != nil {
		return err
	}

	var extra []eventscout.DatabaseOption
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		extra = append(extra, eventscout.WithMetrics(metrics.New(reg)))

		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	db, err := openDatabase(cfg, manifest, extra...)
	if err != nil {
		return err
	}
	defer db.Close()

	server := mcp.NewServer(mcp.ServerConfig{
		Backend: db,
		Version: version,
		Logger:  slog.Default(),
	})
	slog.Info("serving MCP on stdio", "collection", cfg.Collection)
	return mcp.Serve(ctx, server, os.Stdin, os.Stdout)
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
