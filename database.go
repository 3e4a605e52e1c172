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


package eventscout

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/eventscout/ai"
	"github.com/poiesic/eventscout/ai/openai"
	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/index"
	"github.com/poiesic/eventscout/ingestion"
	"github.com/poiesic/eventscout/metrics"
	"github.com/poiesic/eventscout/reembed"
	"github.com/poiesic/eventscout/search"
	"github.com/poiesic/eventscout/storage"
	"github.com/poiesic/eventscout/storage/badger"
)

// Database wires the event index, the embedding provider, the searcher and
// the filter-option cache over one BadgerDB store.
type Database struct {
	backend    *badger.Backend
	repo       storage.IndexRepository
	provider   ai.AIProvider
	collection *index.Collection
	searcher   *search.Searcher
	options    *search.OptionsCache
	exclusions ingestion.Exclusions
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig       *ai.Config
	provider       ai.AIProvider
	inMemory       bool
	collectionName string
	exclusions     ingestion.Exclusions
	scanCap        int
	searchOpts     []search.Option
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// WithAIConfig sets the embedding service configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider supplies the AI provider directly instead of building an
// OpenAI-compatible one. The Database closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithInMemory keeps the store in memory and ignores the file path.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithCollectionName overrides the collection name.
func WithCollectionName(name string) DatabaseOption {
	return func(o *databaseOptions) {
		o.collectionName = name
	}
}

// WithExclusions sets the sub-event exclusions applied by ingestion and
// by filter-option derivation.
func WithExclusions(exclusions ingestion.Exclusions) DatabaseOption {
	return func(o *databaseOptions) {
		o.exclusions = exclusions
	}
}

// WithScanCap bounds the bulk fetch of both scan-mode search and
// filter-option derivation.
func WithScanCap(limit int) DatabaseOption {
	return func(o *databaseOptions) {
		o.scanCap = limit
	}
}

// WithSearchOptions passes options to the searcher.
func WithSearchOptions(opts ...search.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.searchOpts = append(o.searchOpts, opts...)
	}
}

// WithMetrics records search, ingestion and re-embedding metrics.
func WithMetrics(m *metrics.Metrics) DatabaseOption {
	return func(o *databaseOptions) {
		o.metrics = m
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens or creates the store at filePath.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig:       ai.DefaultConfig(), // Default if not provided
		collectionName: index.DefaultCollectionName,
		exclusions:     ingestion.DefaultExclusions(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Open backend
	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	// Create index repository
	repo, err := badger.NewIndexRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	// Create AI provider with configured settings
	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			repo.Close()
			backend.Close()
			return nil, err
		}
	}

	db := &Database{
		backend:    backend,
		repo:       repo,
		provider:   provider,
		exclusions: options.exclusions,
		metrics:    options.metrics,
		logger:     options.logger,
	}
	if err := db.wire(options); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) wire(options *databaseOptions) error {
	var err error
	db.collection, err = index.NewCollection(db.repo, db.provider.Embedder(),
		index.WithName(options.collectionName),
		index.WithLogger(db.logger),
	)
	if err != nil {
		return err
	}

	searchOpts := []search.Option{
		search.WithLogger(db.logger),
		search.WithMetrics(db.metrics),
	}
	cacheOpts := []search.CacheOption{
		search.WithCacheLogger(db.logger),
		search.WithExcludedSessions(db.exclusions.SessionSubstrings...),
		search.WithCacheMetrics(db.metrics),
	}
	if options.scanCap != 0 {
		searchOpts = append(searchOpts, search.WithScanCap(options.scanCap))
		cacheOpts = append(cacheOpts, search.WithCacheScanCap(options.scanCap))
	}

	db.searcher, err = search.NewSearcher(db.collection, append(searchOpts, options.searchOpts...)...)
	if err != nil {
		return err
	}

	db.options, err = search.NewOptionsCache(db.collection, cacheOpts...)
	return err
}

// Close releases the provider, the repository and the backend.
func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	// Close repository
	if err := db.repo.Close(); err != nil {
		db.logger.Error("error closing index repository", "err", err)
		return err
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Collection returns the event collection.
func (db *Database) Collection() *index.Collection {
	return db.collection
}

// Searcher returns the searcher bound to the collection.
func (db *Database) Searcher() *search.Searcher {
	return db.searcher
}

// Metrics returns the configured metrics, which may be nil.
func (db *Database) Metrics() *metrics.Metrics {
	return db.metrics
}

// NewIngestionPipeline creates a pipeline writing to the collection. The
// database's exclusions, metrics and logger apply unless opts override them.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	base := []ingestion.Option{
		ingestion.WithLogger(db.logger),
		ingestion.WithExclusions(db.exclusions),
		ingestion.WithMetrics(db.metrics),
	}
	return ingestion.NewPipeline(db.collection, append(base, opts...)...)
}

// Ingest rebuilds the collection from rows and invalidates the cached
// filter options. The cache is invalidated even when the run fails, since
// the collection was already replaced.
func (db *Database) Ingest(ctx context.Context, rows []ingestion.Row, opts ...ingestion.Option) (*ingestion.Report, error) {
	pipeline, err := db.NewIngestionPipeline(opts...)
	if err != nil {
		return nil, err
	}
	defer pipeline.Release()
	defer db.options.Invalidate()

	return pipeline.Run(ctx, rows)
}

// Search runs a hybrid query against the collection.
func (db *Database) Search(ctx context.Context, req search.Request) ([]core.SearchResult, error) {
	return db.searcher.Search(ctx, req)
}

// FilterOptions returns the distinct filter values, loading them on first use.
func (db *Database) FilterOptions(ctx context.Context) (core.FilterOptions, error) {
	return db.options.Get(ctx)
}

// InvalidateFilterOptions drops the cached filter options.
func (db *Database) InvalidateFilterOptions() {
	db.options.Invalidate()
}

// Status reports whether the collection exists and how many documents it holds.
func (db *Database) Status(ctx context.Context) (core.CollectionStatus, error) {
	return db.collection.Status(ctx)
}

// Reembed re-embeds every document with the database's embedder and
// returns the number processed.
func (db *Database) Reembed(ctx context.Context, config *reembed.Config, progress io.Writer) (int, error) {
	exists, err := db.collection.Exists(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, core.ErrNotInitialized
	}
	if config == nil {
		config = reembed.DefaultConfig()
	}
	if config.Metrics == nil {
		config.Metrics = db.metrics
	}
	if config.Logger == nil {
		config.Logger = db.logger
	}
	return reembed.NewReembedder(db.collection, db.provider.Embedder(), config, progress).Run(ctx)
}

// IsNotInitialized reports whether err means the collection has not been built.
func IsNotInitialized(err error) bool {
	return errors.Is(err, core.ErrNotInitialized)
}
