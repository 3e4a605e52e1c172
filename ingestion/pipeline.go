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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/index"
	"github.com/poiesic/eventscout/metrics"
	"github.com/poiesic/eventscout/reembed"
)

const (
	// DefaultBatchSize is the number of documents per index write.
	DefaultBatchSize = 100

	// DefaultYear is recorded for events without a parseable start time.
	DefaultYear = 2025
)

// Pipeline rebuilds an index collection from source rows.
// Runs must not overlap on the same collection; callers serialize them.
type Pipeline struct {
	collection  *index.Collection
	pool        *ants.Pool
	schema      Schema
	exclusions  Exclusions
	batchSize   int
	defaultYear int
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	retrier     *reembed.Retrier
	progress    io.Writer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithBatchSize sets the number of documents embedded and written together.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// WithSchema sets the source column mapping. Empty column names fall back
// to DefaultSchema.
func WithSchema(schema Schema) Option {
	return func(p *Pipeline) error {
		p.schema = schema.Merge(DefaultSchema())
		return nil
	}
}

// WithExclusions replaces the sub-event exclusion filter.
// Default is DefaultExclusions.
func WithExclusions(exclusions Exclusions) Option {
	return func(p *Pipeline) error {
		p.exclusions = exclusions
		return nil
	}
}

// WithDefaultYear sets the year recorded for events without a start time.
func WithDefaultYear(year int) Option {
	return func(p *Pipeline) error {
		p.defaultYear = year
		return nil
	}
}

// WithRateLimit caps embedding requests per second across all workers.
// A non-positive perSecond disables the limit, which is the default.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *Pipeline) error {
		if perSecond <= 0 {
			p.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithRetry sets how many times a batch embedding request is attempted and
// the base backoff delay between attempts. Default is 3 attempts, 1s.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts < 1 {
			return reembed.ErrInvalidMaxAttempts
		}
		p.maxRetries = maxAttempts
		p.retryDelay = baseDelay
		return nil
	}
}

// WithProgress writes batch progress to w.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.progress = w
		return nil
	}
}

// WithMetrics records run and batch metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline writing to collection.
func NewPipeline(collection *index.Collection, opts ...Option) (*Pipeline, error) {
	if collection == nil {
		return nil, ErrCollectionRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		collection:  collection,
		pool:        pool,
		schema:      DefaultSchema(),
		exclusions:  DefaultExclusions(),
		batchSize:   DefaultBatchSize,
		defaultYear: DefaultYear,
		maxRetries:  3,
		retryDelay:  time.Second,
		logger:      slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")
	p.retrier = reembed.NewRetrier(p.maxRetries, p.retryDelay,
		reembed.WithRetryLogger(p.logger),
		reembed.WithRetryable(retryableEmbedError))

	return p, nil
}

// Report summarizes one ingestion run.
type Report struct {
	RunID        string
	Collection   string
	Normalize    NormalizeReport
	Canonicalize CanonicalizeReport
	Batches      int
	Indexed      int
	Duration     time.Duration
}

// Prepare normalizes and canonicalizes rows and builds the documents a run
// would write, without touching the index.
func (p *Pipeline) Prepare(rows []Row) ([]*core.Document, NormalizeReport, CanonicalizeReport) {
	records, nr := Normalize(rows, p.schema, p.exclusions)
	entities, cr := Canonicalize(records)

	docs := make([]*core.Document, len(entities))
	for i, entity := range entities {
		docs[i] = core.NewDocument(entity, p.defaultYear)
	}
	return docs, nr, cr
}

// Run replaces the collection's contents with the documents built from rows.
// The prior collection is dropped first; a missing one is not an error.
// Any batch that fails to embed or write fails the run with ErrBatchWrite,
// leaving the collection partially written until the next successful run.
func (p *Pipeline) Run(ctx context.Context, rows []Row) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:      uuid.NewString(),
		Collection: p.collection.Name(),
	}
	logger := p.logger.With("run", report.RunID)

	docs, nr, cr := p.Prepare(rows)
	report.Normalize = nr
	report.Canonicalize = cr
	logger.Info("normalized rows",
		"rows", nr.Input, "excluded", nr.Excluded, "untitled", nr.Untitled, "records", nr.Output)
	logger.Info("canonicalized records", "input", cr.Input, "output", cr.Output)
	p.metrics.AddIngestRecords("rows", nr.Input)
	p.metrics.AddIngestRecords("excluded", nr.Excluded)
	p.metrics.AddIngestRecords("untitled", nr.Untitled)
	p.metrics.AddIngestRecords("entities", cr.Output)

	if err := p.collection.Reset(ctx); err != nil {
		p.metrics.ObserveIngestRun(err)
		return report, err
	}

	indexed, batches, err := p.write(ctx, logger, docs)
	report.Indexed = indexed
	report.Batches = batches
	report.Duration = time.Since(start)
	p.metrics.AddIngestRecords("indexed", indexed)
	p.metrics.ObserveIngestRun(err)
	if err != nil {
		logger.Error("ingestion failed", "indexed", indexed, "err", err)
		return report, err
	}

	logger.Info("ingestion complete", "indexed", indexed, "batches", batches, "elapsed", report.Duration)
	return report, nil
}

// write embeds batches concurrently and stores them one at a time.
func (p *Pipeline) write(ctx context.Context, logger *slog.Logger, docs []*core.Document) (int, int, error) {
	if len(docs) == 0 {
		return 0, 0, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := chunk(docs, p.batchSize)
	logger.Info("writing documents", "documents", len(docs), "batches", len(batches))

	var tracker *reembed.ProgressTracker
	if p.progress != nil {
		tracker = reembed.NewProgressTracker(p.progress, len(docs), p.batchSize).SetUnit("events")
		tracker.Start()
	}

	var (
		wg       sync.WaitGroup
		writeMu  sync.Mutex
		errOnce  sync.Once
		firstErr error
		indexed  int
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			batchStart := time.Now()

			if err := p.embedBatch(ctx, batch); err != nil {
				fail(fmt.Errorf("%w: batch %d: %w", ErrBatchWrite, i+1, err))
				return
			}

			writeMu.Lock()
			defer writeMu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if err := p.collection.Update(ctx, batch...); err != nil {
				fail(fmt.Errorf("%w: batch %d: %w", ErrBatchWrite, i+1, err))
				return
			}
			indexed += len(batch)
			p.metrics.ObserveBatch(time.Since(batchStart))
			logger.Debug("wrote batch", "batch", i+1, "of", len(batches), "documents", len(batch))
			if tracker != nil {
				tracker.Increment(len(batch))
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("%w: batch %d: %w", ErrBatchWrite, i+1, submitErr))
			break
		}
	}
	wg.Wait()

	if tracker != nil && firstErr == nil {
		tracker.Finish()
	}
	if firstErr == nil && ctx.Err() != nil {
		// Parent context cancelled
		firstErr = fmt.Errorf("%w: %w", ErrBatchWrite, context.Cause(ctx))
	}
	return indexed, len(batches), firstErr
}

// embedBatch embeds a batch, waiting on the rate limiter and retrying
// transient embedding failures with backoff.
func (p *Pipeline) embedBatch(ctx context.Context, batch []*core.Document) error {
	return p.retrier.Do(ctx, func() error {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return reembed.Permanent(err)
			}
		}
		return p.collection.Embed(ctx, batch...)
	})
}

// retryableEmbedError reports whether an embedding failure may succeed on
// another attempt. Invalid documents and short answers from the embedder
// fail the same way every time.
func retryableEmbedError(err error) bool {
	return !errors.Is(err, core.ErrInvalidDocument) && !errors.Is(err, index.ErrEmbeddingCount)
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
