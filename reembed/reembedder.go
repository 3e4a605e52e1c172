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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/eventscout/ai"
	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/metrics"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of documents to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Metrics, when set, counts re-embedded documents
	Metrics *metrics.Metrics

	// Logger receives retry diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of all documents in a collection.
type Reembedder struct {
	target    Target
	embedder  ai.Embedder
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *DocumentIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(target Target, embedder ai.Embedder, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	processor := NewBatchProcessor(target, embedder, config.MaxRetries, config.RetryDelay,
		WithRetryLogger(logger.With("component", "reembed")))
	iterator := NewDocumentIterator(target, config.BatchSize)

	return &Reembedder{
		target:    target,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		processor: processor,
		iterator:  iterator,
	}
}

// Run executes the reembedding operation and returns the number of
// documents processed. All documents in the collection are reembedded with
// the configured embedder. Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	// First, count total documents
	totalDocs, err := r.target.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}

	if totalDocs == 0 {
		fmt.Fprintf(r.progress, "No documents found in collection (0 documents)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d documents (batch size: %d)\n",
		totalDocs, r.iterator.batchSize)

	// Initialize progress tracker
	tracker := NewProgressTracker(r.progress, totalDocs, r.config.ReportInterval)
	tracker.Start()

	processed := 0

	// Process all documents in batches
	err = r.iterator.ForEach(ctx, func(docs []*core.Document) error {
		// Process this batch
		if err := r.processor.Process(ctx, docs); err != nil {
			r.config.Metrics.AddReembedded(err, len(docs))
			return fmt.Errorf("failed to process batch: %w", err)
		}
		r.config.Metrics.AddReembedded(nil, len(docs))

		// Update progress
		processed += len(docs)
		tracker.Update(processed)

		return nil
	})

	if err != nil {
		return processed, err
	}

	// Finish progress tracking
	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d documents in %v (%.1f documents/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())

	return processed, nil
}
