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

package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/eventscout/ai"
	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/storage"
)

// DefaultCollectionName is the collection ingestion writes and search reads.
const DefaultCollectionName = "neurips_papers"

// Collection is a named vector-index collection addressed by text.
// It is safe for concurrent use when the repository and embedder are.
type Collection struct {
	repo     storage.IndexRepository
	embedder ai.Embedder
	name     string
	logger   *slog.Logger
}

// Option configures a Collection.
type Option func(*Collection) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collection) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithName sets the collection name.
// Default is DefaultCollectionName.
func WithName(name string) Option {
	return func(c *Collection) error {
		if name == "" {
			return fmt.Errorf("%w: empty", storage.ErrInvalidCollectionName)
		}
		c.name = name
		return nil
	}
}

// NewCollection creates a collection adapter. It does not create the
// collection in the repository; see Reset.
func NewCollection(repo storage.IndexRepository, embedder ai.Embedder, opts ...Option) (*Collection, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	c := &Collection{
		repo:     repo,
		embedder: embedder,
		name:     DefaultCollectionName,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "index", "collection", c.name)

	return c, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Exists reports whether the collection has been created.
func (c *Collection) Exists(ctx context.Context) (bool, error) {
	_, err := c.repo.GetCollection(ctx, c.name)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Status reports whether the collection exists and how many documents it holds.
func (c *Collection) Status(ctx context.Context) (core.CollectionStatus, error) {
	status := core.CollectionStatus{Name: c.name}

	exists, err := c.Exists(ctx)
	if err != nil || !exists {
		return status, err
	}
	status.Exists = true

	status.Count, err = c.Count(ctx)
	return status, err
}

// Reset deletes the collection and its documents, if any, and creates it empty.
// A collection that does not exist yet is not an error.
func (c *Collection) Reset(ctx context.Context) error {
	err := c.repo.DropCollection(ctx, c.name)
	switch {
	case errors.Is(err, storage.ErrCollectionNotFound):
		c.logger.Debug("no prior collection to drop")
	case err != nil:
		return fmt.Errorf("failed to drop collection: %w", err)
	default:
		c.logger.Info("dropped prior collection")
	}

	if _, err := c.repo.CreateCollection(ctx, c.name); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Add embeds every document that has no vector yet and upserts the batch.
// Vectors are normalized to unit length before storage. Documents are
// written atomically: either the whole batch is stored or none of it.
func (c *Collection) Add(ctx context.Context, docs ...*core.Document) error {
	if err := c.Embed(ctx, docs...); err != nil {
		return err
	}
	return c.Update(ctx, docs...)
}

// Embed sets the vector of every document that has none, using one
// embedding request for the whole batch. It does not write to the index.
func (c *Collection) Embed(ctx context.Context, docs ...*core.Document) error {
	var (
		pending []*core.Document
		texts   []string
	)
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return err
		}
		if len(doc.Vector) == 0 {
			pending = append(pending, doc)
			texts = append(texts, doc.Text)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	vectors, err := c.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(pending) {
		return fmt.Errorf("%w: got %d vectors for %d documents", ErrEmbeddingCount, len(vectors), len(pending))
	}
	for i, doc := range pending {
		doc.Vector = vectors[i]
	}
	c.logger.Debug("embedded documents", "count", len(pending))
	return nil
}

// Nearest embeds text and returns up to k candidates ranked by ascending
// distance. A missing collection yields no candidates and no embedding call.
func (c *Collection) Nearest(ctx context.Context, text string, k int) ([]*core.Candidate, error) {
	exists, err := c.Exists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	vector, err := c.embedder.EmbedText(ctx, text)
	if err != nil {
		c.logger.Error("error generating embedding for query", "err", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := c.repo.Nearest(ctx, c.name, core.NormalizeVector(vector), k)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return nil, nil
	}
	return candidates, err
}

// Scan returns up to limit candidates in storage order with zero distance.
// A missing collection yields no candidates.
func (c *Collection) Scan(ctx context.Context, limit int) ([]*core.Candidate, error) {
	candidates, err := c.repo.Scan(ctx, c.name, limit)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return nil, nil
	}
	return candidates, err
}

// Count returns the number of documents. A missing collection counts as zero.
func (c *Collection) Count(ctx context.Context) (int, error) {
	count, err := c.repo.Count(ctx, c.name)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return 0, nil
	}
	return count, err
}

// ForEach pages through the stored documents, vectors included.
// A missing collection is not visited.
func (c *Collection) ForEach(ctx context.Context, batchSize int, fn func([]*core.Document) error) error {
	err := c.repo.ForEach(ctx, c.name, batchSize, fn)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return nil
	}
	return err
}

// Update upserts documents as they are, without embedding them. Every
// document must already carry a vector.
func (c *Collection) Update(ctx context.Context, docs ...*core.Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if doc != nil {
			doc.Vector = core.NormalizeVector(doc.Vector)
		}
	}
	if err := c.repo.Upsert(ctx, c.name, docs...); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}
	c.logger.Debug("stored documents", "count", len(docs))
	return nil
}
