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
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/eventscout/ai"
	"github.com/poiesic/eventscout/core"
)

// BatchProcessor handles embedding and updating batches of documents.
type BatchProcessor struct {
	target   Target
	embedder ai.Embedder
	retrier  *Retrier
}

// errEmbeddingCount is returned when the embedder answers with a different
// number of vectors than texts. Repeating the request does not fix it.
var errEmbeddingCount = errors.New("embedding count mismatch")

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(target Target, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration, opts ...RetryOption) *BatchProcessor {
	return &BatchProcessor{
		target:   target,
		embedder: embedder,
		retrier:  NewRetrier(maxRetries, retryBaseDelay, opts...),
	}
}

// Process generates embeddings for a batch of documents and updates them in the collection.
// Vectors are normalized after embedding to ensure compatibility with cosine distance.
func (bp *BatchProcessor) Process(ctx context.Context, docs []*core.Document) error {
	if len(docs) == 0 {
		return nil
	}

	// Documents are embedded from their stored text
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	// Generate embeddings with retry
	var embeddings [][]float32
	err := bp.retrier.Do(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(embeddings) != len(docs) {
			return Permanent(fmt.Errorf("%w: expected %d, got %d", errEmbeddingCount, len(docs), len(embeddings)))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	// Normalize vectors and assign to documents
	for i := range docs {
		docs[i].Vector = core.NormalizeVector(embeddings[i])
	}

	// Update documents in the collection
	if err := bp.target.Update(ctx, docs...); err != nil {
		return fmt.Errorf("failed to update documents: %w", err)
	}

	return nil
}
