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

package storage

import (
	"context"
	"time"

	"github.com/poiesic/eventscout/core"
)

// CollectionInfo describes a named collection of indexed documents.
type CollectionInfo struct {
	Name       string
	Dimensions int // Vector length of the first stored document, 0 until known
	CreatedAt  time.Time
}

// Repository is the base interface for all repository types.
type Repository interface {
	// Close closes the storage backend and releases resources.
	Close() error
}

// IndexRepository stores embedded documents in named collections and
// answers nearest-neighbour queries over them.
type IndexRepository interface {
	Repository

	// CreateCollection creates an empty collection.
	// Returns ErrCollectionExists if it already exists.
	CreateCollection(ctx context.Context, name string) (*CollectionInfo, error)

	// DropCollection deletes a collection and all its documents.
	// Returns ErrCollectionNotFound if it does not exist.
	DropCollection(ctx context.Context, name string) error

	// GetCollection returns the collection's info.
	// Returns ErrCollectionNotFound if it does not exist.
	GetCollection(ctx context.Context, name string) (*CollectionInfo, error)

	// Upsert stores documents by ID, replacing existing ones. All documents
	// in one call are written atomically. Every document must carry a vector.
	Upsert(ctx context.Context, collection string, docs ...*core.Document) error

	// Nearest returns up to k documents ordered by ascending cosine distance
	// to vector.
	Nearest(ctx context.Context, collection string, vector []float32, k int) ([]*core.Candidate, error)

	// Scan returns up to limit documents in storage order with zero distance.
	// A limit <= 0 returns every document.
	Scan(ctx context.Context, collection string, limit int) ([]*core.Candidate, error)

	// ForEach calls fn with batches of up to batchSize stored documents,
	// vectors included, in storage order. Iteration stops at the first error.
	ForEach(ctx context.Context, collection string, batchSize int, fn func([]*core.Document) error) error

	// Count returns the number of documents in the collection.
	Count(ctx context.Context, collection string) (int, error)
}
