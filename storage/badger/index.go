package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/storage"
)

// IndexRepository implements storage.IndexRepository using BadgerDB.
// Nearest performs an exhaustive cosine-distance scan over the collection.
type IndexRepository struct {
	backend *Backend
}

var _ storage.IndexRepository = (*IndexRepository)(nil)

// NewIndexRepository creates a new IndexRepository.
func NewIndexRepository(backend *Backend) (storage.IndexRepository, error) {
	return newIndexRepository(backend)
}

func newIndexRepository(backend *Backend) (*IndexRepository, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &IndexRepository{
		backend: backend,
	}, nil
}

// Close releases resources. IndexRepository has no resources to release.
func (r *IndexRepository) Close() error {
	return nil
}

// CreateCollection creates an empty collection.
func (r *IndexRepository) CreateCollection(ctx context.Context, name string) (*storage.CollectionInfo, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}

	info := &storage.CollectionInfo{
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readCollection(tx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", storage.ErrCollectionExists, name)
		}
		if err := tx.Set(makeCollectionKey(name), storage.MarshalCollectionInfo(info)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	r.backend.logger.Debug("created collection", "collection", name)
	return info, nil
}

// DropCollection deletes a collection and all its documents.
func (r *IndexRepository) DropCollection(ctx context.Context, name string) error {
	if _, err := r.GetCollection(ctx, name); err != nil {
		return err
	}

	// Documents first so a crash leaves an orphaned info key rather than
	// orphaned documents under a missing collection.
	if err := r.backend.DropPrefix(makeDocPrefix(name)); err != nil {
		return err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCollectionKey(name)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	r.backend.logger.Debug("dropped collection", "collection", name)
	return nil
}

// GetCollection returns the collection's info.
func (r *IndexRepository) GetCollection(ctx context.Context, name string) (*storage.CollectionInfo, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}

	var info *storage.CollectionInfo
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		info, err = requireCollection(tx, name)
		return err
	}, false)
	return info, err
}

// Upsert stores documents by ID in a single transaction.
func (r *IndexRepository) Upsert(ctx context.Context, collection string, docs ...*core.Document) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return err
		}
		if len(doc.Vector) == 0 {
			return fmt.Errorf("%w: id %s", storage.ErrMissingVector, doc.Id)
		}
	}
	if len(docs) == 0 {
		return nil
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		info, err := requireCollection(tx, collection)
		if err != nil {
			return err
		}

		dims := info.Dimensions
		if dims == 0 {
			dims = len(docs[0].Vector)
		}
		for _, doc := range docs {
			if len(doc.Vector) != dims {
				return fmt.Errorf("%w: id %s has %d, collection has %d",
					storage.ErrDimensionMismatch, doc.Id, len(doc.Vector), dims)
			}
			if err := tx.Set(makeDocKey(collection, doc.Id), storage.MarshalDocument(doc)); err != nil {
				return err
			}
		}

		if info.Dimensions != dims {
			info.Dimensions = dims
			if err := tx.Set(makeCollectionKey(collection), storage.MarshalCollectionInfo(info)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Nearest returns up to k documents ordered by ascending cosine distance.
// Ties keep storage order.
func (r *IndexRepository) Nearest(ctx context.Context, collection string, vector []float32, k int) ([]*core.Candidate, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}

	var results []*core.Candidate
	err := r.eachDocument(ctx, collection, true, func(doc *core.Document) bool {
		results = append(results, &core.Candidate{
			Id:       doc.Id,
			Text:     doc.Text,
			Metadata: doc.Metadata,
			Distance: core.CosineDistance(vector, doc.Vector),
		})
		return true
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(results, func(a, b *core.Candidate) int {
		return cmp.Compare(a.Distance, b.Distance)
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Scan returns up to limit documents in key order with zero distance.
func (r *IndexRepository) Scan(ctx context.Context, collection string, limit int) ([]*core.Candidate, error) {
	var results []*core.Candidate
	err := r.eachDocument(ctx, collection, true, func(doc *core.Document) bool {
		results = append(results, &core.Candidate{
			Id:       doc.Id,
			Text:     doc.Text,
			Metadata: doc.Metadata,
		})
		return limit <= 0 || len(results) < limit
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Count returns the number of documents in the collection.
func (r *IndexRepository) Count(ctx context.Context, collection string) (int, error) {
	count := 0
	err := r.eachDocument(ctx, collection, false, func(_ *core.Document) bool {
		count++
		return true
	})
	return count, err
}

// ForEach pages through the collection in batches. Each page is read in its
// own transaction so fn may write to the collection.
func (r *IndexRepository) ForEach(ctx context.Context, collection string, batchSize int, fn func([]*core.Document) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", storage.ErrInvalidQuery, batchSize)
	}
	if _, err := r.GetCollection(ctx, collection); err != nil {
		return err
	}

	prefix := makeDocPrefix(collection)
	cursor := prefix
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch []*core.Document
		var lastKey []byte
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Seek(cursor); iter.Valid() && len(batch) < batchSize; iter.Next() {
				item := iter.Item()
				doc, err := readDocument(item)
				if err != nil {
					return err
				}
				batch = append(batch, doc)
				lastKey = item.KeyCopy(nil)
			}
			return nil
		}, false)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		// Smallest key strictly greater than lastKey
		cursor = append(lastKey, 0)
	}
}

// eachDocument iterates the collection in key order until fn returns false.
// Values are only decoded when withValues is set; otherwise fn receives nil.
func (r *IndexRepository) eachDocument(ctx context.Context, collection string, withValues bool, fn func(*core.Document) bool) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := requireCollection(tx, collection); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocPrefix(collection)
		opts.PrefetchValues = withValues
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var doc *core.Document
			if withValues {
				var err error
				doc, err = readDocument(iter.Item())
				if err != nil {
					return err
				}
			}
			if !fn(doc) {
				return nil
			}
		}
		return nil
	}, false)
}

// readDocument decodes the document stored in item.
func readDocument(item *badger.Item) (*core.Document, error) {
	var doc *core.Document
	err := item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}

// readCollection reads a collection's info. Returns nil, nil if absent.
func readCollection(tx *badger.Txn, name string) (*storage.CollectionInfo, error) {
	item, err := tx.Get(makeCollectionKey(name))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var info *storage.CollectionInfo
	err = item.Value(func(val []byte) error {
		var err error
		info, err = storage.UnmarshalCollectionInfo(val)
		return err
	})
	return info, err
}

// requireCollection reads a collection's info or fails with ErrCollectionNotFound.
func requireCollection(tx *badger.Txn, name string) (*storage.CollectionInfo, error) {
	info, err := readCollection(tx, name)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, name)
	}
	return info, nil
}
