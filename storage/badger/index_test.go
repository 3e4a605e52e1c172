package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCollection = "neurips_papers"

func setupIndex(t *testing.T) storage.IndexRepository {
	t.Helper()
	repo, backend, err := NewMemoryIndexRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func testDoc(title string, vector ...float32) *core.Document {
	return &core.Document{
		Id:       core.IDFromContent(title),
		Text:     "Title: " + title,
		Metadata: core.Metadata{core.MetaTitle: title},
		Vector:   vector,
	}
}

func TestCollectionLifecycle(t *testing.T) {
	repo := setupIndex(t)
	ctx := context.Background()

	_, err := repo.GetCollection(ctx, testCollection)
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	info, err := repo.CreateCollection(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, testCollection, info.Name)
	assert.False(t, info.CreatedAt.IsZero())

	_, err = repo.CreateCollection(ctx, testCollection)
	assert.ErrorIs(t, err, storage.ErrCollectionExists)

	require.NoError(t, repo.Upsert(ctx, testCollection, testDoc("a", 1, 0)))
	got, err := repo.GetCollection(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Dimensions)

	require.NoError(t, repo.DropCollection(ctx, testCollection))
	_, err = repo.GetCollection(ctx, testCollection)
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	err = repo.DropCollection(ctx, testCollection)
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	// Recreated collection starts empty
	_, err = repo.CreateCollection(ctx, testCollection)
	require.NoError(t, err)
	count, err := repo.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCollectionName_Validation(t *testing.T) {
	repo := setupIndex(t)
	ctx := context.Background()

	for _, name := range []string{"", "a:b", "with space", "slash/name"} {
		_, err := repo.CreateCollection(ctx, name)
		assert.ErrorIs(t, err, storage.ErrInvalidCollectionName, "name %q", name)
	}
}

func TestOperations_MissingCollection(t *testing.T) {
	repo := setupIndex(t)
	ctx := context.Background()

	_, err := repo.Count(ctx, testCollection)
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	_, err = repo.Scan(ctx, testCollection, 10)
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	_, err = repo.Nearest(ctx, testCollection, []float32{1}, 10)
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	err = repo.Upsert(ctx, testCollection, testDoc("a", 1))
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)
}

func TestUpsert_Validation(t *testing.T) {
	repo := setupIndex(t)
	ctx := context.Background()
	_, err := repo.CreateCollection(ctx, testCollection)
	require.NoError(t, err)

	err = repo.Upsert(ctx, testCollection, testDoc("no vector"))
	assert.ErrorIs(t, err, storage.ErrMissingVector)

	err = repo.Upsert(ctx, testCollection, &core.Document{Id: 1, Vector: []float32{1}})
	assert.ErrorIs(t, err, core.ErrEmptyText)

	err = repo.Upsert(ctx, testCollection, testDoc("a", 1, 0), testDoc("b", 1, 0, 0))
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	count, err := repo.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "failed batch must not be partially written")
}

func TestUpsert_ReplacesByID(t *testing.T) {
	repo := setupIndex(t)
	ctx := context.Background()
	_, err := repo.CreateCollection(ctx, testCollection)
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(ctx, testCollection, testDoc("a", 1, 0)))
	replacement := testDoc("a", 0, 1)
	replacement.Metadata["session"] = "Oral 1"
	require.NoError(t, repo.Upsert(ctx, testCollection, replacement))

	all, err := repo.Scan(ctx, testCollection, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Oral 1", all[0].Metadata.String("session"))
}

func TestNearest(t *testing.T) {
	repo := setupIndex(t)
	ctx := context.Background()
	_, err := repo.CreateCollection(ctx, testCollection)
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(ctx, testCollection,
		testDoc("exact", 1, 0, 0),
		testDoc("close", 0.9, 0.1, 0),
		testDoc("far", 0, 0, 1),
		testDoc("opposite", -1, 0, 0),
	))

	results, err := repo.Nearest(ctx, testCollection, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "exact", results[0].Metadata.String(core.MetaTitle))
	assert.Equal(t, "close", results[1].Metadata.String(core.MetaTitle))
	assert.Equal(t, "far", results[2].Metadata.String(core.MetaTitle))
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.InDelta(t, 1.0, results[2].Distance, 1e-6)

	for i := 0; i < len(results)-1; i++ {
		assert.LessOrEqual(t, results[i].Distance, results[i+1].Distance)
	}

	_, err = repo.Nearest(ctx, testCollection, []float32{1, 0, 0}, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestScan_Limit(t *testing.T) {
	repo := setupIndex(t)
	ctx := context.Background()
	_, err := repo.CreateCollection(ctx, testCollection)
	require.NoError(t, err)

	docs := make([]*core.Document, 25)
	for i := range docs {
		docs[i] = testDoc(string(rune('a'+i)), 1, float32(i))
	}
	require.NoError(t, repo.Upsert(ctx, testCollection, docs...))

	limited, err := repo.Scan(ctx, testCollection, 10)
	require.NoError(t, err)
	assert.Len(t, limited, 10)

	all, err := repo.Scan(ctx, testCollection, 0)
	require.NoError(t, err)
	assert.Len(t, all, 25)
	for _, c := range all {
		assert.Zero(t, c.Distance)
	}

	again, err := repo.Scan(ctx, testCollection, 10)
	require.NoError(t, err)
	for i := range again {
		assert.Equal(t, limited[i].Id, again[i].Id, "scan order is stable")
	}

	count, err := repo.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 25, count)
}

func TestCollections_AreIsolated(t *testing.T) {
	repo := setupIndex(t)
	ctx := context.Background()
	for _, name := range []string{"events", "events2"} {
		_, err := repo.CreateCollection(ctx, name)
		require.NoError(t, err)
	}

	require.NoError(t, repo.Upsert(ctx, "events", testDoc("a", 1)))
	require.NoError(t, repo.Upsert(ctx, "events2", testDoc("b", 1), testDoc("c", 1)))

	require.NoError(t, repo.DropCollection(ctx, "events"))
	count, err := repo.Count(ctx, "events2")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestForEach_Batches(t *testing.T) {
	repo := setupIndex(t)
	ctx := context.Background()
	_, err := repo.CreateCollection(ctx, testCollection)
	require.NoError(t, err)

	docs := make([]*core.Document, 7)
	for i := range docs {
		docs[i] = testDoc(string(rune('a'+i)), 1, 0)
	}
	require.NoError(t, repo.Upsert(ctx, testCollection, docs...))

	var sizes []int
	seen := make(map[core.ID]bool)
	err = repo.ForEach(ctx, testCollection, 3, func(batch []*core.Document) error {
		sizes = append(sizes, len(batch))
		for _, doc := range batch {
			assert.False(t, seen[doc.Id], "document visited twice")
			seen[doc.Id] = true
			assert.NotEmpty(t, doc.Vector)
		}
		// Writing during iteration must not disturb paging
		for _, doc := range batch {
			doc.Vector = []float32{0, 1}
		}
		return repo.Upsert(ctx, testCollection, batch...)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Len(t, seen, 7)

	stop := errors.New("stop")
	calls := 0
	err = repo.ForEach(ctx, testCollection, 2, func(batch []*core.Document) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestCount_ContextCanceled(t *testing.T) {
	repo := setupIndex(t)
	_, err := repo.CreateCollection(context.Background(), testCollection)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(context.Background(), testCollection, testDoc("a", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.Count(ctx, testCollection)
	assert.ErrorIs(t, err, context.Canceled)
}
