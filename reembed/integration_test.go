package reembed

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/eventscout/ai"
	"github.com/poiesic/eventscout/ai/mock"
	"github.com/poiesic/eventscout/ai/openai"
	"github.com/poiesic/eventscout/core"
	"github.com/poiesic/eventscout/index"
	"github.com/poiesic/eventscout/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIntegration_FullReembeddingWorkflow tests the complete reembedding workflow
// from collection setup through completion using a mock embedder.
func TestIntegration_FullReembeddingWorkflow(t *testing.T) {
	// Skip if short tests
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	c, _ := setupTestCollection(t, 50, 3)
	ctx := context.Background()

	// Create embedder
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			// Return unique vectors for each text based on position
			result := make([][]float32, len(texts))
			for i := range texts {
				result[i] = []float32{
					float32(i+1) * 0.1,
					float32(i+1) * 0.2,
					float32(i+1) * 0.3,
				}
			}
			return result, nil
		},
	}

	// Configure reembedding
	config := &Config{
		BatchSize:      10,
		ReportInterval: 10,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
	}

	var buf bytes.Buffer
	reembedder := NewReembedder(c, embedder, config, &buf)

	// Run reembedding
	processed, err := reembedder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, processed)

	// Verify all documents now have normalized embeddings
	all := storedDocuments(t, c)
	require.Len(t, all, 50, "should have all 50 documents")

	for id, doc := range all {
		require.NotEmpty(t, doc.Vector, "document %s should have embedding", id)
		assert.InDelta(t, 1.0, magnitude(doc.Vector), 0.01, "document %s vector should be normalized", id)
	}

	// Verify progress output
	output := buf.String()
	assert.Contains(t, output, "Starting reembedding of 50 documents")
	assert.Contains(t, output, "50/50")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "Reembedding complete")
}

// TestIntegration_SearchAfterReembedding checks that nearest-neighbour
// queries follow the new model once the collection is re-embedded.
func TestIntegration_SearchAfterReembedding(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo, backend, err := badger.NewMemoryIndexRepository()
	require.NoError(t, err)
	defer func() {
		repo.Close()
		backend.Close()
	}()
	ctx := context.Background()

	// Index with the deterministic mock model
	oldModel := mock.NewMockEmbedder()
	c, err := index.NewCollection(repo, oldModel)
	require.NoError(t, err)
	require.NoError(t, c.Reset(ctx))

	docs := make([]*core.Document, 0, 6)
	for i := range 6 {
		title := fmt.Sprintf("Talk %d", i)
		docs = append(docs, &core.Document{
			Id:       core.IDFromContent(title),
			Text:     fmt.Sprintf("Title: %s\nAbstract: topic-%d", title, i),
			Metadata: core.Metadata{core.MetaTitle: title},
		})
	}
	require.NoError(t, c.Add(ctx, docs...))

	// The new model puts "topic-4" alone on its own axis
	newModel := mock.NewMockEmbedder()
	newModel.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, mock.DefaultDimensions)
		if bytes.Contains([]byte(text), []byte("topic-4")) {
			vec[0] = 1
		} else {
			vec[1] = 1
		}
		return vec, nil
	}

	processed, err := NewReembedder(c, newModel, DefaultConfig(), nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, processed)

	// Queries now go through the new model as well
	searchable, err := index.NewCollection(repo, newModel)
	require.NoError(t, err)
	nearest, err := searchable.Nearest(ctx, "topic-4", 1)
	require.NoError(t, err)
	require.Len(t, nearest, 1)
	assert.Equal(t, "Talk 4", nearest[0].Metadata.String(core.MetaTitle))
	assert.InDelta(t, 0.0, nearest[0].Distance, 1e-6)
}

// TestIntegration_WithRealEmbedder tests with a real OpenAI-compatible embedder
// This test requires a running embedding service and is skipped by default.
func TestIntegration_WithRealEmbedder(t *testing.T) {
	t.Skip("Requires running embedding service - enable manually for testing")

	ctx := context.Background()

	repo, backend, err := badger.NewMemoryIndexRepository()
	require.NoError(t, err)
	defer func() {
		repo.Close()
		backend.Close()
	}()

	// Create AI config
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost("http://localhost:11434/v1"),
		ai.WithEmbeddingModel("embeddinggemma"),
	)

	// Create real embedder
	embedder, err := openai.NewEmbedder(aiConfig)
	require.NoError(t, err)

	c, err := index.NewCollection(repo, embedder)
	require.NoError(t, err)
	require.NoError(t, c.Reset(ctx))
	require.NoError(t, c.Add(ctx,
		&core.Document{Id: core.IDFromContent("a"), Text: "Title: Graph neural networks", Metadata: core.Metadata{}},
		&core.Document{Id: core.IDFromContent("b"), Text: "Title: Diffusion models for images", Metadata: core.Metadata{}},
	))

	// Run reembedding
	config := DefaultConfig()
	var buf bytes.Buffer
	reembedder := NewReembedder(c, embedder, config, &buf)

	processed, err := reembedder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	for _, doc := range storedDocuments(t, c) {
		// Real embeddings should have a consistent dimension
		assert.Greater(t, len(doc.Vector), 0)
	}
}

// TestIntegration_IdempotentReembedding tests that reembedding can be run multiple times
func TestIntegration_IdempotentReembedding(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	c, docs := setupTestCollection(t, 10, 3)
	ctx := context.Background()

	embedder := &mockEmbedder{}
	config := &Config{
		BatchSize:      5,
		ReportInterval: 5,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
	}

	// First run
	var buf1 bytes.Buffer
	_, err := NewReembedder(c, embedder, config, &buf1).Run(ctx)
	require.NoError(t, err)
	vec1 := storedDocuments(t, c)[docs[0].Id].Vector

	// Second run (should overwrite with same vectors)
	var buf2 bytes.Buffer
	_, err = NewReembedder(c, embedder, config, &buf2).Run(ctx)
	require.NoError(t, err)
	vec2 := storedDocuments(t, c)[docs[0].Id].Vector

	// Verify vectors are the same (idempotent)
	require.Equal(t, len(vec1), len(vec2))
	for i := range vec1 {
		assert.InDelta(t, vec1[i], vec2[i], 0.001, "vectors should be identical after re-embedding")
	}
	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count, "re-embedding must not add documents")
}
