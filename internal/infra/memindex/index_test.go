package memindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/book-rag/internal/core/book"
	"github.com/jinford/book-rag/internal/core/retrieval"
)

func TestIndex_SearchOrdersByCosineSimilarity(t *testing.T) {
	idx := New()
	idx.Add(
		book.Chunk{Ordinal: 0, Content: "far", Embedding: []float32{0, 1}},
		book.Chunk{Ordinal: 1, Content: "near", Embedding: []float32{1, 0.1}},
		book.Chunk{Ordinal: 2, Content: "middle", Embedding: []float32{1, 1}},
	)

	results, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].Chunk.Content)
	assert.Equal(t, "middle", results[1].Chunk.Content)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.NotEqual(t, uuid.Nil, results[0].Chunk.ID)
}

func TestIndex_EmptySearch(t *testing.T) {
	results, err := New().Search(context.Background(), []float32{1}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_Load(t *testing.T) {
	dump := strings.Join([]string{
		`{"id":"8f14e45f-ceea-467f-a2d2-3f1b7c1e6a11","document":"Wardley Maps","page":12,"ordinal":3,"content":"A map","embedding":[1,0]}`,
		``,
		`{"id":"chunk-2","document":"Wardley Maps","ordinal":4,"content":"No page","embedding":[0,1]}`,
	}, "\n")

	idx := New()
	require.NoError(t, idx.Load(strings.NewReader(dump)))
	require.Equal(t, 2, idx.Len())

	results, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, "Wardley Maps, page 12", results[0].Chunk.Locator.String())
	assert.Equal(t, uuid.MustParse("8f14e45f-ceea-467f-a2d2-3f1b7c1e6a11"), results[0].Chunk.ID)
	assert.Equal(t, "Wardley Maps", results[1].Chunk.Locator.String())
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceURL, []byte("chunk-2")), results[1].Chunk.ID)

	chunks := idx.Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, 3, chunks[0].Ordinal)
	assert.Equal(t, "No page", chunks[1].Content)
}

func TestIndex_LoadRejectsMalformedLine(t *testing.T) {
	err := New().Load(strings.NewReader("{not json}"))
	assert.ErrorContains(t, err, "line 1")
}

func TestLoadFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorIs(t, err, retrieval.ErrIndexUnavailable)

	path := filepath.Join(t.TempDir(), "index.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"content":"x","embedding":[1]}`+"\n"), 0o644))
	idx, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}
