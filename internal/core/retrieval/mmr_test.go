package retrieval

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/book-rag/internal/core/book"
)

func TestSelectMMR_PrefersDiverseChunks(t *testing.T) {
	query := []float32{1, 0}
	best := chunk(0.99, 1, 0)
	nearDuplicate := chunk(0.98, 0.99, 0.01)
	different := chunk(0.70, 0.7, 0.7)

	selected := SelectMMR(query, []book.ScoredChunk{best, nearDuplicate, different}, 2, 0.3)

	require.Len(t, selected, 2)
	assert.Equal(t, best.Chunk.ID, selected[0].Chunk.ID)
	assert.Equal(t, different.Chunk.ID, selected[1].Chunk.ID)
}

func TestSelectMMR_LambdaOneIsPureRelevance(t *testing.T) {
	query := []float32{1, 0}
	a := chunk(0, 1, 0)
	b := chunk(0, 0.99, 0.01)
	c := chunk(0, 0, 1)

	selected := SelectMMR(query, []book.ScoredChunk{c, b, a}, 2, 1.0)

	require.Len(t, selected, 2)
	assert.Equal(t, a.Chunk.ID, selected[0].Chunk.ID)
	assert.Equal(t, b.Chunk.ID, selected[1].Chunk.ID)
}

func TestSelectMMR_NoDuplicatesAndOrderStable(t *testing.T) {
	query := []float32{1, 1}
	shared := chunk(0.9, 1, 1)
	candidates := []book.ScoredChunk{
		shared,
		chunk(0.8, 1, 0),
		shared,
		chunk(0.7, 0, 1),
		chunk(0.6, 0.5, 0.5),
	}

	first := SelectMMR(query, candidates, 4, 0.6)
	second := SelectMMR(query, candidates, 4, 0.6)

	seen := make(map[uuid.UUID]bool)
	for _, c := range first {
		assert.False(t, seen[c.Chunk.ID], "duplicate chunk %s", c.Chunk.ID)
		seen[c.Chunk.ID] = true
	}
	assert.Len(t, first, 4)
	assert.Equal(t, first, second)
}

func TestSelectMMR_FallsBackToIndexScoreWithoutEmbeddings(t *testing.T) {
	low := chunk(0.1)
	high := chunk(0.9)

	selected := SelectMMR([]float32{1}, []book.ScoredChunk{low, high}, 1, 0.5)

	require.Len(t, selected, 1)
	assert.Equal(t, high.Chunk.ID, selected[0].Chunk.ID)
}

func TestSelectMMR_EdgeCases(t *testing.T) {
	assert.Nil(t, SelectMMR([]float32{1}, nil, 3, 0.5))
	assert.Nil(t, SelectMMR([]float32{1}, []book.ScoredChunk{chunk(1)}, 0, 0.5))
	assert.Len(t, SelectMMR([]float32{1}, []book.ScoredChunk{chunk(1)}, 5, 0.5), 1)
}
