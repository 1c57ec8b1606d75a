package container

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/book-rag/internal/core/book"
	"github.com/jinford/book-rag/internal/core/llm"
	"github.com/jinford/book-rag/internal/core/prompt"
	"github.com/jinford/book-rag/internal/core/retrieval"
	"github.com/jinford/book-rag/internal/infra/memindex"
	"github.com/jinford/book-rag/internal/platform/config"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "doctrine") {
		return []float32{0, 1}, nil
	}
	return []float32{1, 0}, nil
}

type stubLLM struct {
	requests []llm.Request
}

func (s *stubLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.requests = append(s.requests, req)
	return llm.Response{Content: "Maps show position and movement.\nSOURCES: 1", Model: req.Model}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Chat:   config.DefaultChatConfig(),
		OpenAI: config.OpenAIConfig{EmbeddingDimension: 2},
	}
}

func testIndex() *memindex.Index {
	idx := memindex.New()
	idx.Add(
		book.Chunk{Ordinal: 1, Content: "Maps show position and movement.", Embedding: []float32{1, 0}},
		book.Chunk{Ordinal: 2, Content: "Doctrine is universal.", Embedding: []float32{0, 1}},
	)
	return idx
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewContainer_WiresSessions(t *testing.T) {
	client := &stubLLM{}
	cfg := testConfig()
	cfg.Chat.Rephrase = false

	c, err := NewContainer(context.Background(), cfg,
		WithContainerLogger(discardLogger()),
		WithContainerIndex(testIndex()),
		WithContainerEmbedder(stubEmbedder{}),
		WithContainerLLMClient(client),
		WithContainerTokenCounter(prompt.ApproxCounter{}),
	)
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Postgres)
	assert.Equal(t, retrieval.ModeSimilarity, c.Retriever.Mode())

	s := c.Sessions.Start()
	result, err := s.Ask(context.Background(), "What does a map show?")
	require.NoError(t, err)

	assert.Equal(t, "Maps show position and movement.", result.Answer)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "Wardley Maps", result.Citations[0].Locator.String())

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "gpt-4", req.Model)
	assert.Equal(t, 0.0, req.Temperature)
	assert.Equal(t, 256, req.MaxTokens)

	other := c.Sessions.Start()
	assert.Empty(t, other.History())
	assert.Len(t, s.History(), 1)
}

func TestNewContainer_AppliesMMRProfile(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.ApplyProfile("mmr", config.BuiltinProfiles()))

	c, err := NewContainer(context.Background(), cfg,
		WithContainerLogger(discardLogger()),
		WithContainerIndex(testIndex()),
		WithContainerEmbedder(stubEmbedder{}),
		WithContainerLLMClient(&stubLLM{}),
		WithContainerTokenCounter(prompt.ApproxCounter{}),
	)
	require.NoError(t, err)
	assert.Equal(t, retrieval.ModeMMR, c.Retriever.Mode())
}

func TestNewContainer_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Chat.RetrievalK = 0

	_, err := NewContainer(context.Background(), cfg, WithContainerIndex(testIndex()))
	assert.ErrorContains(t, err, "retrieval k")
}

func TestNewContainer_IndexFile(t *testing.T) {
	cfg := testConfig()
	cfg.IndexFile = filepath.Join(t.TempDir(), "missing.jsonl")

	_, err := NewContainer(context.Background(), cfg, WithContainerLogger(discardLogger()))
	assert.ErrorIs(t, err, retrieval.ErrIndexUnavailable)

	path := filepath.Join(t.TempDir(), "index.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"page":3,"ordinal":1,"content":"Maps","embedding":[1,0]}`+"\n"), 0o644))
	cfg.IndexFile = path

	c, err := NewContainer(context.Background(), cfg,
		WithContainerLogger(discardLogger()),
		WithContainerEmbedder(stubEmbedder{}),
		WithContainerLLMClient(&stubLLM{}),
		WithContainerTokenCounter(prompt.ApproxCounter{}),
	)
	require.NoError(t, err)
	idx, ok := c.Index.(*memindex.Index)
	require.True(t, ok)
	assert.Equal(t, 1, idx.Len())
}

func TestNewContainer_RequiresAPIKeyWithoutOverrides(t *testing.T) {
	_, err := NewContainer(context.Background(), testConfig(),
		WithContainerLogger(discardLogger()),
		WithContainerIndex(testIndex()),
	)
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}
