package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/book-rag/internal/core/answer"
	"github.com/jinford/book-rag/internal/core/llm"
	"github.com/jinford/book-rag/internal/core/retrieval"
)

func TestManager_CreatesOnFirstUseAndIsolatesMemory(t *testing.T) {
	f := newFixture(func(req llm.Request) (llm.Response, error) {
		return llm.Response{Content: "answer"}, nil
	})
	created := 0
	m := NewManager(func(id uuid.UUID) *Session {
		created++
		return f.session(Config{}, false, nil, WithSessionID(id))
	})

	a := m.Start()
	b := m.Start()
	assert.Same(t, a, m.Get(a.ID()))
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, m.Len())

	_, err := a.Ask(context.Background(), "What is a Wardley Map?")
	require.NoError(t, err)
	assert.Len(t, a.History(), 1)
	assert.Empty(t, b.History())

	m.End(a.ID())
	assert.Equal(t, 1, m.Len())
	assert.NotSame(t, a, m.Get(a.ID()))
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"index", fmt.Errorf("retrieval failed: %w", retrieval.ErrIndexUnavailable), "index is unavailable"},
		{"provider", fmt.Errorf("x: %w", answer.ErrProviderUnavailable), "try again later"},
		{"timeout", fmt.Errorf("x: %w", context.DeadlineExceeded), "timed out"},
		{"cancelled", context.Canceled, "cancelled"},
		{"empty", answer.ErrEmptyGeneration, "No answer produced."},
		{"question", ErrEmptyQuestion, "enter a question"},
		{"other", errors.New("boom"), "Something went wrong: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, UserMessage(tt.err), tt.want)
		})
	}
}
