package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/book-rag/internal/core/llm"
)

type stubClient struct {
	content string
	err     error
	last    llm.Request
	calls   int
}

func (c *stubClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.calls++
	c.last = req
	if c.err != nil {
		return llm.Response{}, c.err
	}
	return llm.Response{Content: c.content}, nil
}

func turn(i int) Turn {
	return Turn{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)}
}

func TestMemory_AppendEvictsOldestBeyondCapacity(t *testing.T) {
	m := New(3, nil)
	for i := 1; i <= 5; i++ {
		m.Append(turn(i))
	}

	window := m.Window()
	require.Len(t, window, 3)
	assert.Equal(t, "q3", window[0].Question)
	assert.Equal(t, "q4", window[1].Question)
	assert.Equal(t, "q5", window[2].Question)
}

func TestMemory_EvictsExactlyOnePerAppend(t *testing.T) {
	m := New(2, nil)
	m.Append(turn(1))
	m.Append(turn(2))
	require.Equal(t, 2, m.Len())

	m.Append(turn(3))
	window := m.Window()
	require.Len(t, window, 2)
	assert.Equal(t, []string{"q2", "q3"}, []string{window[0].Question, window[1].Question})
}

func TestMemory_WindowIsACopy(t *testing.T) {
	m := New(2, nil)
	ids := []uuid.UUID{uuid.New()}
	m.Append(Turn{Question: "q", ChunkIDs: ids})
	ids[0] = uuid.Nil

	window := m.Window()
	window[0].Question = "changed"

	again := m.Window()
	assert.Equal(t, "q", again[0].Question)
	assert.NotEqual(t, uuid.Nil, again[0].ChunkIDs[0])
}

func TestMemory_DefaultCapacityAndReset(t *testing.T) {
	m := New(0, nil)
	assert.Equal(t, DefaultWindow, m.Capacity())

	m.Append(turn(1))
	m.Reset()
	assert.Equal(t, 0, m.Len())
}

func TestMemory_RephraseDisabledReturnsQuestion(t *testing.T) {
	m := New(3, nil)
	m.Append(turn(1))

	q, err := m.Rephrase(context.Background(), "and the second one?")
	require.NoError(t, err)
	assert.Equal(t, "and the second one?", q)
	assert.False(t, m.RephraseEnabled())
}

func TestMemory_RephraseSkipsLLMWithoutHistory(t *testing.T) {
	client := &stubClient{content: "unused"}
	m := New(3, NewLLMRephraser(client, "gpt-4"))

	q, err := m.Rephrase(context.Background(), "What is a Wardley Map?")
	require.NoError(t, err)
	assert.Equal(t, "What is a Wardley Map?", q)
	assert.Equal(t, 0, client.calls)
}

func TestMemory_RephraseIncludesPriorSubject(t *testing.T) {
	client := &stubClient{content: "Standalone question: How is a Wardley Map different from a value chain?"}
	m := New(3, NewLLMRephraser(client, "gpt-4"))
	m.Append(Turn{Question: "What is a Wardley Map?", Answer: "A Wardley Map is a map of a value chain plotted against evolution."})

	q, err := m.Rephrase(context.Background(), "and how is it different from a value chain?")
	require.NoError(t, err)
	assert.Equal(t, "How is a Wardley Map different from a value chain?", q)

	require.Len(t, client.last.Messages, 2)
	assert.Contains(t, client.last.Messages[1].Content, "What is a Wardley Map?")
	assert.Contains(t, client.last.Messages[1].Content, "and how is it different from a value chain?")
	assert.Equal(t, 0.0, client.last.Temperature)
	assert.Equal(t, "gpt-4", client.last.Model)
}

func TestLLMRephraser_EmptyOutputFallsBack(t *testing.T) {
	r := NewLLMRephraser(&stubClient{content: "   "}, "")

	q, err := r.Rephrase(context.Background(), "why?", []Turn{turn(1)})
	require.NoError(t, err)
	assert.Equal(t, "why?", q)
}

func TestLLMRephraser_PropagatesProviderError(t *testing.T) {
	r := NewLLMRephraser(&stubClient{err: llm.ErrProviderUnavailable}, "")

	_, err := r.Rephrase(context.Background(), "why?", []Turn{turn(1)})
	assert.True(t, errors.Is(err, llm.ErrProviderUnavailable))
}
