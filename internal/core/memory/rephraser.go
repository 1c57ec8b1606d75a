package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinford/book-rag/internal/core/llm"
)

const condenseInstructions = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question.
Resolve pronouns and references such as "it", "that" or "the second one" using the conversation.
Keep the original language of the question. Reply with the standalone question only.`

// LLMRephraser はLLMを使って追質問を単独の質問に書き換える
type LLMRephraser struct {
	client    llm.Client
	model     string
	maxTokens int
}

// NewLLMRephraser は新しい LLMRephraser を作成する
func NewLLMRephraser(client llm.Client, model string) *LLMRephraser {
	return &LLMRephraser{
		client:    client,
		model:     model,
		maxTokens: 128,
	}
}

// Rephrase は履歴を踏まえて質問を書き換える
// LLMが空文字を返した場合は元の質問を返す
func (r *LLMRephraser) Rephrase(ctx context.Context, question string, history []Turn) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	resp, err := r.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: condenseInstructions},
			{Role: llm.RoleUser, Content: BuildCondensePrompt(question, history)},
		},
		Temperature: 0,
		MaxTokens:   r.maxTokens,
		Model:       r.model,
	})
	if err != nil {
		return "", fmt.Errorf("failed to rephrase question: %w", err)
	}

	rewritten := strings.TrimSpace(resp.Content)
	rewritten = strings.TrimPrefix(rewritten, "Standalone question:")
	rewritten = strings.Trim(strings.TrimSpace(rewritten), `"`)
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

// BuildCondensePrompt は書き換え用のプロンプトを構築する
func BuildCondensePrompt(question string, history []Turn) string {
	var sb strings.Builder

	sb.WriteString("Chat History:\n")
	for _, turn := range history {
		sb.WriteString("Human: ")
		sb.WriteString(strings.TrimSpace(turn.Question))
		sb.WriteString("\n")
		sb.WriteString("Assistant: ")
		sb.WriteString(strings.TrimSpace(turn.Answer))
		sb.WriteString("\n")
	}
	sb.WriteString("\nFollow Up Input: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\nStandalone question:")

	return sb.String()
}

var _ Rephraser = (*LLMRephraser)(nil)
