package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinford/book-rag/internal/core/answer"
	"github.com/jinford/book-rag/internal/core/retrieval"
)

// UserMessage はエラーをユーザー向けの区別可能なメッセージに変換する
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyQuestion):
		return "Please enter a question for the book."
	case errors.Is(err, retrieval.ErrIndexUnavailable):
		return fmt.Sprintf("The book index is unavailable. Ask an operator to upload or rebuild it. (%v)", err)
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again later."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case errors.Is(err, answer.ErrProviderUnavailable), errors.Is(err, retrieval.ErrEmbeddingFailed):
		return "The language model provider is unavailable (rate limit, quota or network). Please try again later."
	case errors.Is(err, answer.ErrEmptyGeneration):
		return "No answer produced."
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}
