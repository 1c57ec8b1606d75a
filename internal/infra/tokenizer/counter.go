package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/book-rag/internal/core/prompt"
)

// DefaultEncoding はモデル不明時に使用するエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter は tiktoken を利用した prompt.TokenCounter 実装
type Counter struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// New は cl100k_base エンコーディングの Counter を作成する
func New() (*Counter, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &Counter{encoding: enc, name: DefaultEncoding}, nil
}

// ForModel はモデル名に対応するエンコーディングの Counter を作成する
// 未知のモデルは cl100k_base にフォールバックする
func ForModel(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return New()
	}
	return &Counter{encoding: enc, name: model}, nil
}

// Name はエンコーディング（またはモデル）名を返す
func (c *Counter) Name() string {
	return c.name
}

// CountTokens はテキストのトークン数を返す
func (c *Counter) CountTokens(text string) int {
	if c.encoding == nil || text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// インターフェース実装の確認
var _ prompt.TokenCounter = (*Counter)(nil)
