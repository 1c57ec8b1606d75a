package retrieval

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/book-rag/internal/core/book"
)

var (
	// ErrIndexUnavailable はインデックスが存在しない、または利用できない場合のエラー
	ErrIndexUnavailable = errors.New("document index unavailable")

	// ErrEmbeddingFailed はクエリのEmbedding生成に失敗した場合のエラー
	ErrEmbeddingFailed = errors.New("failed to embed query")

	// ErrEmptyQuery はクエリ文字列が空の場合のエラー
	ErrEmptyQuery = errors.New("query is required")

	// ErrInvalidK は取得件数が1未満の場合のエラー
	ErrInvalidK = errors.New("k must be at least 1")
)

// Mode は検索戦略を表す
type Mode string

const (
	// ModeSimilarity は類似度の上位k件をそのまま返す
	ModeSimilarity Mode = "similarity"
	// ModeMMR は Maximal Marginal Relevance により関連度と冗長性のバランスを取る
	ModeMMR Mode = "mmr"
)

// ParseMode は文字列から Mode を解釈する
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSimilarity, "":
		return ModeSimilarity, nil
	case ModeMMR, "diversity":
		return ModeMMR, nil
	default:
		return "", fmt.Errorf("unknown search mode: %q", s)
	}
}

// Query はユーザーの1回の発話を表す
type Query struct {
	Text      string            // ユーザーの入力そのもの
	Rewritten mo.Option[string] // 会話履歴を踏まえて書き換えた質問
}

// NewQuery は書き換えなしの Query を作成する
func NewQuery(text string) Query {
	return Query{Text: text, Rewritten: mo.None[string]()}
}

// SearchText は検索に使用する文字列を返す（書き換え済みであればそちらを優先）
func (q Query) SearchText() string {
	if rewritten, ok := q.Rewritten.Get(); ok && strings.TrimSpace(rewritten) != "" {
		return rewritten
	}
	return q.Text
}

// Result は1つのクエリに対する検索結果
// Chunks は類似度モードではスコア降順、MMRモードでは選択順に並ぶ
type Result struct {
	Query  Query
	Mode   Mode
	Chunks []book.ScoredChunk
}

// Len は結果件数を返す
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Chunks)
}

// Lookup はチャンクIDから結果を検索する
func (r *Result) Lookup(id uuid.UUID) (book.ScoredChunk, bool) {
	if r == nil {
		return book.ScoredChunk{}, false
	}
	for _, c := range r.Chunks {
		if c.Chunk.ID == id {
			return c, true
		}
	}
	return book.ScoredChunk{}, false
}

// IDs は結果に含まれるチャンクIDを順番通りに返す
func (r *Result) IDs() []uuid.UUID {
	if r == nil {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		ids = append(ids, c.Chunk.ID)
	}
	return ids
}
