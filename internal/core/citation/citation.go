package citation

import (
	"github.com/google/uuid"

	"github.com/jinford/book-rag/internal/core/book"
	"github.com/jinford/book-rag/internal/core/retrieval"
)

// Citation は回答の根拠となったチャンクの表示用情報
type Citation struct {
	ChunkID uuid.UUID
	Locator book.Locator
	Excerpt string // マークアップを除去した本文
	Score   float64
}

// Label は出典の表示文字列を返す（例: "Wardley Maps, page 12"）
func (c Citation) Label() string {
	return c.Locator.String()
}

// Annotate は回答で使用されたチャンクを検索結果の順序で出典情報に変換する
// used が空の場合は空のスライスを返す
func Annotate(answer string, retrieved *retrieval.Result, used []uuid.UUID) []Citation {
	citations := make([]Citation, 0, len(used))
	if len(used) == 0 || retrieved == nil {
		return citations
	}

	usedSet := make(map[uuid.UUID]struct{}, len(used))
	for _, id := range used {
		usedSet[id] = struct{}{}
	}

	for _, c := range retrieved.Chunks {
		if _, ok := usedSet[c.Chunk.ID]; !ok {
			continue
		}
		// 同じチャンクを二度出さない
		delete(usedSet, c.Chunk.ID)

		citations = append(citations, Citation{
			ChunkID: c.Chunk.ID,
			Locator: c.Chunk.Locator,
			Excerpt: Clean(c.Chunk.Content),
			Score:   c.Score,
		})
	}

	return citations
}
