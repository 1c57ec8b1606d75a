package book

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// DefaultDocument はインデックスに格納されている書籍名
const DefaultDocument = "Wardley Maps"

// Locator はチャンクの出典位置（書籍名とページ番号）を表す
type Locator struct {
	Document string         // 書籍・文書名
	Page     mo.Option[int] // ページ番号（不明な場合は None）
}

// String は表示用の出典文字列を返す（例: "Wardley Maps, page 12"）
func (l Locator) String() string {
	doc := l.Document
	if doc == "" {
		doc = DefaultDocument
	}
	if page, ok := l.Page.Get(); ok {
		return fmt.Sprintf("%s, page %d", doc, page)
	}
	return doc
}

// PageLabel はページ番号のみの表示文字列を返す（例: "page 12"）
func (l Locator) PageLabel() string {
	if page, ok := l.Page.Get(); ok {
		return fmt.Sprintf("page %d", page)
	}
	return ""
}

// Chunk はインデックス構築時に作成される不変のテキスト断片
type Chunk struct {
	ID        uuid.UUID
	Locator   Locator
	Ordinal   int // 書籍内での出現順
	Content   string
	Embedding []float32
}

// ScoredChunk は検索スコア付きのチャンク
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}
