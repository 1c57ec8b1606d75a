// Package memindex はプロセス内で完結するブルートフォースのベクトルインデックスを提供する。
// テストや、エクスポート済みのJSONLダンプを読み込んで使う小規模な用途向け。
package memindex

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/book-rag/internal/core/book"
	"github.com/jinford/book-rag/internal/core/retrieval"
)

// Index はコサイン類似度による全件走査のインデックス
type Index struct {
	mu     sync.RWMutex
	chunks []book.Chunk
}

// New は空の Index を作成する
func New() *Index {
	return &Index{}
}

// Add はチャンクを追加する。IDが空の場合は採番する
func (i *Index) Add(chunks ...book.Chunk) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.Embedding = append([]float32(nil), c.Embedding...)
		i.chunks = append(i.chunks, c)
	}
}

// Len はチャンク数を返す
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.chunks)
}

// Chunks は保持しているチャンクを追加順に返す
func (i *Index) Chunks() []book.Chunk {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]book.Chunk(nil), i.chunks...)
}

// Search はクエリベクトルとの類似度が高い順に最大 k 件返す
// 同点の場合は書籍内の出現順を優先する
func (i *Index) Search(ctx context.Context, queryVector []float32, k int) ([]book.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("invalid limit: %d", k)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	results := make([]book.ScoredChunk, 0, len(i.chunks))
	for _, c := range i.chunks {
		results = append(results, book.ScoredChunk{
			Chunk: c,
			Score: book.CosineSimilarity(queryVector, c.Embedding),
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].Chunk.Ordinal < results[b].Chunk.Ordinal
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// entry はJSONLダンプの1行
type entry struct {
	ID        string    `json:"id"`
	Document  string    `json:"document"`
	Page      *int      `json:"page,omitempty"`
	Ordinal   int       `json:"ordinal"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// Load はJSONL形式のダンプを読み込んで Index に追加する
func (i *Index) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	var chunks []book.Chunk
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return fmt.Errorf("parse index line %d: %w", lineNo, err)
		}

		id := uuid.Nil
		if e.ID != "" {
			parsed, err := uuid.Parse(e.ID)
			if err != nil {
				// UUID以外のIDは名前ベースで決定的に変換する
				parsed = uuid.NewSHA1(uuid.NameSpaceURL, []byte(e.ID))
			}
			id = parsed
		}

		page := mo.None[int]()
		if e.Page != nil {
			page = mo.Some(*e.Page)
		}

		chunks = append(chunks, book.Chunk{
			ID:        id,
			Locator:   book.Locator{Document: e.Document, Page: page},
			Ordinal:   e.Ordinal,
			Content:   e.Content,
			Embedding: e.Embedding,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read index: %w", err)
	}

	i.Add(chunks...)
	return nil
}

// LoadFile はJSONLファイルから Index を作成する
// ファイルが存在しない場合は retrieval.ErrIndexUnavailable を返す
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", retrieval.ErrIndexUnavailable, err)
	}
	defer f.Close()

	idx := New()
	if err := idx.Load(f); err != nil {
		return nil, fmt.Errorf("%w: %w", retrieval.ErrIndexUnavailable, err)
	}
	return idx, nil
}

var _ retrieval.Index = (*Index)(nil)
