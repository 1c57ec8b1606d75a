package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jinford/book-rag/internal/core/book"
)

const (
	// DefaultLambda はMMRの関連度重み（関連度寄り）
	DefaultLambda = 0.5

	// DefaultFetchMultiplier はMMR候補の取得倍率（k の何倍を候補とするか）
	DefaultFetchMultiplier = 4
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index は類似度検索可能なチャンクストア
type Index interface {
	// Search はクエリベクトルに近いチャンクを最大 k 件返す
	// 返却するチャンクには Embedding を含めること（MMRで使用する）
	Search(ctx context.Context, queryVector []float32, k int) ([]book.ScoredChunk, error)
}

// Retriever はクエリに関連するチャンクを取得する
type Retriever struct {
	index    Index
	embedder Embedder
	mode     Mode
	lambda   float64
	fetchK   int
	logger   *slog.Logger
}

type RetrieverOption func(*Retriever)

// WithMode は検索戦略を設定する
func WithMode(mode Mode) RetrieverOption {
	return func(r *Retriever) {
		r.mode = mode
	}
}

// WithLambda はMMRの λ を設定する（0〜1）
func WithLambda(lambda float64) RetrieverOption {
	return func(r *Retriever) {
		r.lambda = lambda
	}
}

// WithFetchK はMMRで取得する候補数を設定する（0 の場合は k×4）
func WithFetchK(fetchK int) RetrieverOption {
	return func(r *Retriever) {
		r.fetchK = fetchK
	}
}

// WithRetrieverLogger は Retriever にロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever は新しい Retriever を作成する
func NewRetriever(index Index, embedder Embedder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		index:    index,
		embedder: embedder,
		mode:     ModeSimilarity,
		lambda:   DefaultLambda,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.lambda < 0 {
		r.lambda = 0
	}
	if r.lambda > 1 {
		r.lambda = 1
	}

	return r
}

// Mode は設定されている検索戦略を返す
func (r *Retriever) Mode() Mode {
	return r.mode
}

// Retrieve はクエリに関連するチャンクを最大 k 件取得する
func (r *Retriever) Retrieve(ctx context.Context, query Query, k int) (*Result, error) {
	// バリデーション
	text := strings.TrimSpace(query.SearchText())
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if r.index == nil {
		return nil, fmt.Errorf("%w: no index configured", ErrIndexUnavailable)
	}

	// クエリをEmbeddingに変換
	queryVector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	limit := k
	if r.mode == ModeMMR {
		limit = r.fetchK
		if limit <= 0 {
			limit = k * DefaultFetchMultiplier
		}
		if limit < k {
			limit = k
		}
	}

	candidates, err := r.index.Search(ctx, queryVector, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("search aborted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	var selected []book.ScoredChunk
	switch r.mode {
	case ModeMMR:
		selected = SelectMMR(queryVector, candidates, k, r.lambda)
	default:
		selected = topBySimilarity(candidates, k)
	}

	r.logger.Debug("retrieval completed",
		"query", text,
		"mode", string(r.mode),
		"k", k,
		"candidates", len(candidates),
		"selected", len(selected),
	)

	return &Result{
		Query:  query,
		Mode:   r.mode,
		Chunks: selected,
	}, nil
}

// topBySimilarity はスコア降順に並べ替え、重複を除いて上位 k 件を返す
func topBySimilarity(candidates []book.ScoredChunk, k int) []book.ScoredChunk {
	sorted := dedupe(candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}
