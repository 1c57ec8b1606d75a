package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/jinford/book-rag/internal/core/retrieval"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はOpenAI推奨のデフォルト次元
	DefaultEmbeddingDimension = 1536
)

// ErrNoEmbedding はレスポンスにベクトルが含まれない場合のエラー
var ErrNoEmbedding = errors.New("no embeddings generated")

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	policy    retryPolicy
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...Option) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	s := newSettings(opts)

	return &Embedder{
		client:    newSDKClient(apiKey, s),
		model:     s.model,
		dimension: s.dimension,
		policy:    s.policy,
	}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	var resp *openai.CreateEmbeddingResponse
	err := e.policy.do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = e.client.Embeddings.New(ctx, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoEmbedding
	}

	data := resp.Data[0].Embedding
	vector := make([]float32, len(data))
	for i, v := range data {
		vector[i] = float32(v)
	}
	return vector, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// インターフェース実装の確認
var _ retrieval.Embedder = (*Embedder)(nil)
