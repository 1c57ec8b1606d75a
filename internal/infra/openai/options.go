package openai

import (
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type settings struct {
	baseURL   string
	policy    retryPolicy
	model     string
	dimension int
}

// Option は Client / Embedder の共通オプション
type Option func(*settings)

// WithBaseURL はAPIのベースURLを上書きする（互換APIやテスト用）
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.baseURL = url
	}
}

// WithTimeout は1回のAPI呼び出しのタイムアウトを設定する
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.policy.timeout = timeout
	}
}

// WithMaxRetries は一時的な障害時のリトライ回数を設定する
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		if n < 0 {
			n = 0
		}
		s.policy.maxRetries = n
	}
}

// WithBackoff はリトライ間隔の基底時間と上限を設定する
func WithBackoff(base, max time.Duration) Option {
	return func(s *settings) {
		s.policy.baseBackoff = base
		s.policy.maxBackoff = max
	}
}

// WithEmbeddingModel はEmbeddingモデル名を上書きする
func WithEmbeddingModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) Option {
	return func(s *settings) {
		if dimension > 0 {
			s.dimension = dimension
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		policy:    defaultPolicy(),
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// newSDKClient はSDKクライアントを作成する
// リトライは retryPolicy で制御するため SDK 側のリトライは無効化する
func newSDKClient(apiKey string, s settings) openai.Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}
	return openai.NewClient(reqOpts...)
}
