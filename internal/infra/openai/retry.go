package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/jinford/book-rag/internal/core/llm"
)

const (
	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries は一時的な障害時の最大リトライ回数
	DefaultMaxRetries = 2

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// retryPolicy はリトライ回数とバックオフ時間を保持する
type retryPolicy struct {
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	timeout     time.Duration
}

func defaultPolicy() retryPolicy {
	return retryPolicy{
		maxRetries:  DefaultMaxRetries,
		baseBackoff: BaseBackoff,
		maxBackoff:  MaxBackoff,
		timeout:     DefaultTimeout,
	}
}

// backoff は attempt 回目（1始まり）のリトライ前の待機時間を返す
func (p retryPolicy) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * p.baseBackoff
	if d > p.maxBackoff {
		d = p.maxBackoff
	}
	return d
}

// do は fn を呼び出し、一時的なエラーの場合は指数バックオフでリトライする
// 各試行にはタイムアウトを設定する。失敗は llm.ErrProviderUnavailable でラップして返す
func (p retryPolicy) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}

		err := p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		// 呼び出し元のキャンセルはリトライしない
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(err) {
			return fmt.Errorf("%w: OpenAI API call failed: %w", llm.ErrProviderUnavailable, err)
		}
	}

	return fmt.Errorf("%w: %w: %w", llm.ErrProviderUnavailable, ErrMaxRetriesExceeded, lastErr)
}

func (p retryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return fn(ctx)
}

// isRetryable はレート制限・サーバーエラー・ネットワーク障害かどうかを判定する
// クォータ枯渇は時間を置いても回復しないためリトライしない
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == "insufficient_quota" {
			return false
		}
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}

	// 試行ごとのタイムアウトやネットワークエラー
	return true
}
