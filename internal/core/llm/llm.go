package llm

import (
	"context"
	"errors"
)

// ErrProviderUnavailable は言語モデル/Embeddingプロバイダが呼び出しを拒否した場合のエラー
// （クォータ超過・レート制限・ネットワーク障害など、時間を置けば回復し得るもの）
var ErrProviderUnavailable = errors.New("provider unavailable")

// Role はメッセージの発話者
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message はチャット形式のメッセージ
type Message struct {
	Role    Role
	Content string
}

// Client はLLMサービスとのやり取りを抽象化する共通インターフェース
type Client interface {
	// Complete はメッセージ列に基づいてLLMから応答を生成する
	Complete(ctx context.Context, req Request) (Response, error)
}

// Request はLLMへのリクエストパラメータ
type Request struct {
	// Messages はLLMに送信するメッセージ列
	Messages []Message

	// Temperature は生成の多様性を制御する (0.0-2.0)
	Temperature float64

	// MaxTokens は生成する最大トークン数
	MaxTokens int

	// Model はLLMモデル名 (省略時はクライアントのデフォルトモデルを使用)
	Model string
}

// Response はLLMからのレスポンス
type Response struct {
	// Content は生成されたテキスト
	Content string

	// Model は実際に使用されたモデル名
	Model string

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
