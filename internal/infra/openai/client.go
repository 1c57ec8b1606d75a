package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/book-rag/internal/core/llm"
)

// DefaultModel はモデル未指定時に使用するチャットモデル
const DefaultModel = "gpt-4"

// Client は OpenAI Chat Completions API を使用した llm.Client 実装
type Client struct {
	client openai.Client
	model  string
	policy retryPolicy
}

// NewClient は新しい Client を作成する
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}

	s := newSettings(opts)

	return &Client{
		client: newSDKClient(apiKey, s),
		model:  model,
		policy: s.policy,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Complete はメッセージ列から応答を生成する
// 選択肢が空の場合は空文字列を返し、判定は呼び出し側に任せる
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    toMessageParams(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	var completion *openai.ChatCompletion
	err := c.policy.do(ctx, func(ctx context.Context) error {
		var err error
		completion, err = c.client.Chat.Completions.New(ctx, params)
		return err
	})
	if err != nil {
		return llm.Response{}, fmt.Errorf("chat completion with %s: %w", model, err)
	}

	resp := llm.Response{
		Model:            completion.Model,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}
	if resp.Model == "" {
		resp.Model = model
	}
	if len(completion.Choices) > 0 {
		resp.Content = completion.Choices[0].Message.Content
	}

	return resp, nil
}

func toMessageParams(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}
	return params
}

// インターフェース実装の確認
var _ llm.Client = (*Client)(nil)
