package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/jinford/book-rag/internal/core/llm"
	"github.com/jinford/book-rag/internal/core/prompt"
)

const (
	// DefaultMaxTokens は回答の最大トークン数のデフォルト値
	DefaultMaxTokens = 256
)

var (
	// ErrProviderUnavailable はプロバイダがリクエストを拒否した場合のエラー（リトライ可能）
	ErrProviderUnavailable = llm.ErrProviderUnavailable

	// ErrEmptyGeneration はプロバイダが有効な内容を返さなかった場合のエラー（致命的ではない）
	ErrEmptyGeneration = errors.New("no answer produced")
)

// trailingSources は本文の末尾に続く "SOURCES: 1, [3]" にマッチする（行頭でなくてもよい）
var trailingSources = regexp.MustCompile(`(?i)\**\b` + prompt.SourcesLabel + `\b\**\s*:\s*([\d,\s\[\]]*?)\s*$`)

// sourcesLine は行頭から始まる "SOURCES: ..." 行にマッチする
var sourcesLine = regexp.MustCompile(`(?im)^\s*\**` + prompt.SourcesLabel + `\**\s*:\s*(.*)$`)

// sourceNumber は "[2]" や "2," などから番号を取り出す
var sourceNumber = regexp.MustCompile(`\d+`)

// Usage はLLMのトークン使用量
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Answer は生成された回答
type Answer struct {
	Text         string
	UsedChunkIDs []uuid.UUID // 回答の根拠となったチャンク（プロンプト内の順序）
	Unknown      bool        // コンテキストに答えが無いと回答した場合 true
	Model        string
	Usage        Usage
}

// Generator は組み立て済みプロンプトから回答を生成する
type Generator struct {
	client      llm.Client
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

type GeneratorOption func(*Generator)

// WithModel はモデル名を設定する
func WithModel(model string) GeneratorOption {
	return func(g *Generator) {
		g.model = model
	}
}

// WithTemperature は温度を設定する（0 で決定的な出力）
func WithTemperature(temperature float64) GeneratorOption {
	return func(g *Generator) {
		g.temperature = temperature
	}
}

// WithMaxTokens は最大出力トークン数を設定する
func WithMaxTokens(maxTokens int) GeneratorOption {
	return func(g *Generator) {
		g.maxTokens = maxTokens
	}
}

// WithGeneratorLogger は Generator にロガーを設定する
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator は新しい Generator を作成する
func NewGenerator(client llm.Client, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:    client,
		maxTokens: DefaultMaxTokens,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultMaxTokens
	}
	return g
}

// Model は設定されているモデル名を返す
func (g *Generator) Model() string {
	return g.model
}

// Generate はプロンプトをLLMに送信し、回答と引用チャンクを返す
func (g *Generator) Generate(ctx context.Context, p prompt.StructuredPrompt) (*Answer, error) {
	resp, err := g.client.Complete(ctx, llm.Request{
		Messages:    p.Messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Model:       g.model,
	})
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed to generate answer: %w", err)
		}
		return nil, fmt.Errorf("failed to generate answer: %w: %w", ErrProviderUnavailable, err)
	}

	usage := Usage{
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}

	text, numbers, hasSources := splitSources(resp.Content)
	if text == "" {
		g.logger.Warn("LLM returned empty content", "model", resp.Model)
		return nil, ErrEmptyGeneration
	}

	ans := &Answer{
		Text:    text,
		Unknown: IsUnknown(text),
		Model:   resp.Model,
		Usage:   usage,
	}

	switch {
	case ans.Unknown:
		// 根拠なしの回答には引用を付けない
	case hasSources:
		ans.UsedChunkIDs = resolveSources(numbers, p.Included)
	default:
		ans.UsedChunkIDs = append([]uuid.UUID(nil), p.Included...)
	}

	g.logger.Debug("answer generated",
		"model", resp.Model,
		"answerLength", len(text),
		"unknown", ans.Unknown,
		"usedChunks", len(ans.UsedChunkIDs),
		"totalTokens", usage.TotalTokens,
	)

	return ans, nil
}

// maxUnknownLeadWords は "Sorry, but" のような前置きとして許容する語数
const maxUnknownLeadWords = 6

// unknownLeadWords は「わからない」の前置きとして現れる謝罪・つなぎの語
var unknownLeadWords = map[string]bool{
	"sorry": true, "i'm": true, "im": true, "i": true, "am": true, "but": true,
	"unfortunately": true, "apologies": true, "my": true, "afraid": true,
	"based": true, "on": true, "the": true, "given": true, "provided": true,
	"context": true, "honestly": true, "well": true,
}

// IsUnknown は回答が「わからない」旨の回答かどうかを判定する
// "Sorry, I don't know." のような謝罪・つなぎの短い前置きが付いていても unknown とみなす
func IsUnknown(text string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	marker := strings.ToLower(prompt.UnknownMarker)

	idx := strings.Index(normalized, marker)
	if idx < 0 {
		return false
	}
	lead := strings.FieldsFunc(normalized[:idx], func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	if len(lead) > maxUnknownLeadWords {
		return false
	}
	for _, w := range lead {
		if !unknownLeadWords[w] {
			return false
		}
	}
	return true
}

// splitSources は回答本文と SOURCES 行を分離する
func splitSources(content string) (string, []int, bool) {
	content = strings.TrimSpace(content)
	loc := trailingSources.FindStringSubmatchIndex(content)
	if loc == nil {
		loc = sourcesLine.FindStringSubmatchIndex(content)
	}
	if loc == nil {
		return content, nil, false
	}

	list := content[loc[2]:loc[3]]
	text := strings.TrimSpace(content[:loc[0]] + content[loc[1]:])

	var numbers []int
	for _, m := range sourceNumber.FindAllString(list, -1) {
		n, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	return text, numbers, true
}

// resolveSources は番号（1始まり）をチャンクIDに変換する
// 範囲外の番号と重複は無視し、プロンプト内の順序で返す
func resolveSources(numbers []int, included []uuid.UUID) []uuid.UUID {
	used := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		if n >= 1 && n <= len(included) {
			used[n] = true
		}
	}

	ids := make([]uuid.UUID, 0, len(used))
	for i, id := range included {
		if used[i+1] {
			ids = append(ids, id)
		}
	}
	return ids
}
