package prompt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jinford/book-rag/internal/core/llm"
	"github.com/jinford/book-rag/internal/core/memory"
	"github.com/jinford/book-rag/internal/core/retrieval"
)

const (
	// UnknownMarker はコンテキストに答えが無い場合にモデルが返すべき文言
	UnknownMarker = "I don't know"

	// SourcesLabel は回答末尾の引用行の接頭辞
	SourcesLabel = "SOURCES"

	contextSeparator = "----------------"
	emptyContext     = "(no context was found in the book for this question)"
)

// TruncationPolicy はコンテキスト上限を超えた場合の扱い
type TruncationPolicy string

const (
	// DropLowestRanked は順位の低いチャンクから削除する
	DropLowestRanked TruncationPolicy = "drop-lowest-ranked"
	// NoTruncation は切り詰めを行わない
	NoTruncation TruncationPolicy = "none"
)

// ParseTruncationPolicy は文字列から TruncationPolicy を解釈する
func ParseTruncationPolicy(s string) (TruncationPolicy, error) {
	switch TruncationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case DropLowestRanked, "":
		return DropLowestRanked, nil
	case NoTruncation:
		return NoTruncation, nil
	default:
		return "", fmt.Errorf("unknown truncation policy: %q", s)
	}
}

// TokenCounter はテキストのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// StructuredPrompt はLLMに送信する組み立て済みのプロンプト
type StructuredPrompt struct {
	Messages      []llm.Message
	Included      []uuid.UUID // コンテキストに含めたチャンク（番号 1..n の順）
	Dropped       int         // 上限超過で削除したチャンク数
	DroppedTurns  int         // 上限超過で削除した履歴ターン数
	ContextTokens int         // 全メッセージの推定トークン数
}

// Render はプロンプト全体を1つの文字列として返す（ログ・トークン計測用）
func (p StructuredPrompt) Render() string {
	var sb strings.Builder
	for i, m := range p.Messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// Assembler は検索結果・会話履歴・質問からプロンプトを組み立てる
// 内部状態を持たず、同じ入力に対して常に同じ出力を返す
type Assembler struct {
	maxContextTokens int
	policy           TruncationPolicy
	counter          TokenCounter
}

type AssemblerOption func(*Assembler)

// WithMaxContextTokens はプロンプト全体のトークン上限を設定する（0 以下は無制限）
func WithMaxContextTokens(n int) AssemblerOption {
	return func(a *Assembler) {
		a.maxContextTokens = n
	}
}

// WithTruncationPolicy は切り詰め方針を設定する
func WithTruncationPolicy(policy TruncationPolicy) AssemblerOption {
	return func(a *Assembler) {
		a.policy = policy
	}
}

// WithTokenCounter はトークン計測器を設定する
func WithTokenCounter(counter TokenCounter) AssemblerOption {
	return func(a *Assembler) {
		a.counter = counter
	}
}

// NewAssembler は新しい Assembler を作成する
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		policy:  DropLowestRanked,
		counter: ApproxCounter{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.counter == nil {
		a.counter = ApproxCounter{}
	}
	return a
}

// Assemble はプロンプトを組み立てる
// チャンクは検索結果の順序を保ったまま番号付けされ、上限を超える場合は末尾（低順位）から削除される
func (a *Assembler) Assemble(systemInstructions string, retrieved *retrieval.Result, history []memory.Turn, question string) StructuredPrompt {
	var chunks []contextEntry
	if retrieved != nil {
		chunks = make([]contextEntry, 0, len(retrieved.Chunks))
		for _, c := range retrieved.Chunks {
			chunks = append(chunks, contextEntry{
				id:      c.Chunk.ID,
				locator: c.Chunk.Locator.String(),
				content: strings.TrimSpace(c.Chunk.Content),
			})
		}
	}
	turns := usableTurns(history)

	build := func(chunks []contextEntry, turns []memory.Turn) []llm.Message {
		msgs := make([]llm.Message, 0, 2+len(turns)*2)
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: buildSystemMessage(systemInstructions, chunks)})
		for _, t := range turns {
			msgs = append(msgs,
				llm.Message{Role: llm.RoleUser, Content: strings.TrimSpace(t.Question)},
				llm.Message{Role: llm.RoleAssistant, Content: strings.TrimSpace(t.Answer)},
			)
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: strings.TrimSpace(question)})
		return msgs
	}

	total := len(chunks)
	totalTurns := len(turns)
	msgs := build(chunks, turns)
	tokens := a.count(msgs)

	if a.policy != NoTruncation && a.maxContextTokens > 0 {
		// 低順位のチャンクから削除
		for tokens > a.maxContextTokens && len(chunks) > 0 {
			chunks = chunks[:len(chunks)-1]
			msgs = build(chunks, turns)
			tokens = a.count(msgs)
		}
		// それでも超える場合は古い履歴から削除
		for tokens > a.maxContextTokens && len(turns) > 0 {
			turns = turns[1:]
			msgs = build(chunks, turns)
			tokens = a.count(msgs)
		}
	}

	included := make([]uuid.UUID, 0, len(chunks))
	for _, c := range chunks {
		included = append(included, c.id)
	}

	return StructuredPrompt{
		Messages:      msgs,
		Included:      included,
		Dropped:       total - len(chunks),
		DroppedTurns:  totalTurns - len(turns),
		ContextTokens: tokens,
	}
}

func (a *Assembler) count(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		n += a.counter.CountTokens(m.Content)
	}
	return n
}

type contextEntry struct {
	id      uuid.UUID
	locator string
	content string
}

// buildSystemMessage はシステム指示・引用形式・コンテキストを1つのメッセージにまとめる
func buildSystemMessage(instructions string, chunks []contextEntry) string {
	var sb strings.Builder

	if s := strings.TrimSpace(instructions); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	sb.WriteString("Use the following pieces of context to answer the user's question.\n")
	sb.WriteString("Each piece of context is numbered like [1]. After the answer, list the numbers of the pieces you used on a final line in the format: \"")
	sb.WriteString(SourcesLabel)
	sb.WriteString(": 1 3\". Use \"")
	sb.WriteString(SourcesLabel)
	sb.WriteString("\" in capital letters regardless of the number of sources.\n")
	sb.WriteString("If the context does not contain the answer, just say \"")
	sb.WriteString(UnknownMarker)
	sb.WriteString("\", don't try to make up an answer.\n")
	sb.WriteString(contextSeparator)
	sb.WriteString("\n")

	if len(chunks) == 0 {
		sb.WriteString(emptyContext)
		return sb.String()
	}
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("[%d] (%s)\n", i+1, c.locator))
		sb.WriteString(c.content)
	}
	return sb.String()
}

// usableTurns は回答のあるターンのみを返す
func usableTurns(history []memory.Turn) []memory.Turn {
	out := make([]memory.Turn, 0, len(history))
	for _, t := range history {
		if strings.TrimSpace(t.Question) == "" || strings.TrimSpace(t.Answer) == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}
