package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/book-rag/internal/core/answer"
	"github.com/jinford/book-rag/internal/core/citation"
	"github.com/jinford/book-rag/internal/core/memory"
	"github.com/jinford/book-rag/internal/core/prompt"
	"github.com/jinford/book-rag/internal/core/retrieval"
)

// ErrEmptyQuestion は質問文が空の場合のエラー
var ErrEmptyQuestion = errors.New("question is required")

// Config はセッションの動作設定
type Config struct {
	SystemPrompt     string        // システム指示（口調などを含む任意の文言）
	RetrievalK       int           // 1ターンで取得するチャンク数
	TurnTimeout      time.Duration // 1ターン全体のタイムアウト（0 以下は無制限）
	RecordEmptyTurns bool          // 回答が空だったターンも履歴に残す
}

// TurnResult は1ターンの結果
type TurnResult struct {
	Question       string
	RewrittenQuery mo.Option[string]
	Answer         string
	Unknown        bool
	Citations      []citation.Citation
	Retrieved      int // 検索で取得したチャンク数
	Dropped        int // コンテキスト上限で削除したチャンク数
	Model          string
	Usage          answer.Usage
}

// Session は1人のユーザーとの対話を表す
// 会話履歴・Retriever・Generator を所有し、ターンは逐次的に処理される
type Session struct {
	id        uuid.UUID
	cfg       Config
	memory    *memory.Memory
	retriever *retrieval.Retriever
	assembler *prompt.Assembler
	generator *answer.Generator
	logger    *slog.Logger
	createdAt time.Time

	mu sync.Mutex
}

type SessionOption func(*Session)

// WithSessionLogger は Session にロガーを設定する
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSessionID はセッションIDを指定する
func WithSessionID(id uuid.UUID) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// NewSession は新しい Session を作成する
func NewSession(
	cfg Config,
	mem *memory.Memory,
	retriever *retrieval.Retriever,
	assembler *prompt.Assembler,
	generator *answer.Generator,
	opts ...SessionOption,
) *Session {
	s := &Session{
		id:        uuid.New(),
		cfg:       cfg,
		memory:    mem,
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		logger:    slog.Default(),
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cfg.RetrievalK < 1 {
		s.cfg.RetrievalK = 4
	}
	if s.memory == nil {
		s.memory = memory.New(memory.DefaultWindow, nil)
	}
	if s.assembler == nil {
		s.assembler = prompt.NewAssembler()
	}
	s.logger = s.logger.With("sessionID", s.id.String())
	return s
}

// ID はセッションIDを返す
func (s *Session) ID() uuid.UUID {
	return s.id
}

// History は会話履歴を古い順に返す
func (s *Session) History() []memory.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory.Window()
}

// Reset は会話履歴を破棄する
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory.Reset()
}

// Ask は質問に対してRAGベースで回答を生成する
//
// 履歴への追加は回答が揃った後にのみ行うため、途中で失敗・キャンセルされても履歴は変化しない。
// 回答が空だった場合は ErrEmptyGeneration と共に空の回答を持つ結果を返す。
func (s *Session) Ask(ctx context.Context, question string) (*TurnResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TurnTimeout)
		defer cancel()
	}

	// 1. 会話履歴を踏まえた質問の書き換え
	query := retrieval.NewQuery(question)
	if s.memory.RephraseEnabled() && s.memory.Len() > 0 {
		rewritten, err := s.memory.Rephrase(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("failed to rephrase question: %w", err)
		}
		if rewritten != question {
			query.Rewritten = mo.Some(rewritten)
			s.logger.Info("question rephrased", "question", question, "rewritten", rewritten)
		}
	}

	// 2. 検索
	retrieved, err := s.retriever.Retrieve(ctx, query, s.cfg.RetrievalK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	if retrieved.Len() == 0 {
		s.logger.Warn("no context retrieved; answering without context", "query", query.SearchText())
	}

	// 3. プロンプト構築
	history := s.memory.Window()
	p := s.assembler.Assemble(s.cfg.SystemPrompt, retrieved, history, question)
	if p.Dropped > 0 || p.DroppedTurns > 0 {
		s.logger.Info("prompt truncated",
			"droppedChunks", p.Dropped,
			"droppedTurns", p.DroppedTurns,
			"contextTokens", p.ContextTokens,
		)
	}

	// 4. 回答生成
	ans, err := s.generator.Generate(ctx, p)
	if err != nil {
		if errors.Is(err, answer.ErrEmptyGeneration) {
			if s.cfg.RecordEmptyTurns {
				s.memory.Append(memory.Turn{Question: question, CreatedAt: time.Now()})
			}
			return &TurnResult{
				Question:       question,
				RewrittenQuery: query.Rewritten,
				Retrieved:      retrieved.Len(),
				Dropped:        p.Dropped,
				Citations:      []citation.Citation{},
			}, err
		}
		return nil, err
	}

	// 5. 出典の抽出
	citations := citation.Annotate(ans.Text, retrieved, ans.UsedChunkIDs)

	// 6. 履歴の更新
	s.memory.Append(memory.Turn{
		Question:  question,
		Answer:    ans.Text,
		ChunkIDs:  ans.UsedChunkIDs,
		Unknown:   ans.Unknown,
		CreatedAt: time.Now(),
	})

	s.logger.Info("turn completed",
		"answerLength", len(ans.Text),
		"unknown", ans.Unknown,
		"citations", len(citations),
		"totalTokens", ans.Usage.TotalTokens,
	)

	return &TurnResult{
		Question:       question,
		RewrittenQuery: query.Rewritten,
		Answer:         ans.Text,
		Unknown:        ans.Unknown,
		Citations:      citations,
		Retrieved:      retrieved.Len(),
		Dropped:        p.Dropped,
		Model:          ans.Model,
		Usage:          ans.Usage,
	}, nil
}
