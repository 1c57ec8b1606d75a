package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jinford/book-rag/internal/core/answer"
	"github.com/jinford/book-rag/internal/core/chat"
	"github.com/jinford/book-rag/internal/core/llm"
	"github.com/jinford/book-rag/internal/core/memory"
	"github.com/jinford/book-rag/internal/core/prompt"
	"github.com/jinford/book-rag/internal/core/retrieval"
	"github.com/jinford/book-rag/internal/infra/memindex"
	"github.com/jinford/book-rag/internal/infra/openai"
	"github.com/jinford/book-rag/internal/infra/postgres"
	"github.com/jinford/book-rag/internal/infra/tokenizer"
	"github.com/jinford/book-rag/internal/platform/config"
	"github.com/jinford/book-rag/internal/platform/database"
)

// ServiceContainer はセッション生成に必要な依存関係を保持する
type ServiceContainer struct {
	Sessions  *chat.Manager
	Retriever *retrieval.Retriever
	Index     retrieval.Index
	Postgres  *postgres.Index // JSONL ダンプを使用する場合は nil

	cfg      *config.Config
	logger   *slog.Logger
	database *database.DB
}

type containerOptions struct {
	logger       *slog.Logger
	llmClient    llm.Client
	embedder     retrieval.Embedder
	index        retrieval.Index
	tokenCounter prompt.TokenCounter
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerLLMClient は LLM クライアントを差し替える
func WithContainerLLMClient(client llm.Client) ContainerOption {
	return func(opts *containerOptions) {
		opts.llmClient = client
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder retrieval.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerIndex は検索インデックスを差し替える
func WithContainerIndex(index retrieval.Index) ContainerOption {
	return func(opts *containerOptions) {
		opts.index = index
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter prompt.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// NewContainer は設定からコンテナを生成する
// IndexFile が指定されていれば JSONL ダンプを、そうでなければ PostgreSQL を検索インデックスとして使用する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	c := &ServiceContainer{
		cfg:    cfg,
		logger: options.logger,
	}

	// Index
	index := options.index
	if index == nil {
		var err error
		index, err = c.openIndex(ctx)
		if err != nil {
			return nil, err
		}
	}
	c.Index = index

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		e, err := openai.NewEmbedder(cfg.OpenAI.APIKey,
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithMaxRetries(cfg.Chat.MaxRetries),
		)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		embedder = e
	}

	// LLMClient (OpenAI)
	llmClient := options.llmClient
	if llmClient == nil {
		client, err := openai.NewClient(cfg.OpenAI.APIKey, cfg.Chat.Model,
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
			openai.WithMaxRetries(cfg.Chat.MaxRetries),
			openai.WithTimeout(cfg.Chat.RequestTimeout),
		)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		llmClient = client
	}

	// TokenCounter (tiktoken)
	counter := options.tokenCounter
	if counter == nil {
		tc, err := tokenizer.ForModel(cfg.Chat.Model)
		if err != nil {
			c.logger.Warn("tiktoken unavailable; falling back to approximate token counts", "error", err)
			counter = prompt.ApproxCounter{}
		} else {
			counter = tc
		}
	}

	mode, _ := retrieval.ParseMode(cfg.Chat.SearchMode)
	policy, _ := prompt.ParseTruncationPolicy(cfg.Chat.Truncation)

	c.Retriever = retrieval.NewRetriever(index, embedder,
		retrieval.WithMode(mode),
		retrieval.WithLambda(cfg.Chat.Lambda),
		retrieval.WithFetchK(cfg.Chat.FetchK),
		retrieval.WithRetrieverLogger(c.logger),
	)

	// Assembler と Generator は状態を持たないためセッション間で共有する
	assembler := prompt.NewAssembler(
		prompt.WithMaxContextTokens(cfg.Chat.MaxContextTokens),
		prompt.WithTruncationPolicy(policy),
		prompt.WithTokenCounter(counter),
	)
	generator := answer.NewGenerator(llmClient,
		answer.WithModel(cfg.Chat.Model),
		answer.WithTemperature(cfg.Chat.Temperature),
		answer.WithMaxTokens(cfg.Chat.MaxTokens),
		answer.WithGeneratorLogger(c.logger),
	)

	var rephraser memory.Rephraser
	if cfg.Chat.Rephrase {
		model := cfg.Chat.RephraseModel
		if model == "" {
			model = cfg.Chat.Model
		}
		rephraser = memory.NewLLMRephraser(llmClient, model)
	}

	sessionCfg := chat.Config{
		SystemPrompt:     cfg.Chat.SystemPrompt,
		RetrievalK:       cfg.Chat.RetrievalK,
		TurnTimeout:      cfg.Chat.RequestTimeout,
		RecordEmptyTurns: cfg.Chat.RecordEmptyTurns,
	}

	// セッションごとに独立した会話履歴を持たせる
	c.Sessions = chat.NewManager(func(id uuid.UUID) *chat.Session {
		return chat.NewSession(sessionCfg,
			memory.New(cfg.Chat.MemoryWindow, rephraser),
			c.Retriever,
			assembler,
			generator,
			chat.WithSessionID(id),
			chat.WithSessionLogger(c.logger),
		)
	})

	c.logger.Debug("container initialized",
		"profile", cfg.Profile,
		"model", cfg.Chat.Model,
		"searchMode", string(mode),
		"k", cfg.Chat.RetrievalK,
		"rephrase", cfg.Chat.Rephrase,
	)

	return c, nil
}

func (c *ServiceContainer) openIndex(ctx context.Context) (retrieval.Index, error) {
	if c.cfg.IndexFile != "" {
		idx, err := memindex.LoadFile(c.cfg.IndexFile)
		if err != nil {
			return nil, err
		}
		c.logger.Info("loaded index dump", "path", c.cfg.IndexFile, "chunks", idx.Len())
		return idx, nil
	}

	pg, err := OpenPostgres(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	c.database = pg.db
	c.Postgres = pg.Index
	return pg.Index, nil
}

// PostgresIndex は接続と pgvector インデックスの組
type PostgresIndex struct {
	*postgres.Index
	db *database.DB
}

// Close は接続を閉じる
func (p *PostgresIndex) Close() {
	if p != nil && p.db != nil {
		p.db.Close()
	}
}

// OpenPostgres は設定に従って PostgreSQL に接続し、インデックスを返す
// 接続できない場合は retrieval.ErrIndexUnavailable を返す
func OpenPostgres(ctx context.Context, cfg *config.Config) (*PostgresIndex, error) {
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", retrieval.ErrIndexUnavailable, err)
	}
	return &PostgresIndex{
		Index: postgres.NewIndex(db.Pool, cfg.OpenAI.EmbeddingDimension),
		db:    db,
	}, nil
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Config は使用している設定を返す
func (c *ServiceContainer) Config() *config.Config {
	return c.cfg
}
