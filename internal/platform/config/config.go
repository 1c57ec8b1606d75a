package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jinford/book-rag/internal/core/prompt"
	"github.com/jinford/book-rag/internal/core/retrieval"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Chat + Embeddings）
	OpenAI OpenAIConfig

	// 会話・検索の設定
	Chat ChatConfig

	// ログ設定
	Log LogConfig

	// IndexFile が指定された場合は PostgreSQL の代わりに JSONL ダンプを使用する
	IndexFile string

	// Profile は適用するプロファイル名（空の場合は適用しない）
	Profile string

	// ProfileFile は追加プロファイルを定義した YAML ファイル
	ProfileFile string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	EmbeddingModel     string
	EmbeddingDimension int
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// ChatConfig は1セッションの振る舞いを決める設定
type ChatConfig struct {
	Model            string        // 回答生成に使用するモデル
	Temperature      float64       // 生成の温度（0 で決定的）
	MaxTokens        int           // 回答の最大トークン数
	MemoryWindow     int           // 保持する直近ターン数
	RetrievalK       int           // プロンプトに含めるチャンク数
	FetchK           int           // MMR の候補数（0 の場合は k×4）
	SearchMode       string        // "similarity" or "mmr"
	Lambda           float64       // MMR の関連度重み
	Rephrase         bool          // 履歴を使ったクエリ書き換えを行うか
	RephraseModel    string        // 書き換えに使用するモデル（空の場合は Model）
	MaxContextTokens int           // プロンプト全体のトークン上限（0 は無制限）
	Truncation       string        // "drop-lowest-ranked" or "none"
	SystemPrompt     string        // システム指示（口調・役割）
	RequestTimeout   time.Duration // 1ターンのタイムアウト
	MaxRetries       int           // 一時的な障害時のリトライ回数
	RecordEmptyTurns bool          // 空の回答もメモリに記録するか
}

// DefaultChatConfig は組み込みの classic プロファイルと同じ既定値を返す
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Model:            "gpt-4",
		Temperature:      0,
		MaxTokens:        256,
		MemoryWindow:     3,
		RetrievalK:       4,
		FetchK:           0,
		SearchMode:       string(retrieval.ModeSimilarity),
		Lambda:           retrieval.DefaultLambda,
		Rephrase:         true,
		MaxContextTokens: 6000,
		Truncation:       string(prompt.DropLowestRanked),
		SystemPrompt:     ClassicSystemPrompt,
		RequestTimeout:   60 * time.Second,
		MaxRetries:       2,
	}
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	defaults := DefaultChatConfig()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "bookrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "bookrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			BaseURL:            getEnv("OPENAI_BASE_URL", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
		},
		Chat: ChatConfig{
			Model:            getEnv("BOOK_RAG_MODEL", defaults.Model),
			Temperature:      getEnvAsFloat("BOOK_RAG_TEMPERATURE", defaults.Temperature),
			MaxTokens:        getEnvAsInt("BOOK_RAG_MAX_TOKENS", defaults.MaxTokens),
			MemoryWindow:     getEnvAsInt("BOOK_RAG_MEMORY_WINDOW", defaults.MemoryWindow),
			RetrievalK:       getEnvAsInt("BOOK_RAG_RETRIEVAL_K", defaults.RetrievalK),
			FetchK:           getEnvAsInt("BOOK_RAG_FETCH_K", defaults.FetchK),
			SearchMode:       getEnv("BOOK_RAG_SEARCH_MODE", defaults.SearchMode),
			Lambda:           getEnvAsFloat("BOOK_RAG_MMR_LAMBDA", defaults.Lambda),
			Rephrase:         getEnvAsBool("BOOK_RAG_REPHRASE", defaults.Rephrase),
			RephraseModel:    getEnv("BOOK_RAG_REPHRASE_MODEL", defaults.RephraseModel),
			MaxContextTokens: getEnvAsInt("BOOK_RAG_MAX_CONTEXT_TOKENS", defaults.MaxContextTokens),
			Truncation:       getEnv("BOOK_RAG_TRUNCATION", defaults.Truncation),
			SystemPrompt:     getEnv("BOOK_RAG_SYSTEM_PROMPT", defaults.SystemPrompt),
			RequestTimeout:   getEnvAsDuration("BOOK_RAG_REQUEST_TIMEOUT", defaults.RequestTimeout),
			MaxRetries:       getEnvAsInt("BOOK_RAG_MAX_RETRIES", defaults.MaxRetries),
			RecordEmptyTurns: getEnvAsBool("BOOK_RAG_RECORD_EMPTY_TURNS", defaults.RecordEmptyTurns),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		IndexFile:   getEnv("BOOK_RAG_INDEX_FILE", ""),
		Profile:     getEnv("BOOK_RAG_PROFILE", ""),
		ProfileFile: getEnv("BOOK_RAG_PROFILE_FILE", ""),
	}

	return cfg, nil
}

// Validate は設定値の範囲を検証し、問題をまとめて返します
func (c *Config) Validate() error {
	var errs []error

	ch := c.Chat
	if strings.TrimSpace(ch.Model) == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if ch.Temperature < 0 || ch.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %v", ch.Temperature))
	}
	if ch.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", ch.MaxTokens))
	}
	if ch.MemoryWindow < 1 {
		errs = append(errs, fmt.Errorf("memory window must be positive, got %d", ch.MemoryWindow))
	}
	if ch.RetrievalK < 1 {
		errs = append(errs, fmt.Errorf("retrieval k must be positive, got %d", ch.RetrievalK))
	}
	if ch.FetchK < 0 {
		errs = append(errs, fmt.Errorf("fetch k must not be negative, got %d", ch.FetchK))
	}
	if _, err := retrieval.ParseMode(ch.SearchMode); err != nil {
		errs = append(errs, err)
	}
	if ch.Lambda < 0 || ch.Lambda > 1 {
		errs = append(errs, fmt.Errorf("mmr lambda must be within [0, 1], got %v", ch.Lambda))
	}
	if ch.MaxContextTokens < 0 {
		errs = append(errs, fmt.Errorf("max context tokens must not be negative, got %d", ch.MaxContextTokens))
	}
	if _, err := prompt.ParseTruncationPolicy(ch.Truncation); err != nil {
		errs = append(errs, err)
	}
	if ch.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", ch.RequestTimeout))
	}
	if ch.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", ch.MaxRetries))
	}
	if c.OpenAI.EmbeddingDimension < 1 {
		errs = append(errs, fmt.Errorf("embedding dimension must be positive, got %d", c.OpenAI.EmbeddingDimension))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: "30s"）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
