package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/book-rag/internal/core/book"
	"github.com/jinford/book-rag/internal/core/retrieval"
)

//go:embed schema.sql
var schemaTemplate string

const (
	// undefinedTable は PostgreSQL の undefined_table エラーコード
	undefinedTable = "42P01"
	// dataException は pgvector が次元の不一致で返す data_exception エラーコード
	dataException = "22000"
)

// schemaLockKey はスキーマ作成を直列化するロックキー
const schemaLockKey = "book-rag:schema"

const searchSQL = `
SELECT id, document, page, ordinal, content, embedding, 1 - (embedding <=> $1) AS score
FROM book_chunks
ORDER BY embedding <=> $1, ordinal
LIMIT $2`

const statsSQL = `
SELECT document, count(*), min(page), max(page)
FROM book_chunks
GROUP BY document
ORDER BY document`

const upsertSQL = `
INSERT INTO book_chunks (id, document, page, ordinal, content, embedding)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    document = EXCLUDED.document,
    page = EXCLUDED.page,
    ordinal = EXCLUDED.ordinal,
    content = EXCLUDED.content,
    embedding = EXCLUDED.embedding`

// Index は pgvector を使用した retrieval.Index 実装
type Index struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

// NewIndex は新しい Index を作成する
func NewIndex(pool *pgxpool.Pool, dimension int) *Index {
	return &Index{
		pool:      pool,
		dimension: dimension,
		logger:    slog.Default().With("component", "postgres-index"),
	}
}

// EnsureSchema は pgvector 拡張と book_chunks テーブルを作成する
// 複数プロセスから同時に実行されてもアドバイザリロックで直列化される
func (i *Index) EnsureSchema(ctx context.Context) error {
	if i.dimension < 1 {
		return fmt.Errorf("invalid embedding dimension: %d", i.dimension)
	}

	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", retrieval.ErrIndexUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := acquireXactLock(ctx, tx, GenerateLockID(schemaLockKey)); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(schemaTemplate, i.dimension)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}

	i.logger.Info("schema ensured", "dimension", i.dimension)
	return nil
}

// Search はコサイン距離の昇順でチャンクを最大 k 件返す
func (i *Index) Search(ctx context.Context, queryVector []float32, k int) ([]book.ScoredChunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", retrieval.ErrInvalidK, k)
	}

	rows, err := i.pool.Query(ctx, searchSQL, pgvector.NewVector(queryVector), k)
	if err != nil {
		return nil, mapError("failed to search chunks", err)
	}
	defer rows.Close()

	results := make([]book.ScoredChunk, 0, k)
	for rows.Next() {
		var (
			id        pgtype.UUID
			page      pgtype.Int4
			embedding pgvector.Vector
			sc        book.ScoredChunk
		)
		if err := rows.Scan(&id, &sc.Chunk.Locator.Document, &page, &sc.Chunk.Ordinal, &sc.Chunk.Content, &embedding, &sc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		sc.Chunk.ID = PgtypeToUUID(id)
		sc.Chunk.Locator.Page = PgtypeToPage(page)
		sc.Chunk.Embedding = embedding.Slice()
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to read chunks", err)
	}

	return results, nil
}

// Stats はドキュメントごとのチャンク数とページ範囲を返す
func (i *Index) Stats(ctx context.Context) ([]book.DocumentStats, error) {
	rows, err := i.pool.Query(ctx, statsSQL)
	if err != nil {
		return nil, mapError("failed to query stats", err)
	}
	defer rows.Close()

	var stats []book.DocumentStats
	for rows.Next() {
		var (
			s           book.DocumentStats
			count       int64
			first, last pgtype.Int4
		)
		if err := rows.Scan(&s.Document, &count, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		s.Chunks = int(count)
		if first.Valid && last.Valid {
			s.HasPages = true
			s.FirstPage = int(first.Int32)
			s.LastPage = int(last.Int32)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to read stats", err)
	}

	return stats, nil
}

// Upsert はチャンクを一括で登録する（同一IDは上書き）
func (i *Index) Upsert(ctx context.Context, chunks []book.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if len(c.Embedding) != i.dimension {
			return 0, fmt.Errorf("chunk %d has %d dimensions, index expects %d", c.Ordinal, len(c.Embedding), i.dimension)
		}
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		document := c.Locator.Document
		if document == "" {
			document = book.DefaultDocument
		}
		batch.Queue(upsertSQL,
			UUIDToPgtype(id),
			document,
			PageToPgtype(c.Locator.Page),
			c.Ordinal,
			c.Content,
			pgvector.NewVector(c.Embedding),
		)
	}

	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return 0, mapError("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, mapError("failed to upsert chunks", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit chunks: %w", err)
	}

	i.logger.Info("chunks upserted", "count", len(chunks))
	return len(chunks), nil
}

// mapError はテーブル未作成・次元の不一致・接続失敗を retrieval.ErrIndexUnavailable に変換する
func mapError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case undefinedTable:
			return fmt.Errorf("%w: %s: book_chunks table does not exist (run `book-rag index migrate`)", retrieval.ErrIndexUnavailable, msg)
		case dataException:
			return fmt.Errorf("%w: %s: %s (check that OPENAI_EMBEDDING_DIMENSION matches the index)", retrieval.ErrIndexUnavailable, msg, pgErr.Message)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %s: %w", retrieval.ErrIndexUnavailable, msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// インターフェース実装の確認
var _ retrieval.Index = (*Index)(nil)
