package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB はデータベース接続プールを保持します
type DB struct {
	Pool *pgxpool.Pool
}

// ConnectionParams はデータベース接続パラメータ
type ConnectionParams struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ConnString は pgx が解釈できる接続文字列を返します
// 値は引用符で囲み、空の項目は省略して pgconn の既定値に任せます
func (p ConnectionParams) ConnString() string {
	pairs := []struct{ key, value string }{
		{"host", p.Host},
		{"port", ""},
		{"user", p.User},
		{"password", p.Password},
		{"dbname", p.DBName},
		{"sslmode", p.SSLMode},
	}
	if p.Port > 0 {
		pairs[1].value = strconv.Itoa(p.Port)
	}

	parts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		if kv.value == "" {
			continue
		}
		parts = append(parts, kv.key+"="+quoteValue(kv.value))
	}
	return strings.Join(parts, " ")
}

// quoteValue は keyword/value 形式の値を単一引用符で囲み、\ と ' をエスケープする
func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// New は新しいデータベース接続を作成します
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	pool, err := pgxpool.New(ctx, params.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// 接続テスト
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close はデータベース接続を閉じます
func (db *DB) Close() {
	db.Pool.Close()
}
