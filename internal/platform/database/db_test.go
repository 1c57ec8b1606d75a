package database

import (
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionParams_ConnString(t *testing.T) {
	p := ConnectionParams{Host: "db", Port: 5433, User: "book", Password: "secret", DBName: "wardley", SSLMode: "disable"}
	assert.Equal(t, "host='db' port='5433' user='book' password='secret' dbname='wardley' sslmode='disable'", p.ConnString())
}

func TestConnectionParams_ConnStringEmptyPassword(t *testing.T) {
	t.Setenv("PGPASSWORD", "")
	t.Setenv("PGPASSFILE", filepath.Join(t.TempDir(), "pgpass"))
	p := ConnectionParams{Host: "localhost", Port: 5432, User: "postgres", DBName: "bookrag", SSLMode: "disable"}

	cfg, err := pgconn.ParseConfig(p.ConnString())
	require.NoError(t, err)
	assert.Equal(t, "bookrag", cfg.Database)
	assert.Equal(t, "", cfg.Password)
	assert.Equal(t, "postgres", cfg.User)
	assert.Equal(t, uint16(5432), cfg.Port)
}

func TestConnectionParams_ConnStringQuotesSpecialCharacters(t *testing.T) {
	p := ConnectionParams{Host: "localhost", Port: 5432, User: "book", Password: `it's a \ pass`, DBName: "book rag", SSLMode: "disable"}

	cfg, err := pgconn.ParseConfig(p.ConnString())
	require.NoError(t, err)
	assert.Equal(t, `it's a \ pass`, cfg.Password)
	assert.Equal(t, "book rag", cfg.Database)
}
