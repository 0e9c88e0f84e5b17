package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store owns the SQLite connection pool. All repo methods hang off it.
type Store struct {
	db  *sql.DB
	sql sq.StatementBuilderType
}

type Options struct {
	// MaxConns caps concurrent storage operations; excess callers queue
	// for a connection. Defaults to 5.
	MaxConns int
}

// Open opens (creating if needed) the database file at path, applies the
// embedded migrations, and returns a ready Store. Any migration failure is
// returned and the caller is expected to treat it as fatal.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 5
	}

	dsn := "file:" + path + "?" + sqliteParams()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:  db,
		sql: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// sqliteParams applies per-connection PRAGMAs through the DSN. Foreign keys
// must be on for the messages cascade; WAL keeps readers unblocked during
// writes.
func sqliteParams() string {
	v := url.Values{}
	for _, p := range []string{
		"foreign_keys(1)",
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"busy_timeout(5000)",
	} {
		v.Add("_pragma", p)
	}
	return v.Encode()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}
