// Package storage opens the relay database, runs the embedded goose
// migrations for its dialect and vends the message repository.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/cipherroom/internal/server/migrations"
	"github.com/dmitrijs2005/cipherroom/internal/server/repositories/messages"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DetectDialect treats postgres URLs and keyword/value DSNs as PostgreSQL and
// anything else as an SQLite path or URI.
func DetectDialect(dsn string) Dialect {
	d := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"):
		return DialectPostgres
	case strings.Contains(d, "host=") && strings.Contains(d, "dbname="):
		return DialectPostgres
	default:
		return DialectSQLite
	}
}

func (d Dialect) driver() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) gooseDialect() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// Store owns the database handle.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	messages messages.Repository
}

func (s *Store) Conn() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Messages() messages.Repository {
	return s.messages
}

func (s *Store) Close() error {
	return s.db.Close()
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations of dialect to db.
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return fmt.Errorf("goose dialect error: %w", err)
	}
	return gooseUpContext(ctx, db, string(dialect))
}

// NewStore wraps an already opened database without migrating it.
func NewStore(db *sql.DB, dialect Dialect) *Store {
	var repo messages.Repository
	if dialect == DialectPostgres {
		repo = messages.NewPostgresRepository(db)
	} else {
		repo = messages.NewSQLiteRepository(db)
	}
	return &Store{db: db, dialect: dialect, messages: repo}
}

// Open connects to dsn, checks the connection and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dialect := DetectDialect(dsn)

	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if dialect == DialectSQLite {
		// one writer; also keeps :memory: databases on a single connection
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return NewStore(db, dialect), nil
}
