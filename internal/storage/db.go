// Package storage is the Document Store: durable records of courses,
// documents, chapters, sections, extracted content and material summaries.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/YunYun501/Lazy-Learn-V2/internal/config"
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

// DB represents a database connection or transaction.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TxBeginner is implemented by *sql.DB.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Open opens the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case "sqlite", "":
		if cfg.SQLite.Path != ":memory:" {
			if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create database directory: %w", err)
				}
			}
		}
		db, err = sql.Open("sqlite3", SQLiteDSN(cfg.SQLite))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		maxOpen := cfg.SQLite.MaxOpenConns
		if maxOpen <= 0 || cfg.SQLite.Path == ":memory:" {
			// every connection to :memory: is a separate database
			maxOpen = 1
		}
		db.SetMaxOpenConns(maxOpen)
	case "postgres":
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// SQLiteDSN builds a go-sqlite3 DSN with foreign keys enforced.
func SQLiteDSN(cfg config.SQLiteConfig) string {
	params := []string{"_foreign_keys=on", "_busy_timeout=5000"}
	if cfg.JournalMode != "" && cfg.Path != ":memory:" {
		params = append(params, "_journal_mode="+cfg.JournalMode)
	}
	return cfg.Path + "?" + strings.Join(params, "&")
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundError(fmt.Sprintf(format, args...))
	}
	return err
}

func checkAffected(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundError(fmt.Sprintf(format, args...))
	}
	return nil
}

// withTx runs fn inside a transaction when db can begin one, otherwise
// directly against db (already inside a transaction).
func withTx(ctx context.Context, db DB, fn func(DB) error) error {
	beginner, ok := db.(TxBeginner)
	if !ok {
		return fn(db)
	}
	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
