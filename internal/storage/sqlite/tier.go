// Package sqlite implements the durable storage tier on a WAL-mode SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite" // pure-Go SQLite driver

	"github.com/fastprodman/coinsync/internal/storage"
)

var _ storage.Tier = (*Tier)(nil)

type Tier struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*Tier)

// WithClock overrides the clock used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(t *Tier) { t.now = now }
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Tier, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}

	for _, pragma := range pragmas {
		_, err = db.ExecContext(ctx, pragma)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	t := &Tier{db: db, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

func (t *Tier) Close() error {
	err := t.db.Close()
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}

	return nil
}
