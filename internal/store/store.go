// Package store persists collected posts, drafts and linked accounts in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database.
type DB struct {
	sql *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	db := &DB{sql: d, now: time.Now}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error { return d.sql.PingContext(ctx) }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS collected_posts (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  user_id TEXT NOT NULL,
	  tweet_id TEXT NOT NULL,
	  author_id TEXT,
	  text TEXT NOT NULL,
	  lang TEXT,
	  keyword TEXT,
	  posted_at INTEGER,
	  like_count INTEGER NOT NULL DEFAULT 0,
	  retweet_count INTEGER NOT NULL DEFAULT 0,
	  reply_count INTEGER NOT NULL DEFAULT 0,
	  quote_count INTEGER NOT NULL DEFAULT 0,
	  impression_count INTEGER NOT NULL DEFAULT 0,
	  engagement_rate REAL NOT NULL DEFAULT 0,
	  collected_at INTEGER NOT NULL,
	  UNIQUE(tweet_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_posts_user ON collected_posts(user_id, collected_at);
	CREATE TABLE IF NOT EXISTS drafts (
	  id TEXT PRIMARY KEY,
	  user_id TEXT NOT NULL,
	  text TEXT NOT NULL,
	  hashtags TEXT,
	  reasoning TEXT,
	  topic TEXT,
	  status TEXT NOT NULL,
	  filter TEXT,
	  created_at INTEGER NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_drafts_user ON drafts(user_id, status, created_at);
	CREATE TABLE IF NOT EXISTS linked_accounts (
	  user_id TEXT PRIMARY KEY,
	  x_user_id TEXT,
	  username TEXT,
	  access_token TEXT NOT NULL,
	  refresh_token TEXT,
	  expires_at INTEGER,
	  updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cursors (
	  key TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	`)
	return err
}

// SaveCursor stores a small named value, such as the last collection time.
func (d *DB) SaveCursor(ctx context.Context, key, value string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cursors(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

// LoadCursor returns the value for key and false when it was never saved.
func (d *DB) LoadCursor(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func millis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}
