// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/phusion-spawning/spawningkit/lib/codec"
	"github.com/phusion-spawning/spawningkit/lib/sqlitepool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS spawn_history (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at_unix_ms INTEGER NOT NULL,
	app_root           TEXT NOT NULL,
	config_digest      TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	pid                INTEGER NOT NULL,
	snapshot           BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS spawn_history_started_at ON spawn_history(started_at_unix_ms);
CREATE INDEX IF NOT EXISTS spawn_history_app_root ON spawn_history(app_root);
`

// Store is a connection-pooled handle to the spawn-history ledger.
type Store struct {
	pool *sqlitepool.Pool
}

// Open opens (creating if necessary) the SQLite ledger at path with
// the given pool size. A nil logger discards pool diagnostics.
func Open(path string, poolSize int, logger *slog.Logger) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schemaSQL, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Record appends one entry to the ledger. ID and StartedAt.UnixMilli
// precision are the only fields the database assigns; everything else
// is taken verbatim from e.
func (s *Store) Record(ctx context.Context, e Entry) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	defer s.pool.Put(conn)

	encoded, err := codec.Marshal(e.Snapshot)
	if err != nil {
		return fmt.Errorf("history: encoding snapshot: %w", err)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO spawn_history (started_at_unix_ms, app_root, config_digest, outcome, pid, snapshot)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{e.StartedAt.UnixMilli(), e.AppRoot, e.ConfigDigest, string(e.Outcome), int64(e.PID), encoded},
		})
	if err != nil {
		return fmt.Errorf("history: inserting entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for appRoot, most recent first.
// An empty appRoot matches every application.
func (s *Store) Recent(ctx context.Context, appRoot string, limit int) ([]Entry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer s.pool.Put(conn)

	query := `SELECT id, started_at_unix_ms, app_root, config_digest, outcome, pid, snapshot
	          FROM spawn_history`
	args := []any{}
	if appRoot != "" {
		query += ` WHERE app_root = ?`
		args = append(args, appRoot)
	}
	query += ` ORDER BY started_at_unix_ms DESC LIMIT ?`
	args = append(args, int64(limit))

	var entries []Entry
	var decodeErr error
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var snap Snapshot
			blob := make([]byte, stmt.ColumnLen(6))
			stmt.ColumnBytes(6, blob)
			if err := codec.Unmarshal(blob, &snap); err != nil {
				decodeErr = fmt.Errorf("history: decoding snapshot for row %d: %w", stmt.ColumnInt64(0), err)
				return nil
			}
			entries = append(entries, Entry{
				ID:           stmt.ColumnInt64(0),
				StartedAt:    time.UnixMilli(stmt.ColumnInt64(1)),
				AppRoot:      stmt.ColumnText(2),
				ConfigDigest: stmt.ColumnText(3),
				Outcome:      Outcome(stmt.ColumnText(4)),
				PID:          stmt.ColumnInt(5),
				Snapshot:     snap,
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: querying entries: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return entries, nil
}
