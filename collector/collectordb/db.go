// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

// Package collectordb persists log messages into a single-file SQLite
// database.
package collectordb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // register sqlite to sql
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/heety313/ironlog/pkg/logmsg"
)

var (
	mon = monkit.Package()

	// Error is the default collectordb error class.
	Error = errs.Class("collectordb")
)

// HashCount is a stream id together with its persisted row count.
type HashCount struct {
	Hash  string
	Count int64
}

// SelectOptions restricts a per-stream read. Zero values leave the
// corresponding predicate off; Start and End are compared as strings, which
// matches chronological order for normalized timestamps.
type SelectOptions struct {
	Start string
	End   string
	Limit int
}

// DB is the log store. Operations are serialized with a mutex; SQLite has a
// single writer anyway and WAL keeps the file readable while we hold it.
type DB struct {
	log  *zap.Logger
	path string

	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, log *zap.Logger, path string) (db *DB, err error) {
	defer mon.Task()(&ctx)(&err)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, Error.Wrap(err)
		}
	}

	sqlite, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_mutex=full", path))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	defer func() {
		if err != nil {
			_ = sqlite.Close()
		}
	}()

	// try to enable write-ahead-logging and the usual tuning
	_, _ = sqlite.ExecContext(ctx, `PRAGMA journal_mode = WAL`)
	_, _ = sqlite.ExecContext(ctx, `PRAGMA synchronous = NORMAL`)
	_, _ = sqlite.ExecContext(ctx, `PRAGMA cache_size = -64000`)

	tx, err := sqlite.BeginTx(ctx, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level TEXT,
			message TEXT,
			target TEXT,
			module_path TEXT,
			file TEXT,
			line INTEGER,
			hash TEXT,
			timestamp TEXT
		)`)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_logs_hash_timestamp ON logs (hash, timestamp)`)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, Error.Wrap(err)
	}

	return &DB{
		log:  log,
		path: path,
		db:   sqlite,
	}, nil
}

// Close the database
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

func (db *DB) locked() func() {
	db.mu.Lock()
	return db.mu.Unlock
}

// InsertBatch writes all records in a single transaction, commit-all-or-fail.
func (db *DB) InsertBatch(ctx context.Context, batch []logmsg.LogMessage) (err error) {
	defer mon.Task()(&ctx)(&err)

	if len(batch) == 0 {
		return nil
	}
	defer db.locked()()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO logs (level, message, target, module_path, file, line, hash, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { _ = stmt.Close() }()

	for _, msg := range batch {
		_, err := stmt.ExecContext(ctx,
			msg.Level, msg.Message, msg.Target,
			msg.ModulePath, msg.File, msg.Line,
			msg.Hash, msg.Timestamp)
		if err != nil {
			return Error.Wrap(err)
		}
	}

	return Error.Wrap(tx.Commit())
}

// DistinctHashes returns all stream ids present in the store.
func (db *DB) DistinctHashes(ctx context.Context) (hashes []string, err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	rows, err := db.db.QueryContext(ctx, `SELECT DISTINCT hash FROM logs`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	hashes = []string{}
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, Error.Wrap(err)
		}
		hashes = append(hashes, hash)
	}
	return hashes, Error.Wrap(rows.Err())
}

// TopHashes returns up to limit stream ids ordered by row count descending,
// used for reseeding the admission cache from persisted truth.
func (db *DB) TopHashes(ctx context.Context, limit int) (top []HashCount, err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	rows, err := db.db.QueryContext(ctx, `
		SELECT hash, COUNT(*) as count
		FROM logs
		GROUP BY hash
		ORDER BY count DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	for rows.Next() {
		var hc HashCount
		if err := rows.Scan(&hc.Hash, &hc.Count); err != nil {
			return nil, Error.Wrap(err)
		}
		top = append(top, hc)
	}
	return top, Error.Wrap(rows.Err())
}

// CountForHash returns the number of persisted rows for a stream id.
func (db *DB) CountForHash(ctx context.Context, hash string) (count int64, err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	err = db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs WHERE hash = ?`, hash).Scan(&count)
	return count, Error.Wrap(err)
}

// TrimHash deletes the n oldest rows for a stream id, oldest by timestamp.
func (db *DB) TrimHash(ctx context.Context, hash string, n int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	if n <= 0 {
		return nil
	}
	defer db.locked()()

	_, err = db.db.ExecContext(ctx, `
		DELETE FROM logs
		WHERE id IN (
			SELECT id FROM logs
			WHERE hash = ?
			ORDER BY timestamp ASC
			LIMIT ?
		)`, hash, n)
	return Error.Wrap(err)
}

// SelectByHash returns records for a stream id, newest first. Each predicate
// in opts is applied independently. An unknown hash yields an empty list.
func (db *DB) SelectByHash(ctx context.Context, hash string, opts SelectOptions) (logs []logmsg.LogMessage, err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	query := `
		SELECT level, message, target, module_path, file, line, hash, timestamp
		FROM logs
		WHERE hash = ?`
	args := []interface{}{hash}

	if opts.Start != "" {
		query += ` AND timestamp >= ?`
		args = append(args, opts.Start)
	}
	if opts.End != "" {
		query += ` AND timestamp <= ?`
		args = append(args, opts.End)
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	logs = []logmsg.LogMessage{}
	for rows.Next() {
		var msg logmsg.LogMessage
		err := rows.Scan(&msg.Level, &msg.Message, &msg.Target,
			&msg.ModulePath, &msg.File, &msg.Line,
			&msg.Hash, &msg.Timestamp)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		logs = append(logs, msg)
	}
	return logs, Error.Wrap(rows.Err())
}

// DateRange returns the minimum and maximum persisted timestamps. Both are
// empty when the store holds no rows.
func (db *DB) DateRange(ctx context.Context) (min, max string, err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	var nullMin, nullMax sql.NullString
	err = db.db.QueryRowContext(ctx, `SELECT MIN(timestamp), MAX(timestamp) FROM logs`).Scan(&nullMin, &nullMax)
	if err != nil {
		return "", "", Error.Wrap(err)
	}
	return nullMin.String, nullMax.String, nil
}

// TotalCount returns the total number of persisted rows.
func (db *DB) TotalCount(ctx context.Context) (count int64, err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	err = db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&count)
	return count, Error.Wrap(err)
}

// PurgeAll deletes every persisted row.
func (db *DB) PurgeAll(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer db.locked()()

	_, err = db.db.ExecContext(ctx, `DELETE FROM logs`)
	return Error.Wrap(err)
}

// SizeBytes returns the size of the database file on disk.
func (db *DB) SizeBytes() (int64, error) {
	info, err := os.Stat(db.path)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return info.Size(), nil
}
