package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteArchive struct {
	db *sql.DB
}

var _ Archive = &SQLiteArchive{}

func NewSQLiteArchive(dsn string) (*SQLiteArchive, error) {
	if dsn == "" {
		return nil, errors.New("sqlite archive: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	a := &SQLiteArchive{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// SQLiteDSNForFile returns a DSN with WAL and a busy timeout for a database file.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite archive: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (a *SQLiteArchive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *SQLiteArchive) Record(ctx context.Context, rec Record) error {
	if a == nil || a.db == nil {
		return errors.New("sqlite archive: db is nil")
	}
	if strings.TrimSpace(rec.RequestID) == "" {
		return errors.New("sqlite archive: request id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO request_outcomes (
			request_id, parent_id, prompt_name, query, model, status,
			text, error, abort_reason, created_at_ms, finished_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			status = excluded.status,
			text = excluded.text,
			error = excluded.error,
			abort_reason = excluded.abort_reason,
			finished_at_ms = excluded.finished_at_ms
	`, rec.RequestID, rec.ParentID, rec.PromptName, rec.Query, rec.Model, rec.Status,
		rec.Text, rec.Error, rec.AbortReason, rec.CreatedAtMs, rec.FinishedMs)
	if err != nil {
		return errors.Wrap(err, "sqlite archive: insert outcome")
	}
	return nil
}

func (a *SQLiteArchive) Recent(ctx context.Context, limit int) ([]Record, error) {
	if a == nil || a.db == nil {
		return nil, errors.New("sqlite archive: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT request_id, parent_id, prompt_name, query, model, status,
		       text, error, abort_reason, created_at_ms, finished_at_ms
		FROM request_outcomes
		ORDER BY finished_at_ms DESC, created_at_ms DESC, request_id ASC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "sqlite archive: query outcomes")
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.RequestID,
			&rec.ParentID,
			&rec.PromptName,
			&rec.Query,
			&rec.Model,
			&rec.Status,
			&rec.Text,
			&rec.Error,
			&rec.AbortReason,
			&rec.CreatedAtMs,
			&rec.FinishedMs,
		); err != nil {
			return nil, errors.Wrap(err, "sqlite archive: scan outcome")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite archive: iterate outcomes")
	}
	return out, nil
}

func (a *SQLiteArchive) migrate() error {
	if a == nil || a.db == nil {
		return errors.New("sqlite archive: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS request_outcomes (
		  request_id TEXT PRIMARY KEY,
		  parent_id TEXT NOT NULL DEFAULT '',
		  prompt_name TEXT NOT NULL DEFAULT '',
		  query TEXT NOT NULL DEFAULT '',
		  model TEXT NOT NULL DEFAULT '',
		  status TEXT NOT NULL,
		  text TEXT NOT NULL DEFAULT '',
		  error TEXT NOT NULL DEFAULT '',
		  abort_reason TEXT NOT NULL DEFAULT '',
		  created_at_ms INTEGER NOT NULL,
		  finished_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS request_outcomes_by_finished
		  ON request_outcomes(finished_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS request_outcomes_by_parent
		  ON request_outcomes(parent_id);`,
	}
	for _, st := range stmts {
		if _, err := a.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite archive: migrate")
		}
	}
	return nil
}
