package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS history (
	id            TEXT PRIMARY KEY,
	executed_at   INTEGER NOT NULL,
	environment   TEXT NOT NULL DEFAULT '',
	collection    TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	request_name  TEXT NOT NULL DEFAULT '',
	method        TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	status_code   INTEGER NOT NULL DEFAULT 0,
	duration_ns   INTEGER NOT NULL DEFAULT 0,
	size          INTEGER NOT NULL DEFAULT 0,
	body_snippet  TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	tests_passed  INTEGER NOT NULL DEFAULT 0,
	tests_failed  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS history_executed_at ON history (executed_at DESC, id DESC);
`

const selectColumns = `id, executed_at, environment, collection, request_id, request_name,
	method, url, status, status_code, duration_ns, size, body_snippet, error,
	tests_passed, tests_failed`

// SQLiteStore keeps history in a single-writer SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	maxEntries int
}

func OpenSQLite(ctx context.Context, path string, maxEntries int) (*SQLiteStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if path == "" {
		return nil, errdef.New(errdef.CodeHistory, "history database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "create history dir")
	}

	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	dsn := fmt.Sprintf("file:%s?%s", path, params.Encode())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "open history database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errdef.Wrap(errdef.CodeHistory, err, "ping history database")
	}
	if _, err := db.ExecContext(ctx, createHistoryTable); err != nil {
		_ = db.Close()
		return nil, errdef.Wrap(errdef.CodeHistory, err, "create history table")
	}
	return &SQLiteStore{db: db, maxEntries: maxEntries}, nil
}

func (s *SQLiteStore) Append(entry Entry) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "begin history write")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO history (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ExecutedAt.UnixNano(), entry.Environment, entry.Collection,
		entry.RequestID, entry.RequestName, entry.Method, entry.URL, entry.Status,
		entry.StatusCode, int64(entry.Duration), entry.Size, entry.BodySnippet,
		entry.Error, entry.TestsPassed, entry.TestsFailed,
	)
	if err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "insert history entry")
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM history WHERE id NOT IN (
		SELECT id FROM history ORDER BY executed_at DESC, id DESC LIMIT ?)`, s.maxEntries)
	if err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "trim history")
	}
	if err := tx.Commit(); err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "commit history write")
	}
	return nil
}

func (s *SQLiteStore) Entries() ([]Entry, error) {
	return s.query(`SELECT ` + selectColumns + ` FROM history ORDER BY executed_at DESC, id DESC`)
}

func (s *SQLiteStore) ByRequest(identifier string) ([]Entry, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return s.Entries()
	}
	return s.query(`SELECT `+selectColumns+` FROM history
		WHERE request_id = ? OR request_name = ? OR url = ?
		ORDER BY executed_at DESC, id DESC`, identifier, identifier, identifier)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(context.Background(), q, args...)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "query history")
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			executed int64
			duration int64
		)
		if err := rows.Scan(&e.ID, &executed, &e.Environment, &e.Collection, &e.RequestID,
			&e.RequestName, &e.Method, &e.URL, &e.Status, &e.StatusCode, &duration, &e.Size,
			&e.BodySnippet, &e.Error, &e.TestsPassed, &e.TestsFailed); err != nil {
			return nil, errdef.Wrap(errdef.CodeHistory, err, "scan history row")
		}
		e.ExecutedAt = time.Unix(0, executed).UTC()
		e.Duration = time.Duration(duration)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "read history rows")
	}
	return entries, nil
}
