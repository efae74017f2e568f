package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// SQLiteOptions configures a SQLiteStore.
type SQLiteOptions struct {
	// MaxRetries bounds attempts for writes failing with SQLITE_BUSY or a
	// locked database.
	MaxRetries int
	// RetryDelay is the base backoff delay, doubled after every attempt.
	RetryDelay time.Duration
	Logger     logging.Logger
}

// SQLiteStore persists sessions and messages in a SQLite database. Session
// rows hold the JSON encoded session; messages are kept in append order by a
// per-session sequence number.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
	opts    SQLiteOptions
	logger  logging.Logger
}

// NewSQLiteStore opens (creating when needed) the database at path.
func NewSQLiteStore(path string, optFns ...func(o *SQLiteOptions)) (*SQLiteStore, error) {
	opts := SQLiteOptions{
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, opts: opts, logger: logging.OrNoOp(opts.Logger)}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		data TEXT NOT NULL,
		UNIQUE(session_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts a new session row.
func (s *SQLiteStore) Create(ctx context.Context, sess *core.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("%w: missing id", core.ErrInvalidSession)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.withRetry(ctx, "create", func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			sess.ID, string(data), sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano())
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", core.ErrDuplicateSessionID, sess.ID)
			}
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// Get loads a session by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Session, error) {
	return getSession(ctx, s.db, id)
}

// List returns all sessions, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*core.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sessions ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*core.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		var sess core.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// Update performs fn inside a transaction. The row is read, mutated and
// written back only if fn returns nil.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn core.UpdateFunc) (*core.Session, error) {
	var updated *core.Session
	err := s.inTx(ctx, "update", func(tx *sql.Tx) error {
		next, err := updateSession(ctx, tx, id, fn)
		if err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, unwrapCallback(err)
	}
	return updated, nil
}

// AppendTurn applies fn to the session and inserts m in one transaction.
func (s *SQLiteStore) AppendTurn(ctx context.Context, m core.Message, fn core.UpdateFunc) (*core.Session, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	var updated *core.Session
	err = s.inTx(ctx, "append turn", func(tx *sql.Tx) error {
		next, err := updateSession(ctx, tx, m.SessionID, fn)
		if err != nil {
			return err
		}
		if err := insertMessage(ctx, tx, m, data); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, unwrapCallback(err)
	}
	return updated, nil
}

// AppendMessage stores m after the session's last message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, m core.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return s.inTx(ctx, "append", func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, m.SessionID); err != nil {
			return err
		}
		return insertMessage(ctx, tx, m, data)
	})
}

// inTx runs fn in a write transaction under the writer lock, retrying on
// contention.
func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return s.withRetry(ctx, op, func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

func updateSession(ctx context.Context, tx *sql.Tx, id string, fn core.UpdateFunc) (*core.Session, error) {
	cur, err := getSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, &callbackError{err: err}
	}
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET data = ?, updated_at = ? WHERE id = ?`,
		string(data), next.UpdatedAt.UnixNano(), id); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return next, nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, m core.Message, data []byte) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, seq, data)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ? FROM messages WHERE session_id = ?`,
		m.ID, m.SessionID, string(data), m.SessionID); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the session's messages in append order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]core.Message, error) {
	if err := sessionExists(ctx, s.db, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []core.Message{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		var m core.Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// withRetry re-runs op with exponential backoff while SQLite reports
// contention: 100ms, 200ms, 400ms with the default options.
func (s *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < s.opts.MaxRetries; i++ {
		err = fn()
		if err == nil || !IsConflictError(err) {
			return err
		}
		if i == s.opts.MaxRetries-1 {
			break
		}
		delay := s.opts.RetryDelay * time.Duration(1<<i)
		s.logger.Debug("sqlite write contended, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, s.opts.MaxRetries, err)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSession(ctx context.Context, q querier, id string) (*core.Session, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	var sess core.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func sessionExists(ctx context.Context, q querier, id string) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	return nil
}

// callbackError carries an UpdateFunc error out of the retry loop untouched.
type callbackError struct{ err error }

func (e *callbackError) Error() string { return e.err.Error() }
func (e *callbackError) Unwrap() error { return e.err }

func unwrapCallback(err error) error {
	var cbErr *callbackError
	if errors.As(err, &cbErr) {
		return cbErr.err
	}
	return err
}

// IsBusyError reports whether err is a SQLITE_BUSY error.
func IsBusyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsLockedError reports whether err is a "database is locked" error.
func IsLockedError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// IsConflictError reports whether err is a retryable SQLite contention error.
func IsConflictError(err error) bool {
	var cbErr *callbackError
	if errors.As(err, &cbErr) {
		return false
	}
	return IsBusyError(err) || IsLockedError(err)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
