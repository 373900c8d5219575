package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL placeholder syntax.
type Dialect int

const (
	// DialectSQLite uses ? placeholders.
	DialectSQLite Dialect = iota
	// DialectPostgres uses $n placeholders.
	DialectPostgres
)

const (
	migrateQuery = `
	CREATE TABLE IF NOT EXISTS tally_jobs (
		job_key TEXT PRIMARY KEY,
		external_id TEXT NOT NULL,
		expected_assignments INTEGER NOT NULL,
		reset_generation INTEGER
	)`

	existsQuery = `SELECT 1 FROM tally_jobs WHERE job_key = ?`

	getQuery = `
	SELECT job_key, external_id, expected_assignments, reset_generation
	FROM tally_jobs
	WHERE job_key = ?`

	upsertQuery = `
	INSERT INTO tally_jobs (job_key, external_id, expected_assignments, reset_generation)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (job_key) DO UPDATE SET
		external_id = excluded.external_id,
		expected_assignments = excluded.expected_assignments,
		reset_generation = excluded.reset_generation`

	deleteQuery = `DELETE FROM tally_jobs WHERE job_key = ?`

	keysQuery = `SELECT job_key FROM tally_jobs ORDER BY job_key`
)

// SQLStore keeps the ledger in a SQL database.
// The store owns the connection pool; each session holds one dedicated
// connection for its lifetime and returns it on Close.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database and creates the jobs table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if _, err := db.ExecContext(ctx, migrateQuery); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return s, nil
}

// NewSQLiteStore opens (creating if needed) a SQLite ledger file.
// A leading "~/" in path is expanded to the user's home directory.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(expanded); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+expanded+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
	}

	store, err := NewSQLStore(ctx, db, DialectSQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore connects to Postgres and creates the jobs table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres ledger: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres not reachable: %w", err)
	}

	store, err := NewSQLStore(ctx, db, DialectPostgres)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the connection pool. Implements io.Closer.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Open takes a dedicated connection from the pool.
func (s *SQLStore) Open(ctx context.Context, mode Mode) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire ledger connection: %w", err)
	}
	return &sqlSession{conn: conn, dialect: s.dialect, mode: mode}, nil
}

type sqlSession struct {
	conn    *sql.Conn
	dialect Dialect
	mode    Mode
	closed  bool
}

func (s *sqlSession) usable(write bool) error {
	if s.closed {
		return ErrClosed
	}
	if write && s.mode == ReadOnly {
		return ErrReadOnly
	}
	return nil
}

func (s *sqlSession) query(q string) string {
	return rebind(s.dialect, q)
}

func (s *sqlSession) Has(ctx context.Context, key string) (bool, error) {
	if err := s.usable(false); err != nil {
		return false, err
	}
	if key == "" {
		return false, nil
	}

	var one int
	err := s.conn.QueryRowContext(ctx, s.query(existsQuery), key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}
	return true, nil
}

func (s *sqlSession) Get(ctx context.Context, key string) (*Job, error) {
	if err := s.usable(false); err != nil {
		return nil, err
	}

	var (
		job        Job
		generation sql.NullInt64
	)
	err := s.conn.QueryRowContext(ctx, s.query(getQuery), key).
		Scan(&job.Key, &job.ExternalID, &job.ExpectedAssignments, &generation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", key, err)
	}

	if generation.Valid {
		g := int(generation.Int64)
		job.ResetGeneration = &g
	}
	return &job, nil
}

func (s *sqlSession) Put(ctx context.Context, job *Job) error {
	if err := s.usable(true); err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	var generation sql.NullInt64
	if job.ResetGeneration != nil {
		generation = sql.NullInt64{Int64: int64(*job.ResetGeneration), Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, s.query(upsertQuery),
		job.Key, job.ExternalID, job.ExpectedAssignments, generation)
	if err != nil {
		return fmt.Errorf("failed to write job %s: %w", job.Key, err)
	}
	return nil
}

func (s *sqlSession) Remove(ctx context.Context, job *Job) error {
	if err := s.usable(true); err != nil {
		return err
	}

	if _, err := s.conn.ExecContext(ctx, s.query(deleteQuery), job.Key); err != nil {
		return fmt.Errorf("failed to remove job %s: %w", job.Key, err)
	}
	return nil
}

func (s *sqlSession) Keys(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := s.usable(false); err != nil {
			yield("", err)
			return
		}

		rows, err := s.conn.QueryContext(ctx, s.query(keysQuery))
		if err != nil {
			yield("", fmt.Errorf("failed to list job keys: %w", err))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				yield("", fmt.Errorf("failed to scan job key: %w", err))
				return
			}
			if !yield(key, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield("", fmt.Errorf("failed to list job keys: %w", err))
		}
	}
}

func (s *sqlSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
