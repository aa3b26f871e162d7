// Package postgres implements the coordination store on PostgreSQL through
// the pgx database/sql driver.
//
// Queues are tables drained with FOR UPDATE SKIP LOCKED, counters and dedup
// keys are single conditional upserts, so every store operation is one
// atomic statement.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobeaver/filescan"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS filescan_queue (
  id BIGSERIAL PRIMARY KEY,
  submission_id TEXT NOT NULL,
  payload BYTEA NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS filescan_results (
  id BIGSERIAL PRIMARY KEY,
  submission_id TEXT NOT NULL,
  payload BYTEA NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_filescan_results_submission ON filescan_results (submission_id, id);

CREATE TABLE IF NOT EXISTS filescan_counters (
  key TEXT PRIMARY KEY,
  value BIGINT NOT NULL,
  expires_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS filescan_keys (
  key TEXT PRIMARY KEY,
  expires_at TIMESTAMP WITH TIME ZONE NOT NULL
);
`

const (
	enqueueSQL = `INSERT INTO filescan_queue (submission_id, payload) VALUES ($1, $2)`

	dequeueSQL = `
DELETE FROM filescan_queue
WHERE id = (SELECT id FROM filescan_queue ORDER BY id FOR UPDATE SKIP LOCKED LIMIT 1)
RETURNING payload`

	uploadSQL = `INSERT INTO filescan_results (submission_id, payload) VALUES ($1, $2)`

	popResultSQL = `
DELETE FROM filescan_results
WHERE id = (
  SELECT id FROM filescan_results WHERE submission_id = $1
  ORDER BY id FOR UPDATE SKIP LOCKED LIMIT 1
)
RETURNING payload`

	// A row comes back only when the increment was applied. An expired
	// counter restarts from zero and values never drop below zero.
	incrementSQL = `
INSERT INTO filescan_counters (key, value, expires_at)
SELECT $1::text, GREATEST($2::bigint, 0), $4::timestamptz
WHERE $2::bigint < 0 OR $2::bigint <= $3::bigint
ON CONFLICT (key) DO UPDATE
  SET value = GREATEST(
        CASE WHEN filescan_counters.expires_at <= NOW() THEN 0 ELSE filescan_counters.value END
          + $2::bigint,
        0),
      expires_at = CASE WHEN filescan_counters.expires_at <= NOW()
        THEN EXCLUDED.expires_at ELSE filescan_counters.expires_at END
  WHERE $2::bigint < 0
     OR CASE WHEN filescan_counters.expires_at <= NOW() THEN 0 ELSE filescan_counters.value END
          + $2::bigint <= $3::bigint
RETURNING value`

	// A row comes back only when the key was absent or expired.
	setIfAbsentSQL = `
INSERT INTO filescan_keys (key, expires_at) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE
  SET expires_at = EXCLUDED.expires_at
  WHERE filescan_keys.expires_at <= NOW()
RETURNING key`

	cleanupKeysSQL     = `DELETE FROM filescan_keys WHERE expires_at <= NOW()`
	cleanupCountersSQL = `DELETE FROM filescan_counters WHERE expires_at <= NOW()`
	// Results nobody popped within the counter TTL belong to abandoned
	// submissions.
	cleanupResultsSQL = `DELETE FROM filescan_results WHERE created_at <= $1`
)

// Store is a filescan.Store backed by PostgreSQL.
type Store struct {
	db              *sql.DB
	pollInterval    time.Duration
	counterTTL      time.Duration
	cleanupInterval time.Duration
	lastCleanup     atomic.Int64 // unix nanos

	schemaMu    sync.Mutex
	schemaReady bool
}

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets how often blocking pops re-check an empty table.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithCounterTTL sets how long submission counters are kept.
func WithCounterTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.counterTTL = d
		}
	}
}

// WithCleanupInterval sets how often expired rows are deleted. Zero or a
// negative value disables the periodic cleanup.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Store) {
		s.cleanupInterval = d
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres: empty DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify("ping", "", err)
	}
	return New(db, opts...), nil
}

// New wraps an existing database handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		pollInterval:    50 * time.Millisecond,
		counterTTL:      24 * time.Hour,
		cleanupInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastCleanup.Store(time.Now().UnixNano())
	return s
}

// ensureSchema creates the tables once. A failed attempt is retried on the
// next call.
func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classify("schema", "", err)
	}
	s.schemaReady = true
	return nil
}

// Enqueue implements filescan.Store.
func (s *Store) Enqueue(ctx context.Context, submissionID string, payload []byte) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, enqueueSQL, submissionID, payload); err != nil {
		return classify("enqueue", submissionID, err)
	}
	return nil
}

// Dequeue implements filescan.Store.
func (s *Store) Dequeue(ctx context.Context, block bool, timeout time.Duration) ([]byte, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if !block {
		timeout = 0
	}
	s.maybeCleanup(ctx)
	return s.poll(ctx, "dequeue", "", timeout, func() *sql.Row {
		return s.db.QueryRowContext(ctx, dequeueSQL)
	})
}

// UploadResult implements filescan.Store.
func (s *Store) UploadResult(ctx context.Context, submissionID string, payload []byte) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, uploadSQL, submissionID, payload); err != nil {
		return classify("upload result", submissionID, err)
	}
	return nil
}

// PopResult implements filescan.Store.
func (s *Store) PopResult(ctx context.Context, submissionID string, timeout time.Duration) ([]byte, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s.poll(ctx, "pop result", submissionID, timeout, func() *sql.Row {
		return s.db.QueryRowContext(ctx, popResultSQL, submissionID)
	})
}

// poll runs query until it yields a payload or timeout elapses.
func (s *Store) poll(ctx context.Context, op, key string, timeout time.Duration, query func() *sql.Row) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		var payload []byte
		err := query().Scan(&payload)
		switch {
		case err == nil:
			return payload, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, classify(op, key, err)
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, filescan.ErrQueueEmpty
		}
		if wait > s.pollInterval {
			wait = s.pollInterval
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// IncrementIfUnderLimit implements filescan.Store.
func (s *Store) IncrementIfUnderLimit(ctx context.Context, key string, amount, limit int64) (bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}
	var value int64
	err := s.db.QueryRowContext(ctx, incrementSQL, key, amount, limit, time.Now().Add(s.counterTTL)).Scan(&value)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, classify("increment", key, err)
	}
}

// SetIfAbsent implements filescan.Store.
func (s *Store) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}
	var got string
	err := s.db.QueryRowContext(ctx, setIfAbsentSQL, key, time.Now().Add(ttl)).Scan(&got)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, classify("set if absent", key, err)
	}
}

// Cleanup deletes expired dedup keys and counters, and results older than
// the counter TTL.
func (s *Store) Cleanup(ctx context.Context) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, cleanupKeysSQL); err != nil {
		return classify("cleanup", "keys", err)
	}
	if _, err := s.db.ExecContext(ctx, cleanupCountersSQL); err != nil {
		return classify("cleanup", "counters", err)
	}
	if _, err := s.db.ExecContext(ctx, cleanupResultsSQL, time.Now().Add(-s.counterTTL)); err != nil {
		return classify("cleanup", "results", err)
	}
	return nil
}

// cleanupDue reports whether the caller won the right to run the periodic
// cleanup at now. At most one caller wins per interval.
func (s *Store) cleanupDue(now time.Time) bool {
	if s.cleanupInterval <= 0 {
		return false
	}
	last := s.lastCleanup.Load()
	if now.Sub(time.Unix(0, last)) < s.cleanupInterval {
		return false
	}
	return s.lastCleanup.CompareAndSwap(last, now.UnixNano())
}

// maybeCleanup runs Cleanup when it is due. Failures are left for the next
// interval; they never fail the calling operation.
func (s *Store) maybeCleanup(ctx context.Context) {
	if s.cleanupDue(time.Now()) {
		_ = s.Cleanup(ctx)
	}
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// classify wraps transport faults as store unavailability and leaves
// everything else, such as SQL errors, as a plain StoreError.
func classify(op, key string, err error) error {
	if isUnavailable(err) {
		return filescan.Unavailable(op, key, err)
	}
	return &filescan.StoreError{Op: op, Key: key, Err: err}
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			strings.HasPrefix(pgErr.Code, "57P"), // operator intervention
			pgErr.Code == "40001", pgErr.Code == "40P01": // serialization failure, deadlock
			return true
		}
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

var _ filescan.Store = (*Store)(nil)
