package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
)

// ErrClosed is returned by a session used after Close, typically because
// another database was connected in the meantime.
var ErrClosed = errs.New(errs.ErrKindNotConnected, "the database session was closed")

// Session is one open, read-only database connection plus its cached
// schema description. It is safe for concurrent use.
type Session struct {
	db           database.DB
	location     string
	maxRows      int
	queryTimeout time.Duration
	sampleRows   int

	mu     sync.Mutex
	schema string
	cached bool

	closed atomic.Bool
}

// NewSession wraps an already open database. The session owns db.
func NewSession(db database.DB, location string, maxRows int, queryTimeout time.Duration, sampleRows int) *Session {
	return &Session{
		db:           db,
		location:     Redact(location),
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
		sampleRows:   sampleRows,
	}
}

// Location is the connected location with any password redacted.
func (s *Session) Location() string { return s.location }

// Driver is the engine behind the session.
func (s *Session) Driver() database.Driver { return s.db.Driver() }

// Dialect is the engine name used in prompts.
func (s *Session) Dialect() string { return s.db.Driver().Dialect() }

// Describe returns the schema text. The first call renders it; later calls
// return the cached copy until Refresh.
func (s *Session) Describe(ctx context.Context) (string, error) {
	if err := s.Check(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached {
		return s.schema, nil
	}
	text, err := database.DescribeSchema(ctx, s.db, database.DescribeOptions{SampleRows: s.sampleRows})
	if err != nil {
		return "", err
	}
	s.schema, s.cached = text, true
	return text, nil
}

// Refresh drops the cached schema text.
func (s *Session) Refresh() {
	s.mu.Lock()
	s.schema, s.cached = "", false
	s.mu.Unlock()
}

// Tables lists the table names visible to the session.
func (s *Session) Tables(ctx context.Context) ([]string, error) {
	return s.db.ListTables(ctx)
}

// Execute runs a single read-only statement and returns at most maxRows
// rows. Writes and stacked statements are rejected before reaching the
// engine; the engine's own read-only mode backs that up.
func (s *Session) Execute(ctx context.Context, sql string) (*database.Result, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	if err := database.CheckReadOnly(sql); err != nil {
		return nil, err
	}

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return database.ScanResult(rows, s.maxRows)
}

// Check reports ErrClosed once the session has been closed.
func (s *Session) Check() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close releases the connection. Later calls are no-ops.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.db.Close()
}
