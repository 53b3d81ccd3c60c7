package session

import (
	"context"
	"sync"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
)

// ErrNotConnected is returned while no session is active.
var ErrNotConnected = errs.New(errs.ErrKindNotConnected, "Please connect to a database first.")

// Manager owns the single active session. Connect replaces the previous
// session wholesale and closes it. Manager satisfies the schema-provider
// and executor contracts of the nl2sql package by delegating to the
// active session.
type Manager struct {
	connector *Connector

	mu      sync.RWMutex
	current *Session
}

// NewManager returns a Manager with no active session.
func NewManager(c *Connector) *Manager {
	return &Manager{connector: c}
}

// Connect opens location and makes it the active session. On failure the
// previous session stays active.
func (m *Manager) Connect(ctx context.Context, location string) (*Session, error) {
	s, err := m.connector.Connect(ctx, location)
	if err != nil {
		return nil, err
	}
	m.swap(s)
	return s, nil
}

// Attach makes an already open session the active one.
func (m *Manager) Attach(s *Session) {
	m.swap(s)
}

func (m *Manager) swap(s *Session) {
	m.mu.Lock()
	old := m.current
	m.current = s
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Disconnect closes the active session, if any.
func (m *Manager) Disconnect() {
	m.swap(nil)
}

// Current returns the active session or ErrNotConnected.
func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, ErrNotConnected
	}
	return m.current, nil
}

// Check returns ErrNotConnected while no session is active.
func (m *Manager) Check() error {
	_, err := m.Current()
	return err
}

// Connected reports whether a session is active.
func (m *Manager) Connected() bool {
	_, err := m.Current()
	return err == nil
}

// Describe returns the active session's schema text.
func (m *Manager) Describe(ctx context.Context) (string, error) {
	s, err := m.Current()
	if err != nil {
		return "", err
	}
	return s.Describe(ctx)
}

// Execute runs sql on the active session.
func (m *Manager) Execute(ctx context.Context, sql string) (*database.Result, error) {
	s, err := m.Current()
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, sql)
}

// Dialect is the active session's engine name, SQLite when none is active.
func (m *Manager) Dialect() string {
	s, err := m.Current()
	if err != nil {
		return database.DriverSQLite.Dialect()
	}
	return s.Dialect()
}

// Close closes the active session.
func (m *Manager) Close() {
	m.Disconnect()
}
