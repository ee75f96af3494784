// Package testutil provides shared test helpers: in-memory and failing
// key/value stores, SQLite-backed stores in temp dirs, a canned AI
// searcher and quiet loggers.
package testutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/pagebook/internal/aisearch"
	"github.com/starford/pagebook/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MemoryKV is an in-memory storage.KV that counts writes.
type MemoryKV struct {
	mu     sync.Mutex
	data   map[string]string
	Writes int
	// FailWrites makes Set return ErrWriteFailed.
	FailWrites bool
	// FailReads makes Get return ErrReadFailed.
	FailReads bool
}

var (
	// ErrWriteFailed is returned by MemoryKV.Set when FailWrites is true.
	ErrWriteFailed = errors.New("quota exceeded")
	// ErrReadFailed is returned by MemoryKV.Get when FailReads is true.
	ErrReadFailed = errors.New("database is locked")
)

var _ storage.KV = (*MemoryKV)(nil)

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

// Get implements storage.KV.
func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads {
		return "", false, ErrReadFailed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements storage.KV.
func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return ErrWriteFailed
	}
	m.data[key] = value
	m.Writes++
	return nil
}

// Delete implements storage.KV.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close implements storage.KV.
func (m *MemoryKV) Close() error { return nil }

// Value returns the raw stored value for key.
func (m *MemoryKV) Value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// SetFail toggles write failures.
func (m *MemoryKV) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWrites = fail
}

// WriteCount returns the number of successful writes.
func (m *MemoryKV) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Writes
}

// SQLiteKV creates a SQLite-backed KV in a temp dir that is cleaned up.
func SQLiteKV(t *testing.T) storage.KV {
	t.Helper()
	kv, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

// StaticSearcher is an aisearch.Searcher returning a fixed answer.
type StaticSearcher struct {
	Result aisearch.Result
	Err    error
	NoKey  bool
	// OnSearch, if set, runs before the answer is returned.
	OnSearch func()

	mu      sync.Mutex
	Prompts []string
}

// GenerateWithSearch records prompt and returns the canned answer.
func (s *StaticSearcher) GenerateWithSearch(_ context.Context, prompt string) (aisearch.Result, error) {
	s.mu.Lock()
	s.Prompts = append(s.Prompts, prompt)
	s.mu.Unlock()
	if s.OnSearch != nil {
		s.OnSearch()
	}
	return s.Result, s.Err
}

// HasCredential reports whether the searcher pretends to be configured.
func (s *StaticSearcher) HasCredential() bool { return !s.NoKey }
