// Package testutil provides shared test helpers for vaults, history databases
// and fake metadata sources.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/ogfetch/internal/index"
	"github.com/starford/ogfetch/internal/metadata"
	"github.com/starford/ogfetch/internal/storage"
)

// TestDB creates a temporary SQLite history database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ogfetch-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory seeded with files.
func TestVault(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	for p, content := range files {
		if err := store.Write(p, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	return vaultDir, store
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Fetcher is a scripted metadata source. Records maps URL to result; URLs
// listed in Errors fail with the given error. Unknown URLs fail with Err.
type Fetcher struct {
	mu      sync.Mutex
	Records map[string]metadata.Record
	Errors  map[string]error
	Err     error
	calls   []string
}

// FetchMetadata implements the service's fetcher contract.
func (f *Fetcher) FetchMetadata(ctx context.Context, url string) (metadata.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err := ctx.Err(); err != nil {
		return metadata.Record{}, err
	}
	if err, ok := f.Errors[url]; ok {
		return metadata.Record{}, err
	}
	if rec, ok := f.Records[url]; ok {
		return rec, nil
	}
	if f.Err != nil {
		return metadata.Record{}, f.Err
	}
	return metadata.Record{URL: url, Title: url}, nil
}

// Calls returns the URLs fetched so far.
func (f *Fetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Sleeper records requested waits without sleeping.
type Sleeper struct {
	mu    sync.Mutex
	waits []time.Duration
	// OnSleep, when set, runs on every call.
	OnSleep func()
}

// Sleep records d and returns ctx.Err().
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	hook := s.OnSleep
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

// Waits returns the recorded durations.
func (s *Sleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}
