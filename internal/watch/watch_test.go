package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// recorder collects callback events.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) cb(kind, path string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+path)
	r.mu.Unlock()
}

func (r *recorder) has(ev string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == ev {
			return true
		}
	}
	return false
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func startWatch(t *testing.T, dir string, rec *recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go Watch(ctx, dir, 50*time.Millisecond, quietLogger(), rec.cb)
	time.Sleep(100 * time.Millisecond)
}

func TestWatch_NewFileReported(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatch(t, dir, rec)

	_ = os.WriteFile(filepath.Join(dir, "new.md"), []byte("---\nurl: u\n---\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:new.md")
	}, "expected created:new.md callback")
}

func TestWatch_NewDirWatched(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatch(t, dir, rec)

	sub := filepath.Join(dir, "subdir")
	_ = os.MkdirAll(sub, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:subdir/deep.md") || rec.has("updated:subdir/deep.md")
	}, "file in new subdir not reported")
}

func TestWatch_IgnoresNonMarkdown(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatch(t, dir, rec)

	_ = os.WriteFile(filepath.Join(dir, "image.png"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "note.md"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:note.md")
	}, "markdown file not reported")
	for _, e := range rec.all() {
		if filepath.Ext(e) != ".md" {
			t.Errorf("unexpected event %q", e)
		}
	}
}

func TestWatch_DeleteReported(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "del.md"), []byte("x"), 0o644)
	rec := &recorder{}
	startWatch(t, dir, rec)

	_ = os.Remove(filepath.Join(dir, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("deleted:del.md")
	}, "expected deleted:del.md callback")
}

func TestQueue_SequentialWithDelay(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var starts []time.Time
	done := make(chan struct{}, 3)

	q := NewQueue(8, 80*time.Millisecond, func(_ context.Context, p string) {
		mu.Lock()
		seen = append(seen, p)
		starts = append(starts, time.Now())
		mu.Unlock()
		done <- struct{}{}
	})

	if !q.Enqueue("a.md") || !q.Enqueue("b.md") {
		t.Fatal("enqueue rejected")
	}
	if q.Enqueue("a.md") {
		t.Error("duplicate path accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("queue did not process items")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "a.md" || seen[1] != "b.md" {
		t.Fatalf("seen = %v", seen)
	}
	if gap := starts[1].Sub(starts[0]); gap < 80*time.Millisecond {
		t.Errorf("gap between items = %v, want >= 80ms", gap)
	}
}

func TestQueue_FullDrops(t *testing.T) {
	q := NewQueue(1, 0, func(context.Context, string) {})
	if !q.Enqueue("a.md") {
		t.Fatal("first enqueue rejected")
	}
	if q.Enqueue("b.md") {
		t.Error("enqueue into full queue accepted")
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
}
