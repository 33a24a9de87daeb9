package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// pickupRecorder collects archive pickups thread-safely.
type pickupRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *pickupRecorder) record(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *pickupRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_PicksUpDroppedZip(t *testing.T) {
	dir := t.TempDir()
	rec := &pickupRecorder{}
	w := New(dir, rec.record, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "drop.zip")
	if err := os.WriteFile(path, []byte("PK\x03\x04data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 3*time.Second, func() bool { return len(rec.snapshot()) == 1 }) {
		t.Fatalf("pickups = %v, want one", rec.snapshot())
	}
	if got := rec.snapshot()[0]; got != path {
		t.Errorf("picked up %q, want %q", got, path)
	}
}

func TestWatcher_IgnoresNonZip(t *testing.T) {
	dir := t.TempDir()
	rec := &pickupRecorder{}
	w := New(dir, rec.record, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("pickups = %v, want none", got)
	}
}

func TestWatcher_DebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &pickupRecorder{}
	w := New(dir, rec.record, WithDebounce(150*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "big.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a slow copy with several write bursts inside the settle window.
	for i := 0; i < 4; i++ {
		if _, err := f.Write([]byte("chunk of archive bytes")); err != nil {
			t.Fatal(err)
		}
		_ = f.Sync()
		time.Sleep(40 * time.Millisecond)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return len(rec.snapshot()) >= 1 }) {
		t.Fatal("archive never picked up")
	}
	time.Sleep(400 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 1 {
		t.Errorf("pickups = %d, want exactly one after writes settle", len(got))
	}
}
