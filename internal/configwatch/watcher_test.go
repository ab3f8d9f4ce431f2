package configwatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	seen  []string
	fails bool
}

func (r *recorder) apply(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, string(data))
	if r.fails {
		return errors.New("rejected")
	}
	return nil
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		return ""
	}
	return r.seen[len(r.seen)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatch(t *testing.T, path string, rec *recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Watch(ctx, path, testLogger(), rec.apply); err != nil {
			t.Errorf("watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatch_WriteTriggersReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte("v: 1\n"), 0o644)

	rec := &recorder{}
	startWatch(t, path, rec)

	_ = os.WriteFile(path, []byte("v: 2\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.last() == "v: 2\n"
	}, "write did not trigger reload")
}

func TestWatch_RenameReplaceTriggersReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte("v: 1\n"), 0o644)

	rec := &recorder{}
	startWatch(t, path, rec)

	tmp := filepath.Join(dir, "config.yaml.tmp")
	_ = os.WriteFile(tmp, []byte("v: 3\n"), 0o644)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.last() == "v: 3\n"
	}, "rename-replace did not trigger reload")
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte("v: 1\n"), 0o644)

	rec := &recorder{}
	startWatch(t, path, rec)

	_ = os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644)
	time.Sleep(2 * settleDelay)

	if n := rec.count(); n != 0 {
		t.Errorf("reloads = %d, want 0", n)
	}
}

func TestWatch_BurstIsDebounced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte("v: 0\n"), 0o644)

	rec := &recorder{}
	startWatch(t, path, rec)

	for i := 0; i < 5; i++ {
		_ = os.WriteFile(path, []byte("v: final\n"), 0o644)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.last() == "v: final\n"
	}, "burst did not trigger reload")
	if n := rec.count(); n != 1 {
		t.Errorf("reloads = %d, want 1", n)
	}
}

func TestWatch_RejectedReloadKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte("v: 1\n"), 0o644)

	rec := &recorder{fails: true}
	startWatch(t, path, rec)

	_ = os.WriteFile(path, []byte("bad\n"), 0o644)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count() == 1
	}, "first change not delivered")

	rec.mu.Lock()
	rec.fails = false
	rec.mu.Unlock()

	time.Sleep(2 * settleDelay)
	_ = os.WriteFile(path, []byte("v: 2\n"), 0o644)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.last() == "v: 2\n"
	}, "watcher stopped after a rejected reload")
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.yaml"), testLogger(), func([]byte) error { return nil })
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
