package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fileCatalog struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (c *fileCatalog) SnapshotTo(_ context.Context, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail != nil {
		return c.fail
	}
	return os.WriteFile(dst, []byte("catalog"), 0644)
}

func (c *fileCatalog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// clockFrom returns a clock that advances one minute per call.
func clockFrom(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fileCatalog) {
	t.Helper()
	cat := &fileCatalog{}
	cfg.Enabled = true
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	m, err := New(cat, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.now = clockFrom(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	return m, cat
}

func TestNew_DisabledAndInvalid(t *testing.T) {
	m, err := New(&fileCatalog{}, Config{})
	if err != nil || m != nil {
		t.Fatalf("disabled: m=%v err=%v", m, err)
	}
	if _, err := New(&fileCatalog{}, Config{Enabled: true}); err == nil {
		t.Fatal("expected error without backup-dir")
	}
	if _, err := New(nil, Config{Enabled: true, Dir: t.TempDir()}); err == nil {
		t.Fatal("expected error without catalog")
	}
	if _, err := New(&fileCatalog{}, Config{Enabled: true, Dir: t.TempDir(), UploadCommand: []string{"true"}}); err == nil {
		t.Fatal("expected error for upload command without {file}")
	}
}

func TestSnapshot_PrunesToKeep(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestManager(t, Config{Dir: dir, Keep: 2})

	// Unrelated files are left alone.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	var paths []string
	for i := 0; i < 4; i++ {
		p, err := m.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot #%d: %v", i+1, err)
		}
		paths = append(paths, p)
	}

	left, _ := filepath.Glob(filepath.Join(dir, "catalog-*.duckdb"))
	if len(left) != 2 || left[0] != paths[2] || left[1] != paths[3] {
		t.Fatalf("kept %v, want the last two of %v", left, paths)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("unrelated file removed: %v", err)
	}
}

func TestSnapshot_CatalogError(t *testing.T) {
	m, cat := newTestManager(t, Config{})
	cat.fail = errors.New("disk full")
	if _, err := m.Snapshot(context.Background()); err == nil {
		t.Fatal("expected snapshot error")
	}
}

type recordingUploader struct {
	mu    sync.Mutex
	paths []string
}

func (u *recordingUploader) UploadFile(_ context.Context, p string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, p)
	return nil
}

func TestSnapshot_Uploads(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	up := &recordingUploader{}
	m.uploader = up

	p, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(up.paths) != 1 || up.paths[0] != p {
		t.Fatalf("uploaded %v, want [%s]", up.paths, p)
	}
}

type blockingUploader struct {
	started chan struct{}
	once    sync.Once
}

func (u *blockingUploader) UploadFile(ctx context.Context, _ string) error {
	u.once.Do(func() { close(u.started) })
	<-ctx.Done()
	return ctx.Err()
}

func TestRun_SnapshotsAtOnceAndStopsOnCancel(t *testing.T) {
	m, cat := newTestManager(t, Config{Interval: time.Hour})
	up := &blockingUploader{started: make(chan struct{})}
	m.uploader = up

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case <-up.started:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot at startup")
	}
	if cat.count() != 1 {
		t.Fatalf("snapshots = %d, want 1", cat.count())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return; upload not cancelled")
	}
}
