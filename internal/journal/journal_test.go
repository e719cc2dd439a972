package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

const (
	corr0 = "20230101T000000Z_chime_corr/00000000_0000.h5"
	corr1 = "20230101T000000Z_chime_corr/00000001_0000.h5"
	corr2 = "20230101T000000Z_chime_corr/00000002_0000.h5"
)

func req(path string) model.ImportRequest {
	return model.ImportRequest{Node: "cedar_online", Path: path, Queued: time.Now().UTC()}
}

func openAt(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func pendingPaths(t *testing.T, j *Journal) []string {
	t.Helper()
	var paths []string
	if err := j.Replay(func(_ uint64, r model.ImportRequest) error {
		paths = append(paths, r.Path)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	return paths
}

func TestCommitOutOfOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.journal")
	j := openAt(t, path)

	var seqs []uint64
	for _, p := range []string{corr0, corr1, corr2} {
		seq, err := j.Append(req(p))
		if err != nil {
			t.Fatalf("Append %s: %v", p, err)
		}
		seqs = append(seqs, seq)
	}
	if seqs[0] >= seqs[1] || seqs[1] >= seqs[2] {
		t.Fatalf("seqs not increasing: %v", seqs)
	}

	// The middle import finishes first; the others stay pending.
	if err := j.Commit(seqs[1]); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got := pendingPaths(t, j)
	if len(got) != 2 || got[0] != corr0 || got[1] != corr2 {
		t.Fatalf("pending = %v", got)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openAt(t, path)
	if got := pendingPaths(t, reopened); len(got) != 2 || got[0] != corr0 || got[1] != corr2 {
		t.Fatalf("pending after reopen = %v", got)
	}
	seq, err := reopened.Append(req("20230102T000000Z_chime_corr/00000000_0000.h5"))
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if seq <= seqs[2] {
		t.Fatalf("seq %d reused after reopen (last %d)", seq, seqs[2])
	}
}

func TestAppendDedupesPendingPath(t *testing.T) {
	j := openAt(t, filepath.Join(t.TempDir(), "import.journal"))

	first, err := j.Append(req(corr0))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	again, err := j.Append(req(corr0))
	if err != nil {
		t.Fatalf("Append again: %v", err)
	}
	if first != again {
		t.Fatalf("duplicate got seq %d, want %d", again, first)
	}
	if j.Len() != 1 {
		t.Fatalf("Len = %d, want 1", j.Len())
	}

	other := req(corr0)
	other.Node = "gsc_online"
	if seq, err := j.Append(other); err != nil || seq == first {
		t.Fatalf("other node: seq=%d err=%v", seq, err)
	}

	if err := j.Commit(first); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// Committing twice is harmless.
	if err := j.Commit(first); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	next, err := j.Append(req(corr0))
	if err != nil {
		t.Fatalf("Append after commit: %v", err)
	}
	if next == first {
		t.Fatal("retired entry was reused")
	}
}

func TestAppendRejectsIncompleteRequest(t *testing.T) {
	j := openAt(t, filepath.Join(t.TempDir(), "import.journal"))

	if _, err := j.Append(model.ImportRequest{Path: corr0}); err == nil {
		t.Fatal("expected error for missing node")
	}
	if _, err := j.Append(model.ImportRequest{Node: "cedar_online"}); err == nil {
		t.Fatal("expected error for missing path")
	}
	if j.Len() != 0 {
		t.Fatalf("Len = %d, want 0", j.Len())
	}
}

func TestOpenDropsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.journal")
	j := openAt(t, path)
	if _, err := j.Append(req(corr0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open for tear: %v", err)
	}
	if _, err := f.WriteString(`{"seq":9,"op":"add","node":"cedar_online","pa`); err != nil {
		t.Fatalf("write torn line: %v", err)
	}
	f.Close()

	reopened := openAt(t, path)
	if got := pendingPaths(t, reopened); len(got) != 1 || got[0] != corr0 {
		t.Fatalf("pending = %v", got)
	}
}

func TestOpenCompactsRetiredEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.journal")
	j := openAt(t, path)

	seq0, err := j.Append(req(corr0))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := j.Append(req(corr1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Commit(seq0); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	openAt(t, path)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], corr1) || strings.Contains(lines[0], `"done"`) {
		t.Fatalf("compacted journal = %q", data)
	}
}

func TestReplayCanCommit(t *testing.T) {
	j := openAt(t, filepath.Join(t.TempDir(), "import.journal"))
	for _, p := range []string{corr0, corr1} {
		if _, err := j.Append(req(p)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := j.Replay(func(seq uint64, _ model.ImportRequest) error {
		return j.Commit(seq)
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if j.Len() != 0 {
		t.Fatalf("Len = %d after replay", j.Len())
	}
	if err := j.Replay(nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}
