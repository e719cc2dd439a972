// Package journal keeps a durable record of imports that have been queued
// but not finished, so they can be retried after a crash.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

const (
	fileMode = 0644
	dirMode  = 0755
)

// Record operations. An "add" queues an import; a "done" retires it.
const (
	opAdd  = "add"
	opDone = "done"
)

type record struct {
	Seq    uint64    `json:"seq"`
	Op     string    `json:"op"`
	Node   string    `json:"node,omitempty"`
	Path   string    `json:"path,omitempty"`
	Queued time.Time `json:"queued,omitzero"`
}

type key struct{ node, path string }

// Journal is an append-only JSONL log of queued imports. Each import is
// retired individually, so imports may finish in any order.
type Journal struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	nextSeq uint64
	pending map[uint64]model.ImportRequest
	byKey   map[key]uint64
}

// Open loads the journal at path, creating it if needed. Retired entries
// are dropped by rewriting the file; a torn or malformed tail is discarded.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	j := &Journal{
		path:    path,
		pending: make(map[uint64]model.ImportRequest),
		byKey:   make(map[key]uint64),
	}
	maxSeq, err := j.load()
	if err != nil {
		return nil, err
	}
	j.nextSeq = maxSeq + 1

	if err := j.rewrite(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	j.file = f
	return j, nil
}

// load reads every complete record and rebuilds the pending set.
func (j *Journal) load() (uint64, error) {
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("journal: open for load: %w", err)
	}
	defer f.Close()

	var maxSeq uint64
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// EOF mid-line is a torn write; drop it.
			break
		}
		var r record
		if json.Unmarshal(line, &r) != nil {
			break
		}
		maxSeq = max(maxSeq, r.Seq)
		switch r.Op {
		case opAdd:
			j.track(r.Seq, model.ImportRequest{Node: r.Node, Path: r.Path, Queued: r.Queued})
		case opDone:
			j.untrack(r.Seq)
		}
	}
	return maxSeq, nil
}

func (j *Journal) track(seq uint64, req model.ImportRequest) {
	j.pending[seq] = req
	j.byKey[key{req.Node, req.Path}] = seq
}

func (j *Journal) untrack(seq uint64) bool {
	req, ok := j.pending[seq]
	if !ok {
		return false
	}
	delete(j.pending, seq)
	if j.byKey[key{req.Node, req.Path}] == seq {
		delete(j.byKey, key{req.Node, req.Path})
	}
	return true
}

// rewrite replaces the file with the pending adds only.
func (j *Journal) rewrite() error {
	tmp := j.path + ".compact"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("journal: open compact tmp: %w", err)
	}
	fail := func(err error) error {
		f.Close()
		os.Remove(tmp)
		return err
	}

	w := bufio.NewWriter(f)
	for _, seq := range j.seqs() {
		req := j.pending[seq]
		line, err := json.Marshal(record{Seq: seq, Op: opAdd, Node: req.Node, Path: req.Path, Queued: req.Queued})
		if err != nil {
			return fail(fmt.Errorf("journal: marshal: %w", err))
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("journal: compact write: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("journal: compact sync: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("journal: compact close: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("journal: compact rename: %w", err)
	}
	return nil
}

func (j *Journal) seqs() []uint64 {
	seqs := make([]uint64, 0, len(j.pending))
	for seq := range j.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(a, b int) bool { return seqs[a] < seqs[b] })
	return seqs
}

func (j *Journal) write(r record) error {
	if j.file == nil {
		return errors.New("journal: closed")
	}
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	return nil
}

// Append queues an import and returns its sequence number. A request for a
// node and path that is already pending returns the existing entry.
func (j *Journal) Append(req model.ImportRequest) (uint64, error) {
	if req.Node == "" || req.Path == "" {
		return 0, errors.New("journal: import request needs node and path")
	}
	if req.Queued.IsZero() {
		req.Queued = time.Now().UTC()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if seq, ok := j.byKey[key{req.Node, req.Path}]; ok {
		return seq, nil
	}
	seq := j.nextSeq
	if err := j.write(record{Seq: seq, Op: opAdd, Node: req.Node, Path: req.Path, Queued: req.Queued}); err != nil {
		return 0, err
	}
	j.nextSeq++
	j.track(seq, req)
	return seq, nil
}

// Commit retires one entry. Unknown or already retired entries are ignored.
func (j *Journal) Commit(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.pending[seq]; !ok {
		return nil
	}
	if err := j.write(record{Seq: seq, Op: opDone}); err != nil {
		return err
	}
	j.untrack(seq)
	return nil
}

// Len returns the number of pending entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Replay calls fn for each pending entry in sequence order. fn may Commit.
func (j *Journal) Replay(fn func(seq uint64, req model.ImportRequest) error) error {
	if fn == nil {
		return errors.New("journal: replay callback is nil")
	}

	j.mu.Lock()
	seqs := j.seqs()
	reqs := make([]model.ImportRequest, len(seqs))
	for i, seq := range seqs {
		reqs[i] = j.pending[seq]
	}
	j.mu.Unlock()

	for i, seq := range seqs {
		if err := fn(seq, reqs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
