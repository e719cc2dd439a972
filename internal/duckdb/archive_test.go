package duckdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// testArchive holds the rows created by seedArchive.
type testArchive struct {
	group model.StorageGroup
	node  model.StorageNode
	acq   model.ArchiveAcq
	file  model.ArchiveFile
}

func seedArchive(t *testing.T, store *Store) testArchive {
	t.Helper()
	ctx := context.Background()

	var a testArchive
	var err error
	if a.group, err = store.GetOrCreateGroup(ctx, "cedar", ""); err != nil {
		t.Fatalf("GetOrCreateGroup: %v", err)
	}
	a.node, err = store.UpsertNode(ctx, model.StorageNode{
		Name: "cedar_online", GroupID: a.group.ID, Root: "/data", Host: "cedar1", Active: true, StorageType: "A",
	})
	if err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	if a.acq, _, err = store.GetOrCreateAcq(ctx, "20230101T000000Z_chime_corr"); err != nil {
		t.Fatalf("GetOrCreateAcq: %v", err)
	}
	if a.file, _, err = store.GetOrCreateFile(ctx, a.acq, "00000000_0000.h5", 1024, "abc"); err != nil {
		t.Fatalf("GetOrCreateFile: %v", err)
	}
	return a
}

func TestUpsertNode_UpdatesByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := seedArchive(t, store)

	a.node.Root = "/scratch"
	a.node.IOClass = "reserving"
	updated, err := store.UpsertNode(ctx, a.node)
	if err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	if updated.ID != a.node.ID {
		t.Errorf("ID = %d, want %d", updated.ID, a.node.ID)
	}
	if updated.Root != "/scratch" || updated.IOClass != "reserving" {
		t.Errorf("node = %+v, want root /scratch and io_class reserving", updated)
	}

	nodes, err := store.ActiveNodesOnHost(ctx, "cedar1")
	if err != nil {
		t.Fatalf("ActiveNodesOnHost: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Name != "cedar_online" {
		t.Fatalf("ActiveNodesOnHost = %+v, want cedar_online", nodes)
	}
	if nodes, _ := store.ActiveNodesOnHost(ctx, "elsewhere"); len(nodes) != 0 {
		t.Errorf("ActiveNodesOnHost(elsewhere) = %d nodes, want 0", len(nodes))
	}
}

func TestGetOrCreateAcq_ReportsCreation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, created, err := store.GetOrCreateAcq(ctx, "20230101T000000Z_chime_corr")
	if err != nil || !created {
		t.Fatalf("first GetOrCreateAcq = %v, %v; want created", created, err)
	}
	second, created, err := store.GetOrCreateAcq(ctx, "20230101T000000Z_chime_corr")
	if err != nil || created {
		t.Fatalf("second GetOrCreateAcq = %v, %v; want existing", created, err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %d != %d", first.ID, second.ID)
	}

	second.TypeID = 1
	second.InstID = 2
	if err := store.UpdateAcq(ctx, second); err != nil {
		t.Fatalf("UpdateAcq: %v", err)
	}
	got, err := store.AcqByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("AcqByID: %v", err)
	}
	if got.TypeID != 1 || got.InstID != 2 {
		t.Errorf("acq = %+v, want type 1 inst 2", got)
	}
}

func TestFileByPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := seedArchive(t, store)

	f, err := store.FileByPath(ctx, "20230101T000000Z_chime_corr/00000000_0000.h5")
	if err != nil {
		t.Fatalf("FileByPath: %v", err)
	}
	if f.ID != a.file.ID || f.SizeB != 1024 || f.MD5Sum != "abc" {
		t.Errorf("file = %+v, want id %d size 1024 md5 abc", f, a.file.ID)
	}
	if f.Path() != "20230101T000000Z_chime_corr/00000000_0000.h5" {
		t.Errorf("Path() = %q", f.Path())
	}

	if _, err := store.FileByPath(ctx, "no_such_acq/x.h5"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file err = %v, want ErrNotFound", err)
	}
	if _, err := store.FileByPath(ctx, "bare.h5"); !errors.Is(err, ErrNotFound) {
		t.Errorf("bare name err = %v, want ErrNotFound", err)
	}

	if _, created, err := store.GetOrCreateFile(ctx, a.acq, "00000000_0000.h5", 1, "x"); err != nil || created {
		t.Errorf("GetOrCreateFile existing = %v, %v; want not created", created, err)
	}
}

func TestUpsertCopy_AndNodeHasFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := seedArchive(t, store)

	has, err := store.NodeHasFile(ctx, a.node.ID, a.file.Path())
	if err != nil || has {
		t.Fatalf("NodeHasFile before copy = %v, %v; want false", has, err)
	}

	c, err := store.UpsertCopy(ctx, model.FileCopy{
		FileID: a.file.ID, NodeID: a.node.ID, HasFile: model.HasFileYes, WantsFile: model.WantsFileYes, Ready: true, SizeB: 1024,
	})
	if err != nil {
		t.Fatalf("UpsertCopy: %v", err)
	}
	if has, _ := store.NodeHasFile(ctx, a.node.ID, a.file.Path()); !has {
		t.Error("NodeHasFile after copy = false, want true")
	}

	again, err := store.UpsertCopy(ctx, model.FileCopy{
		FileID: a.file.ID, NodeID: a.node.ID, HasFile: model.HasFileYes, WantsFile: model.WantsFileNo,
	})
	if err != nil {
		t.Fatalf("second UpsertCopy: %v", err)
	}
	if again.ID != c.ID {
		t.Errorf("copy id changed: %d -> %d", c.ID, again.ID)
	}

	doomed, err := store.CopiesToDelete(ctx, a.node.ID)
	if err != nil {
		t.Fatalf("CopiesToDelete: %v", err)
	}
	if len(doomed) != 1 || doomed[0].File.Name != "00000000_0000.h5" {
		t.Fatalf("CopiesToDelete = %+v, want the seeded file", doomed)
	}

	if err := store.SetCopyState(ctx, c.ID, model.HasFileNo, model.WantsFileNo, false); err != nil {
		t.Fatalf("SetCopyState: %v", err)
	}
	if doomed, _ := store.CopiesToDelete(ctx, a.node.ID); len(doomed) != 0 {
		t.Errorf("CopiesToDelete after removal = %d, want 0", len(doomed))
	}
}

func TestNodeTracksFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := seedArchive(t, store)

	if tracked, err := store.NodeTracksFile(ctx, a.node.ID, a.file.Path()); err != nil || tracked {
		t.Fatalf("NodeTracksFile without copy = %v, %v; want false", tracked, err)
	}
	for _, tc := range []struct {
		hasFile string
		good    bool
		tracked bool
	}{
		{model.HasFileYes, true, true},
		{model.HasFileMaybe, false, true},
		{model.HasFileCorrupt, false, true},
		{model.HasFileNo, false, false},
	} {
		if _, err := store.UpsertCopy(ctx, model.FileCopy{
			FileID: a.file.ID, NodeID: a.node.ID, HasFile: tc.hasFile, WantsFile: model.WantsFileYes,
		}); err != nil {
			t.Fatalf("UpsertCopy(%s): %v", tc.hasFile, err)
		}
		tracked, err := store.NodeTracksFile(ctx, a.node.ID, a.file.Path())
		if err != nil || tracked != tc.tracked {
			t.Errorf("NodeTracksFile(has_file=%s) = %v, %v; want %v", tc.hasFile, tracked, err, tc.tracked)
		}
		if good, _ := store.NodeHasFile(ctx, a.node.ID, a.file.Path()); good != tc.good {
			t.Errorf("NodeHasFile(has_file=%s) = %v, want %v", tc.hasFile, good, tc.good)
		}
	}
}

func TestCopyRequests_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := seedArchive(t, store)

	dest, err := store.GetOrCreateGroup(ctx, "niagara", "")
	if err != nil {
		t.Fatalf("GetOrCreateGroup: %v", err)
	}
	id, err := store.CreateRequest(ctx, a.file.ID, dest.ID, a.node.ID)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	pending, err := store.PendingRequests(ctx, dest.ID)
	if err != nil {
		t.Fatalf("PendingRequests: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id || pending[0].File.AcqName != a.acq.Name {
		t.Fatalf("PendingRequests = %+v, want request %d", pending, id)
	}

	now := time.Now()
	if err := store.StartRequest(ctx, id, now); err != nil {
		t.Fatalf("StartRequest: %v", err)
	}
	if err := store.CompleteRequest(ctx, id, now); err != nil {
		t.Fatalf("CompleteRequest: %v", err)
	}
	req, err := store.RequestByID(ctx, id)
	if err != nil {
		t.Fatalf("RequestByID: %v", err)
	}
	if !req.Completed || req.TransferStarted == nil || req.TransferCompleted == nil {
		t.Errorf("request = %+v, want completed with transfer times", req)
	}
	if pending, _ := store.PendingRequests(ctx, dest.ID); len(pending) != 0 {
		t.Errorf("PendingRequests after completion = %d, want 0", len(pending))
	}

	n, err := store.DeleteClosedRequestsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteClosedRequestsBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d requests, want 1", n)
	}
}

func TestListAcqs_AndDescribe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := seedArchive(t, store)

	if err := store.UpsertAcqType(ctx, model.AcqType{ID: 1, Name: "corr"}); err != nil {
		t.Fatalf("UpsertAcqType: %v", err)
	}
	if _, err := store.InsertInsts(ctx, []model.ArchiveInst{{ID: 7, Name: "chime"}}); err != nil {
		t.Fatalf("InsertInsts: %v", err)
	}
	a.acq.TypeID, a.acq.InstID = 1, 7
	if err := store.UpdateAcq(ctx, a.acq); err != nil {
		t.Fatalf("UpdateAcq: %v", err)
	}
	if _, _, err := store.GetOrCreateAcq(ctx, "20230102T000000Z_stone_hk"); err != nil {
		t.Fatalf("GetOrCreateAcq: %v", err)
	}

	all, err := store.ListAcqs(ctx, model.ListOpts{})
	if err != nil {
		t.Fatalf("ListAcqs: %v", err)
	}
	if len(all) != 2 || all[0].Name != "20230102T000000Z_stone_hk" {
		t.Fatalf("ListAcqs = %+v, want 2 acqs newest first", all)
	}

	corr, err := store.ListAcqs(ctx, model.ListOpts{Type: "corr", Inst: "chime"})
	if err != nil {
		t.Fatalf("ListAcqs filtered: %v", err)
	}
	if len(corr) != 1 || corr[0].FileCount != 1 {
		t.Fatalf("ListAcqs filtered = %+v, want one acq with one file", corr)
	}

	d, err := store.DescribeAcq(ctx, a.acq.Name)
	if err != nil {
		t.Fatalf("DescribeAcq: %v", err)
	}
	if d.TypeName != "corr" || d.InstName != "chime" {
		t.Errorf("DescribeAcq = %+v, want corr/chime", d)
	}
	if _, err := store.DescribeAcq(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DescribeAcq(missing) err = %v, want ErrNotFound", err)
	}

	files, err := store.FilesInAcq(ctx, a.acq.ID)
	if err != nil || len(files) != 1 {
		t.Fatalf("FilesInAcq = %v, %v; want one file", files, err)
	}
}
