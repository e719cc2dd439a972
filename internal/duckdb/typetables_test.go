package duckdb

import (
	"context"
	"testing"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

func TestUpsertAcqType_KeepsIDOnUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertAcqType(ctx, model.AcqType{ID: 1, Name: "corr", Notes: "old"}); err != nil {
		t.Fatalf("UpsertAcqType insert: %v", err)
	}
	if err := store.UpsertAcqType(ctx, model.AcqType{ID: 99, Name: "corr", InfoClass: "x", Notes: "new"}); err != nil {
		t.Fatalf("UpsertAcqType update: %v", err)
	}

	got, err := store.AcqTypeByName(ctx, "corr")
	if err != nil {
		t.Fatalf("AcqTypeByName: %v", err)
	}
	if got.ID != 1 || got.InfoClass != "x" || got.Notes != "new" {
		t.Errorf("acq type = %+v, want id 1 with updated fields", got)
	}
}

func TestUpsertFileType_PreservesPattern(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertFileType(ctx, model.FileType{ID: 5, Name: "rawadc", Pattern: `[0-9]{6}\.h5`}); err != nil {
		t.Fatalf("UpsertFileType: %v", err)
	}
	if err := store.SetFilePattern(ctx, 5, `custom\.h5`); err != nil {
		t.Fatalf("SetFilePattern: %v", err)
	}
	if err := store.UpsertFileType(ctx, model.FileType{ID: 5, Name: "rawadc", Pattern: `[0-9]{6}\.h5`}); err != nil {
		t.Fatalf("UpsertFileType again: %v", err)
	}

	got, err := store.FileTypeByID(ctx, 5)
	if err != nil {
		t.Fatalf("FileTypeByID: %v", err)
	}
	if got.Pattern != `custom\.h5` {
		t.Errorf("pattern = %q, want the stored custom pattern", got.Pattern)
	}
}

func TestSetAcqFileType_IsExact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, ft := range []model.FileType{{ID: 1, Name: "corr"}, {ID: 2, Name: "log"}} {
		if err := store.UpsertFileType(ctx, ft); err != nil {
			t.Fatalf("UpsertFileType: %v", err)
		}
	}
	if err := store.UpsertAcqType(ctx, model.AcqType{ID: 1, Name: "corr"}); err != nil {
		t.Fatalf("UpsertAcqType: %v", err)
	}
	if err := store.AddAcqFileType(ctx, 1, 2); err != nil {
		t.Fatalf("AddAcqFileType: %v", err)
	}
	if err := store.SetAcqFileType(ctx, 1, 1); err != nil {
		t.Fatalf("SetAcqFileType: %v", err)
	}
	if err := store.SetAcqFileType(ctx, 1, 1); err != nil {
		t.Fatalf("SetAcqFileType again: %v", err)
	}

	types, err := store.FileTypesForAcqType(ctx, 1)
	if err != nil {
		t.Fatalf("FileTypesForAcqType: %v", err)
	}
	if len(types) != 1 || types[0].Name != "corr" {
		t.Fatalf("file types = %+v, want only corr", types)
	}
}

func TestInsertInsts_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	insts := []model.ArchiveInst{{ID: 1, Name: "stone"}, {ID: 2, Name: "slate"}}

	n, err := store.InsertInsts(ctx, insts)
	if err != nil || n != 2 {
		t.Fatalf("InsertInsts = %d, %v; want 2", n, err)
	}
	n, err = store.InsertInsts(ctx, insts)
	if err != nil || n != 0 {
		t.Fatalf("InsertInsts again = %d, %v; want 0", n, err)
	}

	inst, err := store.InstByName(ctx, "slate")
	if err != nil || inst.ID != 2 {
		t.Errorf("InstByName(slate) = %+v, %v; want id 2", inst, err)
	}
}
