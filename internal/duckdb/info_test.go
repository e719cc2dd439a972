package duckdb

import (
	"context"
	"errors"
	"testing"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

func TestInsertInfo_ReplacesRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := model.InfoRecord{
		Table:  "weather_file_info",
		Key:    "file_id",
		ItemID: 3,
		Values: map[string]any{"start_time": 1.5, "finish_time": 2.5, "date": "20230101"},
	}
	if err := store.InsertInfo(ctx, rec); err != nil {
		t.Fatalf("InsertInfo: %v", err)
	}
	rec.Values["date"] = "20230102"
	if err := store.InsertInfo(ctx, rec); err != nil {
		t.Fatalf("InsertInfo replace: %v", err)
	}

	row, err := store.InfoRow(ctx, "weather_file_info", 3)
	if err != nil {
		t.Fatalf("InfoRow: %v", err)
	}
	if row["date"] != "20230102" {
		t.Errorf("date = %v, want 20230102", row["date"])
	}
	if row["finish_time"] != 2.5 {
		t.Errorf("finish_time = %v, want 2.5", row["finish_time"])
	}

	counts, err := store.ExecuteQuery(ctx, "SELECT COUNT(*) AS n FROM weather_file_info")
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	if counts[0]["n"] != int64(1) {
		t.Errorf("row count = %v, want 1", counts[0]["n"])
	}
}

func TestInsertInfo_NullValue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.InsertInfo(ctx, model.InfoRecord{
		Table: "corr_acq_info", Key: "acq_id", ItemID: 1,
		Values: map[string]any{"integration": nil, "nfreq": 1024, "nprod": 2},
	})
	if err != nil {
		t.Fatalf("InsertInfo: %v", err)
	}
	row, err := store.InfoRow(ctx, "corr_acq_info", 1)
	if err != nil {
		t.Fatalf("InfoRow: %v", err)
	}
	if row["integration"] != nil {
		t.Errorf("integration = %v, want NULL", row["integration"])
	}
}

func TestInsertInfo_RejectsUnknownColumns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []model.InfoRecord{
		{Table: "logs", Key: "file_id", ItemID: 1},
		{Table: "corr_acq_info", Key: "file_id", ItemID: 1},
		{Table: "corr_acq_info", Key: "acq_id", ItemID: 1, Values: map[string]any{"evil": 1}},
	}
	for _, rec := range cases {
		if err := store.InsertInfo(ctx, rec); err == nil {
			t.Errorf("InsertInfo(%+v) should fail", rec)
		}
	}

	if _, err := store.InfoRow(ctx, "corr_acq_info", 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("InfoRow missing err = %v, want ErrNotFound", err)
	}
}
