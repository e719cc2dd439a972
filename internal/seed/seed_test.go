package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

func newTestStore(t *testing.T) *duckdb.Store {
	t.Helper()
	store, err := duckdb.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestQualifyInfoClass(t *testing.T) {
	assert.Equal(t, "", QualifyInfoClass(""))
	assert.Equal(t, "alpenhorn_chime.info.CorrAcqInfo", QualifyInfoClass("CorrAcqInfo"))
	assert.Equal(t, "=alpenhorn_chime.info.cal_info_class", QualifyInfoClass("=cal_info_class"))
}

func TestUpdateTypes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, UpdateTypes(ctx, store))
	// A second run must not change anything.
	require.NoError(t, UpdateTypes(ctx, store))

	ats, err := store.ListAcqTypes(ctx)
	require.NoError(t, err)
	require.Len(t, ats, len(acqTypes))

	corr, err := store.AcqTypeByName(ctx, "corr")
	require.NoError(t, err)
	assert.Equal(t, int64(1), corr.ID)
	assert.Equal(t, "alpenhorn_chime.info.CorrAcqInfo", corr.InfoClass)

	hk, err := store.AcqTypeByName(ctx, "hk")
	require.NoError(t, err)
	assert.Empty(t, hk.InfoClass)

	cal, err := store.FileTypeByName(ctx, "calibration")
	require.NoError(t, err)
	assert.Equal(t, int64(12), cal.ID)
	assert.Equal(t, "=alpenhorn_chime.info.cal_info_class", cal.InfoClass)
	assert.Equal(t, PatternCalibration, cal.Pattern)

	cases := map[string]string{
		"corr": "corr", "rawadc": "rawadc", "weather": "weather",
		"digitalgain": "calibration", "gain": "calibration", "flaginput": "calibration", "hfb": "hfb",
	}
	for acq, file := range cases {
		at, err := store.AcqTypeByName(ctx, acq)
		require.NoError(t, err)
		fts, err := store.FileTypesForAcqType(ctx, at.ID)
		require.NoError(t, err)
		require.Len(t, fts, 1, acq)
		assert.Equal(t, file, fts[0].Name, acq)
	}
}

func TestUpdateTypes_FixesMappingAndKeepsUnknown(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertAcqType(ctx, model.AcqType{ID: 1, Name: "corr", Notes: "stale"}))
	require.NoError(t, store.UpsertAcqType(ctx, model.AcqType{ID: 50, Name: "custom"}))
	require.NoError(t, store.UpsertFileType(ctx, model.FileType{ID: 2, Name: "log"}))
	require.NoError(t, store.AddAcqFileType(ctx, 1, 2))
	require.NoError(t, store.AddAcqFileType(ctx, 50, 2))

	require.NoError(t, UpdateTypes(ctx, store))

	corr, err := store.AcqTypeByName(ctx, "corr")
	require.NoError(t, err)
	assert.Equal(t, acqTypes[0].notes, corr.Notes)

	fts, err := store.FileTypesForAcqType(ctx, 1)
	require.NoError(t, err)
	require.Len(t, fts, 1)
	assert.Equal(t, "corr", fts[0].Name)

	custom, err := store.FileTypesForAcqType(ctx, 50)
	require.NoError(t, err)
	require.Len(t, custom, 1, "unlisted acq types keep their mapping")
}

func TestUpdateInst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := UpdateInst(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 269, n)

	n, err = UpdateInst(ctx, store)
	require.NoError(t, err)
	assert.Zero(t, n)

	for name, id := range map[string]int64{"stone": 1, "chime": 25, "chimedronecal": 269} {
		inst, err := store.InstByName(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, id, inst.ID, name)
	}
}
