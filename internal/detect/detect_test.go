package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/h5"
	"github.com/chime-experiment/alpenhorn-chime/internal/info"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
	"github.com/chime-experiment/alpenhorn-chime/internal/seed"
)

const root = "/node"

func newTestDetector(t *testing.T, files map[string]*h5.MemFile) (*Detector, *duckdb.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := duckdb.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, seed.UpdateTypes(ctx, store))
	_, err = seed.UpdateInst(ctx, store)
	require.NoError(t, err)

	return New(store, info.NewRegistry(h5.MemOpener(files))), store
}

func TestParseAcq(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	ctx := context.Background()

	acq, err := d.ParseAcq(ctx, "20230101T123456Z_chime_corr")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 12, 34, 56, 0, time.UTC), acq.AcqTime)
	assert.Equal(t, "chime", acq.Inst.Name)
	assert.Equal(t, int64(25), acq.Inst.ID)
	assert.Equal(t, "corr", acq.AcqType.Name)

	for _, name := range []string{
		"20230101T123456Z_chime",
		"20230101T123456Z_chime_corr_extra",
		"20230101T123456Z_chime_nosuchtype",
		"20230101T123456Z_nosuchinst_corr",
		"20231301T123456Z_chime_corr",
		"20230101T123456_chime_corr",
		"20230101T123456Zx_chime_corr",
	} {
		_, err := d.ParseAcq(ctx, name)
		assert.ErrorIs(t, err, ErrNoMatch, name)
	}
}

func TestImportDetect(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	ctx := context.Background()
	node := model.StorageNode{Name: "n", Root: root}

	tests := []struct {
		path     string
		acq      string
		nameData map[string]string
	}{
		{"20230101T000000Z_chime_corr/00000010_0003.h5", "20230101T000000Z_chime_corr",
			map[string]string{"chunk_number": "00000010", "freq_number": "0003"}},
		{"20230101T000000Z_chime_hfb/00000000_0000.h5", "20230101T000000Z_chime_hfb",
			map[string]string{"chunk_number": "00000000", "freq_number": "0000"}},
		{"20230101T000000Z_chime_weather/20230101.h5", "20230101T000000Z_chime_weather",
			map[string]string{"date": "20230101"}},
		{"20230101T000000Z_chime_rawadc/000123.h5", "20230101T000000Z_chime_rawadc", map[string]string{}},
		{"20230101T000000Z_chime_gain/20230101.h5", "20230101T000000Z_chime_gain", map[string]string{}},
		// Matching is anchored at the start only.
		{"20230101T000000Z_chime_rawadc/000123.h5.lock", "20230101T000000Z_chime_rawadc", map[string]string{}},
	}
	for _, tt := range tests {
		name, cb, err := d.ImportDetect(ctx, tt.path, node)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.acq, name, tt.path)
		require.NotNil(t, cb, tt.path)
	}

	for _, path := range []string{
		"toplevel.h5",
		"20230101T000000Z_chime_corr/notes.txt",
		"20230101T000000Z_chime_corr/x00000010_0003.h5",
		"20230101T000000Z_chime_hk/hk.h5",
		"random_dir/00000010_0003.h5",
	} {
		name, cb, err := d.ImportDetect(ctx, path, node)
		require.NoError(t, err, path)
		assert.Empty(t, name, path)
		assert.Nil(t, cb, path)
	}
}

func TestImportDetect_FirstPatternWins(t *testing.T) {
	d, store := newTestDetector(t, nil)
	ctx := context.Background()

	// A second file type for rawadc whose pattern also matches.
	require.NoError(t, store.UpsertFileType(ctx, model.FileType{ID: 40, Name: "rawadc_any", Pattern: `.*`}))
	require.NoError(t, store.AddAcqFileType(ctx, 3, 40))

	_, cb, err := d.ImportDetect(ctx, "20230101T000000Z_chime_rawadc/000123.h5", model.StorageNode{})
	require.NoError(t, err)
	require.NotNil(t, cb)

	_, cb, err = d.ImportDetect(ctx, "20230101T000000Z_chime_rawadc/other.dat", model.StorageNode{})
	require.NoError(t, err)
	require.NotNil(t, cb, "lower-priority type should still match")
}

func TestImportDetect_BadPatternSkipped(t *testing.T) {
	d, store := newTestDetector(t, nil)
	ctx := context.Background()

	ft, err := store.FileTypeByName(ctx, "rawadc")
	require.NoError(t, err)
	require.NoError(t, store.SetFilePattern(ctx, ft.ID, `([0-9`))

	name, cb, err := d.ImportDetect(ctx, "20230101T000000Z_chime_rawadc/000123.h5", model.StorageNode{})
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Nil(t, cb)
}

type failingCatalog struct{ Catalog }

func (failingCatalog) AcqTypeByName(context.Context, string) (model.AcqType, error) {
	return model.AcqType{}, errors.New("db down")
}

func TestParseAcq_PropagatesCatalogErrors(t *testing.T) {
	d := New(failingCatalog{}, info.NewRegistry(h5.MemOpener(nil)))
	_, err := d.ParseAcq(context.Background(), "20230101T000000Z_chime_corr")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMatch)
}

func TestStoreInfo_NewAcqAndFile(t *testing.T) {
	rel := "20230101T000000Z_chime_corr/00000010_0003.h5"
	d, store := newTestDetector(t, map[string]*h5.MemFile{
		root + "/" + rel: {
			CTime: map[string][]float64{"/index_map/time": {100, 110, 120}},
			Sizes: map[string]int{"/index_map/freq": 1024, "/index_map/prod": 8},
		},
	})
	ctx := context.Background()
	node := model.StorageNode{ID: 1, Name: "n", Root: root}

	acqName, cb, err := d.ImportDetect(ctx, rel, node)
	require.NoError(t, err)
	require.NotNil(t, cb)

	acq, _, err := store.GetOrCreateAcq(ctx, acqName)
	require.NoError(t, err)
	file, _, err := store.GetOrCreateFile(ctx, acq, "00000010_0003.h5", 10, "")
	require.NoError(t, err)

	err = store.Atomic(ctx, func(tx *duckdb.Store) error {
		return cb(ctx, tx, Imported{
			Copy: model.FileCopy{FileID: file.ID, NodeID: node.ID, File: file},
			File: &file,
			Acq:  &acq,
			Node: node,
		})
	})
	require.NoError(t, err)

	got, err := store.DescribeAcq(ctx, acqName)
	require.NoError(t, err)
	assert.Equal(t, "corr", got.TypeName)
	assert.Equal(t, "chime", got.InstName)

	f, err := store.FileByID(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.TypeID)

	acqInfo, err := store.InfoRow(ctx, "corr_acq_info", acq.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, acqInfo["integration"])

	fileInfo, err := store.InfoRow(ctx, "corr_file_info", file.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fileInfo["start_time"])
	assert.EqualValues(t, 10, fileInfo["chunk_number"])
	assert.EqualValues(t, 3, fileInfo["freq_number"])
}

func TestStoreInfo_ExistingItemsUntouched(t *testing.T) {
	d, store := newTestDetector(t, nil)
	ctx := context.Background()

	_, cb, err := d.ImportDetect(ctx, "20230101T000000Z_chime_weather/20230101.h5", model.StorageNode{Root: root})
	require.NoError(t, err)
	require.NotNil(t, cb)

	// Neither acq nor file is new: nothing is written.
	require.NoError(t, cb(ctx, store, Imported{}))
	counts, err := store.ExecuteQuery(ctx, "SELECT COUNT(*) AS n FROM weather_file_info")
	require.NoError(t, err)
	assert.EqualValues(t, 0, counts[0]["n"])
}

func TestImportDetect_AcqTypeWithoutInfoClass(t *testing.T) {
	d, store := newTestDetector(t, nil)
	ctx := context.Background()

	at, err := store.AcqTypeByName(ctx, "rawadc")
	require.NoError(t, err)
	at.InfoClass = ""
	require.NoError(t, store.UpsertAcqType(ctx, at))

	name, cb, err := d.ImportDetect(ctx, "20230101T000000Z_chime_rawadc/000123.h5", model.StorageNode{})
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Nil(t, cb)
}

func TestImportDetect_AcqClassMismatch(t *testing.T) {
	d, store := newTestDetector(t, nil)
	ctx := context.Background()

	// A weather acquisition whose type claims the corr class is rejected by
	// the class's own name check.
	at, err := store.AcqTypeByName(ctx, "weather")
	require.NoError(t, err)
	at.InfoClass = "alpenhorn_chime.info.CorrAcqInfo"
	require.NoError(t, store.UpsertAcqType(ctx, at))

	name, _, err := d.ImportDetect(ctx, "20230101T000000Z_chime_weather/20230101.h5", model.StorageNode{})
	require.NoError(t, err)
	assert.Empty(t, name)
}
