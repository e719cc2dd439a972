package daemon

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chime-experiment/alpenhorn-chime/internal/importer"
)

func TestImport_RelativeAndAbsolute(t *testing.T) {
	ctx := context.Background()
	s := newSite(t)
	d := s.daemon(false)

	rel := weatherAcq + "/20230104.h5"
	s.write(t, rel, "control import")

	outcome, err := d.Import(ctx, "cedar_online", rel)
	require.NoError(t, err)
	assert.Equal(t, importer.Imported.String(), outcome)

	outcome, err = d.Import(ctx, "cedar_online", filepath.Join(s.onlineRoot, rel))
	require.NoError(t, err)
	assert.Equal(t, importer.AlreadyPresent.String(), outcome)
}

func TestImport_Rejects(t *testing.T) {
	ctx := context.Background()
	s := newSite(t)
	d := s.daemon(false)

	_, err := d.Import(ctx, "gossec_online", weatherAcq+"/20230101.h5")
	assert.Error(t, err, "node on another host")

	_, err = d.Import(ctx, "cedar_online", "/elsewhere/file.h5")
	assert.Error(t, err, "path outside root")
}

func TestImport_WorksWithAutoImportOff(t *testing.T) {
	ctx := context.Background()
	s := newSite(t)
	d := New(s.store, s.ext, nil, Config{Host: host})

	rel := weatherAcq + "/20230101.h5"
	s.write(t, rel, "manual")

	outcome, err := d.Import(ctx, "cedar_online", rel)
	require.NoError(t, err)
	assert.Equal(t, importer.Imported.String(), outcome)

	ok, err := s.store.NodeHasFile(ctx, s.online.ID, rel)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScan_ImportsWholeNode(t *testing.T) {
	ctx := context.Background()
	s := newSite(t)
	d := New(s.store, s.ext, nil, Config{Host: host})

	s.write(t, weatherAcq+"/20230101.h5", "day one")
	s.write(t, weatherAcq+"/20230102.h5", "day two")

	n, err := d.Scan(ctx, "cedar_online")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = d.Scan(ctx, "cedar_online")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = d.Scan(ctx, "gossec_online")
	assert.Error(t, err, "node on another host")
	_, err = d.Scan(ctx, "missing")
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	s := newSite(t)
	d := New(s.store, s.ext, nil, Config{Host: host, Version: "v1.2.3"})

	st, err := d.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, host, st.Host)
	assert.Equal(t, "v1.2.3", st.Version)
	assert.Len(t, st.Nodes, 2)
	assert.EqualValues(t, 3, st.RowCounts["storage_node"])
	assert.EqualValues(t, 269, st.RowCounts["archive_inst"])
}

func TestQuery(t *testing.T) {
	s := newSite(t)
	d := s.daemon(false)

	rows, err := d.Query(context.Background(), "SELECT name FROM storage_group ORDER BY name")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "cedar_nearline", rows[0]["name"])
}
