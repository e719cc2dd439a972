package nodeio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

func TestParseQuota(t *testing.T) {
	cases := []struct {
		name        string
		out         string
		used, limit int64
		wantErr     bool
	}{
		{"single line", "/project 1000 0 5000 - 12 0 0 -\n", 1000, 5000, false},
		{"wrapped name", "/a/very/long/lustre/mount/point\n 2000 0 6000 - 3 0 0 -\n", 2000, 6000, false},
		{"over quota", "/project 7000* 0 6000 6d 3 0 0 -\n", 7000, 6000, false},
		{"empty", "", 0, 0, true},
		{"garbage", "/project lots 0 6000", 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			used, limit, err := parseQuota([]byte(tc.out))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.used, used)
			assert.Equal(t, tc.limit, limit)
		})
	}
}

type fakeLFS struct {
	out  string
	err  error
	args []string
}

func (f *fakeLFS) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.args = append([]string{name}, args...)
	return []byte(f.out), f.err
}

func TestLFSQuota_AvailFromQuota(t *testing.T) {
	fake := &fakeLFS{out: "/project 1000 0 5000 - 1 0 0 -"}
	node := model.StorageNode{Name: "cedar_nearline", Root: "/project/chime", IOConfig: `{"quota_group": "rpp-chime"}`}

	l, err := NewLFSQuota(node, nil, Options{LFSCommand: "/usr/bin/lfs", Run: fake.run})
	require.NoError(t, err)

	avail, err := l.AvailBytes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4000*1024), avail)
	assert.Equal(t, []string{"/usr/bin/lfs", "quota", "-q", "-g", "rpp-chime", "/project/chime"}, fake.args)
}

func TestLFSQuota_FixedQuotaAndCommandOverride(t *testing.T) {
	fake := &fakeLFS{out: "/project 1000 0 0 - 1 0 0 -"}
	node := model.StorageNode{
		Name: "n", Root: "/project",
		IOConfig: `{"quota_group": "g", "fixed_quota": 3000, "lfs": "/opt/lfs"}`,
	}
	l, err := NewLFSQuota(node, nil, Options{LFSCommand: "/usr/bin/lfs", Run: fake.run})
	require.NoError(t, err)

	avail, err := l.AvailBytes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2000*1024), avail)
	assert.Equal(t, "/opt/lfs", fake.args[0])
}

func TestLFSQuota_Errors(t *testing.T) {
	_, err := NewLFSQuota(model.StorageNode{Name: "n"}, nil, Options{})
	assert.Error(t, err, "quota_group is required")

	_, err = NewLFSQuota(model.StorageNode{Name: "n", IOConfig: "{"}, nil, Options{})
	assert.Error(t, err)

	fake := &fakeLFS{err: errors.New("exit status 1")}
	l, err := NewLFSQuota(model.StorageNode{Name: "n", IOConfig: `{"quota_group": "g"}`}, nil, Options{Run: fake.run})
	require.NoError(t, err)
	_, err = l.AvailBytes(context.Background())
	assert.Error(t, err)

	fake.err, fake.out = nil, "/project 1000 0 0 - 1 0 0 -"
	_, err = l.AvailBytes(context.Background())
	assert.Error(t, err, "no limit and no fixed quota")
}
