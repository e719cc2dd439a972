package nodeio

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// lfsConfig is the io_config of an LFSQuota node.
type lfsConfig struct {
	QuotaGroup string `json:"quota_group"`
	FixedQuota int64  `json:"fixed_quota"` // KiB; overrides the hard limit reported by lfs
	LFS        string `json:"lfs"`
}

// LFSQuota is Default with free space taken from the Lustre group quota
// instead of the filesystem.
type LFSQuota struct {
	*Default
	conf lfsConfig
	run  CommandRunner
}

// NewLFSQuota returns the LFSQuota I/O class for node. The node's io_config
// must name a quota_group.
func NewLFSQuota(node model.StorageNode, cat Catalog, opts Options) (*LFSQuota, error) {
	var conf lfsConfig
	if strings.TrimSpace(node.IOConfig) != "" {
		if err := json.Unmarshal([]byte(node.IOConfig), &conf); err != nil {
			return nil, fmt.Errorf("node %s: io_config: %w", node.Name, err)
		}
	}
	if conf.QuotaGroup == "" {
		return nil, fmt.Errorf("node %s: io_config has no quota_group", node.Name)
	}
	if conf.LFS == "" {
		conf.LFS = opts.LFSCommand
	}
	if conf.LFS == "" {
		conf.LFS = "lfs"
	}

	l := &LFSQuota{Default: NewDefault(node, cat), conf: conf, run: opts.Run}
	if l.run == nil {
		l.run = runCommand
	}
	l.avail = l.quotaAvail
	return l, nil
}

func (l *LFSQuota) quotaAvail(ctx context.Context) (int64, error) {
	out, err := l.run(ctx, l.conf.LFS, "quota", "-q", "-g", l.conf.QuotaGroup, l.node.Root)
	if err != nil {
		return 0, fmt.Errorf("lfs quota %s: %w", l.conf.QuotaGroup, err)
	}
	used, limit, err := parseQuota(out)
	if err != nil {
		return 0, err
	}
	if l.conf.FixedQuota > 0 {
		limit = l.conf.FixedQuota
	}
	if limit <= 0 {
		return 0, fmt.Errorf("lfs quota %s: no limit set", l.conf.QuotaGroup)
	}
	return (limit - used) * 1024, nil
}

// parseQuota reads the used and hard-limit KiB from `lfs quota -q` output.
// The filesystem name may be on a line of its own and the used figure
// carries a trailing '*' when over quota.
func parseQuota(out []byte) (used, limit int64, err error) {
	fields := strings.Fields(string(out))
	if len(fields) < 4 {
		return 0, 0, fmt.Errorf("lfs quota: unexpected output %q", strings.TrimSpace(string(out)))
	}
	used, err = strconv.ParseInt(strings.TrimSuffix(fields[1], "*"), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("lfs quota: used: %w", err)
	}
	limit, err = strconv.ParseInt(strings.TrimSuffix(fields[3], "*"), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("lfs quota: limit: %w", err)
	}
	return used, limit, nil
}
