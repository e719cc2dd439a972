package info

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/h5"
)

// AcqTimeLayout is the timestamp that starts every CHIME acquisition name.
const AcqTimeLayout = "20060102T150405Z"

// InstLookup reports whether an instrument name is known.
type InstLookup func(ctx context.Context, name string) bool

// AcqDetect recognises acquisitions of one type from their names. It stores
// no info of its own.
type AcqDetect struct {
	name    string
	acqType string
}

func (d AcqDetect) Name() string { return d.name }
func (AcqDetect) Kind() Kind     { return AcqKind }
func (AcqDetect) Table() string  { return "" }
func (d AcqDetect) Type() string { return d.acqType }

func (AcqDetect) Values(Target, h5.Opener) (map[string]any, error) { return nil, nil }

// IsType reports whether name has the form <time>_<inst>_<type> with this
// class's type, a known instrument and a valid time.
func (d AcqDetect) IsType(ctx context.Context, name string, known InstLookup) bool {
	parts := strings.Split(name, "_")
	if len(parts) != 3 || parts[2] != d.acqType {
		return false
	}
	if !known(ctx, parts[1]) {
		return false
	}
	_, err := TimestampFromName(parts[0])
	return err == nil
}

// TimestampFromName returns the epoch seconds encoded in the first 16
// characters of an acquisition name.
func TimestampFromName(name string) (int64, error) {
	if len(name) > len(AcqTimeLayout) {
		name = name[:len(AcqTimeLayout)]
	}
	t, err := time.Parse(AcqTimeLayout, name)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

func baseName(p string) string {
	return path.Base(p)
}
