// Package info computes the acquisition and file info records that are
// stored alongside newly imported CHIME data.
package info

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/h5"
	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// ErrUnknownClass is returned when an info class name cannot be resolved.
var ErrUnknownClass = errors.New("info: unknown class")

// ErrBadName is returned when a file name does not fit its info class.
var ErrBadName = errors.New("info: file name does not match class")

// Kind says whether a class describes acquisitions or files.
type Kind int

const (
	AcqKind Kind = iota
	FileKind
)

// Target is the item an info record is generated for.
type Target struct {
	Kind    Kind
	ItemID  int64  // acq or file id
	Root    string // node root
	Path    string // imported file, relative to Root
	AcqType string // name of the acquisition's type

	AcqTime  time.Time         // acquisitions only
	NameData map[string]string // files only: named groups of the filename pattern
}

// AbsPath returns the absolute path of the imported file.
func (t Target) AbsPath() string {
	return filepath.Join(t.Root, filepath.FromSlash(t.Path))
}

// Class computes the column values of one info table. Classes with an empty
// Table only take part in type detection and store nothing.
type Class interface {
	Name() string
	Kind() Kind
	Table() string
	Values(t Target, open h5.Opener) (map[string]any, error)
}

// Provider picks the class for a target at import time.
type Provider func(t Target) (Class, error)

// Registry resolves info class names and writes info records.
type Registry struct {
	classes   map[string]Class
	providers map[string]Provider
	open      h5.Opener
}

// NewRegistry returns a Registry holding the CHIME classes. A nil opener
// uses h5.Open.
func NewRegistry(open h5.Opener) *Registry {
	if open == nil {
		open = h5.Open
	}
	r := &Registry{
		classes:   make(map[string]Class),
		providers: make(map[string]Provider),
		open:      open,
	}
	for _, c := range builtinClasses() {
		r.classes[c.Name()] = c
	}
	r.providers["cal_info_class"] = r.calInfoClass
	return r
}

// Class returns a registered class by short name.
func (r *Registry) Class(name string) (Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Resolve turns a stored info_class value into a Class for t. The
// model.DefaultInfoPrefix is optional; a leading "=" names a Provider.
func (r *Registry) Resolve(infoClass string, t Target) (Class, error) {
	name, indirect := strings.CutPrefix(infoClass, "=")
	name = strings.TrimPrefix(name, model.DefaultInfoPrefix)

	if indirect {
		p, ok := r.providers[name]
		if !ok {
			return nil, fmt.Errorf("%w: provider %q", ErrUnknownClass, infoClass)
		}
		return p(t)
	}
	c, ok := r.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, infoClass)
	}
	return c, nil
}

// Store resolves infoClass, computes the record for t and writes it. An
// empty infoClass, or a class with no table, stores nothing.
func (r *Registry) Store(ctx context.Context, w model.InfoWriter, infoClass string, t Target) error {
	if infoClass == "" {
		return nil
	}
	c, err := r.Resolve(infoClass, t)
	if err != nil {
		return err
	}
	if c.Kind() != t.Kind {
		return fmt.Errorf("info class %s does not describe this kind of item", c.Name())
	}
	if c.Table() == "" {
		return nil
	}

	values, err := c.Values(t, r.open)
	if err != nil {
		return fmt.Errorf("%s for %s: %w", c.Name(), t.Path, err)
	}

	key := "acq_id"
	if t.Kind == FileKind {
		key = "file_id"
	}
	if err := w.InsertInfo(ctx, model.InfoRecord{Table: c.Table(), Key: key, ItemID: t.ItemID, Values: values}); err != nil {
		return err
	}

	logger := log.WithComponent("info")
	logger.Debug().
		Str(log.FieldInfo, c.Name()).
		Str(log.FieldPath, t.Path).
		Int64("item_id", t.ItemID).
		Msg("info record stored")
	return nil
}

func (r *Registry) calInfoClass(t Target) (Class, error) {
	var name string
	switch t.AcqType {
	case "digitalgain":
		name = "DigitalGainFileInfo"
	case "gain":
		name = "CalibrationGainFileInfo"
	case "flaginput":
		name = "FlagInputFileInfo"
	default:
		return nil, fmt.Errorf("%w: no calibration info for acq type %q", ErrUnknownClass, t.AcqType)
	}
	return r.classes[name], nil
}

// withFile opens the target file and passes it to fn.
func withFile(t Target, open h5.Opener, fn func(h5.File) error) error {
	f, err := open(t.AbsPath())
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}
