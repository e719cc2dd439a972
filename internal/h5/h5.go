// Package h5 reads the small amount of HDF5 metadata the info tables need.
package h5

import (
	"errors"
	"fmt"

	"gonum.org/v1/hdf5"
)

// ErrNoDataset is returned when a dataset is missing from a file.
var ErrNoDataset = errors.New("h5: no such dataset")

// File is a read-only view of an HDF5 file.
type File interface {
	// Len returns the length of the first dimension of a dataset.
	Len(name string) (int, error)
	// Float64s reads a one-dimensional numeric dataset.
	Float64s(name string) ([]float64, error)
	// Ctimes reads the "ctime" member of a compound dataset.
	Ctimes(name string) ([]float64, error)
	Close() error
}

// Opener opens the HDF5 file at path.
type Opener func(path string) (File, error)

// Open opens path read-only with the HDF5 library.
func Open(path string) (File, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("h5: open %s: %w", path, err)
	}
	return &libFile{f: f, path: path}, nil
}

type libFile struct {
	f    *hdf5.File
	path string
}

type ctimeRow struct {
	Ctime float64 `hdf5:"ctime"`
}

func (l *libFile) open(name string) (*hdf5.Dataset, int, error) {
	if !l.f.LinkExists(name) {
		return nil, 0, fmt.Errorf("%s in %s: %w", name, l.path, ErrNoDataset)
	}
	ds, err := l.f.OpenDataset(name)
	if err != nil {
		return nil, 0, fmt.Errorf("h5: open dataset %s: %w", name, err)
	}
	space := ds.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		ds.Close()
		return nil, 0, fmt.Errorf("h5: dims of %s: %w", name, err)
	}
	if len(dims) == 0 {
		return ds, 0, nil
	}
	return ds, int(dims[0]), nil
}

func (l *libFile) Len(name string) (int, error) {
	ds, n, err := l.open(name)
	if err != nil {
		return 0, err
	}
	ds.Close()
	return n, nil
}

func (l *libFile) Float64s(name string) ([]float64, error) {
	ds, n, err := l.open(name)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	out := make([]float64, n)
	if n == 0 {
		return out, nil
	}
	if err := ds.Read(&out); err != nil {
		return nil, fmt.Errorf("h5: read %s: %w", name, err)
	}
	return out, nil
}

func (l *libFile) Ctimes(name string) ([]float64, error) {
	ds, n, err := l.open(name)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	rows := make([]ctimeRow, n)
	if n > 0 {
		if err := ds.Read(&rows); err != nil {
			return nil, fmt.Errorf("h5: read %s ctime: %w", name, err)
		}
	}
	out := make([]float64, n)
	for i, r := range rows {
		out[i] = r.Ctime
	}
	return out, nil
}

func (l *libFile) Close() error {
	return l.f.Close()
}
