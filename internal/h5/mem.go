package h5

import "fmt"

// MemFile is an in-memory File. Numeric datasets live in Data; compound
// datasets are represented by their ctime column in CTime.
type MemFile struct {
	Data  map[string][]float64
	CTime map[string][]float64
	Sizes map[string]int // lengths of datasets with no values
}

// Len implements File.
func (m *MemFile) Len(name string) (int, error) {
	if v, ok := m.Data[name]; ok {
		return len(v), nil
	}
	if v, ok := m.CTime[name]; ok {
		return len(v), nil
	}
	if n, ok := m.Sizes[name]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("%s: %w", name, ErrNoDataset)
}

// Float64s implements File.
func (m *MemFile) Float64s(name string) ([]float64, error) {
	v, ok := m.Data[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoDataset)
	}
	return append([]float64(nil), v...), nil
}

// Ctimes implements File.
func (m *MemFile) Ctimes(name string) ([]float64, error) {
	v, ok := m.CTime[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoDataset)
	}
	return append([]float64(nil), v...), nil
}

// Close implements File.
func (m *MemFile) Close() error { return nil }

// MemOpener returns an Opener serving files from a map keyed by path.
func MemOpener(files map[string]*MemFile) Opener {
	return func(path string) (File, error) {
		f, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("h5: open %s: no such file", path)
		}
		return f, nil
	}
}
