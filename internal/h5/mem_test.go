package h5

import (
	"errors"
	"testing"
)

func TestMemFile(t *testing.T) {
	open := MemOpener(map[string]*MemFile{
		"/data/a.h5": {
			Data:  map[string][]float64{"index_map/update_time": {1, 2, 3}},
			CTime: map[string][]float64{"/index_map/time": {10, 20}},
			Sizes: map[string]int{"/index_map/freq": 1024},
		},
	})

	f, err := open("/data/a.h5")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	for name, want := range map[string]int{"index_map/update_time": 3, "/index_map/time": 2, "/index_map/freq": 1024} {
		n, err := f.Len(name)
		if err != nil || n != want {
			t.Errorf("Len(%s) = %d, %v; want %d", name, n, err, want)
		}
	}

	ct, err := f.Ctimes("/index_map/time")
	if err != nil || len(ct) != 2 || ct[1] != 20 {
		t.Errorf("Ctimes = %v, %v", ct, err)
	}
	ct[0] = 99
	if again, _ := f.Ctimes("/index_map/time"); again[0] != 10 {
		t.Error("Ctimes returned shared storage")
	}

	if _, err := f.Float64s("missing"); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Float64s(missing) err = %v, want ErrNoDataset", err)
	}
	if _, err := open("/data/b.h5"); err == nil {
		t.Error("open of unknown path should fail")
	}
}
