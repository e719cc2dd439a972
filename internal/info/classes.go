package info

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/chime-experiment/alpenhorn-chime/internal/h5"
)

func builtinClasses() []Class {
	return []Class{
		AcqDetect{name: "WeatherAcqDetect", acqType: "weather"},
		AcqDetect{name: "DigitalGainAcqDetect", acqType: "digitalgain"},
		AcqDetect{name: "CalibrationGainAcqDetect", acqType: "gain"},
		AcqDetect{name: "FlagInputAcqDetect", acqType: "flaginput"},
		corrAcqInfo{AcqDetect{name: "CorrAcqInfo", acqType: "corr"}},
		hfbAcqInfo{AcqDetect{name: "HFBAcqInfo", acqType: "hfb"}},
		rawadcAcqInfo{AcqDetect{name: "RawadcAcqInfo", acqType: "rawadc"}},
		chunkFileInfo{name: "CorrFileInfo", table: "corr_file_info"},
		chunkFileInfo{name: "HFBFileInfo", table: "hfb_file_info"},
		rawadcFileInfo{},
		weatherFileInfo{},
		calFileInfo{name: "DigitalGainFileInfo", table: "digitalgain_file_info"},
		calFileInfo{name: "CalibrationGainFileInfo", table: "calibration_gain_file_info"},
		calFileInfo{name: "FlagInputFileInfo", table: "flag_input_file_info"},
	}
}

const (
	timeIndex    = "/index_map/time"
	freqIndex    = "/index_map/freq"
	prodIndex    = "/index_map/prod"
	subfreqIndex = "/index_map/subfreq"
	beamIndex    = "/index_map/beam"
	updateIndex  = "index_map/update_time"
	rawadcTimes  = "timestamp"
)

// medianStep returns the median difference between consecutive samples,
// or nil when there are fewer than two.
func medianStep(ts []float64) any {
	if len(ts) < 2 {
		return nil
	}
	dt := make([]float64, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		dt[i-1] = ts[i] - ts[i-1]
	}
	sort.Float64s(dt)
	mid := len(dt) / 2
	if len(dt)%2 == 1 {
		return dt[mid]
	}
	return (dt[mid-1] + dt[mid]) / 2
}

type corrAcqInfo struct{ AcqDetect }

func (corrAcqInfo) Table() string { return "corr_acq_info" }

func (corrAcqInfo) Values(t Target, open h5.Opener) (map[string]any, error) {
	out := map[string]any{}
	err := withFile(t, open, func(f h5.File) error {
		ts, err := f.Ctimes(timeIndex)
		if err != nil {
			return err
		}
		out["integration"] = medianStep(ts)
		if out["nfreq"], err = f.Len(freqIndex); err != nil {
			return err
		}
		out["nprod"], err = f.Len(prodIndex)
		return err
	})
	return out, err
}

type hfbAcqInfo struct{ AcqDetect }

func (hfbAcqInfo) Table() string { return "hfb_acq_info" }

func (hfbAcqInfo) Values(t Target, open h5.Opener) (map[string]any, error) {
	out := map[string]any{}
	err := withFile(t, open, func(f h5.File) error {
		ts, err := f.Ctimes(timeIndex)
		if err != nil {
			return err
		}
		out["integration"] = medianStep(ts)
		for col, ds := range map[string]string{"nfreq": freqIndex, "nsubfreq": subfreqIndex, "nbeam": beamIndex} {
			n, err := f.Len(ds)
			if err != nil {
				return err
			}
			out[col] = n
		}
		return nil
	})
	return out, err
}

type rawadcAcqInfo struct{ AcqDetect }

func (rawadcAcqInfo) Table() string { return "rawadc_acq_info" }

func (rawadcAcqInfo) Values(t Target, _ h5.Opener) (map[string]any, error) {
	if t.AcqTime.IsZero() {
		return nil, fmt.Errorf("rawadc acq info needs the acquisition time")
	}
	return map[string]any{"start_time": float64(t.AcqTime.Unix())}, nil
}

// fileClass holds what every file class shares.
type fileClass struct{}

func (fileClass) Kind() Kind { return FileKind }

// chunkFileInfo covers the correlator-style files named
// <chunk_number>_<freq_number>.h5.
type chunkFileInfo struct {
	fileClass
	name  string
	table string
}

func (c chunkFileInfo) Name() string  { return c.name }
func (c chunkFileInfo) Table() string { return c.table }

func (c chunkFileInfo) Values(t Target, open h5.Opener) (map[string]any, error) {
	out := map[string]any{}
	err := withFile(t, open, func(f h5.File) error {
		ts, err := f.Ctimes(timeIndex)
		if err != nil {
			return err
		}
		if len(ts) == 0 {
			return fmt.Errorf("%s is empty", timeIndex)
		}
		out["start_time"] = ts[0]
		out["finish_time"] = ts[len(ts)-1]
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"chunk_number", "freq_number"} {
		s, ok := t.NameData[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", key, s, ErrBadName)
		}
		out[key] = n
	}
	return out, nil
}

type rawadcFileInfo struct{ fileClass }

func (rawadcFileInfo) Name() string  { return "RawadcFileInfo" }
func (rawadcFileInfo) Table() string { return "rawadc_file_info" }

func (rawadcFileInfo) Values(t Target, open h5.Opener) (map[string]any, error) {
	out := map[string]any{}
	err := withFile(t, open, func(f h5.File) error {
		ts, err := f.Ctimes(rawadcTimes)
		if err != nil {
			return err
		}
		if len(ts) == 0 {
			return fmt.Errorf("%s is empty", rawadcTimes)
		}
		lo, hi := ts[0], ts[0]
		for _, v := range ts[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		out["start_time"] = lo
		out["finish_time"] = hi
		return nil
	})
	return out, err
}

type weatherFileInfo struct{ fileClass }

func (weatherFileInfo) Name() string  { return "WeatherFileInfo" }
func (weatherFileInfo) Table() string { return "weather_file_info" }

// Values covers the whole UTC day named in the file name; the file itself
// is not read.
func (weatherFileInfo) Values(t Target, _ h5.Opener) (map[string]any, error) {
	date := t.NameData["date"]
	day, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("weather date %q: %w", date, ErrBadName)
	}
	return map[string]any{
		"start_time":  float64(day.Unix()),
		"finish_time": float64(day.AddDate(0, 0, 1).Add(-time.Second).Unix()),
		"date":        date,
	}, nil
}

var calFileName = regexp.MustCompile(`^[0-9]{8}\.h5`)

type calFileInfo struct {
	fileClass
	name  string
	table string
}

func (c calFileInfo) Name() string  { return c.name }
func (c calFileInfo) Table() string { return c.table }

// IsType reports whether name looks like a calibration file.
func (calFileInfo) IsType(name string) bool {
	return calFileName.MatchString(name)
}

func (c calFileInfo) Values(t Target, open h5.Opener) (map[string]any, error) {
	if name := baseName(t.Path); !c.IsType(name) {
		return nil, fmt.Errorf("bad cal data file %q: %w", name, ErrBadName)
	}
	out := map[string]any{}
	err := withFile(t, open, func(f h5.File) error {
		ts, err := f.Float64s(updateIndex)
		if err != nil {
			return err
		}
		if len(ts) == 0 {
			return fmt.Errorf("%s is empty", updateIndex)
		}
		out["start_time"] = ts[0]
		out["finish_time"] = ts[len(ts)-1]
		return nil
	})
	return out, err
}
