// Package seed brings the CHIME type and instrument tables up to date.
package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/chime-experiment/alpenhorn-chime/internal/duckdb"
	"github.com/chime-experiment/alpenhorn-chime/internal/log"
	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// Filename patterns seeded with new file types.
const (
	PatternChunked     = `(?P<chunk_number>[0-9]{8})_(?P<freq_number>[0-9]{4})\.h5`
	PatternRawadc      = `[0-9]{6}\.h5`
	PatternWeather     = `(?P<date>[0-9]{8})\.h5`
	PatternCalibration = `[0-9]{8}\.h5`
)

type typeDef struct {
	id        int64
	name      string
	notes     string
	infoClass string
	pattern   string
}

var acqTypes = []typeDef{
	{1, "corr", "Traditionally hand-tooled correlation products from a correlator.", "CorrAcqInfo", ""},
	{2, "hk", "Housekeeping data.", "", ""},
	{3, "rawadc", "Raw ADC data taken for testing the status of a correlator.", "RawadcAcqInfo", ""},
	{5, "weather", "Weather data scraped from the wview archive provided by DRAO.", "WeatherAcqDetect", ""},
	{6, "hkp", "New prometheus based scheme for recording housekeeping data.", "", ""},
	{7, "digitalgain", "FPGA digital gains from the F-Engine.", "DigitalGainAcqDetect", ""},
	{8, "gain", "Complex gains from the calibration broker.", "CalibrationGainAcqDetect", ""},
	{9, "flaginput", "Good correlator input flags from the flagging broker.", "FlagInputAcqDetect", ""},
	{11, "hfb", "21cm absorber (Hyper Fine Beam) data taken from a correlator.", "HFBAcqInfo", ""},
}

var fileTypes = []typeDef{
	{1, "corr", "Traditionally hand-tooled correlation products from a correlator.", "CorrFileInfo", PatternChunked},
	{2, "log", "A human-readable log file produced by acquisition software.", "", ""},
	{3, "hk", "A housekeeping file.", "", ""},
	{4, "atmel_id", "A short file listing the ATMEL ID's and human readable names in an HK acquisition.", "", ""},
	{5, "rawadc", "Raw ADC data taken for testing the status of a correlator.", "RawadcFileInfo", PatternRawadc},
	{6, "pdf", "A portable document file.", "", ""},
	{10, "weather", "Weather data scraped from the wview archive provided by DRAO.", "WeatherFileInfo", PatternWeather},
	{11, "hkp", "Archive of the prometheus housekeeping data.", "", ""},
	{12, "calibration", "Calibration data products.", "=cal_info_class", PatternCalibration},
	{14, "hfb", "21cm absorber (Hyper Fine Beam) data taken from a correlator.", "HFBFileInfo", PatternChunked},
}

// acqFileTypes is the exact file type of each listed acq type.
var acqFileTypes = [][2]string{
	{"corr", "corr"},
	{"rawadc", "rawadc"},
	{"weather", "weather"},
	{"digitalgain", "calibration"},
	{"gain", "calibration"},
	{"flaginput", "calibration"},
	{"hfb", "hfb"},
}

// QualifyInfoClass prefixes a short info class name with
// model.DefaultInfoPrefix. A leading "=" stays in front.
func QualifyInfoClass(name string) string {
	if name == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(name, "="); ok {
		return "=" + model.DefaultInfoPrefix + rest
	}
	return model.DefaultInfoPrefix + name
}

// UpdateTypes upserts the known acq and file types and fixes the acq type to
// file type mapping, all in one transaction. Unknown types are left alone.
func UpdateTypes(ctx context.Context, store *duckdb.Store) error {
	logger := log.WithComponent("seed")

	err := store.Atomic(ctx, func(tx *duckdb.Store) error {
		for _, d := range acqTypes {
			t := model.AcqType{ID: d.id, Name: d.name, Notes: d.notes, InfoClass: QualifyInfoClass(d.infoClass)}
			if err := tx.UpsertAcqType(ctx, t); err != nil {
				return err
			}
		}
		for _, d := range fileTypes {
			t := model.FileType{ID: d.id, Name: d.name, Notes: d.notes, InfoClass: QualifyInfoClass(d.infoClass), Pattern: d.pattern}
			if err := tx.UpsertFileType(ctx, t); err != nil {
				return err
			}
		}
		for _, pair := range acqFileTypes {
			at, err := tx.AcqTypeByName(ctx, pair[0])
			if err != nil {
				return fmt.Errorf("acq type %s: %w", pair[0], err)
			}
			ft, err := tx.FileTypeByName(ctx, pair[1])
			if err != nil {
				return fmt.Errorf("file type %s: %w", pair[1], err)
			}
			if err := tx.SetAcqFileType(ctx, at.ID, ft.ID); err != nil {
				return fmt.Errorf("map %s to %s: %w", pair[0], pair[1], err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update types: %w", err)
	}

	logger.Info().Int("acq_types", len(acqTypes)).Int("file_types", len(fileTypes)).Msg("types updated")
	return nil
}

// UpdateInst adds the known instruments that are missing and returns how
// many were inserted.
func UpdateInst(ctx context.Context, store *duckdb.Store) (int, error) {
	insts := make([]model.ArchiveInst, len(knownInsts))
	for i, k := range knownInsts {
		insts[i] = model.ArchiveInst{ID: k.id, Name: k.name}
	}

	var n int
	err := store.Atomic(ctx, func(tx *duckdb.Store) error {
		var err error
		n, err = tx.InsertInsts(ctx, insts)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("update instruments: %w", err)
	}

	logger := log.WithComponent("seed")
	logger.Info().Int(log.FieldCount, n).Msg("instruments updated")
	return n, nil
}
