// Package preprocess fits and applies the per-feature statistics shared by
// training and inference: median, range and 1st/99th percentile clip bounds.
package preprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/KaramelBytes/exodetect-cli/internal/analysis"
	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
	"github.com/KaramelBytes/exodetect-cli/internal/utils"
)

// NoteFilledWithMedians marks an Info whose single row was synthesized.
const NoteFilledWithMedians = "filled_with_medians"

const (
	clipLow  = 0.01
	clipHigh = 0.99
)

var (
	ErrEmptyFeature  = errors.New("feature has no numeric values")
	ErrMissingColumn = errors.New("feature missing from preprocessor config")
)

// EmptyFeatureError is returned by Fit when a feature has no usable values.
type EmptyFeatureError struct{ Feature string }

func (e *EmptyFeatureError) Error() string {
	return fmt.Sprintf("%s: %s", ErrEmptyFeature, e.Feature)
}

func (e *EmptyFeatureError) Unwrap() error { return ErrEmptyFeature }

// MissingColumnError is returned by Apply when the config lacks a feature.
type MissingColumnError struct{ Feature string }

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingColumn, e.Feature)
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingColumn }

// Table is the row access the preprocessor needs. ok is false for nulls.
type Table interface {
	NumRows() int
	Lookup(column string, row int) (string, bool)
}

// FeatureStats are the fitted statistics for one feature.
type FeatureStats struct {
	Median  float64 `json:"median"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	ClipMin float64 `json:"clip_min"`
	ClipMax float64 `json:"clip_max"`
}

// Clip clamps x into [ClipMin, ClipMax].
func (s FeatureStats) Clip(x float64) float64 {
	return math.Min(math.Max(x, s.ClipMin), s.ClipMax)
}

// Config is a fitted preprocessor. It is not modified after Fit.
type Config struct {
	Features []string                `json:"features"`
	Stats    map[string]FeatureStats `json:"stats"`
}

// Has reports whether every feature has stats.
func (c *Config) Has(features []string) bool {
	if c == nil {
		return false
	}
	for _, f := range features {
		if _, ok := c.Stats[f]; !ok {
			return false
		}
	}
	return true
}

// Matrix is the numeric model input, one row per retained record.
type Matrix struct {
	Features []string
	Rows     [][]float64
}

// Column returns the values of one feature across rows.
func (m *Matrix) Column(feature string) []float64 {
	j := -1
	for i, f := range m.Features {
		if f == feature {
			j = i
		}
	}
	if j < 0 {
		return nil
	}
	out := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		out[i] = row[j]
	}
	return out
}

// Info describes what Apply or Prepare did to the rows.
type Info struct {
	RowsIn      int    `json:"rows_in"`
	RowsOut     int    `json:"rows_out"`
	DroppedRows int    `json:"dropped_rows"`
	Note        string `json:"note,omitempty"`
}

func numericValues(t Table, feature string) []float64 {
	var vals []float64
	for r := 0; r < t.NumRows(); r++ {
		raw, ok := t.Lookup(feature, r)
		if !ok {
			continue
		}
		if x, ok := ingest.ParseNumber(raw); ok {
			vals = append(vals, x)
		}
	}
	return vals
}

func statsOf(vals []float64) FeatureStats {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return FeatureStats{
		Median:  analysis.Quantile(sorted, 0.5),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		ClipMin: analysis.Quantile(sorted, clipLow),
		ClipMax: analysis.Quantile(sorted, clipHigh),
	}
}

// Fit computes per-feature statistics over the rows of t.
func Fit(t Table, features []string) (*Config, error) {
	cfg := &Config{Features: append([]string(nil), features...), Stats: make(map[string]FeatureStats, len(features))}
	for _, f := range features {
		vals := numericValues(t, f)
		if len(vals) == 0 {
			return nil, &EmptyFeatureError{Feature: f}
		}
		cfg.Stats[f] = statsOf(vals)
	}
	return cfg, nil
}

// Apply coerces the configured features to numbers, drops rows with any
// missing feature and clamps the rest into each feature's clip bounds.
func Apply(t Table, cfg *Config) (*Matrix, Info, error) {
	if cfg == nil {
		return nil, Info{}, &MissingColumnError{Feature: "(no config)"}
	}
	for _, f := range cfg.Features {
		if _, ok := cfg.Stats[f]; !ok {
			return nil, Info{}, &MissingColumnError{Feature: f}
		}
	}
	m := &Matrix{Features: append([]string(nil), cfg.Features...)}
	info := Info{RowsIn: t.NumRows()}
rows:
	for r := 0; r < t.NumRows(); r++ {
		row := make([]float64, len(cfg.Features))
		for j, f := range cfg.Features {
			raw, ok := t.Lookup(f, r)
			if !ok {
				continue rows
			}
			x, ok := ingest.ParseNumber(raw)
			if !ok {
				continue rows
			}
			row[j] = cfg.Stats[f].Clip(x)
		}
		m.Rows = append(m.Rows, row)
	}
	info.RowsOut = len(m.Rows)
	info.DroppedRows = info.RowsIn - info.RowsOut
	return m, info, nil
}

// Subset extracts the stats for features from cfg. ok is false unless every
// feature is present.
func Subset(cfg *Config, features []string) (*Config, bool) {
	if !cfg.Has(features) {
		return nil, false
	}
	out := &Config{Features: append([]string(nil), features...), Stats: make(map[string]FeatureStats, len(features))}
	for _, f := range features {
		out.Stats[f] = cfg.Stats[f]
	}
	return out, true
}

// BuildConfig returns a config covering features: a subset of base when it
// has them all, otherwise one fitted on t, otherwise per-feature fallbacks
// built from whatever values t has.
func BuildConfig(t Table, base *Config, features []string) *Config {
	if cfg, ok := Subset(base, features); ok {
		return cfg
	}
	if cfg, err := Fit(t, features); err == nil {
		return cfg
	}
	cfg := &Config{Features: append([]string(nil), features...), Stats: make(map[string]FeatureStats, len(features))}
	for _, f := range features {
		if vals := numericValues(t, f); len(vals) > 0 {
			cfg.Stats[f] = statsOf(vals)
			continue
		}
		cfg.Stats[f] = FeatureStats{Median: 0, Min: 0, Max: 1, ClipMin: 0, ClipMax: 1}
	}
	return cfg
}

// Prepare builds a config for features and applies it. When every row is
// dropped a single row of medians stands in and Info records it.
func Prepare(t Table, base *Config, features []string) (*Matrix, Info, *Config, error) {
	cfg := BuildConfig(t, base, features)
	m, info, err := Apply(t, cfg)
	if err != nil {
		return nil, info, cfg, err
	}
	if len(m.Rows) == 0 {
		row := make([]float64, len(cfg.Features))
		for j, f := range cfg.Features {
			row[j] = cfg.Stats[f].Median
		}
		m.Rows = [][]float64{row}
		info.RowsOut = 1
		info.Note = NoteFilledWithMedians
	}
	return m, info, cfg, nil
}

// Save writes cfg as indented JSON.
func (c *Config) Save(path string) error {
	data, err := utils.PrettyJSON(c)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, data)
}

// Load reads a config written by Save.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preprocessor config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse preprocessor config: %w", err)
	}
	if c.Stats == nil {
		c.Stats = map[string]FeatureStats{}
	}
	return &c, nil
}
