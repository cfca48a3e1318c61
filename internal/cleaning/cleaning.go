// Package cleaning turns a raw KOI or archive table into the labelled,
// numeric training set and records what each filter removed.
package cleaning

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
	"github.com/KaramelBytes/exodetect-cli/internal/schema"
	"github.com/KaramelBytes/exodetect-cli/internal/utils"
)

// Outlier bounds applied before training.
const (
	PeriodMax       = 1000.0
	PlanetRadiusMax = 30.0
)

// LabelColumn is the encoded label column of a cleaned dataset.
const LabelColumn = "label"

// ManifestName is written next to the cleaned CSV.
const ManifestName = "cleaning_manifest.json"

var ErrNoRowsLeft = errors.New("no rows left after cleaning")

// MissingColumnsError lists canonical columns the input could not supply.
type MissingColumnsError struct{ Columns []string }

func (e *MissingColumnsError) Error() string {
	return "missing columns: " + strings.Join(e.Columns, ", ")
}

// Dataset is a cleaned, labelled feature matrix.
type Dataset struct {
	Features []string
	Rows     [][]float64
	Labels   []schema.Label
}

// Counts are the row counts after each cleaning stage.
type Counts struct {
	AfterDropna      int `json:"after_dropna_raw"`
	AfterNumeric     int `json:"after_numeric"`
	AfterOutliers    int `json:"after_outliers"`
	AfterLabelFilter int `json:"after_label_filter"`
}

// Result is a cleaned dataset plus its bookkeeping.
type Result struct {
	*Dataset
	RowsBefore int
	Counts     Counts
}

// CleanKepler keeps the four primary features.
func CleanKepler(t *ingest.Table) (*Result, error) { return Clean(t, schema.KeplerFeatures) }

// CleanK2 keeps only period and planet radius.
func CleanK2(t *ingest.Table) (*Result, error) { return Clean(t, schema.K2Features) }

// Clean adapts t to canonical columns and drops rows with a missing
// feature or disposition, non-numeric features, period above PeriodMax,
// radius above PlanetRadiusMax, or an unrecognized disposition.
func Clean(t *ingest.Table, features []string) (*Result, error) {
	ct := schema.Adapt(t)
	required := append(append([]string(nil), features...), schema.Disposition)
	var missing []string
	for _, c := range required {
		if ct.Mapping[c] == "" {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	res := &Result{Dataset: &Dataset{Features: append([]string(nil), features...)}, RowsBefore: ct.NumRows()}
	type row struct {
		raw   []string
		vals  []float64
		label string
	}
	var rows []row
	for r := 0; r < ct.NumRows(); r++ {
		cur := row{raw: make([]string, len(features))}
		ok := true
		for j, f := range features {
			v, present := ct.Lookup(f, r)
			ok = ok && present
			cur.raw[j] = v
		}
		d, present := ct.Lookup(schema.Disposition, r)
		if !ok || !present {
			continue
		}
		cur.label = strings.ToUpper(strings.TrimSpace(d))
		rows = append(rows, cur)
	}
	res.Counts.AfterDropna = len(rows)

	kept := rows[:0]
	for _, cur := range rows {
		cur.vals = make([]float64, len(features))
		ok := true
		for j, raw := range cur.raw {
			x, good := ingest.ParseNumber(raw)
			ok = ok && good
			cur.vals[j] = x
		}
		if ok {
			kept = append(kept, cur)
		}
	}
	rows = kept
	res.Counts.AfterNumeric = len(rows)

	pi, ri := indexOf(features, schema.Period), indexOf(features, schema.PlanetRadius)
	kept = rows[:0]
	for _, cur := range rows {
		if pi >= 0 && cur.vals[pi] > PeriodMax {
			continue
		}
		if ri >= 0 && cur.vals[ri] > PlanetRadiusMax {
			continue
		}
		kept = append(kept, cur)
	}
	rows = kept
	res.Counts.AfterOutliers = len(rows)

	for _, cur := range rows {
		l, ok := schema.ParseLabel(cur.label)
		if !ok {
			continue
		}
		res.Rows = append(res.Rows, cur.vals)
		res.Labels = append(res.Labels, l)
	}
	res.Counts.AfterLabelFilter = len(res.Rows)
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%w (period<=%g, prad<=%g)", ErrNoRowsLeft, PeriodMax, PlanetRadiusMax)
	}
	return res, nil
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}

// Columns returns the CSV header of the dataset.
func (d *Dataset) Columns() []string {
	return append(append([]string(nil), d.Features...), LabelColumn)
}

// WriteCSV writes the features followed by the integer label.
func (d *Dataset) WriteCSV(path string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(d.Columns()); err != nil {
		return err
	}
	rec := make([]string, len(d.Features)+1)
	for i, row := range d.Rows {
		for j, v := range row {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		rec[len(row)] = strconv.Itoa(int(d.Labels[i]))
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

// ReadCSV loads a dataset written by WriteCSV, keeping only features.
func ReadCSV(path string, features []string) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cleaned csv: %w", err)
	}
	t, err := ingest.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	var missing []string
	for _, c := range append(append([]string(nil), features...), LabelColumn) {
		if t.Index(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	d := &Dataset{Features: append([]string(nil), features...)}
	for r := 0; r < t.NumRows(); r++ {
		raw, _ := t.Lookup(LabelColumn, r)
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad label %q", r+1, raw)
		}
		l := schema.Label(n)
		if l.Index() < 0 {
			return nil, fmt.Errorf("row %d: label %d outside [-1, 0, 1]", r+1, n)
		}
		vals := make([]float64, len(features))
		for j, f := range features {
			v, _ := t.Lookup(f, r)
			x, ok := ingest.ParseNumber(v)
			if !ok {
				return nil, fmt.Errorf("row %d: %s is not numeric: %q", r+1, f, v)
			}
			vals[j] = x
		}
		d.Rows = append(d.Rows, vals)
		d.Labels = append(d.Labels, l)
	}
	if len(d.Rows) == 0 {
		return nil, ErrNoRowsLeft
	}
	return d, nil
}

// Table exposes the dataset to the preprocessor.
func (d *Dataset) Table() *ingest.Table {
	t := &ingest.Table{Header: d.Columns()}
	for i, row := range d.Rows {
		rec := make([]string, 0, len(row)+1)
		for _, v := range row {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		t.Rows = append(t.Rows, append(rec, strconv.Itoa(int(d.Labels[i]))))
	}
	return t
}

// Filters documents the cleaning rules in the manifest.
type Filters struct {
	Dropna    bool           `json:"dropna"`
	PeriodMax float64        `json:"koi_period_max"`
	RadiusMax float64        `json:"koi_prad_max"`
	LabelMap  map[string]int `json:"label_map"`
}

// Manifest is the cleaning_manifest.json record.
type Manifest struct {
	Source         string   `json:"source"`
	RowsBefore     int      `json:"rows_before"`
	RowsAfter      int      `json:"rows_after"`
	PipelineCounts Counts   `json:"pipeline_counts"`
	Columns        []string `json:"columns"`
	Filters        Filters  `json:"filters"`
	Output         string   `json:"output"`
}

// CleanFile decodes input, cleans it and writes the CSV to output with a
// manifest alongside.
func CleanFile(input, output string, k2 bool) (*Manifest, error) {
	b, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	t, err := ingest.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", input, err)
	}
	clean := CleanKepler
	if k2 {
		clean = CleanK2
	}
	res, err := clean(t)
	if err != nil {
		return nil, fmt.Errorf("clean %s: %w", input, err)
	}
	if err := res.WriteCSV(output); err != nil {
		return nil, fmt.Errorf("write %s: %w", output, err)
	}
	src, _ := filepath.Abs(input)
	out, _ := filepath.Abs(output)
	m := &Manifest{
		Source:         src,
		RowsBefore:     res.RowsBefore,
		RowsAfter:      len(res.Rows),
		PipelineCounts: res.Counts,
		Columns:        res.Columns(),
		Filters: Filters{
			Dropna:    true,
			PeriodMax: PeriodMax,
			RadiusMax: PlanetRadiusMax,
			LabelMap: map[string]int{
				schema.DispositionConfirmed:     int(schema.Confirmed),
				schema.DispositionCandidate:     int(schema.Candidate),
				schema.DispositionFalsePositive: int(schema.FalsePositive),
			},
		},
		Output: out,
	}
	if err := utils.WriteJSON(filepath.Join(filepath.Dir(output), ManifestName), m); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}
