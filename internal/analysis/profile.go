package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
	"github.com/KaramelBytes/exodetect-cli/internal/schema"
)

// Options controls profiling of a decoded table.
type Options struct {
	// MaxRows limits rows processed; 0 means unlimited.
	MaxRows int
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// Outlier detection via robust Z-score (MAD). If Outliers is true, counts |z|>threshold.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for dataset profiling.
func DefaultOptions() Options {
	return Options{
		MaxRows:          100000,
		SampleRows:       5,
		Outliers:         true,
		OutlierThreshold: 3.5,
	}
}

// Report is a markdown-friendly profile of an uploaded dataset.
type Report struct {
	Name        string
	Strategy    string
	DatasetType schema.DatasetType
	// Mapping is canonical column -> source column for the columns found.
	Mapping   map[string]string
	Header    []string
	Rows      int
	Processed int
	Cols      []ColumnSummary
	Samples   [][]string
	Warnings  []string
	Corr      *CorrMatrix
}

// ColumnSummary captures inferred type and statistics per column.
type ColumnSummary struct {
	Name    string
	Kind    string // numeric|categorical|text|empty
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min    float64
	Max    float64
	Mean   float64
	Std    float64
	Median float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// Categorical top values
	TopValues []CategoryCount
}

type CategoryCount struct {
	Value string
	Count int
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64 // row-major, Values[i][j]
}

// Profile summarizes a decoded table: per-column kinds and statistics, the
// canonical column mapping and the guessed survey.
func Profile(name string, t *ingest.Table, opt Options) *Report {
	rep := &Report{
		Name:        name,
		Strategy:    t.Strategy,
		DatasetType: schema.DetectDatasetType(t.Header),
		Mapping:     schema.Adapt(t).Mapping,
		Header:      t.Header,
		Rows:        t.NumRows(),
	}
	ncol := len(t.Header)
	if ncol == 0 {
		return rep
	}
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	sampleRows := opt.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}

	type colAcc struct {
		miss   int
		nonNil int
		// Welford
		n    int
		mean float64
		m2   float64
		min  float64
		max  float64
		txt  int
		cats map[string]int
		vals []float64
	}
	cols := make([]*colAcc, ncol)
	for i := range cols {
		cols[i] = &colAcc{min: math.Inf(1), max: math.Inf(-1), cats: map[string]int{}}
	}
	// per-row numeric values, kept only when correlations are requested
	var rowsNum [][]float64

	for _, row := range t.Rows {
		if rep.Processed >= maxRows {
			break
		}
		rep.Processed++
		if len(rep.Samples) < sampleRows {
			rep.Samples = append(rep.Samples, append([]string(nil), row...))
		}
		var nums []float64
		if opt.Correlations {
			nums = make([]float64, ncol)
			for j := range nums {
				nums[j] = math.NaN()
			}
		}
		for j := 0; j < ncol && j < len(row); j++ {
			c := cols[j]
			v := row[j]
			if ingest.IsMissing(v) {
				c.miss++
				continue
			}
			c.nonNil++
			if x, ok := ingest.ParseNumber(v); ok {
				c.n++
				if x < c.min {
					c.min = x
				}
				if x > c.max {
					c.max = x
				}
				delta := x - c.mean
				c.mean += delta / float64(c.n)
				c.m2 += delta * (x - c.mean)
				c.vals = append(c.vals, x)
				if nums != nil {
					nums[j] = x
				}
				continue
			}
			c.txt++
			if len(c.cats) <= 10000 && len(v) <= 64 {
				c.cats[v]++
			}
		}
		if nums != nil {
			rowsNum = append(rowsNum, nums)
		}
	}

	var numeric []int
	for idx, c := range cols {
		s := ColumnSummary{Name: t.Header[idx], NonNull: c.nonNil, Missing: c.miss}
		switch {
		case c.nonNil == 0:
			s.Kind = "empty"
		case c.n >= c.txt:
			s.Kind = "numeric"
			s.Min, s.Max, s.Mean = c.min, c.max, c.mean
			if c.n > 1 {
				s.Std = math.Sqrt(c.m2 / float64(c.n-1))
			}
			median, mad := medianMAD(c.vals)
			s.Median = median
			if opt.Outliers && len(c.vals) >= 8 {
				thr := opt.OutlierThreshold
				if thr <= 0 {
					thr = 3.5
				}
				s.OutlierThreshold = thr
				if mad > 0 {
					for _, v := range c.vals {
						az := math.Abs(0.6745 * (v - median) / mad)
						if az > thr {
							s.OutliersCount++
						}
						if az > s.OutliersMaxAbsZ {
							s.OutliersMaxAbsZ = az
						}
					}
				}
			}
			numeric = append(numeric, idx)
		case len(c.cats) > 0:
			s.Kind = "categorical"
			s.TopValues = topValues(c.cats, 8)
			s.Unique = len(c.cats)
		default:
			s.Kind = "text"
		}
		rep.Cols = append(rep.Cols, s)
	}

	if rep.Processed < rep.Rows {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("processed only %d/%d rows due to MaxRows", rep.Processed, rep.Rows))
	}
	for _, canon := range schema.Columns {
		if _, ok := rep.Mapping[canon]; !ok {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("no source column for %s; it will be null", canon))
		}
	}
	if opt.Correlations && len(numeric) >= 2 {
		rep.Corr = correlations(t.Header, numeric, rowsNum)
	}
	return rep
}

func topValues(cats map[string]int, limit int) []CategoryCount {
	tops := make([]CategoryCount, 0, len(cats))
	for k, v := range cats {
		tops = append(tops, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > limit {
		tops = tops[:limit]
	}
	return tops
}

// correlations computes pairwise Pearson r over rows where both values are
// present.
func correlations(header []string, numeric []int, rows [][]float64) *CorrMatrix {
	n := len(numeric)
	m := &CorrMatrix{Columns: make([]string, n), Values: make([][]float64, n)}
	for i, idx := range numeric {
		m.Columns[i] = header[idx]
		m.Values[i] = make([]float64, n)
	}
	for a := 0; a < n; a++ {
		m.Values[a][a] = 1
		for b := a + 1; b < n; b++ {
			var cnt, sx, sy, sxx, syy, sxy float64
			for _, row := range rows {
				x, y := row[numeric[a]], row[numeric[b]]
				if math.IsNaN(x) || math.IsNaN(y) {
					continue
				}
				cnt++
				sx += x
				sy += y
				sxx += x * x
				syy += y * y
				sxy += x * y
			}
			var r float64
			if cnt >= 2 {
				denom := math.Sqrt((cnt*sxx - sx*sx) * (cnt*syy - sy*sy))
				if denom != 0 {
					r = (cnt*sxy - sx*sy) / denom
				}
			}
			r = math.Max(-1, math.Min(1, r))
			if math.IsNaN(r) {
				r = 0
			}
			m.Values[a][b], m.Values[b][a] = r, r
		}
	}
	return m
}

// Markdown renders the profile as a compact plain-text report.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	if r.Strategy != "" {
		b.WriteString(fmt.Sprintf("Decoded with: %s\n", r.Strategy))
	}
	b.WriteString(fmt.Sprintf("Survey: %s\n", r.DatasetType))
	if r.Processed > 0 && r.Processed < r.Rows {
		b.WriteString(fmt.Sprintf("Rows: ~%d (processed %d)\n", r.Rows, r.Processed))
	} else {
		b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	}
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Header)))

	b.WriteString("[CANONICAL MAPPING]\n")
	for _, canon := range schema.Columns {
		src, ok := r.Mapping[canon]
		if !ok {
			src = "(missing)"
		}
		b.WriteString(fmt.Sprintf("- %s <- %s\n", canon, src))
	}

	b.WriteString("\n[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeVal(c.Name), c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case "numeric":
			b.WriteString(fmt.Sprintf(": min %.4g, max %.4g, mean %.4g, median %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Median, c.Std))
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
			}
		case "categorical":
			b.WriteString(": top ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
			}
			if c.Unique > len(c.TopValues) {
				b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
			}
		}
		b.WriteString("\n")
	}

	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		type pair struct {
			A, B string
			R    float64
		}
		var pairs []pair
		for i := range r.Corr.Columns {
			for j := i + 1; j < len(r.Corr.Columns); j++ {
				pairs = append(pairs, pair{r.Corr.Columns[i], r.Corr.Columns[j], r.Corr.Values[i][j]})
			}
		}
		sort.Slice(pairs, func(i, j int) bool {
			ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
			if ai == aj {
				return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
			}
			return ai > aj
		})
		if len(pairs) > 10 {
			pairs = pairs[:10]
		}
		for _, p := range pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n| ")
		b.WriteString(strings.Join(mapStrings(r.Header, safeVal), " | "))
		b.WriteString(" |\n|")
		b.WriteString(strings.Repeat(" --- |", len(r.Header)))
		b.WriteString("\n")
		for _, row := range r.Samples {
			cells := make([]string, len(r.Header))
			for i := range cells {
				if i < len(row) {
					v := row[i]
					if len(v) > 80 {
						v = v[:77] + "..."
					}
					cells[i] = safeVal(v)
				}
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return b.String()
}

func mapStrings(in []string, f func(string) string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = f(s)
	}
	return out
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
