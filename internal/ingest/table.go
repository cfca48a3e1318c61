package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Table is a decoded tabular upload: a header row plus string cells.
type Table struct {
	Header []string
	Rows   [][]string
	// Strategy names the decoding strategy that produced the table.
	Strategy string
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the named column, matching exactly first and
// case-insensitively second. It returns -1 when the column is absent.
func (t *Table) Index(name string) int {
	if t == nil {
		return -1
	}
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	for i, h := range t.Header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's cells, or nil when absent.
func (t *Table) Column(name string) []string {
	idx := t.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}

// Lookup returns the cell at (row, column). ok is false for absent columns
// and for missing-value tokens.
func (t *Table) Lookup(column string, row int) (string, bool) {
	idx := t.Index(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) || idx >= len(t.Rows[row]) {
		return "", false
	}
	v := t.Rows[row][idx]
	if IsMissing(v) {
		return "", false
	}
	return v, true
}

// Records returns each row keyed by column name. Duplicate names keep the
// first occurrence.
func (t *Table) Records() []map[string]string {
	if t == nil {
		return nil
	}
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Header))
		for i, h := range t.Header {
			if _, dup := rec[h]; dup {
				continue
			}
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

var missingTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"-nan": {},
	"null": {},
	"none": {},
	"<na>": {},
	"#n/a": {},
	"#na":  {},
}

// IsMissing reports whether a raw cell denotes a missing value.
func IsMissing(s string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseNumber coerces a raw cell to a finite float. Missing tokens, text and
// infinities are rejected.
func ParseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	if IsMissing(raw) {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// buildTable turns parsed records into a Table. The first record is the
// header; rows wider than the header are dropped, shorter rows are padded and
// rows with no content are skipped.
func buildTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errNoData
	}
	header := cleanHeader(records[0])
	if len(header) == 0 {
		return nil, errNoHeader
	}
	named := false
	for _, h := range records[0] {
		if strings.TrimSpace(trimBOMText(h)) != "" {
			named = true
			break
		}
	}
	if !named {
		return nil, errNoHeader
	}
	t := &Table{Header: header}
	for _, rec := range records[1:] {
		if len(rec) > len(header) {
			continue
		}
		empty := true
		row := make([]string, len(header))
		for i, v := range rec {
			v = strings.TrimSpace(v)
			row[i] = v
			if v != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if len(records) > 1 && len(t.Rows) == 0 {
		return nil, fmt.Errorf("%w: %d data lines, none usable", errNoRows, len(records)-1)
	}
	return t, nil
}

// cleanHeader trims names, removes byte-order marks, names blank columns
// unnamed_<i> and suffixes duplicates with .1, .2 and so on.
func cleanHeader(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		name := strings.TrimSpace(trimBOMText(h))
		if name == "" {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}
