package schema

import (
	"strings"

	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
	"golang.org/x/text/unicode/norm"
)

// Cell is a nullable canonical value.
type Cell struct {
	Value string
	Valid bool
}

// CanonicalTable holds the fixed canonical columns of an adapted upload.
type CanonicalTable struct {
	// Mapping records which source column fed each canonical column.
	Mapping map[string]string
	rows    int
	cols    map[string][]Cell
}

// Columns returns the canonical column names in order.
func (c *CanonicalTable) Columns() []string { return append([]string(nil), Columns...) }

func (c *CanonicalTable) NumRows() int {
	if c == nil {
		return 0
	}
	return c.rows
}

// Cell returns the value at (column, row); unknown columns and out of range
// rows are null.
func (c *CanonicalTable) Cell(column string, row int) Cell {
	if c == nil || row < 0 || row >= c.rows {
		return Cell{}
	}
	col, ok := c.cols[column]
	if !ok {
		return Cell{}
	}
	return col[row]
}

// Lookup implements the preprocessor's table contract.
func (c *CanonicalTable) Lookup(column string, row int) (string, bool) {
	cell := c.Cell(column, row)
	return cell.Value, cell.Valid
}

// Raw renders the canonical table back into a decoded table. Null cells
// become empty strings.
func (c *CanonicalTable) Raw() *ingest.Table {
	t := &ingest.Table{Header: c.Columns()}
	for r := 0; r < c.NumRows(); r++ {
		row := make([]string, len(Columns))
		for i, name := range Columns {
			if cell := c.Cell(name, r); cell.Valid {
				row[i] = cell.Value
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Adapt maps a decoded table onto the canonical schema. Each canonical
// column takes the first alias present in the source; absent columns are
// all null. Disposition values are normalized to the canonical names.
func Adapt(t *ingest.Table) *CanonicalTable {
	out := &CanonicalTable{
		Mapping: map[string]string{},
		rows:    t.NumRows(),
		cols:    make(map[string][]Cell, len(Columns)),
	}
	var header []string
	if t != nil {
		header = t.Header
	}
	for _, canon := range Columns {
		cells := make([]Cell, out.rows)
		idx := resolveColumn(header, columnAliases[canon])
		if idx >= 0 {
			out.Mapping[canon] = header[idx]
			for r, row := range t.Rows {
				if idx >= len(row) || ingest.IsMissing(row[idx]) {
					continue
				}
				v := strings.TrimSpace(row[idx])
				if canon == Disposition {
					v = NormalizeDisposition(v)
				}
				cells[r] = Cell{Value: v, Valid: true}
			}
		}
		out.cols[canon] = cells
	}
	return out
}

// resolveColumn returns the header index of the first alias present. Each
// alias is matched exactly before a case-insensitive comparison is tried.
func resolveColumn(header []string, aliases []string) int {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = norm.NFKC.String(strings.TrimSpace(h))
	}
	for _, alias := range aliases {
		for i, n := range names {
			if n == alias {
				return i
			}
		}
		for i, n := range names {
			if strings.EqualFold(n, alias) {
				return i
			}
		}
	}
	return -1
}
