package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

var zipMagic = []byte("PK\x03\x04")

func isWorkbook(data []byte) bool { return bytes.HasPrefix(data, zipMagic) }

// decodeWorkbook reads the first sheet of an XLSX workbook. The first row
// with any content is the header.
func decodeWorkbook(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		if len(records) == 0 && strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		records = append(records, row)
	}
	t, err := buildTable(records)
	if err != nil {
		return nil, err
	}
	t.Strategy = "xlsx"
	return t, nil
}
