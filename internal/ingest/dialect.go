package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// noQuote disables quote handling: quote characters are literal.
const noQuote rune = 0

// candidateDelimiters is also the tie-break preference order when sniffing.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

const (
	sniffSampleBytes = 10000
	sniffMaxLines    = 50
	sniffConsistency = 0.9
)

// dialect describes how one text table is split into records.
type dialect struct {
	delim rune
	quote rune
}

// sniffDialect guesses the delimiter and quote character from sample lines.
// A delimiter qualifies when the same non-zero per-line count appears in at
// least 90% of the sampled lines. The most consistent pair wins; ties go to
// double quotes and then to the earlier delimiter.
func sniffDialect(lines []string) (dialect, bool) {
	if len(lines) > sniffMaxLines {
		lines = lines[:sniffMaxLines]
	}
	if len(lines) == 0 {
		return dialect{}, false
	}
	best := dialect{}
	bestScore := 0.0
	for _, q := range []rune{'"', '\''} {
		for _, d := range candidateDelimiters {
			score := consistency(lines, d, q)
			if score >= sniffConsistency && score > bestScore {
				best = dialect{delim: d, quote: q}
				bestScore = score
			}
		}
	}
	return best, best.delim != 0
}

// consistency returns the share of lines whose delimiter count equals the
// most common non-zero count.
func consistency(lines []string, delim, quote rune) float64 {
	freq := map[int]int{}
	for _, line := range lines {
		freq[countOutsideQuotes(line, delim, quote)]++
	}
	mode, modeLines := 0, 0
	for count, n := range freq {
		if count == 0 {
			continue
		}
		if n > modeLines || (n == modeLines && count > mode) {
			mode, modeLines = count, n
		}
	}
	if mode == 0 {
		return 0
	}
	return float64(modeLines) / float64(len(lines))
}

func countOutsideQuotes(line string, delim, quote rune) int {
	n := 0
	inQuote := false
	for _, r := range line {
		switch {
		case quote != noQuote && r == quote:
			inQuote = !inQuote
		case r == delim && !inQuote:
			n++
		}
	}
	return n
}

// parseDelimited splits content lines into records with the given dialect
// and builds a table. Records that fail to parse are skipped.
func parseDelimited(lines []string, d dialect) (*Table, error) {
	if len(lines) == 0 {
		return nil, errNoData
	}
	var records [][]string
	switch d.quote {
	case '"':
		r := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
		r.Comma = d.delim
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		for {
			rec, err := r.Read()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					continue
				}
				return nil, err
			}
			records = append(records, rec)
		}
	default:
		for _, line := range lines {
			records = append(records, splitQuoted(line, d.delim, d.quote))
		}
	}
	return buildTable(records)
}

// splitQuoted splits a single line. With quote set, delimiters inside quoted
// spans are kept and a doubled quote is an escaped quote.
func splitQuoted(line string, delim, quote rune) []string {
	if quote == noQuote {
		return strings.Split(line, string(delim))
	}
	var fields []string
	var cur strings.Builder
	inQuote := false
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == quote && inQuote && i+1 < len(runes) && runes[i+1] == quote:
			cur.WriteRune(quote)
			i++
		case r == quote:
			inQuote = !inQuote
		case r == delim && !inQuote:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

// sweepDelimiters tries each candidate delimiter that occurs in the header
// line and returns the first acceptable table. A header holding a single
// bare name reads as a one-column comma table.
func sweepDelimiters(lines []string, quote rune) (*Table, error) {
	if len(lines) == 0 {
		return nil, errNoData
	}
	var lastErr error = errNoDelimiter
	for _, d := range sweepCandidates(lines[0]) {
		t, err := parseDelimited(lines, dialect{delim: d, quote: quote})
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// sweepCandidates returns the delimiters present in header. With none
// present, a header without inner blanks falls back to a comma; one with
// blanks is left to the whitespace strategy.
func sweepCandidates(header string) []rune {
	var out []rune
	for _, d := range candidateDelimiters {
		if strings.ContainsRune(header, d) {
			out = append(out, d)
		}
	}
	if len(out) == 0 && len(strings.Fields(header)) == 1 {
		out = []rune{','}
	}
	return out
}

// autoDetect infers the dialect from the content itself and parses it.
func autoDetect(lines []string) (*Table, error) {
	d, ok := sniffDialect(lines)
	if !ok {
		return nil, errNoDelimiter
	}
	return parseDelimited(lines, d)
}

func splitWhitespace(lines []string) (*Table, error) {
	records := make([][]string, 0, len(lines))
	for _, line := range lines {
		records = append(records, strings.Fields(line))
	}
	return buildTable(records)
}
