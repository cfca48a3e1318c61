package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// textDecoder turns raw bytes into text.
type textDecoder struct {
	name   string
	decode func([]byte) (string, error)
}

var (
	utf8Replace = textDecoder{name: "utf-8", decode: decodeUTF8}
	latin1      = textDecoder{name: "latin-1", decode: decodeLatin1}

	// Tried by the encoding sweep, in order.
	sweepEncodings = []textDecoder{
		{name: "utf-8-sig", decode: viaEncoding(unicode.UTF8BOM)},
		{name: "utf-16", decode: viaEncoding(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM))},
		{name: "utf-16le", decode: viaEncoding(unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM))},
		{name: "utf-16be", decode: viaEncoding(unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM))},
	}
)

var byteOrderMarks = [][]byte{
	{0xEF, 0xBB, 0xBF},
	{0xFF, 0xFE},
	{0xFE, 0xFF},
}

// trimBOM drops a leading byte-order mark. After NUL stripping a UTF-16 mark
// survives as a bare two-byte prefix, so those are removed as well.
func trimBOM(b []byte) []byte {
	for _, m := range byteOrderMarks {
		if bytes.HasPrefix(b, m) {
			return b[len(m):]
		}
	}
	return b
}

func trimBOMText(s string) string {
	return strings.TrimLeft(s, "\ufeff")
}

func decodeUTF8(b []byte) (string, error) {
	b = trimBOM(b)
	if utf8.Valid(b) {
		return string(b), nil
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

// decodeUTF8Strict fails on invalid input instead of replacing it.
func decodeUTF8Strict(b []byte) (string, error) {
	b = trimBOM(b)
	if !utf8.Valid(b) {
		return "", errNotUTF8
	}
	return string(b), nil
}

func decodeLatin1(b []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(trimBOM(b))
	if err != nil {
		return "", fmt.Errorf("latin-1: %w", err)
	}
	return string(out), nil
}

func viaEncoding(enc encoding.Encoding) func([]byte) (string, error) {
	return func(b []byte) (string, error) {
		out, err := enc.NewDecoder().Bytes(b)
		if err != nil {
			return "", err
		}
		return trimBOMText(string(out)), nil
	}
}

// contentLines normalizes line endings and returns the non-blank lines that
// are not comments. A comment line starts with '#' after optional blanks.
func contentLines(text string) []string {
	text = trimBOMText(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	raw := strings.Split(text, "\n")
	out := raw[:0]
	for _, line := range raw {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
