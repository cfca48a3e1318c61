package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedInput is matched by errors.Is when no strategy could decode
// the input.
var ErrMalformedInput = errors.New("malformed input")

var (
	errNoData      = errors.New("no content lines")
	errNoHeader    = errors.New("no header")
	errNoRows      = errors.New("no parsable rows")
	errNoDelimiter = errors.New("no consistent delimiter")
	errNotUTF8     = errors.New("invalid utf-8")
)

// MalformedInputError reports every strategy failure in the order tried.
type MalformedInputError struct {
	Attempts []error
}

func (e *MalformedInputError) Error() string {
	if e == nil || len(e.Attempts) == 0 {
		return ErrMalformedInput.Error()
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return fmt.Sprintf("%s: %d strategies failed (%s)", ErrMalformedInput, len(e.Attempts), strings.Join(parts, "; "))
}

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

func (e *MalformedInputError) Unwrap() []error { return e.Attempts }

// Strategy is one pure decoding attempt over NUL-stripped bytes.
type Strategy struct {
	Name   string
	Decode func(data []byte) (*Table, error)
}

// DefaultStrategies returns the decoding cascade in the order it is tried.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "sniff", Decode: decodeSniffed},
		{Name: "auto-utf8", Decode: decodeAuto(utf8Replace)},
		{Name: "auto-latin1", Decode: decodeAuto(latin1)},
		{Name: "sweep-utf8", Decode: decodeSweep('"')},
		{Name: "sweep-noquote", Decode: decodeSweep(noQuote)},
		{Name: "encodings", Decode: decodeEncodings},
		{Name: "whitespace", Decode: decodeWhitespace},
	}
}

// Decode runs the default cascade.
func Decode(data []byte) (*Table, error) {
	return DecodeWith(data, DefaultStrategies())
}

// DecodeWith decodes raw upload bytes. Workbooks are read directly; all
// other input has its NUL bytes stripped and goes through strategies in
// order until one yields a table.
func DecodeWith(data []byte, strategies []Strategy) (*Table, error) {
	var attempts []error
	if isWorkbook(data) {
		t, err := decodeWorkbook(data)
		if err == nil {
			return t, nil
		}
		attempts = append(attempts, fmt.Errorf("xlsx: %w", err))
	}
	clean := bytes.ReplaceAll(data, []byte{0}, nil)
	for _, s := range strategies {
		t, err := s.Decode(clean)
		if err == nil && t != nil {
			t.Strategy = s.Name
			return t, nil
		}
		if err == nil {
			err = errNoData
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", s.Name, err))
	}
	return nil, &MalformedInputError{Attempts: attempts}
}

// decodeSniffed sniffs the dialect over the first 10 KB and applies it to
// the whole input, which must be valid UTF-8.
func decodeSniffed(data []byte) (*Table, error) {
	sample := data
	truncated := len(sample) > sniffSampleBytes
	if truncated {
		sample = sample[:sniffSampleBytes]
	}
	sampleText, _ := decodeUTF8(sample)
	sampleLines := contentLines(sampleText)
	if truncated && len(sampleLines) > 1 {
		sampleLines = sampleLines[:len(sampleLines)-1]
	}
	d, ok := sniffDialect(sampleLines)
	if !ok {
		return nil, errNoDelimiter
	}
	text, err := decodeUTF8Strict(data)
	if err != nil {
		return nil, err
	}
	return parseDelimited(contentLines(text), d)
}

func decodeAuto(dec textDecoder) func([]byte) (*Table, error) {
	return func(data []byte) (*Table, error) {
		text, err := dec.decode(data)
		if err != nil {
			return nil, err
		}
		return autoDetect(contentLines(text))
	}
}

func decodeSweep(quote rune) func([]byte) (*Table, error) {
	return func(data []byte) (*Table, error) {
		text, _ := decodeUTF8(data)
		return sweepDelimiters(contentLines(text), quote)
	}
}

func decodeEncodings(data []byte) (*Table, error) {
	var lastErr error = errNoData
	for _, enc := range sweepEncodings {
		text, err := enc.decode(data)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", enc.name, err)
			continue
		}
		lines := contentLines(text)
		if t, err := autoDetect(lines); err == nil {
			return t, nil
		}
		t, err := sweepDelimiters(lines, '"')
		if err == nil {
			return t, nil
		}
		lastErr = fmt.Errorf("%s: %w", enc.name, err)
	}
	return nil, lastErr
}

func decodeWhitespace(data []byte) (*Table, error) {
	text, _ := decodeUTF8(data)
	return splitWhitespace(contentLines(text))
}
