package ingest

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const keplerCSV = "koi_period,koi_prad,koi_disposition\n10.5,2.1,CONFIRMED\n3.2,1.1,CANDIDATE\n"

func utf16LE(s string) []byte {
	out := []byte{0xFF, 0xFE}
	for _, r := range s {
		out = append(out, byte(r), 0)
	}
	return out
}

func TestDecodeRecoversHeaderAcrossByteNoise(t *testing.T) {
	want := []string{"koi_period", "koi_prad", "koi_disposition"}
	cases := map[string][]byte{
		"plain":    []byte(keplerCSV),
		"utf8 bom": append([]byte{0xEF, 0xBB, 0xBF}, keplerCSV...),
		"crlf":     []byte(strings.ReplaceAll(keplerCSV, "\n", "\r\n")),
		"nul":      []byte(strings.ReplaceAll(keplerCSV, "_", "_\x00")),
		"utf16le":  utf16LE(keplerCSV),
		"bom+crlf": append([]byte{0xEF, 0xBB, 0xBF}, strings.ReplaceAll(keplerCSV, "\n", "\r\n")...),
	}
	for name, data := range cases {
		tab, err := Decode(data)
		if err != nil {
			t.Fatalf("%s: Decode() error = %v", name, err)
		}
		if !reflect.DeepEqual(tab.Header, want) {
			t.Fatalf("%s: header = %q, want %q", name, tab.Header, want)
		}
		if tab.NumRows() != 2 {
			t.Fatalf("%s: rows = %d, want 2", name, tab.NumRows())
		}
		if got := tab.Rows[1][2]; got != "CANDIDATE" {
			t.Fatalf("%s: last cell = %q, want CANDIDATE", name, got)
		}
	}
}

func TestDecodeSniffsDelimiters(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{"semicolon", "a;b;c\n1;2;3\n", []string{"1", "2", "3"}},
		{"tab", "a\tb\n1\t2\n", []string{"1", "2"}},
		{"pipe", "a|b\n1|2\n", []string{"1", "2"}},
		{"quoted comma", "name,teff\n\"Kepler-22, b\",5518\n", []string{"Kepler-22, b", "5518"}},
		{"single quotes", "name;teff\n'Kepler;22';5518\n", []string{"Kepler;22", "5518"}},
	}
	for _, tc := range cases {
		tab, err := Decode([]byte(tc.input))
		if err != nil {
			t.Fatalf("%s: Decode() error = %v", tc.name, err)
		}
		if tab.Strategy != "sniff" {
			t.Fatalf("%s: strategy = %q, want sniff", tc.name, tab.Strategy)
		}
		if !reflect.DeepEqual(tab.Rows[0], tc.want) {
			t.Fatalf("%s: row = %q, want %q", tc.name, tab.Rows[0], tc.want)
		}
	}
}

func TestDecodeSkipsCommentsAndBlankLines(t *testing.T) {
	in := "# exported 2024-01-01\n\nkoi_period,koi_prad\n# mid-file note\n1,2\n\n   \n3,4\n"
	tab, err := Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(tab.Header, []string{"koi_period", "koi_prad"}) {
		t.Fatalf("header = %q", tab.Header)
	}
	if tab.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", tab.NumRows())
	}
}

func TestDecodeSkipsMalformedRows(t *testing.T) {
	in := "a,b,c\n1,2,3\n1,2,3,4,5\n7,8\n"
	tab, err := Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tab.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2 (wide row dropped)", tab.NumRows())
	}
	if got := tab.Rows[1]; !reflect.DeepEqual(got, []string{"7", "8", ""}) {
		t.Fatalf("short row = %q, want padded", got)
	}
}

func TestDecodeFallsBackToWhitespace(t *testing.T) {
	tab, err := Decode([]byte("koi_period koi_prad\n10.5   2.1\n"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tab.Strategy != "whitespace" {
		t.Fatalf("strategy = %q, want whitespace", tab.Strategy)
	}
	if !reflect.DeepEqual(tab.Rows[0], []string{"10.5", "2.1"}) {
		t.Fatalf("row = %q", tab.Rows[0])
	}
}

func TestDecodeExhaustedReturnsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "# only a comment\n", "\n\n"} {
		_, err := Decode([]byte(in))
		if !errors.Is(err, ErrMalformedInput) {
			t.Fatalf("Decode(%q) error = %v, want ErrMalformedInput", in, err)
		}
		var me *MalformedInputError
		if !errors.As(err, &me) {
			t.Fatalf("error %T is not *MalformedInputError", err)
		}
		if len(me.Attempts) != len(DefaultStrategies()) {
			t.Fatalf("attempts = %d, want %d", len(me.Attempts), len(DefaultStrategies()))
		}
	}
}

func TestDecodeWithCustomOrder(t *testing.T) {
	ws := Strategy{Name: "whitespace", Decode: decodeWhitespace}
	tab, err := DecodeWith([]byte("a,b\n1,2\n"), []Strategy{ws})
	if err != nil {
		t.Fatalf("DecodeWith() error = %v", err)
	}
	if tab.Strategy != "whitespace" || !reflect.DeepEqual(tab.Header, []string{"a,b"}) {
		t.Fatalf("got strategy %q header %q", tab.Strategy, tab.Header)
	}
}

func TestSweepNoQuoteKeepsStrayQuote(t *testing.T) {
	noquote := Strategy{Name: "sweep-noquote", Decode: decodeSweep(noQuote)}
	tab, err := DecodeWith([]byte("pl_name,st_teff\nKepler \"22,5518\nKepler-62,4925\n"), []Strategy{noquote})
	if err != nil {
		t.Fatalf("DecodeWith() error = %v", err)
	}
	if tab.Strategy != "sweep-noquote" || tab.NumRows() != 2 {
		t.Fatalf("strategy %q rows %d", tab.Strategy, tab.NumRows())
	}
	if want := []string{"Kepler \"22", "5518"}; !reflect.DeepEqual(tab.Rows[0], want) {
		t.Fatalf("row = %q, want %q", tab.Rows[0], want)
	}
}

func TestEncodingsStrategy(t *testing.T) {
	enc := Strategy{Name: "encodings", Decode: decodeEncodings}
	want := []string{"koi_period", "koi_prad", "koi_disposition"}

	tab, err := DecodeWith(append([]byte{0xEF, 0xBB, 0xBF}, keplerCSV...), []Strategy{enc})
	if err != nil {
		t.Fatalf("DecodeWith(utf-8-sig) error = %v", err)
	}
	if tab.Strategy != "encodings" || !reflect.DeepEqual(tab.Header, want) || tab.NumRows() != 2 {
		t.Fatalf("utf-8-sig: strategy %q header %q rows %d", tab.Strategy, tab.Header, tab.NumRows())
	}

	utf16 := sweepEncodings[1]
	if text, err := utf16.decode(utf16LE(keplerCSV)); err != nil || text != keplerCSV {
		t.Fatalf("%s decode = %q, %v", utf16.name, text, err)
	}
}

func TestSingleColumnUpload(t *testing.T) {
	tab, err := Decode([]byte("pl_name\nKepler 22 b\nTRAPPIST-1 e\n"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(tab.Header, []string{"pl_name"}) || tab.NumRows() != 2 {
		t.Fatalf("header %q rows %q", tab.Header, tab.Rows)
	}
	if tab.Rows[0][0] != "Kepler 22 b" {
		t.Fatalf("name = %q, want Kepler 22 b", tab.Rows[0][0])
	}
}

func TestLatin1Strategy(t *testing.T) {
	data := []byte("name;teff\nK\xe9pler;5000\n")
	tab, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tab.Strategy == "sniff" {
		t.Fatalf("sniff must reject invalid utf-8")
	}
	tab, err = decodeAuto(latin1)(data)
	if err != nil {
		t.Fatalf("latin-1 decode error = %v", err)
	}
	if got := tab.Rows[0][0]; got != "Képler" {
		t.Fatalf("name = %q, want Képler", got)
	}
}

func TestHeaderCleanup(t *testing.T) {
	tab, err := Decode([]byte(" a ,,a\n1,2,3\n"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := []string{"a", "unnamed_1", "a.1"}
	if !reflect.DeepEqual(tab.Header, want) {
		t.Fatalf("header = %q, want %q", tab.Header, want)
	}
}

func TestDecodeWorkbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &[]any{"pl_name", "st_teff"}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	if err := f.SetSheetRow(sheet, "A2", &[]any{"Kepler-22 b", 5518}); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	tab, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tab.Strategy != "xlsx" {
		t.Fatalf("strategy = %q, want xlsx", tab.Strategy)
	}
	if v, ok := tab.Lookup("st_teff", 0); !ok || v != "5518" {
		t.Fatalf("st_teff = %q,%v", v, ok)
	}
}

func TestParseNumberAndMissing(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1.5", 1.5, true},
		{" 2e3 ", 2000, true},
		{"NaN", 0, false},
		{"", 0, false},
		{"inf", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseNumber(%q) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
	tab := &Table{Header: []string{"Flux"}, Rows: [][]string{{"n/a"}, {"3"}}}
	if _, ok := tab.Lookup("flux", 0); ok {
		t.Fatalf("n/a should be missing")
	}
	if v, ok := tab.Lookup("flux", 1); !ok || v != "3" {
		t.Fatalf("Lookup(flux,1) = %q,%v", v, ok)
	}
}
