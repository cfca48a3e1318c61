package schema

import (
	"reflect"
	"testing"

	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
)

func TestAdaptAliasPriority(t *testing.T) {
	tab := &ingest.Table{
		Header: []string{"pl_orbper", "Period", "pl_rade"},
		Rows:   [][]string{{"1", "2", "3"}},
	}
	ct := Adapt(tab)
	if got := ct.Mapping[Period]; got != "Period" {
		t.Fatalf("period source = %q, want Period (higher priority alias)", got)
	}
	if v, _ := ct.Lookup(Period, 0); v != "2" {
		t.Fatalf("period = %q, want 2", v)
	}
	if got := ct.Mapping[PlanetRadius]; got != "pl_rade" {
		t.Fatalf("radius source = %q, want pl_rade", got)
	}

	// Column order in the source must not matter.
	swapped := &ingest.Table{
		Header: []string{"Period", "pl_orbper", "pl_rade"},
		Rows:   [][]string{{"2", "1", "3"}},
	}
	if v, _ := Adapt(swapped).Lookup(Period, 0); v != "2" {
		t.Fatalf("swapped period = %q, want 2", v)
	}
}

func TestAdaptFillsMissingColumnsWithNulls(t *testing.T) {
	tab := &ingest.Table{Header: []string{"koi_period"}, Rows: [][]string{{"10"}, {"NaN"}}}
	ct := Adapt(tab)
	if !reflect.DeepEqual(ct.Columns(), Columns) {
		t.Fatalf("columns = %v", ct.Columns())
	}
	for _, col := range []string{Duration, Depth, PlanetRadius, Disposition} {
		for r := 0; r < ct.NumRows(); r++ {
			if ct.Cell(col, r).Valid {
				t.Fatalf("%s[%d] should be null", col, r)
			}
		}
	}
	if ct.Cell(Period, 1).Valid {
		t.Fatalf("NaN token should be null")
	}
}

func TestAdaptIsIdempotent(t *testing.T) {
	tab := &ingest.Table{
		Header: []string{"orbital_period", "transit_depth", "Status", "extra"},
		Rows: [][]string{
			{"10.5", "300", "confirmed", "x"},
			{"3.1", "", "fp", "y"},
			{"abc", "12", "weird", "z"},
			{"4", "5", "", "w"},
		},
	}
	once := Adapt(tab)
	twice := Adapt(once.Raw())
	for _, col := range Columns {
		for r := 0; r < once.NumRows(); r++ {
			if a, b := once.Cell(col, r), twice.Cell(col, r); a != b {
				t.Fatalf("%s[%d]: %+v then %+v", col, r, a, b)
			}
		}
	}
	if v, _ := once.Lookup(Disposition, 2); v != "weird" {
		t.Fatalf("unrecognized disposition = %q, want verbatim", v)
	}
}

func TestDispositionLabelMapping(t *testing.T) {
	cases := map[string]string{
		"Confirmed":         DispositionConfirmed,
		"1":                 DispositionConfirmed,
		" CANDIDATE ":       DispositionCandidate,
		"0":                 DispositionCandidate,
		"false positive":    DispositionFalsePositive,
		"-1":                DispositionFalsePositive,
		"FP":                DispositionFalsePositive,
		"NOT DISPOSITIONED": "NOT DISPOSITIONED",
	}
	for in, want := range cases {
		if got := NormalizeDisposition(in); got != want {
			t.Fatalf("NormalizeDisposition(%q) = %q, want %q", in, got, want)
		}
	}
	if l, ok := ParseLabel("false positive"); !ok || l != FalsePositive || l.Index() != 0 {
		t.Fatalf("ParseLabel = %v,%v", l, ok)
	}
}

func TestDetectDatasetType(t *testing.T) {
	cases := []struct {
		header []string
		want   DatasetType
	}{
		{[]string{"k2_name", "pl_orbper"}, DatasetK2},
		{[]string{"kepid", "koi_period"}, DatasetKepler},
		{[]string{"pl_name", "pl_orbper"}, DatasetArchive},
		{[]string{"time", "flux"}, DatasetUnknown},
	}
	for _, tc := range cases {
		if got := DetectDatasetType(tc.header); got != tc.want {
			t.Fatalf("DetectDatasetType(%v) = %s, want %s", tc.header, got, tc.want)
		}
	}
}

func TestAliasesReturnsCopy(t *testing.T) {
	a := Aliases()
	a[Period][0] = "mutated"
	if Aliases()[Period][0] != Period {
		t.Fatalf("alias table mutated through copy")
	}
}
