package schema

import (
	"strings"
)

// Canonical column names. Every adapted table carries exactly these, in
// this order.
const (
	Period       = "koi_period"
	Duration     = "koi_duration"
	Depth        = "koi_depth"
	PlanetRadius = "koi_prad"
	Disposition  = "koi_disposition"
)

// Columns is the fixed canonical column order.
var Columns = []string{Period, Duration, Depth, PlanetRadius, Disposition}

// Feature sets consumed by the two classifier variants.
var (
	KeplerFeatures = []string{Period, Duration, Depth, PlanetRadius}
	K2Features     = []string{Period, PlanetRadius}
)

// columnAliases lists, per canonical column, the source names accepted for
// it in priority order. The first alias is always the canonical name.
var columnAliases = map[string][]string{
	Period: {
		"koi_period", "orbital_period", "period", "k2_period", "kep_period",
		"pl_orbper", "pl_orbper_err1", "pl_orbper_err2", "orbital_period_days",
	},
	Duration: {
		"koi_duration", "transit_duration", "duration", "k2_duration", "kep_duration",
		"pl_trandur", "pl_trandur_err1", "pl_trandur_err2", "transit_duration_hours",
	},
	Depth: {
		"koi_depth", "transit_depth", "depth", "k2_depth", "kep_depth",
		"pl_trandep", "pl_trandep_err1", "pl_trandep_err2", "transit_depth_ppm",
	},
	PlanetRadius: {
		"koi_prad", "planet_radius", "radius", "k2_prad", "kep_prad",
		"pl_rade", "pl_rade_err1", "pl_rade_err2", "planet_radius_earth_units",
	},
	Disposition: {
		"koi_disposition", "disposition", "status", "label", "pl_discmethod",
		"k2_disposition", "kep_disposition", "exoplanet_disposition",
	},
}

// Aliases returns a copy of the alias table.
func Aliases() map[string][]string {
	out := make(map[string][]string, len(columnAliases))
	for k, v := range columnAliases {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Label is the integer class used by models, metrics and cleaned datasets.
type Label int

const (
	FalsePositive Label = -1
	Candidate     Label = 0
	Confirmed     Label = 1
)

// Labels is the class order used everywhere a per-class vector appears.
var Labels = []Label{FalsePositive, Candidate, Confirmed}

// Canonical disposition names.
const (
	DispositionConfirmed     = "CONFIRMED"
	DispositionCandidate     = "CANDIDATE"
	DispositionFalsePositive = "FALSE POSITIVE"
)

func (l Label) String() string {
	switch l {
	case FalsePositive:
		return DispositionFalsePositive
	case Candidate:
		return DispositionCandidate
	case Confirmed:
		return DispositionConfirmed
	default:
		return "UNKNOWN"
	}
}

// Index returns the label's position in Labels, or -1.
func (l Label) Index() int {
	for i, x := range Labels {
		if x == l {
			return i
		}
	}
	return -1
}

var labelAliases = map[string]Label{
	"confirmed":      Confirmed,
	"1":              Confirmed,
	"candidate":      Candidate,
	"0":              Candidate,
	"false positive": FalsePositive,
	"-1":             FalsePositive,
	"fp":             FalsePositive,
}

// ParseLabel maps a raw disposition value to its label. Matching ignores
// case and surrounding blanks.
func ParseLabel(raw string) (Label, bool) {
	l, ok := labelAliases[strings.ToLower(strings.TrimSpace(raw))]
	return l, ok
}

// NormalizeDisposition returns the canonical disposition name for raw, or
// raw unchanged when it is not a recognized spelling.
func NormalizeDisposition(raw string) string {
	if l, ok := ParseLabel(raw); ok {
		return l.String()
	}
	return raw
}

// DatasetType is a best-effort guess at the survey an upload came from.
type DatasetType string

const (
	DatasetK2      DatasetType = "K2"
	DatasetKepler  DatasetType = "Kepler"
	DatasetArchive DatasetType = "NASA_Exoplanet_Archive"
	DatasetUnknown DatasetType = "Unknown"
)

// DetectDatasetType inspects column names only.
func DetectDatasetType(header []string) DatasetType {
	cols := strings.ToLower(strings.Join(header, "\x1f"))
	switch {
	case strings.Contains(cols, "k2"):
		return DatasetK2
	case strings.Contains(cols, "kep"), strings.Contains(cols, "koi"):
		return DatasetKepler
	case strings.Contains(cols, "pl_"):
		return DatasetArchive
	default:
		return DatasetUnknown
	}
}
