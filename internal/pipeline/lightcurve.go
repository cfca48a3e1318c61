package pipeline

import (
	"strings"

	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
)

// MaxChartPoints caps the light curve returned with a prediction.
const MaxChartPoints = 3000

var (
	timeColumns = []string{"time", "TIME", "Time", "t", "jd", "bjd", "BJD", "HJD"}
	fluxColumns = []string{"flux", "FLUX", "Flux", "pdcsap_flux", "sap_flux", "flux_norm"}
)

// Chart is the light curve found in an upload.
type Chart struct {
	Time []float64 `json:"time"`
	Flux []float64 `json:"flux"`
}

// firstPresent returns the header index of the first candidate, trying every
// candidate exactly before any case-insensitive match.
func firstPresent(header []string, candidates []string) int {
	for _, c := range candidates {
		for i, h := range header {
			if h == c {
				return i
			}
		}
	}
	for _, c := range candidates {
		for i, h := range header {
			if strings.EqualFold(h, c) {
				return i
			}
		}
	}
	return -1
}

func numericColumn(t *ingest.Table, idx int) []float64 {
	if idx < 0 {
		return nil
	}
	out := []float64{}
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		if x, ok := ingest.ParseNumber(row[idx]); ok {
			out = append(out, x)
		}
	}
	return out
}

// ExtractLightCurve pulls numeric time and flux series from t. Non-numeric
// cells are dropped per column. When both exist they are cut to the shorter
// length, at most MaxChartPoints. A nil slice means the column is absent.
func ExtractLightCurve(t *ingest.Table) (times, flux []float64) {
	if t == nil {
		return nil, nil
	}
	times = numericColumn(t, firstPresent(t.Header, timeColumns))
	flux = numericColumn(t, firstPresent(t.Header, fluxColumns))
	if times != nil && flux != nil {
		n := min(len(times), len(flux), MaxChartPoints)
		times, flux = times[:n], flux[:n]
	}
	return times, flux
}
