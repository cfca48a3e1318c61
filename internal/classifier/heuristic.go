package classifier

import (
	"math"
	"sort"

	"github.com/KaramelBytes/exodetect-cli/internal/analysis"
	"github.com/KaramelBytes/exodetect-cli/internal/preprocess"
	"github.com/KaramelBytes/exodetect-cli/internal/schema"
)

// Status is the user-facing verdict.
type Status string

const (
	StatusExoplanet     Status = "Exoplanet"
	StatusCandidate     Status = "Candidate"
	StatusFalsePositive Status = "False positive"
)

// StatusOf maps a model label to its verdict.
func StatusOf(l schema.Label) Status {
	switch l {
	case schema.Confirmed:
		return StatusExoplanet
	case schema.Candidate:
		return StatusCandidate
	default:
		return StatusFalsePositive
	}
}

const (
	heuristicBase     = 0.4
	heuristicSpan     = 0.55
	heuristicVarCap   = 0.05
	exoplanetCutoff   = 0.75
	candidateCutoff   = 0.5
	DefaultConfidence = 0.5
)

// Heuristic classifies a light curve by the population variance of its
// flux. Without flux it returns a neutral candidate.
func Heuristic(flux []float64) (Status, float64) {
	if len(flux) == 0 {
		return StatusCandidate, DefaultConfidence
	}
	v := 0.0
	if len(flux) > 1 {
		v = analysis.Variance(flux)
	}
	conf := heuristicBase + math.Min(v, heuristicVarCap)/heuristicVarCap*heuristicSpan
	status := StatusFalsePositive
	switch {
	case conf > exoplanetCutoff:
		status = StatusExoplanet
	case conf > candidateCutoff:
		status = StatusCandidate
	}
	return status, Round4(conf)
}

// Round4 rounds to four decimals.
func Round4(x float64) float64 { return math.Round(x*1e4) / 1e4 }

// Directions reported by Explain.
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
	DirectionNear  = "near"
)

// Contribution is one entry of an explanation.
type Contribution struct {
	Feature   string  `json:"feature"`
	Influence float64 `json:"influence"`
	Direction string  `json:"direction"`
}

// Explain ranks features by how far the batch mean sits from the fitted
// median, scaled by the clip range and weighted by importance. Missing
// importances count as 1. At most three features are returned.
func Explain(m *preprocess.Matrix, cfg *preprocess.Config, importances []float64) []Contribution {
	type scored struct {
		Contribution
		raw float64
	}
	all := make([]scored, 0, len(m.Features))
	for i, f := range m.Features {
		delta := 0.0
		if cfg != nil {
			if s, ok := cfg.Stats[f]; ok {
				mean := s.Median
				if col := m.Column(f); len(col) > 0 {
					mean = analysis.Mean(col)
				}
				delta = (mean - s.Median) / math.Max(s.ClipMax-s.ClipMin, 1e-9)
			}
		}
		w := 1.0
		if i < len(importances) {
			w = importances[i]
		}
		dir := DirectionNear
		switch {
		case delta > 0:
			dir = DirectionAbove
		case delta < 0:
			dir = DirectionBelow
		}
		raw := math.Abs(delta) * w
		all = append(all, scored{Contribution{Feature: f, Influence: Round4(raw), Direction: dir}, raw})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].raw > all[j].raw })
	out := make([]Contribution, 0, 3)
	for i := 0; i < len(all) && i < 3; i++ {
		out = append(out, all[i].Contribution)
	}
	return out
}
