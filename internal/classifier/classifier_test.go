package classifier

import (
	"errors"
	"math"
	"math/rand/v2"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/KaramelBytes/exodetect-cli/internal/preprocess"
	"github.com/KaramelBytes/exodetect-cli/internal/schema"
)

// separable builds three well separated clusters along the first feature.
func separable(n int) ([][]float64, []schema.Label) {
	rng := rand.New(rand.NewPCG(1, 2))
	var X [][]float64
	var y []schema.Label
	for i := 0; i < n; i++ {
		for c, l := range schema.Labels {
			X = append(X, []float64{float64(c*10) + rng.Float64(), rng.Float64()})
			y = append(y, l)
		}
	}
	return X, y
}

func smallOptions() Options {
	opt := DefaultOptions()
	opt.NEstimators = 15
	return opt
}

func TestFitPredictSeparable(t *testing.T) {
	X, y := separable(30)
	f, err := Fit(X, y, []string{"a", "b"}, smallOptions())
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	got, err := f.Predict([][]float64{{0.5, 0.5}, {10.5, 0.5}, {20.5, 0.5}})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	want := []schema.Label{schema.FalsePositive, schema.Candidate, schema.Confirmed}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Predict = %v, want %v", got, want)
	}
	proba, _ := f.PredictProba([][]float64{{10.5, 0.5}})
	sum := proba[0][0] + proba[0][1] + proba[0][2]
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v", sum)
	}
	imp := f.FeatureImportances()
	if imp[0] <= imp[1] {
		t.Fatalf("importances = %v, want the separating feature first", imp)
	}
}

func TestFitIsDeterministic(t *testing.T) {
	X, y := separable(10)
	a, _ := Fit(X, y, []string{"a", "b"}, smallOptions())
	b, _ := Fit(X, y, []string{"a", "b"}, smallOptions())
	if !reflect.DeepEqual(a.Trees, b.Trees) {
		t.Fatalf("same seed produced different forests")
	}
}

func TestShapeMismatch(t *testing.T) {
	X, y := separable(5)
	if _, err := Fit(X, y[:3], []string{"a", "b"}, smallOptions()); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Fit(len mismatch) error = %v", err)
	}
	f, _ := Fit(X, y, []string{"a", "b"}, smallOptions())
	if _, err := f.PredictProba([][]float64{{1, 2, 3}}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("PredictProba(3 cols) error = %v", err)
	}
	if _, err := Fit(X, append([]schema.Label{7}, y[1:]...), []string{"a", "b"}, smallOptions()); !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("Fit(bad label) error = %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	X, y := separable(10)
	f, _ := Fit(X, y, []string{"a", "b"}, smallOptions())
	path := filepath.Join(t.TempDir(), "model.json")
	if err := f.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	pf, _ := f.PredictProba(X)
	pg, _ := g.PredictProba(X)
	if !reflect.DeepEqual(pf, pg) {
		t.Fatalf("loaded model predicts differently")
	}
	if !reflect.DeepEqual(g.Classes, schema.Labels) {
		t.Fatalf("classes = %v", g.Classes)
	}
}

func TestEvaluate(t *testing.T) {
	X, y := separable(20)
	f, _ := Fit(X, y, []string{"a", "b"}, smallOptions())
	m, err := Evaluate(f, X, y)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if m.Accuracy != 1 || m.Rows != 60 {
		t.Fatalf("metrics = %+v", m)
	}
	if !reflect.DeepEqual(m.LabelsOrder, []int{-1, 0, 1}) || m.LabelsNames[2] != "CONFIRMED" {
		t.Fatalf("labels = %v %v", m.LabelsOrder, m.LabelsNames)
	}
	if m.ConfusionMatrix[1][1] != 20 {
		t.Fatalf("confusion = %v", m.ConfusionMatrix)
	}
	if m.AUCMicroOVR == nil || *m.AUCMicroOVR < 0.99 {
		t.Fatalf("auc = %v", m.AUCMicroOVR)
	}
}

func TestRocAUC(t *testing.T) {
	auc, ok := rocAUC([]float64{0.1, 0.4, 0.35, 0.8}, []bool{false, false, true, true})
	if !ok || math.Abs(auc-0.75) > 1e-12 {
		t.Fatalf("auc = %v, want 0.75", auc)
	}
	auc, _ = rocAUC([]float64{0.5, 0.5}, []bool{true, false})
	if auc != 0.5 {
		t.Fatalf("tied auc = %v, want 0.5", auc)
	}
	if _, ok := rocAUC([]float64{1, 2}, []bool{true, true}); ok {
		t.Fatalf("single class should be undefined")
	}
}

func TestHeuristic(t *testing.T) {
	cases := []struct {
		flux   []float64
		status Status
		conf   float64
	}{
		{nil, StatusCandidate, 0.5},
		{[]float64{1}, StatusFalsePositive, 0.4},
		{[]float64{1, 1, 1}, StatusFalsePositive, 0.4},
		{[]float64{0, 1}, StatusExoplanet, 0.95},
		{[]float64{0, 0.2}, StatusCandidate, 0.51},
	}
	for _, tc := range cases {
		s, c := Heuristic(tc.flux)
		if s != tc.status || c != tc.conf {
			t.Fatalf("Heuristic(%v) = %s %v, want %s %v", tc.flux, s, c, tc.status, tc.conf)
		}
	}
}

func TestExplainTopThree(t *testing.T) {
	cfg := &preprocess.Config{
		Features: []string{"a", "b", "c", "d"},
		Stats: map[string]preprocess.FeatureStats{
			"a": {Median: 0, ClipMin: 0, ClipMax: 10},
			"b": {Median: 5, ClipMin: 0, ClipMax: 10},
			"c": {Median: 1, ClipMin: 0, ClipMax: 2},
			"d": {Median: 3, ClipMin: 0, ClipMax: 10},
		},
	}
	m := &preprocess.Matrix{Features: cfg.Features, Rows: [][]float64{{4, 1, 1, 3}, {6, 3, 1, 3}}}
	got := Explain(m, cfg, []float64{0.5, 0.25, 0.2, 0.05})
	want := []Contribution{
		{Feature: "a", Influence: 0.25, Direction: DirectionAbove},
		{Feature: "b", Influence: 0.075, Direction: DirectionBelow},
		{Feature: "c", Influence: 0, Direction: DirectionNear},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Explain = %+v, want %+v", got, want)
	}
}
