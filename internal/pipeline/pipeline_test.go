package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/KaramelBytes/exodetect-cli/internal/classifier"
	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
	"github.com/KaramelBytes/exodetect-cli/internal/preprocess"
	"github.com/KaramelBytes/exodetect-cli/internal/training"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestExtractLightCurve(t *testing.T) {
	tab := &ingest.Table{
		Header: []string{"FLUX", "Time", "flux"},
		Rows: [][]string{
			{"9", "1", "0.1"},
			{"9", "x", "0.2"},
			{"9", "3", "0.3"},
		},
	}
	times, flux := ExtractLightCurve(tab)
	// exact "flux" beats the case-insensitive "FLUX"; "Time" matches exactly
	if len(times) != 2 || len(flux) != 2 || flux[0] != 0.1 || times[1] != 3 {
		t.Fatalf("times = %v flux = %v", times, flux)
	}

	times, flux = ExtractLightCurve(&ingest.Table{Header: []string{"SAP_FLUX"}, Rows: [][]string{{"1"}, {"2"}}})
	if times != nil || len(flux) != 2 {
		t.Fatalf("flux only: times = %v flux = %v", times, flux)
	}
}

func TestExtractLightCurveCaps(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("time,flux\n")
	for i := 0; i < MaxChartPoints+50; i++ {
		fmt.Fprintf(&sb, "%d,1\n", i)
	}
	tab, err := ingest.Decode([]byte(sb.String()))
	if err != nil {
		t.Fatal(err)
	}
	times, flux := ExtractLightCurve(tab)
	if len(times) != MaxChartPoints || len(flux) != MaxChartPoints {
		t.Fatalf("len = %d/%d, want %d", len(times), len(flux), MaxChartPoints)
	}
}

func TestPredictUndecodableIsNeutral(t *testing.T) {
	rt := New(nil, nil, nil, quietLogger())
	p := rt.Predict([]byte{}, training.Kepler)
	if p.Result.Status != classifier.StatusCandidate || p.Result.Confidence != 0.5 || p.Model != "" {
		t.Fatalf("prediction = %+v", p)
	}
}

func TestPredictHeuristicWithoutModel(t *testing.T) {
	rt := New(nil, nil, nil, quietLogger())
	p := rt.Predict([]byte("time,flux\n1,0\n2,1\n3,0\n4,1\n"), training.Kepler)
	if p.Model != ModelHeuristic || p.Explanation.Method != MethodVariance {
		t.Fatalf("prediction = %+v", p)
	}
	if p.Result.Status != classifier.StatusExoplanet || p.Result.Confidence != 0.95 {
		t.Fatalf("result = %+v", p.Result)
	}
	if p.Chart == nil || len(p.Chart.Flux) != 4 {
		t.Fatalf("chart = %+v", p.Chart)
	}
	if p.Preprocessing == nil || p.Preprocessing.Note != preprocess.NoteFilledWithMedians {
		t.Fatalf("preprocessing = %+v", p.Preprocessing)
	}
}

func trainedRuntime(t *testing.T) *Runtime {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("koi_period,koi_duration,koi_depth,koi_prad,koi_disposition\n")
	labels := []string{"FALSE POSITIVE", "CANDIDATE", "CONFIRMED"}
	for i := 0; i < 45; i++ {
		c := i % 3
		fmt.Fprintf(&sb, "%d,%d,%d,%d,%s\n", 10+c*100+i%5, 2+c, 100+c*200, 1+c*3, labels[c])
	}
	opt := classifier.DefaultOptions()
	opt.NEstimators = 10
	tr := &training.Trainer{Dir: t.TempDir(), Options: opt, Logger: quietLogger()}
	ctx := context.Background()
	if _, err := tr.TrainRaw(ctx, []byte(sb.String()), training.Kepler); err != nil {
		t.Fatalf("train kepler: %v", err)
	}
	if _, err := tr.TrainRaw(ctx, []byte(sb.String()), training.K2); err != nil {
		t.Fatalf("train k2: %v", err)
	}
	rt := Load(tr.Dir, quietLogger())
	if !rt.HasModel(training.Kepler) || !rt.HasModel(training.K2) || rt.Reference() == nil {
		t.Fatalf("runtime did not load artifacts")
	}
	return rt
}

func TestPredictWithModel(t *testing.T) {
	rt := trainedRuntime(t)
	upload := "pl_orbper;pl_trandur;pl_trandep;pl_rade\n212;6;500;7\n211;6;500;7\n"
	p := rt.Predict([]byte(upload), training.Kepler)
	if p.Model != string(training.Kepler) {
		t.Fatalf("model = %q, want kepler (prediction %+v)", p.Model, p)
	}
	if p.Result.Status != classifier.StatusExoplanet || p.Result.Confidence <= 0.5 {
		t.Fatalf("result = %+v", p.Result)
	}
	if p.Explanation == nil || len(p.Explanation.TopFeatures) != 3 {
		t.Fatalf("explanation = %+v", p.Explanation)
	}
	if p.Preprocessing.RowsIn != 2 || p.Preprocessing.RowsOut != 2 {
		t.Fatalf("preprocessing = %+v", p.Preprocessing)
	}

	k2 := rt.Predict([]byte("koi_period,koi_prad\n10,1\n"), training.K2)
	if k2.Model != string(training.K2) || k2.Result.Status != classifier.StatusFalsePositive {
		t.Fatalf("k2 prediction = %+v", k2)
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	rt := Load(t.TempDir(), quietLogger())
	if rt.HasModel(training.Kepler) || rt.Reference() != nil {
		t.Fatalf("empty dir should load nothing")
	}
}

func TestHabitability(t *testing.T) {
	rt := New(nil, nil, nil, quietLogger())
	recs, err := rt.Habitability([]byte("pl_name,st_teff,pl_rade\nA,7500,1\nB,3000,4\n"))
	if err != nil {
		t.Fatalf("Habitability() error = %v", err)
	}
	if len(recs) != 2 || *recs[0].StarClass != "A" || *recs[1].StarClass != "M" {
		t.Fatalf("records = %+v", recs)
	}
	if _, err := rt.Habitability(nil); err != ErrEmptyInput {
		t.Fatalf("empty error = %v", err)
	}
}
