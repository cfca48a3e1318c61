package training

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/exodetect-cli/internal/artifacts"
	"github.com/KaramelBytes/exodetect-cli/internal/classifier"
	"github.com/KaramelBytes/exodetect-cli/internal/preprocess"
)

func rawKOI(n int) []byte {
	var sb strings.Builder
	sb.WriteString("koi_period,koi_duration,koi_depth,koi_prad,koi_disposition\n")
	labels := []string{"FALSE POSITIVE", "CANDIDATE", "CONFIRMED"}
	for i := 0; i < n; i++ {
		c := i % 3
		fmt.Fprintf(&sb, "%d.%d,%d,%d,%d.5,%s\n", 5+c*40, i, 2+c, 100+c*300, 1+c, labels[c])
	}
	return []byte(sb.String())
}

func trainer(t *testing.T) *Trainer {
	opt := classifier.DefaultOptions()
	opt.NEstimators = 10
	return &Trainer{Dir: t.TempDir(), Options: opt}
}

func TestTrainRawKepler(t *testing.T) {
	tr := trainer(t)
	res, err := tr.TrainRaw(context.Background(), rawKOI(60), Kepler)
	if err != nil {
		t.Fatalf("TrainRaw() error = %v", err)
	}
	if res.Metrics.Rows != 60 || res.Metrics.Accuracy < 0.9 {
		t.Fatalf("metrics = %+v", res.Metrics)
	}
	m, err := classifier.Load(res.ModelPath)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	if len(m.Features) != 4 {
		t.Fatalf("features = %v", m.Features)
	}
	cfg, err := preprocess.Load(filepath.Join(tr.Dir, PreprocessorFile))
	if err != nil || !cfg.Has(Kepler.Features()) {
		t.Fatalf("preprocessor = %+v, %v", cfg, err)
	}
	reg, err := artifacts.Load(tr.Dir)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	for _, kind := range []string{artifacts.KindModel, artifacts.KindMetrics, artifacts.KindPreprocessor, artifacts.KindCleaned} {
		if _, ok := reg.Find(kind, string(Kepler)); !ok {
			t.Fatalf("registry missing %s", kind)
		}
	}
}

func TestTrainFileK2(t *testing.T) {
	tr := trainer(t)
	path := filepath.Join(t.TempDir(), "cleaned.csv")
	if err := os.WriteFile(path, []byte("koi_period,koi_prad,label\n1,1,-1\n2,1,-1\n50,3,0\n55,3,0\n90,8,1\n99,9,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := tr.TrainFile(context.Background(), path, K2)
	if err != nil {
		t.Fatalf("TrainFile() error = %v", err)
	}
	if filepath.Base(res.ModelPath) != ModelK2File || res.PreprocessorPath != "" {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(tr.Dir, MetricsK2File)); err != nil {
		t.Fatalf("metrics not written: %v", err)
	}
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := trainer(t).TrainRaw(ctx, rawKOI(9), Kepler)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestParseVariant(t *testing.T) {
	if v, err := ParseVariant("k2"); err != nil || v != K2 {
		t.Fatalf("ParseVariant(k2) = %v, %v", v, err)
	}
	if _, err := ParseVariant("tess"); err == nil {
		t.Fatalf("ParseVariant(tess) should fail")
	}
}
