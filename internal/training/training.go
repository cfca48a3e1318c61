// Package training fits the classifier variants from cleaned datasets and
// writes their artifacts into a models directory.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/exodetect-cli/internal/artifacts"
	"github.com/KaramelBytes/exodetect-cli/internal/classifier"
	"github.com/KaramelBytes/exodetect-cli/internal/cleaning"
	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
	"github.com/KaramelBytes/exodetect-cli/internal/preprocess"
	"github.com/KaramelBytes/exodetect-cli/internal/schema"
)

// File names inside the models directory.
const (
	ModelFile        = "model.json"
	ModelK2File      = "model_k2.json"
	PreprocessorFile = "preprocessor_config.json"
	MetricsFile      = "metrics.json"
	MetricsK2File    = "metrics_k2.json"
)

// Variant selects a feature set and its artifact names.
type Variant string

const (
	Kepler Variant = "kepler"
	K2     Variant = "k2"
)

// ParseVariant accepts "kepler" or "k2".
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case Kepler, K2:
		return v, nil
	}
	return "", fmt.Errorf("unknown model variant %q (want kepler or k2)", s)
}

// Features returns the model inputs of v.
func (v Variant) Features() []string {
	if v == K2 {
		return schema.K2Features
	}
	return schema.KeplerFeatures
}

// ModelFile returns the model file name of v.
func (v Variant) ModelFile() string {
	if v == K2 {
		return ModelK2File
	}
	return ModelFile
}

// MetricsFile returns the metrics file name of v.
func (v Variant) MetricsFile() string {
	if v == K2 {
		return MetricsK2File
	}
	return MetricsFile
}

// Result lists what a training run produced.
type Result struct {
	Variant          Variant             `json:"variant"`
	Metrics          *classifier.Metrics `json:"metrics"`
	ModelPath        string              `json:"model_path"`
	MetricsPath      string              `json:"metrics_path"`
	PreprocessorPath string              `json:"preprocessor_path,omitempty"`
	Duration         time.Duration       `json:"duration_ns"`
}

// Trainer writes artifacts into Dir and records them in its registry.
type Trainer struct {
	Dir     string
	Options classifier.Options
	Logger  *slog.Logger
}

func (t *Trainer) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// Train fits variant v on d. The primary variant also fits and saves the
// preprocessor statistics.
func (t *Trainer) Train(ctx context.Context, d *cleaning.Dataset, v Variant) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := t.logger().With("variant", string(v), "rows", len(d.Rows))
	res := &Result{
		Variant:     v,
		ModelPath:   filepath.Join(t.Dir, v.ModelFile()),
		MetricsPath: filepath.Join(t.Dir, v.MetricsFile()),
	}

	reg, err := artifacts.Open(t.Dir)
	if err != nil {
		return nil, err
	}

	if v == Kepler {
		cfg, err := preprocess.Fit(d.Table(), d.Features)
		if err != nil {
			return nil, fmt.Errorf("fit preprocessor: %w", err)
		}
		res.PreprocessorPath = filepath.Join(t.Dir, PreprocessorFile)
		if err := cfg.Save(res.PreprocessorPath); err != nil {
			return nil, err
		}
		if _, err := reg.Record(artifacts.KindPreprocessor, string(v), res.PreprocessorPath, len(d.Rows)); err != nil {
			return nil, err
		}
	}

	log.Info("training forest", "trees", t.Options.NEstimators, "seed", t.Options.RandomState)
	forest, err := classifier.Fit(d.Rows, d.Labels, d.Features, t.Options)
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res.Metrics, err = classifier.Evaluate(forest, d.Rows, d.Labels); err != nil {
		return nil, fmt.Errorf("evaluate model: %w", err)
	}
	if err := forest.Save(res.ModelPath); err != nil {
		return nil, err
	}
	if err := res.Metrics.Save(res.MetricsPath); err != nil {
		return nil, err
	}
	if _, err := reg.Record(artifacts.KindModel, string(v), res.ModelPath, len(d.Rows)); err != nil {
		return nil, err
	}
	if _, err := reg.Record(artifacts.KindMetrics, string(v), res.MetricsPath, len(d.Rows)); err != nil {
		return nil, err
	}
	if err := reg.Save(); err != nil {
		return nil, fmt.Errorf("save registry: %w", err)
	}
	res.Duration = time.Since(start)
	log.Info("training done", "accuracy", res.Metrics.Accuracy, "elapsed", res.Duration)
	return res, nil
}

// TrainFile trains v from a cleaned CSV.
func (t *Trainer) TrainFile(ctx context.Context, cleanedCSV string, v Variant) (*Result, error) {
	d, err := cleaning.ReadCSV(cleanedCSV, v.Features())
	if err != nil {
		return nil, err
	}
	return t.Train(ctx, d, v)
}

// TrainRaw cleans an uploaded table, keeps the cleaned CSV alongside the
// models and trains v on it.
func (t *Trainer) TrainRaw(ctx context.Context, content []byte, v Variant) (*Result, error) {
	tab, err := ingest.Decode(content)
	if err != nil {
		return nil, err
	}
	clean := cleaning.CleanKepler
	if v == K2 {
		clean = cleaning.CleanK2
	}
	res, err := clean(tab)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(t.Dir, "cleaned_"+string(v)+".csv")
	if err := res.WriteCSV(path); err != nil {
		return nil, fmt.Errorf("write cleaned csv: %w", err)
	}
	reg, err := artifacts.Open(t.Dir)
	if err != nil {
		return nil, err
	}
	if _, err := reg.Record(artifacts.KindCleaned, string(v), path, len(res.Rows)); err != nil {
		return nil, err
	}
	if err := reg.Save(); err != nil {
		return nil, fmt.Errorf("save registry: %w", err)
	}
	return t.Train(ctx, res.Dataset, v)
}
