// Package pipeline wires decoding, schema adaptation, preprocessing and
// the models into the two user-facing operations: classify an upload and
// assess the habitability of its planets.
package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/KaramelBytes/exodetect-cli/internal/classifier"
	"github.com/KaramelBytes/exodetect-cli/internal/habitability"
	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
	"github.com/KaramelBytes/exodetect-cli/internal/preprocess"
	"github.com/KaramelBytes/exodetect-cli/internal/schema"
	"github.com/KaramelBytes/exodetect-cli/internal/training"
)

// Model names reported with a prediction.
const (
	ModelHeuristic = "heuristic"
	MethodVariance = "flux_variance"
)

// ErrEmptyInput is returned for zero-length uploads.
var ErrEmptyInput = errors.New("empty file")

// Runtime holds the loaded models and the reference preprocessor config.
// It is built once and never modified, so it is safe to share.
type Runtime struct {
	models    map[training.Variant]*classifier.Forest
	reference *preprocess.Config
	logger    *slog.Logger
}

// New builds a Runtime from already loaded parts. Any of them may be nil.
func New(kepler, k2 *classifier.Forest, reference *preprocess.Config, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{models: map[training.Variant]*classifier.Forest{}, reference: reference, logger: logger}
	if kepler != nil {
		r.models[training.Kepler] = kepler
	}
	if k2 != nil {
		r.models[training.K2] = k2
	}
	return r
}

// Load reads models and the preprocessor config from dir. Missing or
// unreadable files are logged and left out; predictions then use the
// heuristic.
func Load(dir string, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	load := func(name string) *classifier.Forest {
		path := filepath.Join(dir, name)
		m, err := classifier.Load(path)
		if err != nil {
			logAbsent(logger, "model not loaded", path, err)
			return nil
		}
		logger.Info("model loaded", "path", path, "trees", len(m.Trees))
		return m
	}
	kepler := load(training.ModelFile)
	k2 := load(training.ModelK2File)

	path := filepath.Join(dir, training.PreprocessorFile)
	ref, err := preprocess.Load(path)
	if err != nil {
		logAbsent(logger, "preprocessor config not loaded", path, err)
		ref = nil
	} else {
		logger.Info("preprocessor config loaded", "path", path)
	}
	return New(kepler, k2, ref, logger)
}

func logAbsent(logger *slog.Logger, msg, path string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn(msg, "path", path, "reason", "not found")
		return
	}
	logger.Warn(msg, "path", path, "error", err)
}

// HasModel reports whether the variant's model is loaded.
func (r *Runtime) HasModel(v training.Variant) bool { return r.models[v] != nil }

// Reference returns the reference preprocessor config, or nil.
func (r *Runtime) Reference() *preprocess.Config { return r.reference }

// Result is the verdict of a prediction.
type Result struct {
	Status     classifier.Status `json:"status"`
	Confidence float64           `json:"confidence"`
}

// Explanation says why a verdict was reached.
type Explanation struct {
	Method      string                    `json:"method,omitempty"`
	TopFeatures []classifier.Contribution `json:"top_features,omitempty"`
}

// Prediction is the classification of a whole upload.
type Prediction struct {
	Result        Result             `json:"result"`
	Model         string             `json:"model,omitempty"`
	Explanation   *Explanation       `json:"explanation,omitempty"`
	Chart         *Chart             `json:"chart,omitempty"`
	Preprocessing *preprocess.Info   `json:"preprocessing,omitempty"`
	DatasetType   schema.DatasetType `json:"dataset_type,omitempty"`
	Strategy      string             `json:"strategy,omitempty"`
}

// Predict classifies an upload with variant v. It does not fail: an
// undecodable upload yields a neutral candidate, and a missing model,
// unusable features or an inference error fall back to the flux-variance
// heuristic. Rows are scored individually and their class probabilities
// averaged.
func (r *Runtime) Predict(content []byte, v training.Variant) *Prediction {
	log := r.logger.With("variant", string(v), "bytes", len(content))
	t, err := ingest.Decode(content)
	if err != nil {
		log.Warn("decode failed, returning default verdict", "error", err)
		status, conf := classifier.Heuristic(nil)
		return &Prediction{Result: Result{Status: status, Confidence: conf}}
	}

	times, flux := ExtractLightCurve(t)
	p := &Prediction{DatasetType: schema.DetectDatasetType(t.Header), Strategy: t.Strategy}
	if len(times) > 0 && len(flux) > 0 {
		p.Chart = &Chart{Time: times, Flux: flux}
	}

	ct := schema.Adapt(t)
	m, info, cfg, err := preprocess.Prepare(ct, r.reference, v.Features())
	if err != nil {
		log.Warn("preprocessing failed", "error", err)
	} else {
		p.Preprocessing = &info
	}

	model := r.models[v]
	if model != nil && err == nil && len(m.Rows) > 0 {
		res, expl, ierr := r.infer(model, m, cfg)
		if ierr == nil {
			p.Result, p.Model, p.Explanation = res, string(v), expl
			return p
		}
		log.Error("model inference failed", "error", ierr)
	}

	status, conf := classifier.Heuristic(flux)
	p.Result = Result{Status: status, Confidence: conf}
	p.Model = ModelHeuristic
	p.Explanation = &Explanation{Method: MethodVariance}
	return p
}

func (r *Runtime) infer(model *classifier.Forest, m *preprocess.Matrix, cfg *preprocess.Config) (Result, *Explanation, error) {
	proba, err := model.PredictProba(m.Rows)
	if err != nil {
		return Result{}, nil, err
	}
	mean := make([]float64, len(model.Classes))
	for _, p := range proba {
		for k, v := range p {
			mean[k] += v / float64(len(proba))
		}
	}
	best := 0
	for k := range mean {
		if mean[k] > mean[best] {
			best = k
		}
	}
	res := Result{Status: classifier.StatusOf(model.Classes[best]), Confidence: classifier.Round4(mean[best])}
	return res, &Explanation{TopFeatures: classifier.Explain(m, cfg, model.FeatureImportances())}, nil
}

// Habitability decodes an upload and assesses every row.
func (r *Runtime) Habitability(content []byte) ([]habitability.Record, error) {
	if len(content) == 0 {
		return nil, ErrEmptyInput
	}
	t, err := ingest.Decode(content)
	if err != nil {
		return nil, fmt.Errorf("decode upload: %w", err)
	}
	rows := make([]habitability.Row, 0, t.NumRows())
	for _, rec := range t.Records() {
		rows = append(rows, habitability.Row(rec))
	}
	return habitability.ComputeAll(rows), nil
}
