// Package classifier implements the random forest used to score candidate
// planets, its evaluation metrics and the flux-variance fallback.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"runtime"
	"sync"

	"github.com/KaramelBytes/exodetect-cli/internal/schema"
	"github.com/KaramelBytes/exodetect-cli/internal/utils"
)

var (
	ErrShapeMismatch = errors.New("input shape does not match model")
	ErrNoSamples     = errors.New("no training samples")
	ErrUnknownLabel  = errors.New("label outside [-1, 0, 1]")
)

// Options controls forest training.
type Options struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"` // 0 means unlimited
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	MaxFeatures     int   `json:"max_features"` // 0 means sqrt(n_features)
	RandomState     int64 `json:"random_state"`
	// Workers bounds concurrent tree construction; 0 uses GOMAXPROCS.
	Workers int `json:"-"`
}

// DefaultOptions returns 300 trees seeded with 42.
func DefaultOptions() Options {
	return Options{NEstimators: 300, MinSamplesSplit: 2, MinSamplesLeaf: 1, RandomState: 42}
}

func (o Options) withDefaults(nFeatures int) Options {
	if o.NEstimators <= 0 {
		o.NEstimators = 300
	}
	if o.MinSamplesSplit < 2 {
		o.MinSamplesSplit = 2
	}
	if o.MinSamplesLeaf < 1 {
		o.MinSamplesLeaf = 1
	}
	if o.MaxFeatures <= 0 || o.MaxFeatures > nFeatures {
		o.MaxFeatures = max(1, int(math.Sqrt(float64(nFeatures))))
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Forest is a trained model. It is safe for concurrent prediction.
type Forest struct {
	Classes     []schema.Label `json:"classes"`
	Features    []string       `json:"features"`
	Importances []float64      `json:"feature_importances"`
	Options     Options        `json:"options"`
	Trees       []*Tree        `json:"trees"`
}

func validate(X [][]float64, nFeatures int) error {
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(row), nFeatures)
		}
	}
	return nil
}

// Fit trains a forest on X (one row per sample, columns in features order)
// and labels y. Each tree sees a bootstrap sample weighted so every class
// present in it carries equal total weight.
func Fit(X [][]float64, y []schema.Label, features []string, opt Options) (*Forest, error) {
	if len(X) == 0 {
		return nil, ErrNoSamples
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(X), len(y))
	}
	if err := validate(X, len(features)); err != nil {
		return nil, err
	}
	classIdx := make([]int, len(y))
	for i, l := range y {
		if classIdx[i] = l.Index(); classIdx[i] < 0 {
			return nil, fmt.Errorf("%w: %d", ErrUnknownLabel, l)
		}
	}
	opt = opt.withDefaults(len(features))

	// Seeds are drawn up front so the result does not depend on scheduling.
	master := rand.New(rand.NewPCG(uint64(opt.RandomState), 0x5eed))
	seeds := make([]uint64, opt.NEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	f := &Forest{
		Classes:  append([]schema.Label(nil), schema.Labels...),
		Features: append([]string(nil), features...),
		Options:  opt,
		Trees:    make([]*Tree, opt.NEstimators),
	}
	imps := make([][]float64, opt.NEstimators)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < opt.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rng := rand.New(rand.NewPCG(seeds[i], uint64(i)))
				b := newBuilder(X, classIdx, len(schema.Labels), opt, rng)
				f.Trees[i], imps[i] = b.build(b.bootstrap())
			}
		}()
	}
	for i := 0; i < opt.NEstimators; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	f.Importances = averageImportances(imps, len(features))
	return f, nil
}

func averageImportances(perTree [][]float64, n int) []float64 {
	out := make([]float64, n)
	for _, imp := range perTree {
		total := 0.0
		for _, v := range imp {
			total += v
		}
		if total == 0 {
			continue
		}
		for j, v := range imp {
			out[j] += v / total
		}
	}
	total := 0.0
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

// PredictProba returns per-row class probabilities in Classes order.
func (f *Forest) PredictProba(X [][]float64) ([][]float64, error) {
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("%w: model has no trees", ErrShapeMismatch)
	}
	if err := validate(X, len(f.Features)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		p := make([]float64, len(f.Classes))
		for _, t := range f.Trees {
			for k, v := range t.leaf(row) {
				p[k] += v
			}
		}
		for k := range p {
			p[k] /= float64(len(f.Trees))
		}
		out[i] = p
	}
	return out, nil
}

// Predict returns the most probable label per row. Ties go to the earlier
// class.
func (f *Forest) Predict(X [][]float64) ([]schema.Label, error) {
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Label, len(proba))
	for i, p := range proba {
		out[i] = f.Classes[argmax(p)]
	}
	return out, nil
}

// FeatureImportances returns the normalized mean impurity decrease per
// feature.
func (f *Forest) FeatureImportances() []float64 {
	return append([]float64(nil), f.Importances...)
}

func argmax(p []float64) int {
	best := 0
	for k := range p {
		if p[k] > p[best] {
			best = k
		}
	}
	return best
}

// Save writes the forest as JSON.
func (f *Forest) Save(path string) error {
	if err := utils.WriteJSON(path, f); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// Load reads a forest written by Save.
func Load(path string) (*Forest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var f Forest
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if len(f.Classes) != len(schema.Labels) {
		return nil, fmt.Errorf("parse model %s: %w: %d classes", path, ErrShapeMismatch, len(f.Classes))
	}
	for _, t := range f.Trees {
		if err := t.check(len(f.Features), len(f.Classes)); err != nil {
			return nil, fmt.Errorf("parse model %s: %w", path, err)
		}
	}
	return &f, nil
}
