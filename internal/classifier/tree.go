package classifier

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// Node is one CART node. Leaves have Feature -1 and carry class
// probabilities in Value.
type Node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l,omitempty"`
	Right     int       `json:"r,omitempty"`
	Value     []float64 `json:"v,omitempty"`
}

// Tree is a flattened decision tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) leaf(row []float64) []float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) check(nFeatures, nClasses int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: empty tree", ErrShapeMismatch)
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			if len(n.Value) != nClasses {
				return fmt.Errorf("%w: leaf %d has %d classes", ErrShapeMismatch, i, len(n.Value))
			}
			continue
		}
		if n.Feature >= nFeatures || n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("%w: bad node %d", ErrShapeMismatch, i)
		}
	}
	return nil
}

// sample is a distinct training row and its weight in the current tree.
type sample struct {
	idx int
	w   float64
}

type builder struct {
	X        [][]float64
	y        []int
	nClasses int
	opt      Options
	rng      *rand.Rand
	nodes    []Node
	imp      []float64
}

func newBuilder(X [][]float64, y []int, nClasses int, opt Options, rng *rand.Rand) *builder {
	return &builder{X: X, y: y, nClasses: nClasses, opt: opt, rng: rng, imp: make([]float64, len(X[0]))}
}

// bootstrap draws n rows with replacement and weights each drawn row by
// its multiplicity times n / (classes present * class count).
func (b *builder) bootstrap() []sample {
	n := len(b.X)
	counts := make([]int, n)
	for i := 0; i < n; i++ {
		counts[b.rng.IntN(n)]++
	}
	perClass := make([]int, b.nClasses)
	for i, c := range counts {
		perClass[b.y[i]] += c
	}
	present := 0
	for _, c := range perClass {
		if c > 0 {
			present++
		}
	}
	out := make([]sample, 0, n)
	for i, c := range counts {
		if c == 0 {
			continue
		}
		cw := float64(n) / float64(present*perClass[b.y[i]])
		out = append(out, sample{idx: i, w: float64(c) * cw})
	}
	return out
}

func (b *builder) build(samples []sample) (*Tree, []float64) {
	b.grow(samples, 0)
	return &Tree{Nodes: b.nodes}, b.imp
}

func (b *builder) distribution(samples []sample) ([]float64, float64) {
	dist := make([]float64, b.nClasses)
	total := 0.0
	for _, s := range samples {
		dist[b.y[s.idx]] += s.w
		total += s.w
	}
	return dist, total
}

func gini(dist []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	g := 1.0
	for _, v := range dist {
		p := v / total
		g -= p * p
	}
	return g
}

func (b *builder) grow(samples []sample, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1})

	dist, total := b.distribution(samples)
	impurity := gini(dist, total)
	stop := impurity == 0 ||
		len(samples) < b.opt.MinSamplesSplit ||
		len(samples) < 2*b.opt.MinSamplesLeaf ||
		(b.opt.MaxDepth > 0 && depth >= b.opt.MaxDepth)
	if !stop {
		if sp, ok := b.bestSplit(samples, impurity, total); ok {
			var left, right []sample
			for _, s := range samples {
				if b.X[s.idx][sp.feature] <= sp.threshold {
					left = append(left, s)
				} else {
					right = append(right, s)
				}
			}
			b.imp[sp.feature] += sp.gain
			l := b.grow(left, depth+1)
			r := b.grow(right, depth+1)
			b.nodes[id] = Node{Feature: sp.feature, Threshold: sp.threshold, Left: l, Right: r}
			return id
		}
	}
	for k := range dist {
		dist[k] /= total
	}
	b.nodes[id].Value = dist
	return id
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit examines a random subset of features. Like CART in scikit-learn
// it keeps drawing features past MaxFeatures until one yields a valid split.
func (b *builder) bestSplit(samples []sample, impurity, total float64) (split, bool) {
	best := split{gain: 0}
	found := false
	order := b.rng.Perm(len(b.imp))
	sorted := make([]sample, len(samples))
	for tried, f := range order {
		if tried >= b.opt.MaxFeatures && found {
			break
		}
		copy(sorted, samples)
		sort.Slice(sorted, func(i, j int) bool { return b.X[sorted[i].idx][f] < b.X[sorted[j].idx][f] })

		left := make([]float64, b.nClasses)
		right, _ := b.distribution(sorted)
		wl, wr := 0.0, total
		for i := 0; i < len(sorted)-1; i++ {
			s := sorted[i]
			c := b.y[s.idx]
			left[c] += s.w
			right[c] -= s.w
			wl += s.w
			wr -= s.w
			x, next := b.X[s.idx][f], b.X[sorted[i+1].idx][f]
			if x == next {
				continue
			}
			if i+1 < b.opt.MinSamplesLeaf || len(sorted)-i-1 < b.opt.MinSamplesLeaf {
				continue
			}
			gain := total*impurity - wl*gini(left, wl) - wr*gini(right, wr)
			if gain > best.gain+1e-12 {
				th := x + (next-x)/2
				if th >= next {
					th = x
				}
				best = split{feature: f, threshold: th, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
