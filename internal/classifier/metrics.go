package classifier

import (
	"fmt"
	"sort"

	"github.com/KaramelBytes/exodetect-cli/internal/schema"
	"github.com/KaramelBytes/exodetect-cli/internal/utils"
)

// Metrics summarizes a model on a labelled set.
type Metrics struct {
	Accuracy        float64  `json:"accuracy"`
	ConfusionMatrix [][]int  `json:"confusion_matrix"`
	LabelsOrder     []int    `json:"labels_order"`
	LabelsNames     []string `json:"labels_names"`
	AUCMicroOVR     *float64 `json:"auc_micro_ovr,omitempty"`
	Rows            int      `json:"rows"`
	Features        []string `json:"features"`
}

// Save writes the metrics as indented JSON.
func (m *Metrics) Save(path string) error {
	if err := utils.WriteJSON(path, m); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}

// Evaluate scores f on X with true labels y. Rows of the confusion matrix
// are true labels, columns predictions, both in [-1, 0, 1] order.
func Evaluate(f *Forest, X [][]float64, y []schema.Label) (*Metrics, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(X), len(y))
	}
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	k := len(schema.Labels)
	m := &Metrics{
		ConfusionMatrix: make([][]int, k),
		Rows:            len(X),
		Features:        append([]string(nil), f.Features...),
	}
	for i, l := range schema.Labels {
		m.ConfusionMatrix[i] = make([]int, k)
		m.LabelsOrder = append(m.LabelsOrder, int(l))
		m.LabelsNames = append(m.LabelsNames, l.String())
	}

	correct := 0
	scores := make([]float64, 0, len(X)*k)
	truth := make([]bool, 0, len(X)*k)
	for i, p := range proba {
		want := y[i].Index()
		if want < 0 {
			return nil, fmt.Errorf("%w: %d", ErrUnknownLabel, y[i])
		}
		got := argmax(p)
		m.ConfusionMatrix[want][got]++
		if got == want {
			correct++
		}
		for c, v := range p {
			scores = append(scores, v)
			truth = append(truth, c == want)
		}
	}
	if len(X) > 0 {
		m.Accuracy = float64(correct) / float64(len(X))
	}
	if auc, ok := rocAUC(scores, truth); ok {
		m.AUCMicroOVR = &auc
	}
	return m, nil
}

// rocAUC is the Mann-Whitney estimate of the area under the ROC curve, with
// tied scores sharing their average rank. ok is false when only one class
// is present.
func rocAUC(scores []float64, positive []bool) (float64, bool) {
	n := len(scores)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	var pos, neg int
	var rankSum float64
	for i := 0; i < n; {
		j := i
		for j < n && scores[idx[j]] == scores[idx[i]] {
			j++
		}
		rank := float64(i+j+1) / 2 // ranks are 1-based
		for _, x := range idx[i:j] {
			if positive[x] {
				pos++
				rankSum += rank
			}
		}
		i = j
	}
	neg = n - pos
	if pos == 0 || neg == 0 {
		return 0, false
	}
	return (rankSum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg)), true
}
