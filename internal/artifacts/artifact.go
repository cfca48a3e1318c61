package artifacts

import "time"

// Kinds of files the models directory holds.
const (
	KindModel        = "model"
	KindPreprocessor = "preprocessor"
	KindMetrics      = "metrics"
	KindCleaned      = "cleaned"
)

// Artifact holds metadata for one file produced by cleaning or training.
type Artifact struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Variant   string    `json:"variant"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Rows      int       `json:"rows,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
