// Package artifacts keeps the artifacts.json index of a models directory.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/KaramelBytes/exodetect-cli/internal/utils"
	"github.com/google/uuid"
)

const registryFileName = "artifacts.json"

// Registry is the artifact index persisted in a models directory.
type Registry struct {
	Artifacts map[string]*Artifact `json:"artifacts"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`

	// Not serialized: the models directory holding artifacts.json
	rootDir string `json:"-"`
}

// NewRegistry constructs an empty in-memory registry. Call Save() to persist.
func NewRegistry(rootDir string) *Registry {
	return &Registry{
		Artifacts: make(map[string]*Artifact),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		rootDir:   rootDir,
	}
}

// Load reads artifacts.json from dir.
func Load(dir string) (*Registry, error) {
	path := filepath.Join(dir, registryFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("registry not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var r Registry
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if r.Artifacts == nil {
		r.Artifacts = make(map[string]*Artifact)
	}
	r.rootDir = dir
	return &r, nil
}

// Open loads the registry in dir, or returns a new one when none exists.
func Open(dir string) (*Registry, error) {
	r, err := Load(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return NewRegistry(dir), nil
	}
	return r, err
}

// RootDir returns the models directory.
func (r *Registry) RootDir() string { return r.rootDir }

// Save writes artifacts.json using atomic write.
func (r *Registry) Save() error {
	if r.rootDir == "" {
		return errors.New("registry root directory not set")
	}
	r.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(r)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(r.rootDir, registryFileName), data)
}

// Record stats path and adds it to the registry, replacing any earlier entry
// for the same path.
func (r *Registry) Record(kind, variant, path string, rows int) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact path: %w", err)
	}
	for id, a := range r.Artifacts {
		if a.Path == abs {
			delete(r.Artifacts, id)
		}
	}
	a := &Artifact{
		ID:        uuid.NewString(),
		Kind:      kind,
		Variant:   variant,
		Name:      filepath.Base(path),
		Path:      abs,
		Size:      info.Size(),
		Rows:      rows,
		CreatedAt: info.ModTime(),
	}
	r.Artifacts[a.ID] = a
	r.UpdatedAt = time.Now()
	return a, nil
}

// List returns artifacts ordered by variant, then kind, then name.
func (r *Registry) List() []*Artifact {
	out := make([]*Artifact, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Variant != out[j].Variant {
			return out[i].Variant < out[j].Variant
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Find returns the newest artifact of the given kind and variant.
func (r *Registry) Find(kind, variant string) (*Artifact, bool) {
	var best *Artifact
	for _, a := range r.Artifacts {
		if a.Kind != kind || a.Variant != variant {
			continue
		}
		if best == nil || a.CreatedAt.After(best.CreatedAt) {
			best = a
		}
	}
	return best, best != nil
}
