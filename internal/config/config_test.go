package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.ServerAddr != ":8000" || c.NEstimators != 300 || c.RandomState != 42 || c.MaxUploadMB != 50 {
		t.Fatalf("defaults = %+v", c)
	}
	if filepath.Base(c.ModelsDir) != "models" {
		t.Fatalf("models_dir = %q, want ~/.exodetect/models", c.ModelsDir)
	}
	if len(c.CORSOrigins) != 2 {
		t.Fatalf("cors_origins = %v", c.CORSOrigins)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "models_dir: /srv/models\nn_estimators: 50\nlog_format: json\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EXODETECT_N_ESTIMATORS", "75")
	t.Setenv("EXODETECT_DATABASE_DSN", "postgres://x")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.ModelsDir != "/srv/models" || c.LogFormat != "json" {
		t.Fatalf("file values = %+v", c)
	}
	if c.NEstimators != 75 || c.DatabaseDSN != "postgres://x" {
		t.Fatalf("env overrides = %d %q", c.NEstimators, c.DatabaseDSN)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := &Global{ModelsDir: "/m", ServerAddr: ":9000", NEstimators: 10, CORSOrigins: []string{"*"}}
	if err := Save(in, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out.ServerAddr != ":9000" || out.NEstimators != 10 || out.ModelsDir != "/m" || out.CORSOrigins[0] != "*" {
		t.Fatalf("round trip = %+v", out)
	}
}
