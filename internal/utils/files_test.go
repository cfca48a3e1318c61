package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/exodetect-cli/internal/utils"
)

func TestWriteJSONCreatesParentAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")
	if err := utils.WriteJSON(path, map[string]int{"rows": 3}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "\"rows\": 3") {
		t.Fatalf("content = %s", b)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err := utils.ExpandHome("~/models")
	if err != nil {
		t.Fatalf("ExpandHome() error = %v", err)
	}
	if got != filepath.Join(home, "models") {
		t.Fatalf("ExpandHome = %q", got)
	}
	if got, _ := utils.ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute path changed: %q", got)
	}
}
