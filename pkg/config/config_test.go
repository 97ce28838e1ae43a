package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sample struct {
	Name    string        `yaml:"name"`
	Every   time.Duration `yaml:"every"`
	Folders []string      `yaml:"folders"`
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := &sample{Name: "shelf", Every: 1100 * time.Millisecond, Folders: []string{"/a", "/b"}}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var out sample
	if err := Load(path, &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Name != in.Name || out.Every != in.Every || len(out.Folders) != 2 {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(path, &sample{}); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("invalid config must not be written")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SHELF_NAME", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("name: ${SHELF_NAME}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out sample
	if err := Load(path, &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Name != "from-env" {
		t.Errorf("name = %q", out.Name)
	}
}

func TestLoadWithDefaults_MissingBoth(t *testing.T) {
	var out sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"), "", &out); err == nil {
		t.Fatal("expected error for missing config")
	}
}
