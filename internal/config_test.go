package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/picshelf/internal/models"
	pkgconfig "github.com/starford/picshelf/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Annotation.Enabled() {
		t.Error("annotation should be disabled without an api key")
	}
}

func TestCatalogConfig_BadExtension(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Catalog.Extensions = []string{".jpg", "png"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("extension without dot should fail")
	}
}

func TestQueryConfig_InvalidLimit(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Query.Limit = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero query limit should fail")
	}
}

func TestQueryConfig_BadDate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Query.Date = models.DateFilter{Mode: models.DateAfter, From: "2024-01-01"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("non YYYY.MM.DD date should fail")
	}
}

func TestAnnotationConfig_NegativeDelay(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Annotation.Delay = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative delay should fail")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("PICSHELF_TEST_KEY", "from-env")
	data := `
app:
  log_level: debug
  http:
    port: 9090
catalog:
  folders: ["` + dir + `"]
  extensions: [".jpg"]
  watch: true
sqlite:
  path: ` + filepath.Join(dir, "c.db") + `
annotation:
  api_key: ${PICSHELF_TEST_KEY}
  delay: 250ms
query:
  limit: 25
  direction: DESC
  date:
    mode: between
    from: "2024.01.01"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Annotation.APIKey != "from-env" || cfg.Annotation.Delay != 250*time.Millisecond {
		t.Errorf("annotation = %+v", cfg.Annotation)
	}
	if cfg.Annotation.Model != "gemini-2.0-flash" {
		t.Errorf("model default lost: %q", cfg.Annotation.Model)
	}
	spec := cfg.Query.Spec()
	if spec.Limit != 25 || spec.Direction != models.Desc || spec.Date.Mode != models.DateBetween {
		t.Errorf("spec = %+v", spec)
	}
	if !cfg.Catalog.Watch {
		t.Error("watch flag not loaded")
	}
}
