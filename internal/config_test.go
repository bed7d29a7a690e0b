package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/tabula/pkg/config"
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
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Storage.Key != "table-data-v1" {
		t.Errorf("key = %q", cfg.Storage.Key)
	}
}

func TestStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     StorageConfig
		wantErr bool
	}{
		{"file", StorageConfig{Driver: "file", Path: "./data"}, false},
		{"sqlite", StorageConfig{Driver: "sqlite", Path: "./t.db"}, false},
		{"memory without path", StorageConfig{Driver: "memory"}, false},
		{"empty driver defaults to file", StorageConfig{Path: "./data"}, false},
		{"file without path", StorageConfig{Driver: "file"}, true},
		{"unknown driver", StorageConfig{Driver: "s3", Path: "x"}, true},
		{"key with separator", StorageConfig{Driver: "file", Path: "x", Key: "a/b"}, true},
		{"key with dot-dot", StorageConfig{Driver: "file", Path: "x", Key: "../up"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestStoreConfig(t *testing.T) {
	cfg := StoreConfig{Locale: "de-DE", QueryLatency: 100 * time.Millisecond, RemoveLatency: 300 * time.Millisecond}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid store config: %v", err)
	}
	if base, _ := cfg.Tag().Base(); base.String() != "de" {
		t.Errorf("tag = %v", cfg.Tag())
	}

	for _, bad := range []StoreConfig{
		{Locale: "not a locale!"},
		{Locale: "en", QueryLatency: -time.Second},
		{Locale: "en", RemoveLatency: time.Minute},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("expected error for %+v", bad)
		}
	}
}

func TestSearchConfig_DefaultDebounce(t *testing.T) {
	cfg := SearchConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Debounce != 200*time.Millisecond {
		t.Errorf("debounce = %v, want 200ms", cfg.Debounce)
	}
}

func TestLoadConfig_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("TABULA_TEST_TOKEN", "s3cret")
	data := `app:
  log_level: debug
  http:
    port: 9090
storage:
  driver: sqlite
  path: ` + filepath.Join(dir, "t.db") + `
store:
  locale: sv
  query_latency: 100ms
  remove_latency: 300ms
search:
  debounce: 250ms
auth:
  mode: token
  token: ${TABULA_TEST_TOKEN}
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
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.Key != "table-data-v1" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Store.QueryLatency != 100*time.Millisecond || cfg.Store.RemoveLatency != 300*time.Millisecond {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Search.Debounce != 250*time.Millisecond {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q, want expanded env value", cfg.Auth.Token)
	}
}
