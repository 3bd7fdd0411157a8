package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":9090"
base_url: "http://spaces.example.com"
database:
  driver: sqlite
  dsn: /tmp/spaces.db
reconciler:
  interval: 1m
  session_budget: 2h
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr: got %q", cfg.HTTPAddr)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver: got %q", cfg.Database.Driver)
	}
	if cfg.Reconciler.Interval.Std() != time.Minute {
		t.Errorf("Interval: got %v", cfg.Reconciler.Interval)
	}
	if cfg.Reconciler.SessionBudget.Std() != 2*time.Hour {
		t.Errorf("SessionBudget: got %v", cfg.Reconciler.SessionBudget)
	}
	// FrontendURL defaults to BaseURL.
	if cfg.FrontendURL != "http://spaces.example.com" {
		t.Errorf("FrontendURL: got %q", cfg.FrontendURL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":9090"
base_url: "http://file.example.com"
`)
	t.Setenv("SPACES_BASE_URL", "http://env.example.com")
	t.Setenv("SPACES_SESSION_BUDGET", "90m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "http://env.example.com" {
		t.Errorf("BaseURL: got %q", cfg.BaseURL)
	}
	if cfg.Reconciler.SessionBudget.Std() != 90*time.Minute {
		t.Errorf("SessionBudget: got %v", cfg.Reconciler.SessionBudget)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SPACES_BASE_URL", "http://spaces.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr: got %q", cfg.HTTPAddr)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver: got %q", cfg.Database.Driver)
	}
	if cfg.Reconciler.Interval.Std() != 5*time.Minute {
		t.Errorf("Interval: got %v", cfg.Reconciler.Interval)
	}
	if cfg.OpTimeout.Std() != 30*time.Second {
		t.Errorf("OpTimeout: got %v", cfg.OpTimeout)
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("want error when base_url is missing")
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	t.Setenv("SPACES_BASE_URL", "http://spaces.example.com")
	if _, err := Load("/nonexistent/config.yaml"); err != nil {
		t.Fatalf("Load with absent file: %v", err)
	}
}
