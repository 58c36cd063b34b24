package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/taskroute/engine/internal/domain"
)

// validYAML returns a minimal valid configuration.
func validYAML() string {
	return `
db_path: /tmp/engine.db
catalog_path: /tmp/workers.yaml
allowed_tools: [read_file, search]
providers:
  default:
    command: echo
    args: ["hello"]
policy:
  minor_penalty: 5
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/engine.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.CatalogPath != "/tmp/workers.yaml" {
		t.Errorf("CatalogPath = %q", cfg.CatalogPath)
	}
	if len(cfg.AllowedTools) != 2 {
		t.Errorf("AllowedTools = %v", cfg.AllowedTools)
	}
	if p, ok := cfg.Providers["default"]; !ok || p.Command != "echo" {
		t.Errorf("Providers = %+v", cfg.Providers)
	}
	if cfg.Policy.MinorPenalty != 5 {
		t.Errorf("Policy.MinorPenalty = %d", cfg.Policy.MinorPenalty)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "db_path: [unclosed"))
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestLoad_ValidationCollectsAllProblems(t *testing.T) {
	// Missing db_path, catalog_path, and providers at once: the error
	// reports all three.
	_, err := Load(writeConfig(t, "listen_addr: ':9999'"))
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("err = %v, want ErrConfigInvalid", err)
	}
	msg := err.Error()
	for _, want := range []string{"db_path", "catalog_path", "provider"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9820" {
		t.Errorf("ListenAddr = %q, want :9820", cfg.ListenAddr)
	}
	if cfg.MaxParallelWorkers != 4 {
		t.Errorf("MaxParallelWorkers = %d, want 4", cfg.MaxParallelWorkers)
	}
	if cfg.RateLimitPerMinute != 60 {
		t.Errorf("RateLimitPerMinute = %d, want 60", cfg.RateLimitPerMinute)
	}
}

func TestLoad_NegativeLimits(t *testing.T) {
	_, err := Load(writeConfig(t, validYAML()+"\nmax_parallel_workers: -1\n"))
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("err = %v, want ErrConfigInvalid", err)
	}
}
