package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestLoadMissingConfigReturnsDefaults checks first-run behavior for config.toml.
func TestLoadMissingConfigReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if exists {
		t.Fatal("expected exists=false")
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Generator.TimeoutSeconds != 120 {
		t.Fatalf("timeout = %d, want 120", cfg.Generator.TimeoutSeconds)
	}
	if cfg.Generator.Limits.KeywordCount != 20 {
		t.Fatalf("keyword limit = %d, want 20", cfg.Generator.Limits.KeywordCount)
	}
	if cfg.Batch.PollIntervalMillis != 100 {
		t.Fatalf("poll interval = %d, want 100", cfg.Batch.PollIntervalMillis)
	}
}

// TestLoadParsesOverrides checks TOML values override defaults and gaps are filled.
func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[generator]
model = "gemini-2.0-flash"
timeout_seconds = 90

[generator.limits]
title_words = 6

[batch]
embed_on_complete = true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Generator.Model != "gemini-2.0-flash" || cfg.Generator.TimeoutSeconds != 90 {
		t.Fatalf("generator = %+v", cfg.Generator)
	}
	if cfg.Generator.Limits.TitleWords != 6 || cfg.Generator.Limits.DescriptionWords != 100 {
		t.Fatalf("limits = %+v", cfg.Generator.Limits)
	}
	if !cfg.Batch.EmbedOnComplete {
		t.Fatal("expected embed_on_complete")
	}
}

// TestLoadRejectsVertexWithoutProject checks backend validation.
func TestLoadRejectsVertexWithoutProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[generator]\nbackend = \"vertex\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "project") {
		t.Fatalf("Load() error = %v, want project error", err)
	}
}

// TestSaveThenLoad checks config files written by Save parse back.
func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Logging.Format = "json"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Logging.Format != "json" {
		t.Fatalf("format = %q, want json", got.Logging.Format)
	}
}
