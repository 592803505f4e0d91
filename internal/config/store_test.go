package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imagemeta/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.Theme != "Dark" {
		t.Fatalf("theme = %q, want Dark", cfg.Theme)
	}
	if cfg.APIKey != "" {
		t.Fatalf("api key = %q, want empty", cfg.APIKey)
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "imagemeta_config.json")
	store := NewJSONStore(path, nil)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "imagemeta_config.json")
	store := NewJSONStore(path, nil)
	want := domain.Settings{APIKey: "key-123", Theme: "Light"}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, key := range []string{`"api_key"`, `"theme"`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("saved file missing %s: %s", key, raw)
		}
	}
}

// TestJSONStoreLoadInvalidJSONFallsBack checks a corrupt file never blocks startup.
func TestJSONStoreLoadInvalidJSONFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "imagemeta_config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path, nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestJSONStoreLoadFillsMissingTheme checks partial documents keep the default theme.
func TestJSONStoreLoadFillsMissingTheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagemeta_config.json")
	if err := os.WriteFile(path, []byte(`{"api_key":" abc "}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, _ := NewJSONStore(path, nil).Load()
	if got.APIKey != "abc" || got.Theme != "Dark" {
		t.Fatalf("settings = %+v", got)
	}
}

// TestResolveAPIKeyUsesEnvironment checks the env fallback for an empty key.
func TestResolveAPIKeyUsesEnvironment(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")
	if got := ResolveAPIKey(domain.Settings{}); got != "from-env" {
		t.Fatalf("key = %q, want from-env", got)
	}
	if got := ResolveAPIKey(domain.Settings{APIKey: "stored"}); got != "stored" {
		t.Fatalf("key = %q, want stored", got)
	}
}

// TestStatsStoreRecordAccumulates checks counters persist across stores.
func TestStatsStoreRecordAccumulates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagemeta_stats.json")
	now := time.Unix(1_700_000_000, 0)
	store := NewStatsStore(path)
	store.now = func() time.Time { return now }

	if _, err := store.Record(3, 2*time.Second); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	got, err := store.Record(2, time.Second)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if got.AllTimeProcessed != 5 || got.Last24h.FilesProcessed != 5 {
		t.Fatalf("stats = %+v, want 5 processed", got)
	}
	if got.TotalProcessingTime != 3 {
		t.Fatalf("total time = %v, want 3", got.TotalProcessingTime)
	}

	reloaded := NewStatsStore(path)
	reloaded.now = store.now
	if reloaded.Load().AllTimeProcessed != 5 {
		t.Fatalf("reloaded stats = %+v", reloaded.Load())
	}
}

// TestStatsStoreRollsWindowAfterADay checks the 24h counter resets but all-time does not.
func TestStatsStoreRollsWindowAfterADay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagemeta_stats.json")
	now := time.Unix(1_700_000_000, 0)
	store := NewStatsStore(path)
	store.now = func() time.Time { return now }

	if _, err := store.Record(4, 0); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	now = now.Add(24*time.Hour + time.Second)
	got := store.Load()
	if got.Last24h.FilesProcessed != 0 {
		t.Fatalf("window = %+v, want reset", got.Last24h)
	}
	if got.AllTimeProcessed != 4 {
		t.Fatalf("all time = %d, want 4", got.AllTimeProcessed)
	}
}

// TestStatsStoreLoadCorruptStartsFromZero checks a damaged stats file is ignored.
func TestStatsStoreLoadCorruptStartsFromZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagemeta_stats.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := NewStatsStore(path).Load()
	if got.AllTimeProcessed != 0 || got.Last24h.Timestamp == 0 {
		t.Fatalf("stats = %+v", got)
	}
}
