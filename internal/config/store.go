package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"imagemeta/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path   string
	logger *slog.Logger
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string, logger *slog.Logger) *JSONStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONStore{path: path, logger: logger}
}

// Path returns the settings file location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads settings from disk. A missing or unreadable file yields defaults
// so a damaged settings file never blocks startup.
func (s *JSONStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("settings.load.failed", "path", s.path, "error", err)
		}
		return DefaultSettings(), nil
	}

	cfg := DefaultSettings()
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.logger.Warn("settings.load.corrupt", "path", s.path, "error", err)
		return DefaultSettings(), nil
	}

	return NormalizeSettings(cfg), nil
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(NormalizeSettings(cfg), "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}

// NormalizeSettings trims values and restores the default theme when empty.
func NormalizeSettings(cfg domain.Settings) domain.Settings {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Theme = strings.TrimSpace(cfg.Theme)
	if cfg.Theme == "" {
		cfg.Theme = DefaultTheme
	}
	return cfg
}

// ResolveAPIKey returns the stored key, falling back to the environment.
func ResolveAPIKey(cfg domain.Settings) string {
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv(APIKeyEnv))
}
