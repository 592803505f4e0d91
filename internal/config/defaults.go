package config

import (
	"os"
	"path/filepath"

	"imagemeta/internal/domain"
)

const (
	// DefaultTheme is the UI appearance used on first launch.
	DefaultTheme = "Dark"
	// APIKeyEnv overrides an empty stored credential.
	APIKeyEnv = "IMAGEMETA_API_KEY"

	settingsFileName = "imagemeta_config.json"
	statsFileName    = "imagemeta_stats.json"
	configFileName   = "config.toml"
	historyFileName  = "history.db"
	lockFileName     = "imagemeta.lock"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		APIKey: "",
		Theme:  DefaultTheme,
	}
}

// Dir returns the per-user directory holding settings, stats, and history.
func Dir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".imagemeta")
}

// SettingsPath returns the default settings file location.
func SettingsPath() string { return filepath.Join(Dir(), settingsFileName) }

// StatsPath returns the default usage statistics file location.
func StatsPath() string { return filepath.Join(Dir(), statsFileName) }

// ConfigPath returns the default runtime config file location.
func ConfigPath() string { return filepath.Join(Dir(), configFileName) }

// LockPath returns the desktop single-instance lock file location.
func LockPath() string { return filepath.Join(Dir(), lockFileName) }
