package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"imagemeta/internal/domain"
)

// Backends accepted by generator.backend.
const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

// Config holds runtime settings read from config.toml.
type Config struct {
	Generator Generator `toml:"generator"`
	Batch     Batch     `toml:"batch"`
	Logging   Logging   `toml:"logging"`
	History   History   `toml:"history"`
}

// Generator configures the vision model backend.
type Generator struct {
	Backend        string        `toml:"backend"`
	Model          string        `toml:"model"`
	BaseURL        string        `toml:"base_url"`
	TimeoutSeconds int           `toml:"timeout_seconds"`
	Limits         domain.Limits `toml:"limits"`
	Vertex         Vertex        `toml:"vertex"`
}

// Vertex configures the Vertex AI backend.
type Vertex struct {
	Project         string `toml:"project"`
	Location        string `toml:"location"`
	CredentialsFile string `toml:"credentials_file"`
}

// Batch configures the background worker.
type Batch struct {
	PollIntervalMillis int  `toml:"poll_interval_ms"`
	EmbedOnComplete    bool `toml:"embed_on_complete"`
	EventBuffer        int  `toml:"event_buffer"`
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
}

// History configures the sqlite generation history.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the runtime configuration used when no file exists.
func Default() Config {
	return Config{
		Generator: Generator{
			Backend:        BackendGemini,
			Model:          "gemini-1.5-flash-latest",
			BaseURL:        "https://generativelanguage.googleapis.com",
			TimeoutSeconds: 120,
			Limits:         domain.DefaultLimits(),
			Vertex: Vertex{
				Location: "us-central1",
			},
		},
		Batch: Batch{
			PollIntervalMillis: 100,
			EventBuffer:        1000,
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
		History: History{
			Enabled: true,
			Path:    filepath.Join(Dir(), historyFileName),
		},
	}
}

// Load parses path (or the default location when empty). A missing file yields defaults.
// It returns the resolved path and whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = ConfigPath()
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, "", false, err
	}

	exists := true
	file, err := os.Open(resolved)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		exists = false
	} else {
		defer file.Close()
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// Save writes cfg as TOML to path.
func Save(path string, cfg Config) error {
	resolved, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(resolved, data, 0o644)
}

func (c *Config) normalize() error {
	defaults := Default()

	c.Generator.Backend = strings.ToLower(strings.TrimSpace(c.Generator.Backend))
	if c.Generator.Backend == "" {
		c.Generator.Backend = defaults.Generator.Backend
	}
	c.Generator.Model = strings.TrimSpace(c.Generator.Model)
	if c.Generator.Model == "" {
		c.Generator.Model = defaults.Generator.Model
	}
	c.Generator.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generator.BaseURL), "/")
	if c.Generator.BaseURL == "" {
		c.Generator.BaseURL = defaults.Generator.BaseURL
	}
	if c.Generator.TimeoutSeconds <= 0 {
		c.Generator.TimeoutSeconds = defaults.Generator.TimeoutSeconds
	}
	if c.Generator.Limits.TitleWords <= 0 {
		c.Generator.Limits.TitleWords = defaults.Generator.Limits.TitleWords
	}
	if c.Generator.Limits.KeywordCount <= 0 {
		c.Generator.Limits.KeywordCount = defaults.Generator.Limits.KeywordCount
	}
	if c.Generator.Limits.DescriptionWords <= 0 {
		c.Generator.Limits.DescriptionWords = defaults.Generator.Limits.DescriptionWords
	}
	c.Generator.Vertex.Project = strings.TrimSpace(c.Generator.Vertex.Project)
	c.Generator.Vertex.Location = strings.TrimSpace(c.Generator.Vertex.Location)
	if c.Generator.Vertex.Location == "" {
		c.Generator.Vertex.Location = defaults.Generator.Vertex.Location
	}
	if c.Generator.Vertex.CredentialsFile != "" {
		expanded, err := expandPath(c.Generator.Vertex.CredentialsFile)
		if err != nil {
			return err
		}
		c.Generator.Vertex.CredentialsFile = expanded
	}

	if c.Batch.PollIntervalMillis <= 0 {
		c.Batch.PollIntervalMillis = defaults.Batch.PollIntervalMillis
	}
	if c.Batch.EventBuffer <= 0 {
		c.Batch.EventBuffer = defaults.Batch.EventBuffer
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if c.Logging.Dir != "" {
		expanded, err := expandPath(c.Logging.Dir)
		if err != nil {
			return err
		}
		c.Logging.Dir = expanded
	}

	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaults.History.Path
	}
	expanded, err := expandPath(c.History.Path)
	if err != nil {
		return err
	}
	c.History.Path = expanded
	return nil
}

// Timeout returns the per-request generator timeout.
func (g Generator) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// PollInterval returns how often a paused worker re-checks its flags.
func (b Batch) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalMillis) * time.Millisecond
}

// Validate rejects values the rest of the program cannot work with.
func (c *Config) Validate() error {
	switch c.Generator.Backend {
	case BackendGemini:
	case BackendVertex:
		if c.Generator.Vertex.Project == "" {
			return errors.New("generator.vertex.project is required for the vertex backend")
		}
	default:
		return fmt.Errorf("generator.backend: unsupported value %q", c.Generator.Backend)
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}
