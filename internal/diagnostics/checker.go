package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imagemeta/internal/config"
	"imagemeta/internal/domain"
	"imagemeta/internal/generator"
	"imagemeta/internal/generator/backend"
)

// Inputs is everything the startup checks look at.
type Inputs struct {
	Settings  domain.Settings
	Config    *config.Config
	ConfigDir string
}

// Checker validates credentials, model selection and writable paths.
type Checker struct {
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	getenv     func(string) string
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		getenv:     os.Getenv,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(in Inputs) domain.DiagnosticReport {
	cfg := in.Config
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}

	items := []domain.DiagnosticItem{
		c.checkCredential(cfg.Generator, in.Settings),
		c.checkModel(cfg.Generator),
		c.checkWritableDir("config_dir", "Settings directory", in.ConfigDir),
	}
	if cfg.History.Enabled {
		items = append(items, c.checkHistoryPath(cfg.History.Path))
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkCredential verifies the configured backend can authenticate.
func (c *Checker) checkCredential(gen config.Generator, settings domain.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "credential", Name: "API credential"}

	if gen.Backend == config.BackendVertex {
		if !backend.HasCredential(gen, "") {
			item.Status = domain.DiagnosticStatusFail
			item.Message = "Vertex AI project is not configured."
			item.Hint = "Set generator.vertex.project in config.toml."
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Vertex AI project %s in %s", gen.Vertex.Project, gen.Vertex.Location)
		return item
	}

	key := strings.TrimSpace(settings.APIKey)
	source := "settings"
	if key == "" {
		key = strings.TrimSpace(c.getenv(config.APIKeyEnv))
		source = config.APIKeyEnv
	}
	if !backend.HasCredential(gen, key) {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "No API key configured."
		item.Hint = fmt.Sprintf("Enter a Gemini API key in settings or export %s.", config.APIKeyEnv)
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("API key loaded from %s", source)
	return item
}

// checkModel warns when the configured model is not one the app knows about.
func (c *Checker) checkModel(gen config.Generator) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "model", Name: "Model"}
	if option, ok := generator.FindModel(gen.Model); ok {
		item.Status = domain.DiagnosticStatusPass
		item.Message = option.Name
		return item
	}
	item.Status = domain.DiagnosticStatusWarn
	item.Message = fmt.Sprintf("Model %q is not in the catalog.", gen.Model)
	item.Hint = "Requests are sent as configured; pick a listed model if generation fails."
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Directory is not set."
		item.Hint = "Make sure HOME is set so settings can be stored."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Settings and usage statistics will not be saved until this is fixed."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkHistoryPath reports whether the history database can be created.
// History is optional, so problems are warnings.
func (c *Checker) checkHistoryPath(path string) domain.DiagnosticItem {
	item := c.checkWritableDir("history", "History database", filepath.Dir(path))
	if item.Status == domain.DiagnosticStatusFail {
		item.Status = domain.DiagnosticStatusWarn
		item.Hint = "Generation history will not be recorded."
		return item
	}
	if _, err := c.stat(path); IsNotExist(err) {
		item.Message = fmt.Sprintf("Will be created at %s", path)
	} else if err == nil {
		item.Message = fmt.Sprintf("Using %s", path)
	}
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	getenv func(string) string,
) *Checker {
	return &Checker{
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		getenv:     getenv,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
