package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"imagemeta/internal/config"
	"imagemeta/internal/generator"
	"imagemeta/internal/generator/backend"
	"imagemeta/internal/history"
	"imagemeta/internal/logging"
)

// openModel is replaced in tests.
var openModel = backend.Open

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger writes to the command's stderr. Without --verbose only warnings are shown.
func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	opts := logging.Options{Level: "warn", Format: "console", Writer: cmd.ErrOrStderr()}
	if cfg, err := c.ensureConfig(); err == nil {
		opts.Dir = cfg.Logging.Dir
		if c.verbose != nil && *c.verbose {
			opts.Level = cfg.Logging.Level
		}
	}
	logger, err := logging.New(opts)
	if err != nil {
		return logging.Discard()
	}
	return logger
}

// openAdapter builds a generator adapter from the config and the stored or
// environment API key.
func (c *commandContext) openAdapter(ctx context.Context, logger *slog.Logger) (*generator.Adapter, io.Closer, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	settings, err := config.NewJSONStore(config.SettingsPath(), logger).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	apiKey := config.ResolveAPIKey(settings)
	if !backend.HasCredential(cfg.Generator, apiKey) {
		return nil, nil, fmt.Errorf("no API credential configured; set %s or save a key in the desktop app", config.APIKeyEnv)
	}

	model, closer, err := openModel(ctx, cfg.Generator, apiKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open generator: %w", err)
	}
	adapter := generator.NewAdapter(model,
		generator.WithTimeout(cfg.Generator.Timeout()),
		generator.WithLogger(logger),
	)
	return adapter, closer, nil
}

// withHistory opens the history database for the duration of fn. fn receives
// nil when history is disabled.
func (c *commandContext) withHistory(fn func(*history.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fn(nil)
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
