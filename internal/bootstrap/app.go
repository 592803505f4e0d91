package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"imagemeta/internal/batch"
	"imagemeta/internal/config"
	"imagemeta/internal/diagnostics"
	"imagemeta/internal/domain"
	"imagemeta/internal/embed"
	"imagemeta/internal/generator"
	"imagemeta/internal/generator/backend"
	"imagemeta/internal/history"
	"imagemeta/internal/jobs"
	"imagemeta/internal/logging"
	"imagemeta/internal/registry"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ErrInstanceRunning is returned by Run when another desktop instance holds the lock.
var ErrInstanceRunning = errors.New("another instance is already running")

const shutdownTimeout = 5 * time.Second

// modelOpener builds the generator model for a backend config and credential.
type modelOpener func(ctx context.Context, cfg config.Generator, apiKey string) (generator.Model, io.Closer, error)

// App wires configuration, the batch scheduler, file tools, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Config      *config.Config
	Registry    *registry.Registry
	Scheduler   *batch.Scheduler
	Embedder    *embed.Embedder
	Diagnostics domain.DiagnosticReport

	configPath string
	configDir  string
	lockPath   string
	stats      *config.StatsStore
	history    *history.Store
	checker    *diagnostics.Checker
	logger     *slog.Logger
	assets     fs.FS
	openModel  modelOpener

	mu          sync.Mutex
	modelCloser io.Closer
	runtimeCtx  context.Context
}

// Deps are the collaborators an App is assembled from.
type Deps struct {
	Config     *config.Config
	ConfigPath string
	ConfigDir  string
	LockPath   string
	Store      config.Store
	Stats      *config.StatsStore
	History    *history.Store
	Logger     *slog.Logger
	Checker    *diagnostics.Checker
	OpenModel  modelOpener
	Assets     fs.FS
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	cfg, cfgPath, _, err := config.Load(config.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			logger.Warn("history.open.failed", "path", cfg.History.Path, "error", err)
			store = nil
		}
	}

	return NewFromDeps(Deps{
		Config:     cfg,
		ConfigPath: cfgPath,
		ConfigDir:  config.Dir(),
		LockPath:   config.LockPath(),
		Store:      config.NewJSONStore(config.SettingsPath(), logger),
		Stats:      config.NewStatsStore(config.StatsPath()),
		History:    store,
		Logger:     logger,
		Assets:     assets,
	})
}

// NewFromDeps assembles an App from explicit collaborators.
func NewFromDeps(d Deps) (*App, error) {
	if d.Config == nil {
		defaults := config.Default()
		d.Config = &defaults
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Checker == nil {
		d.Checker = diagnostics.NewChecker()
	}
	if d.OpenModel == nil {
		d.OpenModel = backend.Open
	}
	if d.Store == nil {
		return nil, errors.New("settings store is required")
	}

	settings, err := d.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	a := &App{
		Settings:   settings,
		Store:      d.Store,
		Config:     d.Config,
		configPath: d.ConfigPath,
		configDir:  d.ConfigDir,
		lockPath:   d.LockPath,
		stats:      d.Stats,
		history:    d.History,
		checker:    d.Checker,
		logger:     d.Logger,
		assets:     d.Assets,
		openModel:  d.OpenModel,
	}

	a.Registry = registry.New(registry.WithLogger(d.Logger))
	a.Embedder = embed.New(embed.WithLogger(d.Logger))

	opts := []batch.Option{
		batch.WithEventBus(jobs.NewEventBus(d.Config.Batch.EventBuffer)),
		batch.WithLogger(d.Logger),
		batch.WithLimits(d.Config.Generator.Limits),
		batch.WithPollInterval(d.Config.Batch.PollInterval()),
		batch.WithModelName(d.Config.Generator.Model),
		batch.WithCredentialCheck(a.hasCredential),
	}
	if d.Config.Batch.EmbedOnComplete {
		opts = append(opts, batch.WithEmbedder(a.Embedder))
	}
	if d.Stats != nil {
		opts = append(opts, batch.WithStats(d.Stats))
	}
	if d.History != nil {
		opts = append(opts, batch.WithResultSink(d.History))
	}
	a.Scheduler = batch.New(a.Registry, nil, opts...)
	a.Scheduler.Events().Subscribe(a.emitEvent)

	if err := a.rebuildGenerator(context.Background(), settings); err != nil {
		d.Logger.Warn("generator.init.failed", "error", err)
	}
	a.Diagnostics = a.runChecks(settings)
	return a, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	lock, err := a.acquireLock()
	if err != nil {
		return err
	}
	if lock != nil {
		defer func() { _ = lock.Unlock() }()
	}

	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Image Metadata",
		Width:       1280,
		Height:      820,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.Shutdown()
		},
		Bind: []interface{}{a},
	})
}

// acquireLock takes the single-instance lock, when a lock path is configured.
func (a *App) acquireLock() (*flock.Flock, error) {
	if a.lockPath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(a.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return nil, ErrInstanceRunning
	}
	return lock, nil
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown stops the worker and releases the model and history handles.
func (a *App) Shutdown() {
	if !a.Scheduler.Shutdown(shutdownTimeout) {
		a.logger.Warn("batch.shutdown.timeout", "timeout", shutdownTimeout.String())
	}

	a.mu.Lock()
	closer := a.modelCloser
	a.modelCloser = nil
	a.runtimeCtx = nil
	a.mu.Unlock()

	if closer != nil {
		if err := closer.Close(); err != nil {
			a.logger.Warn("generator.close.failed", "error", err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("history.close.failed", "error", err)
		}
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns startup checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	report := a.runChecks(settings)
	a.mu.Lock()
	a.Settings = settings
	a.Diagnostics = report
	a.mu.Unlock()
	return report, nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, rebuilds the generator, then
// refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.NormalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	a.mu.Unlock()

	if err := a.rebuildGenerator(context.Background(), normalized); err != nil {
		return normalized, err
	}

	report := a.runChecks(normalized)
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return normalized, nil
}

// ValidateAPIKey makes one text-only call with key against the configured model.
func (a *App) ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	cfg := a.generatorConfig()
	if !backend.HasCredential(cfg, key) {
		return batch.ErrNoCredential
	}

	ctx := context.Background()
	model, closer, err := a.openModel(ctx, cfg, key)
	if err != nil {
		return fmt.Errorf("open generator: %w", err)
	}
	defer func() { _ = closer.Close() }()

	adapter := generator.NewAdapter(model,
		generator.WithTimeout(30*time.Second),
		generator.WithLogger(a.logger),
	)
	return adapter.ValidateKey(ctx)
}

// GetModels lists selectable models with the active one flagged.
func (a *App) GetModels() []domain.ModelOption {
	return generator.Catalog(a.generatorConfig().Model)
}

// SelectModel switches the active model, persists config.toml, and rebuilds the generator.
func (a *App) SelectModel(id string) ([]domain.ModelOption, error) {
	option, ok := generator.FindModel(strings.TrimSpace(id))
	if !ok {
		return nil, fmt.Errorf("unknown model %q", id)
	}
	if a.Registry.Busy() {
		return nil, jobs.ErrAlreadyRunning
	}

	a.mu.Lock()
	updated := *a.Config
	updated.Generator.Model = option.ID
	updated.Generator.Backend = option.Backend
	configPath := a.configPath
	a.mu.Unlock()

	if configPath != "" {
		if err := config.Save(configPath, updated); err != nil {
			return nil, fmt.Errorf("save config: %w", err)
		}
	}

	a.mu.Lock()
	a.Config = &updated
	settings := a.Settings
	a.mu.Unlock()

	if err := a.rebuildGenerator(context.Background(), settings); err != nil {
		return nil, err
	}
	a.logger.Info("generator.model.selected", "model", option.ID, "backend", option.Backend)
	return generator.Catalog(option.ID), nil
}

// GetUsageStats returns the persisted usage counters.
func (a *App) GetUsageStats() domain.UsageStats {
	if a.stats == nil {
		return domain.UsageStats{}
	}
	return a.stats.Load()
}

// GetHistory returns the most recent generation history entries.
func (a *App) GetHistory(limit int) ([]history.Entry, error) {
	if a.history == nil {
		return []history.Entry{}, nil
	}
	return a.history.Recent(context.Background(), limit)
}

// OpenContainingFolder opens the folder holding path in the file manager.
func (a *App) OpenContainingFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		return fmt.Errorf("path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// rebuildGenerator opens a model for the current config and hands it to the
// scheduler. Without a credential the scheduler is left with no generator.
func (a *App) rebuildGenerator(ctx context.Context, settings domain.Settings) error {
	cfg := a.generatorConfig()
	apiKey := config.ResolveAPIKey(settings)

	if !backend.HasCredential(cfg, apiKey) {
		if err := a.Scheduler.SetGenerator(nil); err != nil {
			return err
		}
		a.swapModelCloser(nil)
		return nil
	}

	model, closer, err := a.openModel(ctx, cfg, apiKey)
	if err != nil {
		return fmt.Errorf("open generator: %w", err)
	}
	adapter := generator.NewAdapter(model,
		generator.WithTimeout(cfg.Timeout()),
		generator.WithLogger(a.logger),
	)
	if err := a.Scheduler.SetGenerator(adapter); err != nil {
		_ = closer.Close()
		return err
	}
	a.swapModelCloser(closer)
	return nil
}

func (a *App) swapModelCloser(closer io.Closer) {
	a.mu.Lock()
	previous := a.modelCloser
	a.modelCloser = closer
	a.mu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}
}

// hasCredential reports whether the current settings can authenticate.
func (a *App) hasCredential() bool {
	a.mu.Lock()
	settings := a.Settings
	a.mu.Unlock()
	return backend.HasCredential(a.generatorConfig(), config.ResolveAPIKey(settings))
}

func (a *App) generatorConfig() config.Generator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Config.Generator
}

func (a *App) runChecks(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	cfg := a.Config
	a.mu.Unlock()
	return a.checker.Run(diagnostics.Inputs{
		Settings:  settings,
		Config:    cfg,
		ConfigDir: a.configDir,
	})
}

// emitEvent forwards scheduler events to the UI runtime when it is attached.
func (a *App) emitEvent(event jobs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "batch:event", event)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
