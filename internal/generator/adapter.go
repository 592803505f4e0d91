// Package generator turns one image into title, keywords, and description text
// through a vision model, and classifies every failure.
package generator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"imagemeta/internal/domain"
	"imagemeta/internal/imagefmt"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 120 * time.Second

// Request is what a backend receives for one call.
type Request struct {
	Prompt   string
	Image    []byte
	MIMEType string
}

// Model is the capability a vision backend provides. Implementations return raw
// errors; the Adapter classifies them.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Adapter wraps one model call with prompt construction, a timeout, and parsing.
type Adapter struct {
	model    Model
	timeout  time.Duration
	readFile func(string) ([]byte, error)
	logger   *slog.Logger
}

// Option customizes the adapter.
type Option func(*Adapter)

// WithTimeout overrides the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithReadFile overrides how image bytes are loaded.
func WithReadFile(readFile func(string) ([]byte, error)) Option {
	return func(a *Adapter) {
		if readFile != nil {
			a.readFile = readFile
		}
	}
}

// NewAdapter constructs an adapter around model.
func NewAdapter(model Model, opts ...Option) *Adapter {
	a := &Adapter{
		model:    model,
		timeout:  DefaultTimeout,
		readFile: os.ReadFile,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate reads the image at path and asks the model for metadata. It never
// modifies the file. Errors are always *Error.
func (a *Adapter) Generate(ctx context.Context, path string, limits domain.Limits) (Metadata, error) {
	data, err := a.readFile(path)
	if err != nil {
		return Metadata{}, newError(KindInvalidImage, "Invalid image file: "+err.Error(), err)
	}
	return a.GenerateBytes(ctx, data, limits)
}

// GenerateBytes asks the model for metadata describing data.
func (a *Adapter) GenerateBytes(ctx context.Context, data []byte, limits domain.Limits) (Metadata, error) {
	format, err := imagefmt.Probe(data)
	if err != nil {
		return Metadata{}, newError(KindInvalidImage, "Invalid image file", err)
	}
	if a.model == nil {
		return Metadata{}, newError(KindAuth, "no model configured", errors.New("generator: nil model"))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	started := time.Now()
	text, err := a.model.Generate(callCtx, Request{
		Prompt:   BuildPrompt(limits),
		Image:    data,
		MIMEType: format.MIMEType(),
	})
	if err != nil {
		classified := Classify(err)
		a.logger.Warn("generator.request.failed",
			"kind", classified.Kind,
			"reason", classified.Reason,
			"elapsed_ms", time.Since(started).Milliseconds(),
		)
		return Metadata{}, classified
	}

	meta, err := ParseResponse(text)
	if err != nil {
		a.logger.Warn("generator.response.invalid", "error", err, "snippet", Truncate(text, 200))
		return Metadata{}, err
	}
	a.logger.Debug("generator.request.ok",
		"keywords", len(meta.Keywords),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return meta, nil
}

// ValidateKey issues a text-only call to confirm the credential works.
func (a *Adapter) ValidateKey(ctx context.Context) error {
	if a.model == nil {
		return newError(KindAuth, "no model configured", errors.New("generator: nil model"))
	}
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if _, err := a.model.Generate(callCtx, Request{Prompt: "Test prompt"}); err != nil {
		return Classify(err)
	}
	return nil
}
