// Package backend builds the configured generator.Model.
package backend

import (
	"context"
	"fmt"
	"io"
	"strings"

	"imagemeta/internal/config"
	"imagemeta/internal/generator"
	"imagemeta/internal/generator/gemini"
	"imagemeta/internal/generator/vertex"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the model selected by cfg. The closer must be called when done.
func Open(ctx context.Context, cfg config.Generator, apiKey string) (generator.Model, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendGemini, "":
		return gemini.NewClient(gemini.Config{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nopCloser{}, nil
	case config.BackendVertex:
		client, err := vertex.NewClient(ctx, vertex.Config{
			Project:         cfg.Vertex.Project,
			Location:        cfg.Vertex.Location,
			Model:           cfg.Model,
			CredentialsFile: cfg.Vertex.CredentialsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported generator backend %q", cfg.Backend)
	}
}

// HasCredential reports whether cfg can authenticate at all.
func HasCredential(cfg config.Generator, apiKey string) bool {
	if cfg.Backend == config.BackendVertex {
		return strings.TrimSpace(cfg.Vertex.Project) != ""
	}
	return strings.TrimSpace(apiKey) != ""
}
