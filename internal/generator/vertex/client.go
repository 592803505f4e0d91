// Package vertex calls Gemini models through Vertex AI.
package vertex

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"imagemeta/internal/generator"
)

// Config selects the Google Cloud project, region, and model.
type Config struct {
	Project         string
	Location        string
	Model           string
	CredentialsFile string
}

// Client implements generator.Model on top of the Vertex AI SDK.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewClient dials Vertex AI. Credentials come from CredentialsFile or the
// environment's application default credentials.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Project) == "" {
		return nil, fmt.Errorf("vertex: project required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := genai.NewClient(ctx, cfg.Project, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("vertex: new client: %w", err)
	}
	return &Client{client: client, model: client.GenerativeModel(cfg.Model)}, nil
}

// Generate implements generator.Model.
func (c *Client) Generate(ctx context.Context, req generator.Request) (string, error) {
	parts := make([]genai.Part, 0, 2)
	if len(req.Image) > 0 {
		parts = append(parts, genai.ImageData(imageFormat(req.MIMEType), req.Image))
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", generator.ErrEmptyResponse
	}
	return text, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(strings.ToLower(mimeType), "image/")
	if format == "" {
		return "jpeg"
	}
	return format
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	return sb.String()
}
