package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"imagemeta/internal/domain"
)

// Metadata is a successfully parsed model response.
type Metadata struct {
	Title       string   `json:"title"`
	Keywords    []string `json:"keywords"`
	Description string   `json:"description"`
	Raw         string   `json:"-"`
}

// KeywordString renders keywords in their stored single-string form.
func (m Metadata) KeywordString() string {
	return domain.JoinKeywords(m.Keywords)
}

const fence = "```"

// StripFence removes one leading code fence (with an optional "json" tag) and
// one trailing fence from model output.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, fence) {
		text = text[len(fence):]
		if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
			text = text[4:]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, fence)
	return strings.TrimSpace(text)
}

const responseSchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "description": {"type": "string"},
    "keywords": {
      "oneOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}}
      ]
    }
  }
}`

var compiledResponseSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", strings.NewReader(responseSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("response.json")
})

type rawResponse struct {
	Title       string          `json:"title"`
	Keywords    json.RawMessage `json:"keywords"`
	Description string          `json:"description"`
}

// ParseResponse unfences and decodes model output. Missing keys become empty
// strings; anything that is not a matching JSON object is a bad response.
func ParseResponse(text string) (Metadata, error) {
	body := StripFence(text)
	if body == "" {
		return Metadata{}, newError(KindBadResponseFormat, "empty response", ErrEmptyResponse)
	}

	var generic any
	decoder := json.NewDecoder(bytes.NewReader([]byte(body)))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return Metadata{}, newError(KindBadResponseFormat, "Invalid response format", err)
	}
	if decoder.More() {
		return Metadata{}, newError(KindBadResponseFormat, "Invalid response format: trailing content", nil)
	}

	schema, err := compiledResponseSchema()
	if err != nil {
		return Metadata{}, fmt.Errorf("compile response schema: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return Metadata{}, newError(KindBadResponseFormat, "Invalid response format: unexpected shape", err)
	}

	var raw rawResponse
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Metadata{}, newError(KindBadResponseFormat, "Invalid response format", err)
	}

	keywords, err := decodeKeywords(raw.Keywords)
	if err != nil {
		return Metadata{}, newError(KindBadResponseFormat, "Invalid response format: keywords", err)
	}

	return Metadata{
		Title:       strings.TrimSpace(raw.Title),
		Keywords:    keywords,
		Description: strings.TrimSpace(raw.Description),
		Raw:         text,
	}, nil
}

func decodeKeywords(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return domain.SplitKeywords(joined), nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return domain.SplitKeywords(domain.JoinKeywords(list)), nil
}
