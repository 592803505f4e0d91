package generator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"imagemeta/internal/domain"
	"imagemeta/internal/logging"
)

// pngBytes returns a tiny valid PNG image.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// newTestAdapter builds an adapter that reads fixed bytes and answers with fn.
func newTestAdapter(t *testing.T, data []byte, fn ModelFunc) *Adapter {
	t.Helper()
	return NewAdapter(fn,
		WithLogger(logging.Discard()),
		WithReadFile(func(string) ([]byte, error) { return data, nil }),
	)
}

// TestGenerateStripsFenceBeforeParsing checks fenced output parses to the unfenced values.
func TestGenerateStripsFenceBeforeParsing(t *testing.T) {
	body := `{"title": "Red Door", "keywords": "door, red, wood", "description": "A red door."}`
	adapter := newTestAdapter(t, pngBytes(t), func(ctx context.Context, req Request) (string, error) {
		return "```json\n" + body + "\n```", nil
	})

	got, err := adapter.Generate(context.Background(), "/x.png", domain.DefaultLimits())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want, err := ParseResponse(body)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if got.Title != want.Title || got.KeywordString() != want.KeywordString() || got.Description != want.Description {
		t.Fatalf("fenced = %+v, plain = %+v", got, want)
	}
	if got.KeywordString() != "door, red, wood" {
		t.Fatalf("keywords = %q", got.KeywordString())
	}
}

// TestGenerateSendsPromptAndImage checks the request carries limits, bytes, and MIME type.
func TestGenerateSendsPromptAndImage(t *testing.T) {
	data := pngBytes(t)
	var got Request
	adapter := newTestAdapter(t, data, func(ctx context.Context, req Request) (string, error) {
		got = req
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the model call")
		}
		return `{"title":"t","keywords":"k","description":"d"}`, nil
	})

	limits := domain.Limits{TitleWords: 7, KeywordCount: 12, DescriptionWords: 55}
	if _, err := adapter.Generate(context.Background(), "/x.png", limits); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got.MIMEType != "image/png" || !bytes.Equal(got.Image, data) {
		t.Fatalf("request image = %s (%d bytes)", got.MIMEType, len(got.Image))
	}
	for _, want := range []string{"at most 7 words", "at most 12 items", "at most 55 words", `"title"`, `"keywords"`, `"description"`} {
		if !strings.Contains(got.Prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got.Prompt)
		}
	}
	if BuildPrompt(limits) != got.Prompt {
		t.Fatal("prompt is not deterministic")
	}
}

// TestGenerateInvalidImage checks undecodable bytes never reach the model.
func TestGenerateInvalidImage(t *testing.T) {
	called := false
	adapter := newTestAdapter(t, []byte("not an image"), func(ctx context.Context, req Request) (string, error) {
		called = true
		return "", nil
	})

	_, err := adapter.Generate(context.Background(), "/x.png", domain.DefaultLimits())
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("error = %v, want ErrInvalidImage", err)
	}
	if called {
		t.Fatal("model called for invalid image")
	}

	missing := NewAdapter(ModelFunc(func(context.Context, Request) (string, error) { return "", nil }), WithLogger(logging.Discard()))
	if _, err := missing.Generate(context.Background(), "/definitely/missing.png", domain.DefaultLimits()); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("missing file error = %v, want ErrInvalidImage", err)
	}
}

// TestGenerateClassifiesBackendErrors checks each raw failure maps to one kind.
func TestGenerateClassifiesBackendErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"http401", &StatusError{StatusCode: http.StatusUnauthorized, Message: "unauthorized"}, ErrAuth},
		{"http403", &StatusError{StatusCode: http.StatusForbidden, Message: "denied"}, ErrAuth},
		{"invalidKey", &StatusError{StatusCode: http.StatusBadRequest, Message: "API key not valid. Please pass a valid API key."}, ErrAuth},
		{"badRequest", &StatusError{StatusCode: http.StatusBadRequest, Message: "image too large"}, ErrTransient},
		{"grpcAuth", status.Error(codes.Unauthenticated, "bad token"), ErrAuth},
		{"grpcUnavailable", status.Error(codes.Unavailable, "try later"), ErrTransient},
		{"deadline", context.DeadlineExceeded, ErrTransient},
		{"empty", ErrEmptyResponse, ErrBadResponseFormat},
		{"other", errors.New("connection reset"), ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adapter := newTestAdapter(t, pngBytes(t), func(ctx context.Context, req Request) (string, error) {
				return "", tc.err
			})
			_, err := adapter.Generate(context.Background(), "/x.png", domain.DefaultLimits())
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
			var classified *Error
			if !errors.As(err, &classified) || len(classified.Reason) == 0 {
				t.Fatalf("error %v is not a classified *Error with reason", err)
			}
		})
	}
}

// TestGenerateTimeout checks a slow model is cut off and reported as transient.
func TestGenerateTimeout(t *testing.T) {
	adapter := NewAdapter(ModelFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}),
		WithTimeout(20*time.Millisecond),
		WithLogger(logging.Discard()),
		WithReadFile(func(string) ([]byte, error) { return pngBytes(t), nil }),
	)

	_, err := adapter.Generate(context.Background(), "/x.png", domain.DefaultLimits())
	if !errors.Is(err, ErrTransient) || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("error = %v, want transient timeout", err)
	}
}

// TestParseResponse checks object decoding, defaults, and rejection of bad shapes.
func TestParseResponse(t *testing.T) {
	got, err := ParseResponse(`{"title":"Only title"}`)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if got.Title != "Only title" || got.Description != "" || len(got.Keywords) != 0 {
		t.Fatalf("metadata = %+v", got)
	}

	got, err = ParseResponse("```\n{\"keywords\": [\"a\", \" b \", \"\"]}\n```")
	if err != nil {
		t.Fatalf("ParseResponse(array) error = %v", err)
	}
	if got.KeywordString() != "a, b" {
		t.Fatalf("keywords = %q", got.KeywordString())
	}

	for _, bad := range []string{
		"Sure! Here is the metadata.",
		`["title"]`,
		`{"title": 5}`,
		`{"title": "x"} trailing`,
		"```json\n```",
	} {
		if _, err := ParseResponse(bad); !errors.Is(err, ErrBadResponseFormat) {
			t.Fatalf("ParseResponse(%q) error = %v, want ErrBadResponseFormat", bad, err)
		}
	}
}

// TestStripFence checks deterministic fence normalization.
func TestStripFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{}\n```": "{}",
		"```JSON{}```":     "{}",
		"```\n{}\n```":     "{}",
		"  {}  ":           "{}",
		"{}```":            "{}",
	}
	for in, want := range cases {
		if got := StripFence(in); got != want {
			t.Fatalf("StripFence(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestClassifyTruncatesReason checks long messages are bounded for display.
func TestClassifyTruncatesReason(t *testing.T) {
	classified := Classify(errors.New(strings.Repeat("x", 500)))
	if n := len([]rune(classified.Reason)); n != MaxReasonLength {
		t.Fatalf("reason length = %d, want %d", n, MaxReasonLength)
	}
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) should be nil")
	}
}

// TestValidateKey checks the credential probe classifies failures.
func TestValidateKey(t *testing.T) {
	ok := NewAdapter(ModelFunc(func(ctx context.Context, req Request) (string, error) {
		if len(req.Image) != 0 {
			t.Error("validation call should be text only")
		}
		return "hello", nil
	}))
	if err := ok.ValidateKey(context.Background()); err != nil {
		t.Fatalf("ValidateKey() error = %v", err)
	}

	rejected := NewAdapter(ModelFunc(func(ctx context.Context, req Request) (string, error) {
		return "", &StatusError{StatusCode: http.StatusForbidden, Message: "nope"}
	}))
	if err := rejected.ValidateKey(context.Background()); !errors.Is(err, ErrAuth) {
		t.Fatalf("ValidateKey() error = %v, want ErrAuth", err)
	}
}

// TestCatalogMarksSelection checks the model picker flags the active model.
func TestCatalogMarksSelection(t *testing.T) {
	selected := 0
	for _, option := range Catalog("gemini-1.5-flash-latest") {
		if option.Selected {
			selected++
		}
	}
	if selected != 1 {
		t.Fatalf("selected = %d, want 1", selected)
	}
	if _, ok := FindModel("missing"); ok {
		t.Fatal("FindModel(missing) should fail")
	}
}
