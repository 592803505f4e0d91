package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindInvalidImage      Kind = "invalid_image"
	KindBadResponseFormat Kind = "bad_response_format"
	KindAuth              Kind = "auth"
	KindTransient         Kind = "transient"
)

// Sentinels matched by errors.Is against a classified *Error.
var (
	ErrInvalidImage      = errors.New("invalid image file")
	ErrBadResponseFormat = errors.New("invalid response format")
	ErrAuth              = errors.New("credential rejected")
	ErrTransient         = errors.New("transient generation failure")
)

// ErrEmptyResponse is returned by backends when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

// MaxReasonLength bounds the human-readable reason shown next to a record.
const MaxReasonLength = 100

// Error is a classified generation failure.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Fatal reports whether the failure should halt the whole batch.
func (e *Error) Fatal() bool {
	return e.Kind == KindAuth
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidImage:
		return ErrInvalidImage
	case KindBadResponseFormat:
		return ErrBadResponseFormat
	case KindAuth:
		return ErrAuth
	default:
		return ErrTransient
	}
}

func newError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: Truncate(strings.TrimSpace(reason), MaxReasonLength), Err: err}
}

// StatusError is returned by HTTP backends for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Classify maps any backend error onto the generation taxonomy. It is the only
// place that inspects raw backend errors.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if isAuthStatus(statusErr) {
			return newError(KindAuth, "API key rejected: "+statusErr.Message, err)
		}
		return newError(KindTransient, statusErr.Error(), err)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return newError(KindAuth, "credential rejected: "+st.Message(), err)
		case codes.DeadlineExceeded:
			return newError(KindTransient, "request timed out", err)
		default:
			return newError(KindTransient, st.Message(), err)
		}
	}

	if errors.Is(err, ErrEmptyResponse) {
		return newError(KindBadResponseFormat, err.Error(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTransient, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(KindTransient, "request cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTransient, "network timeout", err)
	}
	return newError(KindTransient, err.Error(), err)
}

func isAuthStatus(e *StatusError) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		msg := strings.ToLower(e.Message)
		return strings.Contains(msg, "api key not valid") ||
			strings.Contains(msg, "api_key_invalid") ||
			strings.Contains(msg, "api key expired")
	default:
		return false
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
