// Package rename applies base-name and cleanup renames to files and to the
// entries of zip archives.
package rename

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrCollision is returned when the target exists and suffixing is disabled.
	ErrCollision = errors.New("target name already exists")
	// ErrEmptyBase is returned when no base name is given.
	ErrEmptyBase = errors.New("base name is empty")
)

// Outcome reports what happened to one input path.
type Outcome struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Entries int    `json:"entries,omitempty"`
	Err     error  `json:"-"`
}

// OK reports whether the path was processed.
func (o Outcome) OK() bool { return o.Err == nil }

// Renamer moves files to <base><ext>, adding _1, _2, ... on collision.
type Renamer struct {
	stat      func(string) (os.FileInfo, error)
	rename    func(oldpath, newpath string) error
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(string) error
	suffix    bool
	logger    *slog.Logger
}

// Option customises a Renamer.
type Option func(*Renamer)

// WithoutSuffix makes collisions fail with ErrCollision instead of numbering.
func WithoutSuffix() Option {
	return func(r *Renamer) { r.suffix = false }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renamer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRenameFunc replaces the move operation.
func WithRenameFunc(fn func(oldpath, newpath string) error) Option {
	return func(r *Renamer) { r.rename = fn }
}

// New returns a Renamer backed by the real filesystem.
func New(opts ...Option) *Renamer {
	r := &Renamer{
		stat:      os.Lstat,
		rename:    os.Rename,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		suffix:    true,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rename gives every path the base name. Zip archives keep their own name and
// have their entries renamed instead. A failure on one path does not stop the rest.
func (r *Renamer) Rename(paths []string, base string) ([]Outcome, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, ErrEmptyBase
	}
	outcomes := make([]Outcome, 0, len(paths))
	for _, path := range paths {
		var out Outcome
		if strings.EqualFold(filepath.Ext(path), ".zip") {
			out = r.renameArchive(path, base)
		} else {
			out = r.renameFile(path, base)
		}
		if out.Err != nil {
			r.logger.Warn("rename.failed", "path", path, "error", out.Err)
		} else {
			r.logger.Info("rename.ok", "from", out.From, "to", out.To, "entries", out.Entries)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (r *Renamer) renameFile(path, base string) Outcome {
	out := Outcome{From: path}
	info, err := r.stat(path)
	if err != nil {
		out.Err = err
		return out
	}
	if info.IsDir() {
		out.Err = fmt.Errorf("%s is a directory", path)
		return out
	}
	target, err := r.target(path, base)
	if err != nil {
		out.Err = err
		return out
	}
	out.To = target
	if target == path {
		return out
	}
	if err := r.rename(path, target); err != nil {
		out.Err = fmt.Errorf("move file: %w", err)
	}
	return out
}

// target picks the first free <base>[_n]<ext> next to path. The path itself
// counts as free.
func (r *Renamer) target(path, base string) (string, error) {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	candidate := filepath.Join(dir, base+ext)
	for n := 1; ; n++ {
		if candidate == path {
			return candidate, nil
		}
		if _, err := r.stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
		if !r.suffix {
			return "", fmt.Errorf("%w: %s", ErrCollision, candidate)
		}
		candidate = filepath.Join(dir, base+"_"+strconv.Itoa(n)+ext)
	}
}

// SuffixedName returns <base><ext> unless it is already taken, then <base>_n<ext>.
func SuffixedName(base, ext string, taken func(string) bool) string {
	name := base + ext
	for n := 1; taken(name); n++ {
		name = base + "_" + strconv.Itoa(n) + ext
	}
	return name
}
