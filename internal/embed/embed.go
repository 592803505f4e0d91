// Package embed writes descriptive metadata into JPEG, PNG and TIFF files
// without touching image data. A file is either fully updated or left as it was.
package embed

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imagemeta/internal/domain"
	"imagemeta/internal/imagefmt"
)

var (
	// ErrUnsupportedFormat is returned for containers the embedder does not write.
	ErrUnsupportedFormat = errors.New("unsupported image format for metadata")
	// ErrMalformedMetadata is returned when existing metadata cannot be parsed safely.
	ErrMalformedMetadata = errors.New("malformed image metadata")
	// ErrMetadataTooLarge is returned when a rewritten JPEG segment would exceed 64 KiB.
	ErrMetadataTooLarge = errors.New("metadata block too large")
	// ErrBackupExists is returned when a .bak beside the file was not left by Apply.
	ErrBackupExists = errors.New("backup file already exists")
)

const backupSuffix = ".bak"

// Embedder applies metadata with the temp-write, backup, swap protocol.
type Embedder struct {
	readFile   func(string) ([]byte, error)
	createTemp func(dir, pattern string) (*os.File, error)
	rename     func(oldpath, newpath string) error
	remove     func(string) error
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	now        func() time.Time
	logger     *slog.Logger
}

// Option customises an Embedder.
type Option func(*Embedder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRename replaces the rename operation. Tests use it to inject failures.
func WithRename(fn func(oldpath, newpath string) error) Option {
	return func(e *Embedder) { e.rename = fn }
}

// WithRemove replaces the remove operation.
func WithRemove(fn func(string) error) Option {
	return func(e *Embedder) { e.remove = fn }
}

// WithCreateTemp replaces temp file creation.
func WithCreateTemp(fn func(dir, pattern string) (*os.File, error)) Option {
	return func(e *Embedder) { e.createTemp = fn }
}

// WithClock sets the time source used for modification timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Embedder) { e.now = now }
}

// New returns an Embedder backed by the real filesystem.
func New(opts ...Option) *Embedder {
	e := &Embedder{
		readFile:   os.ReadFile,
		createTemp: os.CreateTemp,
		rename:     os.Rename,
		remove:     os.Remove,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply merges fields into the metadata of path. Fields left empty keep their
// existing values; the modification timestamp is always refreshed.
func (e *Embedder) Apply(path string, fields domain.Fields) error {
	if err := e.Recover(path); err != nil {
		return err
	}

	data, err := e.readFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	info, err := e.stat(path)
	if err != nil {
		return fmt.Errorf("stat image: %w", err)
	}

	modified := e.now()
	format := imagefmt.Sniff(data)
	var out []byte
	switch format {
	case imagefmt.JPEG:
		out, err = rewriteJPEG(data, fields, modified)
	case imagefmt.PNG:
		out, err = rewritePNG(data, fields, modified)
	case imagefmt.TIFF:
		out, err = rewriteTIFF(data, fields, modified)
	default:
		name := string(format)
		if name == "" {
			name = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		}
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return err
	}

	if err := e.replace(path, out, info.Mode().Perm()); err != nil {
		e.logger.Error("embed.write.failed", "path", path, "error", err)
		return err
	}
	e.logger.Info("embed.write.ok", "path", path, "format", string(format), "bytes", len(out))
	return nil
}

// replace installs data at path. The original is renamed aside before the swap
// and restored if the swap fails; the temp file never outlives a failure.
func (e *Embedder) replace(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := e.createTemp(filepath.Dir(path), tempPattern(path))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = e.remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	backup := path + backupSuffix
	if err = e.rename(path, backup); err != nil {
		return fmt.Errorf("back up original: %w", err)
	}
	if err = e.rename(tmpPath, path); err != nil {
		if restoreErr := e.rename(backup, path); restoreErr != nil {
			return fmt.Errorf("install updated file: %w (restore failed: %v, original kept at %s)", err, restoreErr, backup)
		}
		return fmt.Errorf("install updated file: %w", err)
	}
	if removeErr := e.remove(backup); removeErr != nil {
		e.logger.Warn("embed.backup.remove_failed", "path", backup, "error", removeErr)
	}
	return nil
}

// Recover repairs leftovers of an interrupted Apply on path: a backup whose
// original is missing is moved back, and stray temp files are removed. A backup
// next to a complete file is deleted only when it holds the same image; any
// other .bak is kept and reported as ErrBackupExists.
func (e *Embedder) Recover(path string) error {
	backup := path + backupSuffix
	if _, err := e.stat(backup); err == nil {
		if _, err := e.stat(path); errors.Is(err, os.ErrNotExist) {
			if err := e.rename(backup, path); err != nil {
				return fmt.Errorf("restore backup: %w", err)
			}
			e.logger.Warn("embed.recover.restored", "path", path)
		} else if err == nil {
			if !e.leftByApply(path, backup) {
				e.logger.Warn("embed.recover.backup_kept", "path", backup)
				return fmt.Errorf("%w: %s", ErrBackupExists, backup)
			}
			if err := e.remove(backup); err != nil {
				return fmt.Errorf("remove stale backup: %w", err)
			}
			e.logger.Warn("embed.recover.backup_removed", "path", backup)
		} else {
			return fmt.Errorf("stat image: %w", err)
		}
	}

	entries, err := e.readDir(filepath.Dir(path))
	if err != nil {
		return nil
	}
	prefix, suffix := tempAffixes(path)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		if err := e.remove(filepath.Join(filepath.Dir(path), name)); err == nil {
			e.logger.Warn("embed.recover.temp_removed", "path", name)
		}
	}
	return nil
}

// leftByApply reports whether backup is the pre-write copy of path: the same
// image, differing at most in the metadata Apply writes.
func (e *Embedder) leftByApply(path, backup string) bool {
	current, err := e.readFile(path)
	if err != nil {
		return false
	}
	previous, err := e.readFile(backup)
	if err != nil {
		return false
	}
	return sameImage(current, previous)
}

func tempAffixes(path string) (string, string) {
	return "." + filepath.Base(path) + ".", ".tmp"
}

func tempPattern(path string) string {
	prefix, suffix := tempAffixes(path)
	return prefix + "*" + suffix
}

// BatchResult summarises ApplyBatch.
type BatchResult struct {
	Updated int
	Skipped int
	Failed  map[string]error
}

// ApplyBatch writes the generated text of each record into its file. Records
// with nothing to write are skipped; one failure does not stop the rest.
func (e *Embedder) ApplyBatch(records []domain.FileRecord) BatchResult {
	result := BatchResult{Failed: map[string]error{}}
	for _, record := range records {
		fields := domain.FieldsFromRecord(record)
		if fields.Empty() {
			result.Skipped++
			continue
		}
		if err := e.Apply(record.Path, fields); err != nil {
			result.Failed[record.Path] = err
			continue
		}
		result.Updated++
	}
	return result
}

func rewriteTIFF(data []byte, f domain.Fields, modified time.Time) ([]byte, error) {
	block, err := parseTagBlock(data)
	if err != nil {
		return nil, err
	}
	var existing []byte
	if entry, ok := findEntry(block.ifd0, tagXMLPacket); ok {
		if raw, err := block.value(entry); err == nil {
			existing = raw
		}
	}
	return block.merge(tagUpdate{
		fields:   f,
		modified: modified,
		xmp:      mergeXMP(existing, f, modified),
	})
}
