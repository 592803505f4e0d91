package rename

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var noiseRun = regexp.MustCompile(`[-_()~!@#$%^&*\[\]{};:,<>?/\\|` + "`" + `'"+=\s0-9]+`)

// CleanName turns punctuation and digits into single spaces, capitalises the
// first word and lower-cases the rest. The extension is kept as is. Names
// that would clean to nothing are returned unchanged.
func CleanName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}
	words := strings.Fields(noiseRun.ReplaceAllString(stem, " "))
	if len(words) == 0 {
		return name
	}
	lower := cases.Lower(language.Und)
	words[0] = cases.Title(language.Und).String(words[0])
	for i := 1; i < len(words); i++ {
		words[i] = lower.String(words[i])
	}
	return strings.Join(words, " ") + ext
}

// Clean renames each file to its cleaned name. Existing targets are never
// overwritten.
func (r *Renamer) Clean(paths []string) []Outcome {
	outcomes := make([]Outcome, 0, len(paths))
	for _, path := range paths {
		out := Outcome{From: path, To: path}
		info, err := r.stat(path)
		switch {
		case err != nil:
			out.Err = err
		case info.IsDir():
			out.Err = fmt.Errorf("%s is a directory", path)
		default:
			cleaned := filepath.Join(filepath.Dir(path), CleanName(filepath.Base(path)))
			out.To = cleaned
			if cleaned == path {
				break
			}
			if _, err := r.stat(cleaned); err == nil {
				out.Err = fmt.Errorf("%w: %s", ErrCollision, cleaned)
			} else if !errors.Is(err, os.ErrNotExist) {
				out.Err = err
			} else if err := r.rename(path, cleaned); err != nil {
				out.Err = fmt.Errorf("move file: %w", err)
			}
		}
		if out.Err != nil {
			r.logger.Warn("clean.failed", "path", path, "error", out.Err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// ExtractNames writes the base name of each regular file, one per line, and
// returns how many were written.
func ExtractNames(paths []string, w io.Writer) (int, error) {
	written := 0
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if _, err := io.WriteString(w, filepath.Base(path)+"\n"); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// Expand resolves CLI arguments to regular files. Directories contribute their
// immediate files, or every file below them when recursive is set. Arguments
// that do not exist are returned in skipped.
func Expand(args []string, recursive bool) (files []string, skipped []string) {
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			skipped = append(skipped, arg)
			continue
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		if recursive {
			_ = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if d.Type().IsRegular() {
					files = append(files, path)
				}
				return nil
			})
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			skipped = append(skipped, arg)
			continue
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				files = append(files, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return files, skipped
}
