package rename

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// renameArchive rewrites a zip so every file entry is named <base>[_n]<ext>.
// Entry data is copied without recompression. The new archive is built in a
// scratch directory beside the original and swapped in with one rename.
func (r *Renamer) renameArchive(archivePath, base string) Outcome {
	out := Outcome{From: archivePath, To: archivePath}

	scratch, err := r.mkdirTemp(filepath.Dir(archivePath), ".rename-*")
	if err != nil {
		out.Err = fmt.Errorf("create scratch dir: %w", err)
		return out
	}
	defer func() {
		if err := r.removeAll(scratch); err != nil {
			r.logger.Warn("rename.scratch.remove_failed", "path", scratch, "error", err)
		}
	}()

	rewritten := filepath.Join(scratch, filepath.Base(archivePath))
	entries, err := rewriteArchive(archivePath, rewritten, base)
	if err != nil {
		out.Err = err
		return out
	}
	if err := r.rename(rewritten, archivePath); err != nil {
		out.Err = fmt.Errorf("replace archive: %w", err)
		return out
	}
	out.Entries = entries
	return out
}

func rewriteArchive(src, dst, base string) (int, error) {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	file, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer file.Close()

	writer := zip.NewWriter(file)
	if err := writer.SetComment(reader.Comment); err != nil {
		return 0, fmt.Errorf("copy archive comment: %w", err)
	}
	used := map[string]bool{}
	entries := 0
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := SuffixedName(base, path.Ext(entry.Name), func(n string) bool { return used[n] })
		used[name] = true

		header := entry.FileHeader
		header.Name = name
		w, err := writer.CreateRaw(&header)
		if err != nil {
			return 0, fmt.Errorf("write entry %s: %w", name, err)
		}
		raw, err := entry.OpenRaw()
		if err != nil {
			return 0, fmt.Errorf("read entry %s: %w", entry.Name, err)
		}
		if _, err := io.Copy(w, raw); err != nil {
			return 0, fmt.Errorf("copy entry %s: %w", entry.Name, err)
		}
		entries++
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("finish archive: %w", err)
	}
	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("sync archive: %w", err)
	}
	return entries, file.Close()
}
