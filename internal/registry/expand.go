package registry

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"imagemeta/internal/imagefmt"
)

// ExpandPaths replaces directories with the image files inside them.
// Plain files are passed through untouched so Add can report them.
func ExpandPaths(paths []string, recursive bool) []string {
	var out []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			out = append(out, path)
			continue
		}
		out = append(out, imagesInDir(path, recursive)...)
	}
	return out
}

func imagesInDir(dir string, recursive bool) []string {
	var found []string
	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}
		for _, entry := range entries {
			if !entry.IsDir() && imagefmt.IsImageName(entry.Name()) {
				found = append(found, filepath.Join(dir, entry.Name()))
			}
		}
		return found
	}

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && imagefmt.IsImageName(d.Name()) {
			found = append(found, path)
		}
		return nil
	})
	sort.Strings(found)
	return found
}
