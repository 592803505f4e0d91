package rename

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

// TestRenameAddsSuffixOnCollision verifies Vacation.jpg is kept and the new file becomes Vacation_1.jpg.
func TestRenameAddsSuffixOnCollision(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "Vacation.jpg"), "existing")
	touch(t, filepath.Join(dir, "photo.jpg"), "new")

	outcomes, err := New().Rename([]string{filepath.Join(dir, "photo.jpg")}, "Vacation")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Err != nil {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if got := filepath.Base(outcomes[0].To); got != "Vacation_1.jpg" {
		t.Fatalf("target = %s, want Vacation_1.jpg", got)
	}
	data, err := os.ReadFile(filepath.Join(dir, "Vacation_1.jpg"))
	if err != nil || string(data) != "new" {
		t.Fatalf("renamed content = %q, %v", data, err)
	}
	if got := strings.Join(listDir(t, dir), ","); got != "Vacation.jpg,Vacation_1.jpg" {
		t.Fatalf("dir = %s", got)
	}
}

// TestRenameBatchKeepsExtensions verifies each file keeps its extension and numbering continues.
func TestRenameBatchKeepsExtensions(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.jpg", "b.jpg", "c.png", "d.JPG"} {
		path := filepath.Join(dir, name)
		touch(t, path, name)
		paths = append(paths, path)
	}

	outcomes, err := New().Rename(paths, "Trip")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	for _, out := range outcomes {
		if out.Err != nil {
			t.Fatalf("%s: %v", out.From, out.Err)
		}
	}
	want := "Trip.JPG,Trip.jpg,Trip.png,Trip_1.jpg"
	if got := strings.Join(listDir(t, dir), ","); got != want {
		t.Fatalf("dir = %s, want %s", got, want)
	}
}

// TestRenameWithoutSuffixReportsCollision verifies the declined-overwrite path.
func TestRenameWithoutSuffixReportsCollision(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "Vacation.jpg"), "existing")
	touch(t, filepath.Join(dir, "photo.jpg"), "new")
	touch(t, filepath.Join(dir, "other.png"), "png")

	outcomes, err := New(WithoutSuffix()).Rename([]string{
		filepath.Join(dir, "photo.jpg"),
		filepath.Join(dir, "other.png"),
	}, "Vacation")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !errors.Is(outcomes[0].Err, ErrCollision) {
		t.Fatalf("first err = %v, want ErrCollision", outcomes[0].Err)
	}
	if outcomes[1].Err != nil {
		t.Fatalf("second err = %v", outcomes[1].Err)
	}
	if _, err := os.Stat(filepath.Join(dir, "photo.jpg")); err != nil {
		t.Fatalf("declined file should stay in place: %v", err)
	}
}

// TestRenameRejectsEmptyBase verifies the base name is required.
func TestRenameRejectsEmptyBase(t *testing.T) {
	if _, err := New().Rename([]string{"x.jpg"}, "  "); !errors.Is(err, ErrEmptyBase) {
		t.Fatalf("err = %v", err)
	}
}

// TestRenameReportsMoveFailure verifies a failed move is reported per item.
func TestRenameReportsMoveFailure(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "photo.jpg"), "x")
	boom := errors.New("cross-device link")

	outcomes, _ := New(WithRenameFunc(func(string, string) error { return boom })).
		Rename([]string{filepath.Join(dir, "photo.jpg"), filepath.Join(dir, "missing.jpg")}, "New")
	if !errors.Is(outcomes[0].Err, boom) {
		t.Fatalf("first err = %v", outcomes[0].Err)
	}
	if !errors.Is(outcomes[1].Err, os.ErrNotExist) {
		t.Fatalf("second err = %v", outcomes[1].Err)
	}
}

func writeZip(t *testing.T, path string, files map[string]string, order []string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range order {
		if strings.HasSuffix(name, "/") {
			if _, err := w.Create(name); err != nil {
				t.Fatalf("create dir entry: %v", err)
			}
			continue
		}
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	touch(t, path, buf.String())
}

// TestRenameArchiveEntries verifies entries are renamed inside the archive and scratch space is removed.
func TestRenameArchiveEntries(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "photos.zip")
	files := map[string]string{"a.jpg": "first", "sub/b.jpg": "second", "notes.txt": "text"}
	writeZip(t, archive, files, []string{"a.jpg", "sub/", "sub/b.jpg", "notes.txt"})

	outcomes, err := New().Rename([]string{archive}, "Holiday")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if outcomes[0].Err != nil || outcomes[0].Entries != 3 || outcomes[0].To != archive {
		t.Fatalf("outcome = %+v", outcomes[0])
	}

	reader, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("open rewritten archive: %v", err)
	}
	defer reader.Close()
	got := map[string]string{}
	for _, entry := range reader.File {
		rc, err := entry.Open()
		if err != nil {
			t.Fatalf("open entry: %v", err)
		}
		data, _ := io.ReadAll(rc)
		_ = rc.Close()
		got[entry.Name] = string(data)
	}
	want := map[string]string{"Holiday.jpg": "first", "Holiday_1.jpg": "second", "Holiday.txt": "text"}
	if len(got) != len(want) {
		t.Fatalf("entries = %v", got)
	}
	for name, content := range want {
		if got[name] != content {
			t.Fatalf("entry %s = %q, want %q", name, got[name], content)
		}
	}
	if names := listDir(t, dir); len(names) != 1 || names[0] != "photos.zip" {
		t.Fatalf("dir = %v, scratch should be removed", names)
	}
}

// TestRenameArchiveFailureKeepsOriginal verifies a failed swap leaves the archive and removes scratch.
func TestRenameArchiveFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "photos.zip")
	writeZip(t, archive, map[string]string{"a.jpg": "first"}, []string{"a.jpg"})
	before, _ := os.ReadFile(archive)

	boom := errors.New("rename refused")
	outcomes, _ := New(WithRenameFunc(func(string, string) error { return boom })).Rename([]string{archive}, "X")
	if !errors.Is(outcomes[0].Err, boom) {
		t.Fatalf("err = %v", outcomes[0].Err)
	}
	after, _ := os.ReadFile(archive)
	if !bytes.Equal(before, after) {
		t.Fatal("archive changed after failed swap")
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Fatalf("dir = %v", names)
	}
}

// TestCleanName covers separators, digits, and casing.
func TestCleanName(t *testing.T) {
	cases := map[string]string{
		"IMG_2024-05-01 sunset.JPG": "Img sunset.JPG",
		"my__PHOTO (3).png":         "My photo.png",
		"already clean.jpg":         "Already clean.jpg",
		"éCOLE d'été.tif":           "École d été.tif",
		"12345.jpg":                 "12345.jpg",
		"noext":                     "Noext",
	}
	for in, want := range cases {
		if got := CleanName(in); got != want {
			t.Fatalf("CleanName(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestCleanRenamesAndRefusesOverwrite verifies cleanup moves and collision handling.
func TestCleanRenamesAndRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "my_photo_01.jpg"), "a")
	touch(t, filepath.Join(dir, "MY-PHOTO.png"), "b")
	touch(t, filepath.Join(dir, "My photo.png"), "existing")

	outcomes := New().Clean([]string{
		filepath.Join(dir, "my_photo_01.jpg"),
		filepath.Join(dir, "MY-PHOTO.png"),
	})
	if outcomes[0].Err != nil || filepath.Base(outcomes[0].To) != "My photo.jpg" {
		t.Fatalf("first outcome = %+v", outcomes[0])
	}
	if !errors.Is(outcomes[1].Err, ErrCollision) {
		t.Fatalf("second err = %v", outcomes[1].Err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "My photo.png"))
	if string(data) != "existing" {
		t.Fatal("existing file was overwritten")
	}
}

// TestExtractNames verifies names are written one per line and directories skipped.
func TestExtractNames(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.jpg"), "")
	touch(t, filepath.Join(dir, "b.txt"), "")
	if err := os.Mkdir(filepath.Join(dir, "folder"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	var buf bytes.Buffer
	n, err := ExtractNames([]string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "folder"),
		filepath.Join(dir, "b.txt"),
	}, &buf)
	if err != nil || n != 2 {
		t.Fatalf("extract = %d, %v", n, err)
	}
	if buf.String() != "a.jpg\nb.txt\n" {
		t.Fatalf("output = %q", buf.String())
	}
}

// TestExpand verifies folder expansion depth and skipped arguments.
func TestExpand(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "top.jpg"), "")
	touch(t, filepath.Join(dir, "nested", "deep.jpg"), "")
	missing := filepath.Join(dir, "missing.jpg")

	flat, skipped := Expand([]string{dir, missing}, false)
	if len(flat) != 1 || filepath.Base(flat[0]) != "top.jpg" {
		t.Fatalf("flat = %v", flat)
	}
	if len(skipped) != 1 || skipped[0] != missing {
		t.Fatalf("skipped = %v", skipped)
	}

	deep, _ := Expand([]string{dir}, true)
	if len(deep) != 2 {
		t.Fatalf("recursive = %v", deep)
	}
}

// TestSuffixedName verifies numbering skips taken names.
func TestSuffixedName(t *testing.T) {
	taken := map[string]bool{"Base.jpg": true, "Base_1.jpg": true}
	if got := SuffixedName("Base", ".jpg", func(n string) bool { return taken[n] }); got != "Base_2.jpg" {
		t.Fatalf("got %s", got)
	}
}
