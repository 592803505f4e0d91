package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"imagemeta/internal/domain"
	"imagemeta/internal/logging"
)

// newTestRegistry accepts every path except those listed as undecodable.
func newTestRegistry(bad ...string) *Registry {
	reject := map[string]bool{}
	for _, path := range bad {
		reject[path] = true
	}
	return New(
		WithLogger(logging.Discard()),
		WithProbe(func(path string) error {
			if reject[filepath.Base(path)] {
				return errors.New("undecodable")
			}
			return nil
		}),
	)
}

// TestAddDeduplicatesPaths verifies adding the same path twice keeps one record.
func TestAddDeduplicatesPaths(t *testing.T) {
	reg := newTestRegistry()
	dir := t.TempDir()
	p := filepath.Join(dir, "a.jpg")

	added, err := reg.Add([]string{p, p})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if added != 1 || reg.Len() != 1 {
		t.Fatalf("added = %d, len = %d, want 1/1", added, reg.Len())
	}

	added, _ = reg.Add([]string{filepath.Join(dir, ".", "a.jpg")})
	if added != 0 {
		t.Fatalf("re-add of equivalent path added %d records", added)
	}

	record := reg.List()[0]
	if record.Path != p || record.Status != domain.RecordStatusPending || record.DisplayName != "a.jpg" {
		t.Fatalf("record = %+v", record)
	}
}

// TestAddSkipsUndecodableAndContinues verifies one bad file never aborts the batch.
func TestAddSkipsUndecodableAndContinues(t *testing.T) {
	reg := newTestRegistry("broken.png")
	dir := t.TempDir()

	added, err := reg.Add([]string{
		filepath.Join(dir, "one.jpg"),
		filepath.Join(dir, "broken.png"),
		"   ",
		filepath.Join(dir, "two.jpg"),
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
}

// TestAddUsesRealProbe verifies the default probe rejects non-image files.
func TestAddUsesRealProbe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.jpg")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg := New(WithLogger(logging.Discard()))
	added, err := reg.Add([]string{path, filepath.Join(dir, "missing.jpg")})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if added != 0 {
		t.Fatalf("added = %d, want 0", added)
	}
}

// TestBusyRejectsForegroundMutation verifies registry operations gated on idle state.
func TestBusyRejectsForegroundMutation(t *testing.T) {
	reg := newTestRegistry()
	dir := t.TempDir()
	if _, err := reg.Add([]string{filepath.Join(dir, "a.jpg")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	id := reg.IDs()[0]

	if err := reg.BeginSession(); err != nil {
		t.Fatalf("BeginSession() error = %v", err)
	}
	if err := reg.BeginSession(); !errors.Is(err, ErrBusy) {
		t.Fatalf("second BeginSession() error = %v, want ErrBusy", err)
	}
	if err := reg.Clear(); !errors.Is(err, ErrBusy) {
		t.Fatalf("Clear() error = %v, want ErrBusy", err)
	}
	if _, err := reg.Add([]string{filepath.Join(dir, "b.jpg")}); !errors.Is(err, ErrBusy) {
		t.Fatalf("Add() error = %v, want ErrBusy", err)
	}
	if _, err := reg.ResetToPending([]string{id}); !errors.Is(err, ErrBusy) {
		t.Fatalf("ResetToPending() error = %v, want ErrBusy", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("len = %d, want 1 (rejections must not mutate)", reg.Len())
	}

	if _, err := reg.Update(id, func(r *domain.FileRecord) { r.Status = domain.RecordStatusProcessing }); err != nil {
		t.Fatalf("Update() during session error = %v", err)
	}

	reg.EndSession()
	if err := reg.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("len = %d, want 0", reg.Len())
	}
}

// TestSelection verifies toggle and select-all flips.
func TestSelection(t *testing.T) {
	reg := newTestRegistry()
	dir := t.TempDir()
	if _, err := reg.Add([]string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.jpg")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	ids := reg.IDs()

	selected, err := reg.ToggleSelected(ids[1])
	if err != nil || !selected {
		t.Fatalf("ToggleSelected() = %v, %v", selected, err)
	}
	if got := reg.SelectedIDs(); len(got) != 1 || got[0] != ids[1] {
		t.Fatalf("selected = %v", got)
	}

	reg.SelectAll(true)
	if got := reg.SelectedIDs(); len(got) != 2 {
		t.Fatalf("selected = %v, want 2", got)
	}
	reg.SelectAll(false)
	if got := reg.SelectedIDs(); len(got) != 0 {
		t.Fatalf("selected = %v, want none", got)
	}

	if _, err := reg.ToggleSelected("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ToggleSelected(missing) error = %v", err)
	}
}

// TestSetFieldsAndReset verifies edits and retry resets.
func TestSetFieldsAndReset(t *testing.T) {
	reg := newTestRegistry()
	if _, err := reg.Add([]string{filepath.Join(t.TempDir(), "a.jpg")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	id := reg.IDs()[0]

	got, err := reg.SetFields(id, " Beach ", []string{"sand", " ", "sea"}, "Waves")
	if err != nil {
		t.Fatalf("SetFields() error = %v", err)
	}
	if got.Title != "Beach" || got.KeywordString() != "sand, sea" {
		t.Fatalf("record = %+v", got)
	}

	if _, err := reg.Update(id, func(r *domain.FileRecord) {
		r.Status = domain.RecordStatusError
		r.Reason = "timeout"
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	n, err := reg.ResetToPending([]string{id, "unknown"})
	if err != nil || n != 1 {
		t.Fatalf("ResetToPending() = %d, %v", n, err)
	}
	record, _ := reg.Get(id)
	if record.Status != domain.RecordStatusPending || record.Reason != "" {
		t.Fatalf("record = %+v", record)
	}
}

// TestListReturnsCopies verifies callers cannot mutate registry state through snapshots.
func TestListReturnsCopies(t *testing.T) {
	reg := newTestRegistry()
	if _, err := reg.Add([]string{filepath.Join(t.TempDir(), "a.jpg")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	list := reg.List()
	list[0].Status = domain.RecordStatusCompleted
	if reg.List()[0].Status != domain.RecordStatusPending {
		t.Fatal("snapshot mutation leaked into registry")
	}
}

// TestExpandPaths verifies folder expansion modes.
func TestExpandPaths(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "nested")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, path := range []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "readme.txt"),
		filepath.Join(nested, "b.png"),
	} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if got := ExpandPaths([]string{root}, false); len(got) != 1 {
		t.Fatalf("flat expansion = %v, want 1 image", got)
	}
	if got := ExpandPaths([]string{root}, true); len(got) != 2 {
		t.Fatalf("recursive expansion = %v, want 2 images", got)
	}
	file := filepath.Join(root, "readme.txt")
	if got := ExpandPaths([]string{file}, true); len(got) != 1 || got[0] != file {
		t.Fatalf("file passthrough = %v", got)
	}
}
