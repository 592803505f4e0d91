package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imagemeta/internal/domain"
	"imagemeta/internal/embed"
	"imagemeta/internal/export"
	"imagemeta/internal/jobs"
	"imagemeta/internal/registry"
	"imagemeta/internal/rename"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var imageDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Images",
		Pattern:     "*.jpg;*.jpeg;*.png;*.tif;*.tiff;*.gif;*.webp",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var exportDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "CSV",
		Pattern:     "*.csv",
	},
	{
		DisplayName: "Excel workbook",
		Pattern:     "*.xlsx",
	},
}

// RenameResult is one rename outcome as shown in the UI.
type RenameResult struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Entries int    `json:"entries,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PickImages opens a native multi-file dialog and registers the chosen images.
func (a *App) PickImages() (int, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return 0, err
	}

	paths, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select images",
		Filters: imageDialogFilter,
	})
	if err != nil {
		return 0, err
	}
	return a.AddFiles(paths)
}

// PickFolder opens a native directory picker and registers every image below it.
func (a *App) PickFolder() (int, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return 0, err
	}

	dir, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select image folder",
	})
	if err != nil {
		return 0, err
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return 0, nil
	}
	return a.AddFiles([]string{dir})
}

// AddFiles registers files and the images inside any directories among paths.
func (a *App) AddFiles(paths []string) (int, error) {
	return a.Registry.Add(registry.ExpandPaths(paths, true))
}

// ListRecords returns every tracked file in insertion order.
func (a *App) ListRecords() []domain.FileRecord {
	return a.Registry.List()
}

// ToggleSelected flips one record's selection flag.
func (a *App) ToggleSelected(id string) (bool, error) {
	return a.Registry.ToggleSelected(id)
}

// SelectAll sets every record's selection flag.
func (a *App) SelectAll(selected bool) {
	a.Registry.SelectAll(selected)
}

// ClearRecords drops every record. Refused during a session.
func (a *App) ClearRecords() error {
	return a.Registry.Clear()
}

// UpdateRecord stores user edits. keywords is the comma-separated form.
func (a *App) UpdateRecord(id, title, keywords, description string) (domain.FileRecord, error) {
	return a.Registry.SetFields(id, title, domain.SplitKeywords(keywords), description)
}

// StartBatch begins a session over ids, or over the current selection when ids is empty.
func (a *App) StartBatch(ids []string) (domain.Session, error) {
	if len(ids) == 0 {
		ids = a.Registry.SelectedIDs()
	}
	return a.Scheduler.Start(ids)
}

// PauseBatch pauses the worker after the in-flight item.
func (a *App) PauseBatch() error { return a.Scheduler.Pause() }

// ResumeBatch resumes a paused worker.
func (a *App) ResumeBatch() error { return a.Scheduler.Resume() }

// StopBatch stops the worker after the in-flight item.
func (a *App) StopBatch() error { return a.Scheduler.Stop() }

// RetryRecords returns failed or stopped records to pending.
func (a *App) RetryRecords(ids []string) (int, error) {
	return a.Scheduler.Retry(ids)
}

// ResetBatch returns a finished or stopped session to idle.
func (a *App) ResetBatch() error { return a.Scheduler.Reset() }

// CurrentSession returns the current session snapshot.
func (a *App) CurrentSession() domain.Session {
	return a.Scheduler.Session()
}

// BatchEvents returns all events with sequence greater than sinceSeq.
func (a *App) BatchEvents(sinceSeq int64) []jobs.Event {
	return a.Scheduler.Events().Since(sinceSeq)
}

// UpdateMetadata writes the generated text of ids (or the selection) into the files.
func (a *App) UpdateMetadata(ids []string) (embed.BatchResult, error) {
	if a.Registry.Busy() {
		return embed.BatchResult{}, jobs.ErrAlreadyRunning
	}
	if len(ids) == 0 {
		ids = a.Registry.SelectedIDs()
	}

	records := make([]domain.FileRecord, 0, len(ids))
	for _, id := range ids {
		if record, ok := a.Registry.Get(id); ok {
			records = append(records, record)
		}
	}
	result := a.Embedder.ApplyBatch(records)
	a.logger.Info("embed.batch.done",
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", len(result.Failed),
	)
	return result, nil
}

// ReadMetadata returns the metadata currently embedded in path. Files are not
// touched while a session holds the registry.
func (a *App) ReadMetadata(path string) (domain.Fields, error) {
	if a.Registry.Busy() {
		return domain.Fields{}, registry.ErrBusy
	}
	return a.Embedder.Read(path)
}

// WriteMetadata embeds fields into path. Empty fields are left untouched.
// Refused while a session holds the registry.
func (a *App) WriteMetadata(path string, fields domain.Fields) error {
	if a.Registry.Busy() {
		return registry.ErrBusy
	}
	return a.Embedder.Apply(path, fields)
}

// ExportRecords asks for a destination and writes the selected records as CSV or XLSX.
// It returns the written path, or "" when the dialog was cancelled.
func (a *App) ExportRecords() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:           "Export metadata",
		DefaultFilename: "metadata.csv",
		Filters:         exportDialogFilter,
	})
	if err != nil {
		return "", err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if err := a.ExportTo(path); err != nil {
		return "", err
	}
	return path, nil
}

// ExportTo writes the selected records to path, picking the format from its extension.
func (a *App) ExportTo(path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var records []domain.FileRecord
	for _, record := range a.Registry.List() {
		if record.Selected {
			records = append(records, record)
		}
	}
	if err := export.Write(file, export.FormatFromPath(path), records); err != nil {
		return fmt.Errorf("export records: %w", err)
	}
	a.logger.Info("export.ok", "path", path, "records", len(records))
	return nil
}

// RenameFiles gives every path the base name, numbering collisions. Tracked
// records are not renamed while a session is running.
func (a *App) RenameFiles(paths []string, base string) ([]RenameResult, error) {
	if a.Registry.Busy() {
		return nil, registry.ErrBusy
	}

	outcomes, err := rename.New(rename.WithLogger(a.logger)).Rename(paths, base)
	if err != nil {
		return nil, err
	}

	results := make([]RenameResult, 0, len(outcomes))
	for _, out := range outcomes {
		result := RenameResult{From: out.From, To: out.To, Entries: out.Entries}
		if out.Err != nil {
			result.Error = out.Err.Error()
		}
		results = append(results, result)
	}
	return results, nil
}
