// Package registry owns the list of tracked image files and their status.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"imagemeta/internal/domain"
	"imagemeta/internal/imagefmt"
)

// ErrBusy is returned for foreground mutations while a batch session is active.
var ErrBusy = errors.New("registry is busy with an active batch session")

// ErrNotFound is returned for unknown record IDs.
var ErrNotFound = errors.New("record not found")

// Registry holds file records in insertion order, keyed by absolute path.
type Registry struct {
	mu      sync.RWMutex
	records []*domain.FileRecord
	byID    map[string]*domain.FileRecord
	byPath  map[string]*domain.FileRecord
	busy    bool

	probe  func(string) error
	newID  func() string
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

// WithProbe overrides the decode check applied by Add.
func WithProbe(probe func(path string) error) Option {
	return func(r *Registry) {
		if probe != nil {
			r.probe = probe
		}
	}
}

// WithLogger sets the logger used for skipped files.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byID:   make(map[string]*domain.FileRecord),
		byPath: make(map[string]*domain.FileRecord),
		probe: func(path string) error {
			_, err := imagefmt.ProbeFile(path)
			return err
		},
		newID:  uuid.NewString,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers each path as a pending record. Duplicates and files that do not
// decode as images are skipped; one bad path never aborts the rest.
func (r *Registry) Add(paths []string) (int, error) {
	r.mu.Lock()
	busy := r.busy
	r.mu.Unlock()
	if busy {
		return 0, ErrBusy
	}

	added := 0
	for _, raw := range paths {
		path, err := Canonical(raw)
		if err != nil {
			r.logger.Warn("registry.add.skip", "path", raw, "reason", err.Error())
			continue
		}

		r.mu.RLock()
		_, exists := r.byPath[path]
		r.mu.RUnlock()
		if exists {
			continue
		}

		if err := r.probe(path); err != nil {
			r.logger.Warn("registry.add.skip", "path", path, "reason", err.Error())
			continue
		}

		r.mu.Lock()
		if r.busy {
			r.mu.Unlock()
			return added, ErrBusy
		}
		if _, exists := r.byPath[path]; !exists {
			record := &domain.FileRecord{
				ID:          r.newID(),
				Path:        path,
				DisplayName: filepath.Base(path),
				Status:      domain.RecordStatusPending,
				UpdatedAt:   r.now().UTC(),
			}
			r.records = append(r.records, record)
			r.byID[record.ID] = record
			r.byPath[path] = record
			added++
		}
		r.mu.Unlock()
	}
	return added, nil
}

// Canonical resolves a path to its cleaned absolute form.
func Canonical(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("empty path")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", trimmed, err)
	}
	return filepath.Clean(abs), nil
}

// Clear removes every record.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return ErrBusy
	}
	r.records = nil
	r.byID = make(map[string]*domain.FileRecord)
	r.byPath = make(map[string]*domain.FileRecord)
	return nil
}

// ToggleSelected flips one record's selection flag.
func (r *Registry) ToggleSelected(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	record.Selected = !record.Selected
	return record.Selected, nil
}

// SelectAll sets every record's selection flag.
func (r *Registry) SelectAll(selected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		record.Selected = selected
	}
}

// Get returns a copy of one record.
func (r *Registry) Get(id string) (domain.FileRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.byID[id]
	if !ok {
		return domain.FileRecord{}, false
	}
	return clone(record), true
}

// List returns copies of all records in insertion order.
func (r *Registry) List() []domain.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.FileRecord, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, clone(record))
	}
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// SelectedIDs returns selected record IDs in insertion order.
func (r *Registry) SelectedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, record := range r.records {
		if record.Selected {
			ids = append(ids, record.ID)
		}
	}
	return ids
}

// IDs returns every record ID in insertion order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.records))
	for _, record := range r.records {
		ids = append(ids, record.ID)
	}
	return ids
}

// SetFields stores user-edited metadata text for a record.
func (r *Registry) SetFields(id, title string, keywords []string, description string) (domain.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return domain.FileRecord{}, ErrBusy
	}
	record, ok := r.byID[id]
	if !ok {
		return domain.FileRecord{}, ErrNotFound
	}
	record.Title = strings.TrimSpace(title)
	record.Keywords = domain.SplitKeywords(domain.JoinKeywords(keywords))
	record.Description = strings.TrimSpace(description)
	record.UpdatedAt = r.now().UTC()
	return clone(record), nil
}

// ResetToPending returns the named records to pending so they can be retried.
// Unknown IDs are ignored. It returns the number of records reset.
func (r *Registry) ResetToPending(ids []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return 0, ErrBusy
	}
	reset := 0
	for _, id := range ids {
		record, ok := r.byID[id]
		if !ok {
			continue
		}
		record.Status = domain.RecordStatusPending
		record.Reason = ""
		record.UpdatedAt = r.now().UTC()
		reset++
	}
	return reset, nil
}

// BeginSession marks the registry busy. Only one session may hold it.
func (r *Registry) BeginSession() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return ErrBusy
	}
	r.busy = true
	return nil
}

// EndSession releases the busy flag.
func (r *Registry) EndSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
}

// Busy reports whether a session holds the registry.
func (r *Registry) Busy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.busy
}

// Update applies fn to one record under the registry lock and returns the result.
// It is the mutation path used by the batch worker.
func (r *Registry) Update(id string, fn func(*domain.FileRecord)) (domain.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.byID[id]
	if !ok {
		return domain.FileRecord{}, ErrNotFound
	}
	fn(record)
	record.UpdatedAt = r.now().UTC()
	return clone(record), nil
}

func clone(record *domain.FileRecord) domain.FileRecord {
	out := *record
	out.Keywords = append([]string(nil), record.Keywords...)
	return out
}
