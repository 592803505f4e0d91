// Package batch runs metadata generation over a selection of registry records
// on a single background worker.
package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"imagemeta/internal/domain"
	"imagemeta/internal/generator"
	"imagemeta/internal/jobs"
	"imagemeta/internal/registry"
)

var (
	// ErrEmptySelection is returned when no selected record still needs processing.
	ErrEmptySelection = errors.New("no unprocessed images selected")
	// ErrNoCredential is returned when no generator credential is configured.
	ErrNoCredential = errors.New("no API credential configured")
)

// DefaultPollInterval is how often a paused worker re-checks its flags.
const DefaultPollInterval = 100 * time.Millisecond

// Generator produces metadata for one image path.
type Generator interface {
	Generate(ctx context.Context, path string, limits domain.Limits) (generator.Metadata, error)
}

// Embedder writes fields into an image file.
type Embedder interface {
	Apply(path string, fields domain.Fields) error
}

// ResultSink receives every completed record.
type ResultSink interface {
	Save(ctx context.Context, record domain.FileRecord, model string) error
}

// StatsRecorder accumulates usage counters at the end of a session.
type StatsRecorder interface {
	Record(files int, elapsed time.Duration) (domain.UsageStats, error)
}

// Scheduler owns the batch session lifecycle. Control calls (Pause, Resume,
// Stop) only flip flags; the worker observes them between items.
type Scheduler struct {
	registry *registry.Registry
	jobs     *jobs.Manager
	events   *jobs.EventBus
	logger   *slog.Logger

	embedder      Embedder
	sink          ResultSink
	stats         StatsRecorder
	limits        domain.Limits
	pollInterval  time.Duration
	embedOnDone   bool
	modelName     string
	hasCredential func() bool
	newID         func() string
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	generator Generator
	done      chan struct{}

	paused  atomic.Bool
	stopped atomic.Bool
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithEventBus sets the bus progress events are published to.
func WithEventBus(bus *jobs.EventBus) Option {
	return func(s *Scheduler) {
		if bus != nil {
			s.events = bus
		}
	}
}

// WithManager sets the session state machine.
func WithManager(m *jobs.Manager) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.jobs = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEmbedder writes generated fields into each file as soon as it completes.
func WithEmbedder(e Embedder) Option {
	return func(s *Scheduler) {
		s.embedder = e
		s.embedOnDone = e != nil
	}
}

// WithResultSink sets where completed records are persisted.
func WithResultSink(sink ResultSink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithStats sets the usage statistics recorder.
func WithStats(stats StatsRecorder) Option {
	return func(s *Scheduler) { s.stats = stats }
}

// WithLimits sets the limits passed to the generator.
func WithLimits(limits domain.Limits) Option {
	return func(s *Scheduler) { s.limits = limits }
}

// WithPollInterval sets how often a paused worker wakes up.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithModelName labels history entries with the model that produced them.
func WithModelName(name string) Option {
	return func(s *Scheduler) { s.modelName = name }
}

// WithCredentialCheck sets the function consulted before a session starts.
func WithCredentialCheck(fn func() bool) Option {
	return func(s *Scheduler) { s.hasCredential = fn }
}

// New creates an idle scheduler over reg. gen may be nil until a credential
// is configured; see SetGenerator.
func New(reg *registry.Registry, gen Generator, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		registry:      reg,
		generator:     gen,
		jobs:          jobs.NewManager(),
		events:        jobs.NewEventBus(1000),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		limits:        domain.DefaultLimits(),
		pollInterval:  DefaultPollInterval,
		hasCredential: func() bool { return true },
		newID:         uuid.NewString,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events returns the progress bus.
func (s *Scheduler) Events() *jobs.EventBus { return s.events }

// Session returns a snapshot of the current session.
func (s *Scheduler) Session() domain.Session { return s.jobs.Current() }

// SetGenerator swaps the generator used by future sessions.
func (s *Scheduler) SetGenerator(gen Generator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs.IsActive() {
		return jobs.ErrAlreadyRunning
	}
	s.generator = gen
	return nil
}

// SetEmbedOnComplete toggles writing metadata as each item completes.
func (s *Scheduler) SetEmbedOnComplete(e Embedder, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs.IsActive() {
		return jobs.ErrAlreadyRunning
	}
	s.embedder = e
	s.embedOnDone = enabled && e != nil
	return nil
}

// Start begins a session over the selected records that are not yet
// completed. A finished or stopped session is reset first.
func (s *Scheduler) Start(selection []string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobs.IsActive() {
		return domain.Session{}, jobs.ErrAlreadyRunning
	}
	if s.generator == nil || (s.hasCredential != nil && !s.hasCredential()) {
		return domain.Session{}, ErrNoCredential
	}

	items := make([]string, 0, len(selection))
	for _, id := range selection {
		record, ok := s.registry.Get(id)
		if !ok || record.Status == domain.RecordStatusCompleted {
			continue
		}
		items = append(items, id)
	}
	if len(items) == 0 {
		return domain.Session{}, ErrEmptySelection
	}

	if err := s.jobs.Reset(); err != nil {
		return domain.Session{}, err
	}
	if err := s.registry.BeginSession(); err != nil {
		return domain.Session{}, jobs.ErrAlreadyRunning
	}
	sessionID := s.newID()
	if err := s.jobs.Start(sessionID, items); err != nil {
		s.registry.EndSession()
		return domain.Session{}, err
	}

	for _, id := range items {
		_, _ = s.registry.Update(id, func(r *domain.FileRecord) {
			r.Status = domain.RecordStatusQueued
			r.Reason = ""
		})
	}

	s.paused.Store(false)
	s.stopped.Store(false)
	done := make(chan struct{})
	s.done = done

	w := worker{
		scheduler: s,
		sessionID: sessionID,
		items:     items,
		generator: s.generator,
		embedder:  nil,
	}
	if s.embedOnDone {
		w.embedder = s.embedder
	}

	session := s.jobs.Current()
	s.publish(jobs.Event{SessionID: sessionID, Type: jobs.EventTypeStatus, State: session.State, Total: len(items)})
	s.logger.Info("batch.session.start", "session_id", sessionID, "items", len(items))

	go func() {
		defer close(done)
		w.run()
	}()
	return session, nil
}

// Pause asks the worker to wait before its next item. The in-flight item completes.
func (s *Scheduler) Pause() error {
	if !s.jobs.IsActive() {
		return jobs.ErrNoActiveSession
	}
	s.paused.Store(true)
	if s.jobs.State() == domain.SessionStateRunning {
		if err := s.jobs.Transition(domain.SessionStatePaused); err == nil {
			s.publishState()
		}
	}
	return nil
}

// Resume lets a paused worker continue.
func (s *Scheduler) Resume() error {
	if !s.jobs.IsActive() {
		return jobs.ErrNoActiveSession
	}
	s.paused.Store(false)
	if s.jobs.State() == domain.SessionStatePaused {
		if err := s.jobs.Transition(domain.SessionStateRunning); err == nil {
			s.publishState()
		}
	}
	return nil
}

// Stop asks the worker to halt before its next item. An in-flight generator
// call is not aborted.
func (s *Scheduler) Stop() error {
	if !s.jobs.IsActive() {
		return jobs.ErrNoActiveSession
	}
	s.stopped.Store(true)
	s.logger.Info("batch.session.stop_requested", "session_id", s.jobs.Current().ID)
	return nil
}

// Retry returns records to pending. It does not start a session. Retry counts a
// finished or stopped session as idle, so no Reset is needed first; it is
// refused only while a session is running or paused.
func (s *Scheduler) Retry(ids []string) (int, error) {
	if s.jobs.IsActive() {
		return 0, jobs.ErrAlreadyRunning
	}
	return s.registry.ResetToPending(ids)
}

// Reset moves a finished or stopped session back to idle.
func (s *Scheduler) Reset() error {
	if err := s.jobs.Reset(); err != nil {
		return err
	}
	s.publishState()
	return nil
}

// Wait blocks until the current worker exits or timeout elapses. It reports
// whether the worker has exited.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Shutdown stops any session, cancels in-flight calls and waits for the worker.
func (s *Scheduler) Shutdown(timeout time.Duration) bool {
	s.stopped.Store(true)
	s.cancel()
	return s.Wait(timeout)
}

func (s *Scheduler) publishState() {
	session := s.jobs.Current()
	s.publish(jobs.Event{
		SessionID: session.ID,
		Type:      jobs.EventTypeStatus,
		State:     session.State,
		Processed: session.Processed,
		Total:     session.Total,
	})
}

func (s *Scheduler) publish(event jobs.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}
