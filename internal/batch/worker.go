package batch

import (
	"time"

	"imagemeta/internal/domain"
	"imagemeta/internal/generator"
	"imagemeta/internal/jobs"
)

// worker processes one session's items in order.
type worker struct {
	scheduler *Scheduler
	sessionID string
	items     []string
	generator Generator
	embedder  Embedder
	processed int
	// completed counts items that ended Completed; only these go into usage stats.
	completed int
}

func (w *worker) run() {
	s := w.scheduler
	started := s.now()
	halted := false

	for i, id := range w.items {
		if !w.waitTurn() {
			w.markStopped(w.items[i:])
			halted = true
			break
		}
		if fatal := w.process(id); fatal {
			s.stopped.Store(true)
			w.markStopped(w.items[i+1:])
			halted = true
			break
		}
	}

	final := domain.SessionStateFinished
	eventType := jobs.EventTypeFinished
	if halted {
		final = domain.SessionStateStopped
		eventType = jobs.EventTypeStopped
	}
	if final == domain.SessionStateFinished && s.jobs.State() == domain.SessionStatePaused {
		_ = s.jobs.Transition(domain.SessionStateRunning)
	}
	if err := s.jobs.Transition(final); err != nil {
		s.logger.Error("batch.session.transition_failed", "session_id", w.sessionID, "error", err)
	}
	s.registry.EndSession()

	elapsed := s.now().Sub(started)
	if s.stats != nil && w.completed > 0 {
		if _, err := s.stats.Record(w.completed, elapsed); err != nil {
			s.logger.Warn("batch.stats.save_failed", "error", err)
		}
	}

	s.publish(jobs.Event{
		SessionID: w.sessionID,
		Type:      eventType,
		State:     final,
		Processed: w.processed,
		Total:     len(w.items),
	})
	s.logger.Info("batch.session.end",
		"session_id", w.sessionID,
		"state", final,
		"processed", w.processed,
		"completed", w.completed,
		"total", len(w.items),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// waitTurn blocks while paused. It returns false once a stop is requested.
func (w *worker) waitTurn() bool {
	s := w.scheduler
	for s.paused.Load() {
		if s.stopped.Load() {
			return false
		}
		timer := time.NewTimer(s.pollInterval)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
	return !s.stopped.Load() && s.ctx.Err() == nil
}

// process handles one item and reports whether the failure must halt the batch.
func (w *worker) process(id string) bool {
	s := w.scheduler
	record, err := s.registry.Update(id, func(r *domain.FileRecord) {
		r.Status = domain.RecordStatusProcessing
		r.Reason = ""
	})
	if err != nil {
		// Clear is refused while the registry is busy.
		w.processed++
		return false
	}
	w.emit(record)
	s.logger.Debug("batch.item.start", "session_id", w.sessionID, "path", record.Path)

	meta, err := w.generator.Generate(s.ctx, record.Path, s.limits)
	if err != nil {
		classified := generator.Classify(err)
		reason := classified.Reason
		if reason == "" {
			reason = string(classified.Kind)
		}
		record, _ = s.registry.Update(id, func(r *domain.FileRecord) {
			r.Status = domain.RecordStatusError
			r.Reason = generator.Truncate(reason, generator.MaxReasonLength)
		})
		w.finishItem(record)
		s.logger.Warn("batch.item.failed",
			"session_id", w.sessionID,
			"path", record.Path,
			"kind", classified.Kind,
			"reason", reason,
		)
		if classified.Fatal() {
			s.publish(jobs.Event{
				SessionID: w.sessionID,
				Type:      jobs.EventTypeError,
				Message:   record.Reason,
				Processed: w.processed,
				Total:     len(w.items),
			})
			return true
		}
		return false
	}

	record, _ = s.registry.Update(id, func(r *domain.FileRecord) {
		r.Status = domain.RecordStatusCompleted
		r.Reason = ""
		r.Title = meta.Title
		r.Keywords = append([]string(nil), meta.Keywords...)
		r.Description = meta.Description
	})

	if w.embedder != nil {
		if err := w.embedder.Apply(record.Path, domain.FieldsFromRecord(record)); err != nil {
			record, _ = s.registry.Update(id, func(r *domain.FileRecord) {
				r.Status = domain.RecordStatusError
				r.Reason = generator.Truncate("Metadata write failed: "+err.Error(), generator.MaxReasonLength)
			})
			s.logger.Warn("batch.item.embed_failed", "session_id", w.sessionID, "path", record.Path, "error", err)
		}
	}

	if record.Status == domain.RecordStatusCompleted {
		w.completed++
	}
	if record.Status == domain.RecordStatusCompleted && s.sink != nil {
		if err := s.sink.Save(s.ctx, record, s.modelName); err != nil {
			s.logger.Warn("batch.history.save_failed", "path", record.Path, "error", err)
		}
	}
	w.finishItem(record)
	s.logger.Info("batch.item.done", "session_id", w.sessionID, "path", record.Path, "status", record.Status)
	return false
}

func (w *worker) finishItem(record domain.FileRecord) {
	w.processed++
	w.scheduler.jobs.SetProcessed(w.processed)
	w.emit(record)
}

func (w *worker) emit(record domain.FileRecord) {
	w.scheduler.publish(jobs.Event{
		SessionID: w.sessionID,
		Type:      jobs.EventTypeItem,
		State:     w.scheduler.jobs.State(),
		Record:    &record,
		Processed: w.processed,
		Total:     len(w.items),
	})
}

// markStopped flags items that were never attempted.
func (w *worker) markStopped(ids []string) {
	for _, id := range ids {
		record, err := w.scheduler.registry.Update(id, func(r *domain.FileRecord) {
			r.Status = domain.RecordStatusStopped
			r.Reason = ""
		})
		if err == nil {
			w.emit(record)
		}
	}
}
