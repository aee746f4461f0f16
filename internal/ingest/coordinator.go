// Package ingest performs insert-or-update of normalized events against
// the event store, records change audits, and enqueues notifications.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"alertflow/internal/event"
	"alertflow/internal/model"
	"alertflow/internal/observability"
	"alertflow/internal/storage"
)

// maxConsecutiveFailures is the circuit-breaker threshold: a source that
// fails this many polls in a row is disabled until manually re-enabled.
const maxConsecutiveFailures = 10

// BatchResult reports the outcome of processing one source poll's events.
type BatchResult struct {
	SourceID        string
	Found           int
	Created         int
	Updated         int
	Errors          []string
	EnqueueFailures int
}

// Status derives the ingestion-log status for the batch.
func (r BatchResult) Status() model.IngestionStatus {
	if len(r.Errors) > 0 {
		return model.IngestionPartial
	}
	return model.IngestionSuccess
}

// Coordinator applies batches of normalized events to the store.
type Coordinator struct {
	store   storage.Storage
	log     *slog.Logger
	metrics *observability.Metrics
}

// New creates a Coordinator.
func New(store storage.Storage, log *slog.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{store: store, log: log, metrics: metrics}
}

// ProcessBatch upserts each event independently. A per-event store failure
// is recorded in the result and does not abort the rest of the batch.
func (c *Coordinator) ProcessBatch(ctx context.Context, source model.Source, events []model.NormalizedEvent) BatchResult {
	result := BatchResult{SourceID: source.ID, Found: len(events)}

	for _, ev := range events {
		created, notify, err := c.upsertEvent(ctx, ev)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("event %s: %v", ev.OriginalID, err))
			continue
		}
		if created {
			result.Created++
			c.metrics.EventsCreated.Inc()
		} else {
			result.Updated++
			c.metrics.EventsUpdated.Inc()
		}
		if notify {
			if err := c.enqueueNotification(ctx, ev); err != nil {
				// Losing a notification is non-fatal to ingestion but must
				// stay observable.
				result.EnqueueFailures++
				c.metrics.EnqueueFailures.Inc()
				c.log.Error("enqueue notification", "source_id", source.ID, "original_id", ev.OriginalID, "error", err)
			} else {
				c.metrics.NotificationsEnqueued.Inc()
			}
		}
	}

	return result
}

// upsertEvent applies one normalized event against the store. Returns
// whether the event was created and whether it warrants a notification.
func (c *Coordinator) upsertEvent(ctx context.Context, ev model.NormalizedEvent) (created, notify bool, err error) {
	fp := event.Fingerprint(ev)

	existing, err := c.store.FindEventByFingerprint(ctx, fp)
	if err != nil {
		return false, false, err
	}

	if existing == nil {
		stored := storedFromNormalized(fp, ev)
		if err := c.store.InsertEvent(ctx, &stored); err != nil {
			return false, false, err
		}
		return true, true, nil
	}

	meaningful := event.HasMeaningfulChange(*existing, ev)

	// Mutable fields are overwritten on every sighting, meaningful or not.
	err = c.store.UpdateEventFields(ctx, fp, storage.EventUpdate{
		Title:       ev.Title,
		Description: ev.Description,
		Status:      ev.Status,
		EndTime:     ev.EndTime,
		RawData:     ev.RawData,
	})
	if err != nil {
		return false, false, err
	}

	if meaningful {
		audit := model.ChangeAudit{
			EventID:       existing.ID,
			ChangedFields: event.ChangedFields(*existing, ev),
			Previous: model.ChangeSnapshot{
				Severity:  existing.Severity,
				Status:    existing.Status,
				Latitude:  existing.Latitude,
				Longitude: existing.Longitude,
				StartTime: existing.StartTime,
			},
			New: model.ChangeSnapshot{
				Severity:  ev.Severity,
				Status:    ev.Status,
				Latitude:  event.FormatCoord(ev.Latitude),
				Longitude: event.FormatCoord(ev.Longitude),
				StartTime: ev.StartTime,
			},
		}
		if err := c.store.InsertChangeAudit(ctx, &audit); err != nil {
			return false, false, err
		}
		c.metrics.ChangesLogged.Inc()
	}

	return false, meaningful, nil
}

func (c *Coordinator) enqueueNotification(ctx context.Context, ev model.NormalizedEvent) error {
	return c.store.EnqueueJob(ctx, &model.NotificationJob{
		EventKey: ev.SourceID + "-" + ev.OriginalID,
		Category: ev.Category,
		Severity: ev.Severity,
		Title:    ev.Title,
		District: ev.District,
	})
}

// RecordSuccess appends the ingestion log for a completed poll and resets
// the source's failure counter.
func (c *Coordinator) RecordSuccess(ctx context.Context, source model.Source, result BatchResult, startedAt time.Time) {
	c.appendLog(ctx, source.ID, result, result.Status(), startedAt)

	if _, err := c.store.TouchPoll(ctx, source.ID, true); err != nil {
		c.log.Error("touch poll", "source_id", source.ID, "error", err)
	}
	c.metrics.Polls.WithLabelValues(string(result.Status())).Inc()
}

// RecordFailure appends an error log entry, bumps the failure counter, and
// trips the circuit breaker once the threshold is reached.
func (c *Coordinator) RecordFailure(ctx context.Context, source model.Source, pollErr error, startedAt time.Time) {
	result := BatchResult{SourceID: source.ID, Errors: []string{pollErr.Error()}}
	c.appendLog(ctx, source.ID, result, model.IngestionError, startedAt)
	c.metrics.Polls.WithLabelValues(string(model.IngestionError)).Inc()

	failures, err := c.store.TouchPoll(ctx, source.ID, false)
	if err != nil {
		c.log.Error("touch poll", "source_id", source.ID, "error", err)
		return
	}

	if failures >= maxConsecutiveFailures {
		if err := c.store.SetSourceEnabled(ctx, source.ID, false); err != nil {
			c.log.Error("disable source", "source_id", source.ID, "error", err)
			return
		}
		c.log.Warn("source auto-disabled after consecutive failures",
			"source_id", source.ID, "name", source.Name, "failures", failures)
	}
}

func (c *Coordinator) appendLog(ctx context.Context, sourceID string, result BatchResult, status model.IngestionStatus, startedAt time.Time) {
	message := "Completed successfully"
	if n := len(result.Errors); n > 0 {
		message = fmt.Sprintf("Completed with %d errors: %s", n, result.Errors[0])
	}
	now := time.Now().UTC()
	entry := model.IngestionLog{
		SourceID:      sourceID,
		Status:        status,
		Message:       message,
		EventsFound:   result.Found,
		EventsCreated: result.Created,
		EventsUpdated: result.Updated,
		StartedAt:     startedAt,
		CompletedAt:   &now,
	}
	if err := c.store.AppendIngestionLog(ctx, &entry); err != nil {
		c.log.Error("append ingestion log", "source_id", sourceID, "error", err)
	}
}

func storedFromNormalized(fp string, ev model.NormalizedEvent) model.StoredEvent {
	return model.StoredEvent{
		Fingerprint:  fp,
		SourceID:     ev.SourceID,
		OriginalID:   ev.OriginalID,
		Title:        ev.Title,
		Description:  ev.Description,
		Severity:     ev.Severity,
		Category:     ev.Category,
		Status:       ev.Status,
		StartTime:    ev.StartTime,
		EndTime:      ev.EndTime,
		District:     ev.District,
		LocationName: ev.LocationName,
		Latitude:     event.FormatCoord(ev.Latitude),
		Longitude:    event.FormatCoord(ev.Longitude),
		OriginalURL:  ev.OriginalURL,
		RawData:      ev.RawData,
	}
}
