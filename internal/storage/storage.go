// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"alertflow/internal/model"
)

// EventUpdate carries the mutable fields written on every re-sighting of a
// fingerprint. Identity fields are never touched after insert.
type EventUpdate struct {
	Title       string
	Description string
	Status      model.Status
	EndTime     *time.Time
	RawData     json.RawMessage
}

// Storage is the interface for all persistence operations.
type Storage interface {
	// Source registry.
	CreateSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id string) (*model.Source, error)
	ListEnabledSources(ctx context.Context) ([]model.Source, error)
	// TouchPoll stamps lastPollAt, and on success stamps lastSuccessAt and
	// resets the failure counter; on failure it increments the counter.
	// Returns the failure count after the update.
	TouchPoll(ctx context.Context, id string, success bool) (int, error)
	SetSourceEnabled(ctx context.Context, id string, enabled bool) error

	// Event store, keyed by fingerprint.
	FindEventByFingerprint(ctx context.Context, fingerprint string) (*model.StoredEvent, error)
	InsertEvent(ctx context.Context, ev *model.StoredEvent) error
	UpdateEventFields(ctx context.Context, fingerprint string, upd EventUpdate) error
	InsertChangeAudit(ctx context.Context, audit *model.ChangeAudit) error

	// Ingestion log, append-only.
	AppendIngestionLog(ctx context.Context, entry *model.IngestionLog) error

	// Subscribers.
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)

	// Durable notification queue.
	EnqueueJob(ctx context.Context, job *model.NotificationJob) error
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]model.NotificationJob, error)
	MarkJobDelivered(ctx context.Context, id string) error
	RescheduleJob(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error
	MarkJobFailed(ctx context.Context, id string, lastError string) error

	Close() error
}
