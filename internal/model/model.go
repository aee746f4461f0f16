// Package model defines the domain types used across the application.
package model

import (
	"encoding/json"
	"time"
)

// SourceKind identifies the adapter used to poll a source.
type SourceKind string

// Supported source kinds.
const (
	KindFeed       SourceKind = "feed"
	KindWeather    SourceKind = "weather"
	KindAirQuality SourceKind = "air_quality"
	KindOutage     SourceKind = "outage"
)

// Severity is the impact level assigned to an event.
type Severity string

// Severity levels, ordered from least to most severe.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category classifies an event by subject area.
type Category string

// Event categories.
const (
	CategoryWeather      Category = "weather"
	CategoryTraffic      Category = "traffic"
	CategoryPublicSafety Category = "public_safety"
	CategoryHealth       Category = "health"
	CategoryUtility      Category = "utility"
	CategoryOther        Category = "other"
)

// Status tracks the lifecycle of an event.
type Status string

// Event statuses. Resolution is modeled via status, never deletion.
const (
	StatusActive    Status = "active"
	StatusUpdated   Status = "updated"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
)

// Source is the configuration for one external feed, API, or page.
type Source struct {
	ID                     string
	Name                   string
	Kind                   SourceKind
	URL                    string
	PollingIntervalSeconds int
	Enabled                bool
	Config                 json.RawMessage
	LastPollAt             *time.Time
	LastSuccessAt          *time.Time
	FailureCount           int
	CreatedAt              time.Time
}

// WeatherConfig is the typed config bag for weather sources.
// Missing keys fall back to defaults rather than failing.
type WeatherConfig struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
}

// AirQualityConfig is the typed config bag for air-quality sources.
type AirQualityConfig struct {
	City     string `json:"city"`
	Endpoint string `json:"endpoint"`
}

// OutageConfig is the typed config bag for HTML-scraped outage sources.
type OutageConfig struct {
	City     string `json:"city"`
	District string `json:"district"`
}

// NormalizedEvent is the canonical, source-agnostic event shape produced
// by an adapter. It is never mutated after normalization.
type NormalizedEvent struct {
	SourceID     string
	OriginalID   string
	Title        string
	Description  string
	Severity     Severity
	Category     Category
	Status       Status
	StartTime    time.Time
	EndTime      *time.Time
	District     string
	LocationName string
	Latitude     *float64
	Longitude    *float64
	OriginalURL  string
	RawData      json.RawMessage
}

// StoredEvent is the persisted form of an event, keyed by fingerprint.
// Coordinates are kept as text to preserve decimal precision.
type StoredEvent struct {
	ID           string
	Fingerprint  string
	SourceID     string
	OriginalID   string
	Title        string
	Description  string
	Severity     Severity
	Category     Category
	Status       Status
	StartTime    time.Time
	EndTime      *time.Time
	District     string
	LocationName string
	Latitude     string
	Longitude    string
	OriginalURL  string
	RawData      json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChangeAudit records one detected meaningful change to a stored event.
type ChangeAudit struct {
	ID            string
	EventID       string
	ChangedFields []string
	Previous      ChangeSnapshot
	New           ChangeSnapshot
	DetectedAt    time.Time
}

// ChangeSnapshot captures the fields consulted by change detection.
type ChangeSnapshot struct {
	Severity  Severity  `json:"severity"`
	Status    Status    `json:"status"`
	Latitude  string    `json:"latitude,omitempty"`
	Longitude string    `json:"longitude,omitempty"`
	StartTime time.Time `json:"startTime"`
}

// IngestionStatus summarizes the outcome of one source poll.
type IngestionStatus string

// Ingestion log statuses.
const (
	IngestionSuccess IngestionStatus = "success"
	IngestionPartial IngestionStatus = "partial"
	IngestionError   IngestionStatus = "error"
)

// IngestionLog is one append-only record per source poll.
type IngestionLog struct {
	ID            string
	SourceID      string
	Status        IngestionStatus
	Message       string
	EventsFound   int
	EventsCreated int
	EventsUpdated int
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// Subscription declares a subscriber's interest in event categories and a
// district. "*" matches everything.
type Subscription struct {
	ID         string
	ChatID     int64
	Categories []string
	District   string
	CreatedAt  time.Time
}

// Matches reports whether the subscription covers the given event
// category and district.
func (s Subscription) Matches(category Category, district string) bool {
	matched := false
	for _, c := range s.Categories {
		if c == "*" || c == string(category) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	return s.District == "*" || s.District == "" || s.District == district
}

// JobStatus tracks a notification job through the durable queue.
type JobStatus string

// Notification job statuses.
const (
	JobPending    JobStatus = "pending"
	JobDelivering JobStatus = "delivering"
	JobDelivered  JobStatus = "delivered"
	JobFailed     JobStatus = "failed"
)

// NotificationJob is one queued unit of notification work, keyed by the
// logical event identity (source + original id).
type NotificationJob struct {
	ID            string
	EventKey      string
	Category      Category
	Severity      Severity
	Title         string
	District      string
	Status        JobStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
}
