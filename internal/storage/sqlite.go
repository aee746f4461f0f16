package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"alertflow/internal/model"
	"alertflow/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSource inserts a new source and populates its ID and CreatedAt.
func (s *SQLite) CreateSource(ctx context.Context, src *model.Source) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(timeLayout)
	cfg := src.Config
	if cfg == nil {
		cfg = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, name, kind, url, polling_interval_seconds, enabled, config, failure_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		src.ID, src.Name, string(src.Kind), src.URL, src.PollingIntervalSeconds,
		boolToInt(src.Enabled), string(cfg), now,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	src.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSource returns a single source by its ID.
func (s *SQLite) GetSource(ctx context.Context, id string) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, url, polling_interval_seconds, enabled, config,
		        last_poll_at, last_success_at, failure_count, created_at
		 FROM sources WHERE id = ?`, id,
	)
	return scanSource(row)
}

// ListEnabledSources returns all sources eligible for scheduling.
func (s *SQLite) ListEnabledSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, url, polling_interval_seconds, enabled, config,
		        last_poll_at, last_success_at, failure_count, created_at
		 FROM sources WHERE enabled = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query enabled sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// TouchPoll updates a source's poll bookkeeping and returns the failure
// count after the update.
func (s *SQLite) TouchPoll(ctx context.Context, id string, success bool) (int, error) {
	now := time.Now().UTC().Format(timeLayout)
	var err error
	if success {
		_, err = s.db.ExecContext(ctx,
			`UPDATE sources SET last_poll_at = ?, last_success_at = ?, failure_count = 0 WHERE id = ?`,
			now, now, id,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE sources SET last_poll_at = ?, failure_count = failure_count + 1 WHERE id = ?`,
			now, id,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("touch poll: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT failure_count FROM sources WHERE id = ?`, id,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("read failure count: %w", err)
	}
	return count, nil
}

// SetSourceEnabled flips a source's enabled flag.
func (s *SQLite) SetSourceEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET enabled = ? WHERE id = ?`, boolToInt(enabled), id,
	)
	if err != nil {
		return fmt.Errorf("set source enabled: %w", err)
	}
	return nil
}

// FindEventByFingerprint returns the stored event for a fingerprint, or
// nil when the fingerprint has never been seen.
func (s *SQLite) FindEventByFingerprint(ctx context.Context, fingerprint string) (*model.StoredEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fingerprint, source_id, original_id, title, description, severity, category,
		        status, start_time, end_time, district, location_name, latitude, longitude,
		        original_url, raw_data, created_at, updated_at
		 FROM events WHERE fingerprint = ?`, fingerprint,
	)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ev, err
}

// InsertEvent stores a first sighting of a fingerprint.
func (s *SQLite) InsertEvent(ctx context.Context, ev *model.StoredEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(timeLayout)
	raw := ev.RawData
	if raw == nil {
		raw = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, fingerprint, source_id, original_id, title, description, severity,
		                     category, status, start_time, end_time, district, location_name,
		                     latitude, longitude, original_url, raw_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Fingerprint, ev.SourceID, ev.OriginalID, ev.Title, ev.Description,
		string(ev.Severity), string(ev.Category), string(ev.Status),
		ev.StartTime.UTC().Format(timeLayout), optTimeString(ev.EndTime),
		ev.District, ev.LocationName, ev.Latitude, ev.Longitude, ev.OriginalURL,
		string(raw), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	ev.CreatedAt, _ = time.Parse(timeLayout, now)
	ev.UpdatedAt = ev.CreatedAt
	return nil
}

// UpdateEventFields overwrites the mutable fields of the event identified
// by fingerprint.
func (s *SQLite) UpdateEventFields(ctx context.Context, fingerprint string, upd EventUpdate) error {
	now := time.Now().UTC().Format(timeLayout)
	raw := upd.RawData
	if raw == nil {
		raw = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, status = ?, end_time = ?, raw_data = ?, updated_at = ?
		 WHERE fingerprint = ?`,
		upd.Title, upd.Description, string(upd.Status), optTimeString(upd.EndTime),
		string(raw), now, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// InsertChangeAudit appends one change-audit row for an event.
func (s *SQLite) InsertChangeAudit(ctx context.Context, audit *model.ChangeAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	fields, err := json.Marshal(audit.ChangedFields)
	if err != nil {
		return fmt.Errorf("marshal changed fields: %w", err)
	}
	prev, err := json.Marshal(audit.Previous)
	if err != nil {
		return fmt.Errorf("marshal previous snapshot: %w", err)
	}
	next, err := json.Marshal(audit.New)
	if err != nil {
		return fmt.Errorf("marshal new snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO event_changes (id, event_id, changed_fields, previous_data, new_data, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		audit.ID, audit.EventID, string(fields), string(prev), string(next),
		now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert change audit: %w", err)
	}
	audit.DetectedAt = now
	return nil
}

// AppendIngestionLog records the outcome of one source poll.
func (s *SQLite) AppendIngestionLog(ctx context.Context, entry *model.IngestionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestion_logs (id, source_id, status, message, events_found, events_created,
		                             events_updated, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SourceID, string(entry.Status), entry.Message,
		entry.EventsFound, entry.EventsCreated, entry.EventsUpdated,
		entry.StartedAt.UTC().Format(timeLayout), optTimeString(entry.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ingestion log: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func optTimeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var kind, cfg string
	var enabled int
	var lastPoll, lastSuccess, created sql.NullString
	err := row.Scan(&src.ID, &src.Name, &kind, &src.URL, &src.PollingIntervalSeconds,
		&enabled, &cfg, &lastPoll, &lastSuccess, &src.FailureCount, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Kind = model.SourceKind(kind)
	src.Enabled = enabled == 1
	src.Config = json.RawMessage(cfg)
	if lastPoll.Valid {
		t, _ := time.Parse(timeLayout, lastPoll.String)
		src.LastPollAt = &t
	}
	if lastSuccess.Valid {
		t, _ := time.Parse(timeLayout, lastSuccess.String)
		src.LastSuccessAt = &t
	}
	if created.Valid {
		src.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &src, nil
}

func scanEvent(row scannable) (*model.StoredEvent, error) {
	var ev model.StoredEvent
	var severity, category, status, raw string
	var startStr string
	var endStr, createdStr, updatedStr sql.NullString
	err := row.Scan(&ev.ID, &ev.Fingerprint, &ev.SourceID, &ev.OriginalID, &ev.Title,
		&ev.Description, &severity, &category, &status, &startStr, &endStr,
		&ev.District, &ev.LocationName, &ev.Latitude, &ev.Longitude,
		&ev.OriginalURL, &raw, &createdStr, &updatedStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	ev.Severity = model.Severity(severity)
	ev.Category = model.Category(category)
	ev.Status = model.Status(status)
	ev.RawData = json.RawMessage(raw)
	ev.StartTime, _ = time.Parse(timeLayout, startStr)
	if endStr.Valid {
		t, _ := time.Parse(timeLayout, endStr.String)
		ev.EndTime = &t
	}
	if createdStr.Valid {
		ev.CreatedAt, _ = time.Parse(timeLayout, createdStr.String)
	}
	if updatedStr.Valid {
		ev.UpdatedAt, _ = time.Parse(timeLayout, updatedStr.String)
	}
	return &ev, nil
}
