package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"alertflow/internal/model"
)

// CreateSubscription inserts a new subscriber and populates its ID.
func (s *SQLite) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(timeLayout)

	categories := sub.Categories
	if len(categories) == 0 {
		categories = []string{"*"}
	}
	cats, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	district := sub.District
	if district == "" {
		district = "*"
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, chat_id, categories, district, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sub.ID, sub.ChatID, string(cats), district, now,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	sub.Categories = categories
	sub.District = district
	sub.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListSubscriptions returns all subscribers.
func (s *SQLite) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, categories, district, created_at FROM subscriptions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		var cats string
		var created sql.NullString
		if err := rows.Scan(&sub.ID, &sub.ChatID, &cats, &sub.District, &created); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if err := json.Unmarshal([]byte(cats), &sub.Categories); err != nil {
			return nil, fmt.Errorf("unmarshal categories: %w", err)
		}
		if created.Valid {
			sub.CreatedAt, _ = time.Parse(timeLayout, created.String)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// EnqueueJob adds a notification job to the durable queue, immediately due.
func (s *SQLite) EnqueueJob(ctx context.Context, job *model.NotificationJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = now
	}
	job.Status = model.JobPending

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_jobs (id, event_key, category, severity, title, district,
		                                status, attempts, next_attempt_at, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?)`,
		job.ID, job.EventKey, string(job.Category), string(job.Severity), job.Title,
		job.District, string(job.Status), job.Attempts,
		job.NextAttemptAt.UTC().Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	job.CreatedAt = now
	return nil
}

// ClaimDueJobs atomically moves up to limit due pending jobs to the
// delivering state and returns them. A claimed job that never completes
// stays in delivering until an operator intervenes; the single-process
// model makes that an operational event, not a correctness hazard.
func (s *SQLite) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]model.NotificationJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, event_key, category, severity, title, district, status, attempts,
		        next_attempt_at, last_error, created_at
		 FROM notification_jobs
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at LIMIT ?`,
		string(model.JobPending), now.UTC().Format(timeLayout), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}

	var jobs []model.NotificationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range jobs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE notification_jobs SET status = ? WHERE id = ?`,
			string(model.JobDelivering), jobs[i].ID,
		); err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		jobs[i].Status = model.JobDelivering
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return jobs, nil
}

// MarkJobDelivered records successful completion of a job.
func (s *SQLite) MarkJobDelivered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notification_jobs SET status = ? WHERE id = ?`,
		string(model.JobDelivered), id,
	)
	if err != nil {
		return fmt.Errorf("mark job delivered: %w", err)
	}
	return nil
}

// RescheduleJob returns a failed job to the pending state with a future
// attempt time.
func (s *SQLite) RescheduleJob(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notification_jobs SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?
		 WHERE id = ?`,
		string(model.JobPending), attempts, nextAttemptAt.UTC().Format(timeLayout), lastError, id,
	)
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	return nil
}

// MarkJobFailed records terminal failure of a job after retries exhausted.
func (s *SQLite) MarkJobFailed(ctx context.Context, id string, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notification_jobs SET status = ?, last_error = ? WHERE id = ?`,
		string(model.JobFailed), lastError, id,
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

func scanJob(row scannable) (model.NotificationJob, error) {
	var job model.NotificationJob
	var category, severity, status, nextStr string
	var created sql.NullString
	err := row.Scan(&job.ID, &job.EventKey, &category, &severity, &job.Title,
		&job.District, &status, &job.Attempts, &nextStr, &job.LastError, &created)
	if err != nil {
		return job, fmt.Errorf("scan job: %w", err)
	}
	job.Category = model.Category(category)
	job.Severity = model.Severity(severity)
	job.Status = model.JobStatus(status)
	job.NextAttemptAt, _ = time.Parse(timeLayout, nextStr)
	if created.Valid {
		job.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return job, nil
}
