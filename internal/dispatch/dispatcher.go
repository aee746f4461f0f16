// Package dispatch drains the durable notification queue and delivers
// messages to matching subscribers with rate limiting and retries.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"alertflow/internal/model"
	"alertflow/internal/observability"
	"alertflow/internal/storage"
)

const (
	defaultConcurrency   = 5
	defaultMaxAttempts   = 3
	defaultRatePerMinute = 100
	defaultClaimInterval = time.Second

	claimBatchSize = 50
	baseBackoff    = time.Second

	// maxBackoffShift bounds the doubling; past it every retry waits
	// maxBackoff.
	maxBackoffShift = 10
	maxBackoff      = baseBackoff << (maxBackoffShift - 1)
)

// Sender delivers one rendered message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Dispatcher claims due jobs from the queue and fans them out to a fixed
// worker pool. All workers share one token-bucket rate limiter so the
// aggregate send rate stays within the Telegram budget.
type Dispatcher struct {
	store   storage.Storage
	sender  Sender
	log     *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	limiter *rate.Limiter

	concurrency int
	maxAttempts int
	claimEvery  time.Duration
}

// New creates a Dispatcher with default concurrency, rate, and retry
// settings.
func New(store storage.Storage, sender Sender, log *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		sender:      sender,
		log:         log,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
		concurrency: defaultConcurrency,
		maxAttempts: defaultMaxAttempts,
		claimEvery:  defaultClaimInterval,
	}
	d.SetRatePerMinute(defaultRatePerMinute)
	return d
}

// SetConcurrency overrides the worker pool size.
func (d *Dispatcher) SetConcurrency(n int) {
	if n > 0 {
		d.concurrency = n
	}
}

// SetMaxAttempts overrides the delivery attempt limit.
func (d *Dispatcher) SetMaxAttempts(n int) {
	if n > 0 {
		d.maxAttempts = n
	}
}

// SetRatePerMinute overrides the shared send rate limit.
func (d *Dispatcher) SetRatePerMinute(n int) {
	if n > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), n)
	}
}

// SetClock overrides the wall clock (useful for testing).
func (d *Dispatcher) SetClock(c clockwork.Clock) {
	d.clock = c
}

// SetClaimInterval overrides how often the queue is polled for due jobs.
func (d *Dispatcher) SetClaimInterval(interval time.Duration) {
	if interval > 0 {
		d.claimEvery = interval
	}
}

// Run starts the claim loop and worker pool, blocking until ctx is
// cancelled. Jobs left in the delivering state by a crash become due
// again only via operator requeue; jobs in flight at shutdown are retried
// on the next start because their row was never marked delivered.
func (d *Dispatcher) Run(ctx context.Context) {
	jobs := make(chan model.NotificationJob)

	var wg sync.WaitGroup
	for i := 0; i < d.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				d.deliver(ctx, job)
			}
		}()
	}

	ticker := d.clock.NewTicker(d.claimEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case <-ticker.Chan():
			d.claim(ctx, jobs)
		}
	}
}

// DrainOnce claims and delivers every currently-due job, synchronously.
// Used by tests and one-shot tooling.
func (d *Dispatcher) DrainOnce(ctx context.Context) int {
	delivered := 0
	for {
		batch, err := d.store.ClaimDueJobs(ctx, d.clock.Now(), claimBatchSize)
		if err != nil {
			d.log.Error("claim due jobs", "error", err)
			return delivered
		}
		if len(batch) == 0 {
			return delivered
		}
		for _, job := range batch {
			d.deliver(ctx, job)
			delivered++
		}
	}
}

func (d *Dispatcher) claim(ctx context.Context, jobs chan<- model.NotificationJob) {
	batch, err := d.store.ClaimDueJobs(ctx, d.clock.Now(), claimBatchSize)
	if err != nil {
		d.log.Error("claim due jobs", "error", err)
		return
	}

	for _, job := range batch {
		select {
		case jobs <- job:
		case <-ctx.Done():
			return
		}
	}
}

// deliver sends one job to every matching subscriber. Subscribers are
// independent: a failure for one does not block the rest, but any failure
// requeues the whole job.
func (d *Dispatcher) deliver(ctx context.Context, job model.NotificationJob) {
	subs, err := d.store.ListSubscriptions(ctx)
	if err != nil {
		d.retry(ctx, job, fmt.Errorf("list subscriptions: %w", err))
		return
	}

	text := FormatAlert(job)

	var firstErr error
	sent := 0
	for _, sub := range subs {
		if !sub.Matches(job.Category, job.District) {
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			// Shutdown mid-job: leave the row in delivering so the next
			// start retries it.
			return
		}
		if err := d.sender.Send(ctx, sub.ChatID, text); err != nil {
			d.log.Error("send notification", "job_id", job.ID, "chat_id", sub.ChatID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}

	if firstErr != nil {
		d.retry(ctx, job, firstErr)
		return
	}

	if err := d.store.MarkJobDelivered(ctx, job.ID); err != nil {
		d.log.Error("mark job delivered", "job_id", job.ID, "error", err)
		return
	}
	d.metrics.NotificationsDelivered.Inc()
	d.log.Debug("job delivered", "job_id", job.ID, "recipients", sent)
}

// retry requeues the job with exponential backoff, or marks it failed
// once the attempt limit is reached.
func (d *Dispatcher) retry(ctx context.Context, job model.NotificationJob, cause error) {
	attempts := job.Attempts + 1
	if attempts >= d.maxAttempts {
		if err := d.store.MarkJobFailed(ctx, job.ID, cause.Error()); err != nil {
			d.log.Error("mark job failed", "job_id", job.ID, "error", err)
			return
		}
		d.metrics.NotificationsFailed.Inc()
		d.log.Warn("job failed permanently", "job_id", job.ID, "attempts", attempts, "error", cause)
		return
	}

	delay := Backoff(attempts)
	next := d.clock.Now().Add(delay)
	if err := d.store.RescheduleJob(ctx, job.ID, attempts, next, cause.Error()); err != nil {
		d.log.Error("reschedule job", "job_id", job.ID, "error", err)
		return
	}
	d.log.Info("job requeued", "job_id", job.ID, "attempt", attempts, "retry_in", delay, "error", cause)
}

// Backoff returns the delay before retrying a job that has made the given
// number of attempts: 1s, 2s, 4s, doubling per attempt and capped at
// maxBackoff so a high attempt count cannot overflow the shift.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > maxBackoffShift {
		return maxBackoff
	}
	delay := baseBackoff << (attempts - 1)
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
