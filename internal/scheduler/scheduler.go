// Package scheduler maintains one poll timer per enabled source and runs
// the fetch-normalize-ingest pipeline when a timer fires.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"alertflow/internal/adapter"
	"alertflow/internal/ingest"
	"alertflow/internal/model"
	"alertflow/internal/observability"
	"alertflow/internal/storage"
)

const (
	// minPollInterval is the floor between two polls of the same source,
	// regardless of configuration.
	minPollInterval = 60 * time.Second
	// maxInitialStagger spreads first polls to avoid a thundering herd
	// against dependent APIs.
	maxInitialStagger = 30 * time.Second

	defaultReconcileInterval = 60 * time.Second
)

// AdapterFactory builds the adapter for a source. Swappable in tests.
type AdapterFactory func(src model.Source) (adapter.Adapter, error)

// Scheduler owns a cancellable timer per scheduled source and reconciles
// its timer set against the source registry on a fixed cadence.
type Scheduler struct {
	store       storage.Storage
	coordinator *ingest.Coordinator
	newAdapter  AdapterFactory
	log         *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock
	reconcile   time.Duration

	mu      sync.Mutex
	timers  map[string]clockwork.Timer
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Scheduler with the default adapter factory.
func New(store storage.Storage, coordinator *ingest.Coordinator, client adapter.HTTPClient,
	fixtures *adapter.FixtureLoader, log *slog.Logger, metrics *observability.Metrics) *Scheduler {
	factory := func(src model.Source) (adapter.Adapter, error) {
		return adapter.New(src, client, fixtures)
	}
	return NewWithFactory(store, coordinator, factory, log, metrics)
}

// NewWithFactory creates a Scheduler with a custom adapter factory
// (useful for testing).
func NewWithFactory(store storage.Storage, coordinator *ingest.Coordinator, factory AdapterFactory,
	log *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		store:       store,
		coordinator: coordinator,
		newAdapter:  factory,
		log:         log,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
		reconcile:   defaultReconcileInterval,
		timers:      make(map[string]clockwork.Timer),
	}
}

// SetClock overrides the wall clock (useful for testing).
func (s *Scheduler) SetClock(c clockwork.Clock) {
	s.clock = c
}

// SetReconcileInterval overrides the default 1-minute reconciliation
// cadence.
func (s *Scheduler) SetReconcileInterval(d time.Duration) {
	s.reconcile = d
}

// Run reconciles immediately, then on every tick, blocking until ctx is
// cancelled. On cancellation all pending timers are stopped; in-flight
// polls are allowed to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.Reconcile(ctx)

	ticker := s.clock.NewTicker(s.reconcile)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-ticker.Chan():
			s.Reconcile(ctx)
		}
	}
}

// Reconcile aligns the timer set with the registry: enabled sources not
// yet scheduled get a staggered first poll, and timers for sources that
// were disabled or removed are cancelled. A source with a poll in flight
// stays scheduled and is left alone.
func (s *Scheduler) Reconcile(ctx context.Context) {
	sources, err := s.store.ListEnabledSources(ctx)
	if err != nil {
		s.log.Error("list enabled sources", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	enabled := make(map[string]bool, len(sources))
	for _, src := range sources {
		enabled[src.ID] = true
		if _, ok := s.timers[src.ID]; ok {
			continue
		}
		delay := rand.N(maxInitialStagger)
		s.scheduleLocked(ctx, src, delay)
		s.log.Info("scheduled source", "source_id", src.ID, "name", src.Name, "first_poll_in", delay.Round(time.Second))
	}

	for id, timer := range s.timers {
		if !enabled[id] {
			timer.Stop()
			delete(s.timers, id)
			s.log.Info("unscheduled source", "source_id", id)
		}
	}

	s.metrics.SchedulerSources.Set(float64(len(s.timers)))
}

// Stop cancels all outstanding timers and waits for in-flight polls to
// complete. No partially-started cycle is resumed after Stop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.metrics.SchedulerSources.Set(0)
	s.mu.Unlock()

	s.wg.Wait()
}

// ScheduledCount returns the number of sources with an armed timer.
func (s *Scheduler) ScheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) scheduleLocked(ctx context.Context, src model.Source, delay time.Duration) {
	s.timers[src.ID] = s.clock.AfterFunc(delay, func() {
		s.pollSource(ctx, src)
	})
}

// pollSource runs one fetch-normalize-ingest cycle, then arms the next
// timer. The next poll is never scheduled before the current one
// completes, so a given source has at most one poll in flight.
func (s *Scheduler) pollSource(ctx context.Context, src model.Source) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	start := s.clock.Now()
	s.log.Debug("polling source", "source_id", src.ID, "name", src.Name, "kind", src.Kind)

	if err := s.runPoll(ctx, src, start); err != nil {
		s.log.Error("poll failed", "source_id", src.ID, "name", src.Name, "error", err)
		s.coordinator.RecordFailure(ctx, src, err, start)
	}

	elapsed := s.clock.Since(start)
	s.metrics.PollDuration.Observe(elapsed.Seconds())
	s.rescheduleAfterPoll(ctx, src, elapsed)
}

func (s *Scheduler) runPoll(ctx context.Context, src model.Source, start time.Time) error {
	ad, err := s.newAdapter(src)
	if err != nil {
		return err
	}

	items, err := ad.Fetch(ctx)
	if err != nil {
		return err
	}

	events := make([]model.NormalizedEvent, 0, len(items))
	for _, item := range items {
		ev := ad.Normalize(item)
		// Events missing a title or start time are filtered out, not
		// counted as pipeline errors.
		if ev.Title == "" || ev.StartTime.IsZero() {
			continue
		}
		events = append(events, ev)
	}

	result := s.coordinator.ProcessBatch(ctx, src, events)
	s.coordinator.RecordSuccess(ctx, src, result, start)

	s.log.Info("ingestion complete", "source_id", src.ID, "name", src.Name,
		"found", result.Found, "created", result.Created, "updated", result.Updated,
		"errors", len(result.Errors))
	return nil
}

// rescheduleAfterPoll arms the next one-shot timer. The configured
// interval is a target cadence: elapsed fetch time is subtracted, and the
// result is clamped to the per-source floor.
func (s *Scheduler) rescheduleAfterPoll(ctx context.Context, src model.Source, elapsed time.Duration) {
	// Re-read the registry: the poll may have tripped the circuit
	// breaker, or an operator may have disabled the source meanwhile.
	current, err := s.store.GetSource(ctx, src.ID)
	if err != nil || current == nil || !current.Enabled {
		s.mu.Lock()
		delete(s.timers, src.ID)
		s.metrics.SchedulerSources.Set(float64(len(s.timers)))
		s.mu.Unlock()
		if err != nil {
			s.log.Error("reload source", "source_id", src.ID, "error", err)
		}
		return
	}

	delay := NextDelay(current.PollingIntervalSeconds, elapsed)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.scheduleLocked(ctx, *current, delay)
	s.log.Debug("next poll scheduled", "source_id", src.ID, "in", delay.Round(time.Second))
}

// NextDelay computes the wait before the next poll of a source whose last
// cycle took elapsed.
func NextDelay(intervalSeconds int, elapsed time.Duration) time.Duration {
	delay := time.Duration(intervalSeconds)*time.Second - elapsed
	if delay < minPollInterval {
		return minPollInterval
	}
	return delay
}
