package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/heatmap-webhooks/webhook"
	"github.com/rs/zerolog"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchSize    = 50
)

/* Scheduler turns failed deliveries into retry jobs.
 * It implements webhook.FailureHandler.
 */
type Scheduler struct {
	queue Queue
	now   func() time.Time
}

func NewScheduler(queue Queue, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{queue: queue, now: now}
}

// HandleFailure schedules the first retry when the subscription allows retries
func (s *Scheduler) HandleFailure(ctx context.Context, sub webhook.Subscription, eventType string, fields map[string]any) error {
	if sub.MaxRetries <= 0 {
		return nil
	}
	job := Job{
		ID:             uuid.New().String(),
		OwnerID:        sub.OwnerID,
		SubscriptionID: sub.ID,
		EventType:      eventType,
		Payload:        fields,
		Attempt:        1,
		NextAttemptAt:  s.now().Add(delay(sub)),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueueing retry: %w", err)
	}
	return nil
}

// Worker redelivers due jobs through the regular executor
type Worker struct {
	queue     Queue
	subs      webhook.SubscriptionReader
	deliverer webhook.Deliverer
	now       func() time.Time
	interval  time.Duration
	batch     int
	logger    zerolog.Logger
}

type WorkerOption func(*Worker)

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(queue Queue, subs webhook.SubscriptionReader, deliverer webhook.Deliverer, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:     queue,
		subs:      subs,
		deliverer: deliverer,
		now:       time.Now,
		interval:  DefaultPollInterval,
		batch:     DefaultBatchSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls the queue until ctx is done
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessDue(ctx); err != nil {
			w.logger.Error().Err(err).Msg("processing retries")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

/* ProcessDue handles one batch of due jobs and returns how many were redelivered successfully.
 * Jobs returned alongside a queue error are already claimed and are still processed.
 */
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	var (
		delivered int
		errs      []error
	)
	jobs, err := w.queue.Due(ctx, w.now(), w.batch)
	if err != nil {
		errs = append(errs, fmt.Errorf("reading due jobs: %w", err))
	}

	for _, job := range jobs {
		ok, err := w.process(ctx, job)
		if err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
		}
		if ok {
			delivered++
		}
	}
	return delivered, errors.Join(errs...)
}

func (w *Worker) process(ctx context.Context, job Job) (bool, error) {
	log := w.logger.With().
		Str("job_id", job.ID).
		Str("subscription_id", job.SubscriptionID).
		Str("event_type", job.EventType).
		Int("attempt", job.Attempt).
		Logger()

	sub, err := w.subs.Get(ctx, job.OwnerID, job.SubscriptionID)
	if errors.Is(err, webhook.ErrNotFound) {
		log.Info().Msg("subscription gone, dropping retry")
		return false, nil
	}
	if err != nil {
		// keep the job for the next poll
		if qerr := w.queue.Enqueue(ctx, job); qerr != nil {
			return false, errors.Join(err, qerr)
		}
		return false, fmt.Errorf("reading subscription: %w", err)
	}

	result, err := w.deliverer.Attempt(ctx, sub, job.EventType, job.Payload)
	if err != nil {
		return result.Success(), fmt.Errorf("redelivering: %w", err)
	}

	switch {
	case !result.Attempted():
		log.Info().Msg("subscription no longer eligible, dropping retry")
		return false, nil
	case result.Success():
		log.Info().Msg("retry delivered")
		return true, nil
	case job.Attempt >= sub.MaxRetries:
		log.Warn().Int("status", result.StatusCode).Msg("retries exhausted")
		return false, nil
	}

	next := job
	next.Attempt++
	next.NextAttemptAt = w.now().Add(delay(sub))
	if err := w.queue.Enqueue(ctx, next); err != nil {
		return false, fmt.Errorf("enqueueing retry: %w", err)
	}
	return false, nil
}

func delay(sub webhook.Subscription) time.Duration {
	return time.Duration(sub.RetryDelaySeconds) * time.Second
}
