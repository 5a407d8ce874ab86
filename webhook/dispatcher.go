package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marcelsud/heatmap-webhooks/webhook/payload"
	"github.com/rs/zerolog"
)

const DefaultDispatchConcurrency = 8

// FailureHandler observes deliveries that were attempted and failed
type FailureHandler interface {
	HandleFailure(ctx context.Context, sub Subscription, eventType string, fields map[string]any) error
}

// Deliverer performs a single delivery attempt
type Deliverer interface {
	Attempt(ctx context.Context, sub Subscription, eventType string, fields map[string]any) (Result, error)
}

/* Dispatcher fans one event out to every active subscription of an owner.
 * Uses pointer semantics as it's an API, not data
 */
type Dispatcher struct {
	lister      ActiveLister
	deliverer   Deliverer
	concurrency int
	onFailure   FailureHandler
	logger      zerolog.Logger
}

type DispatcherOption func(*Dispatcher)

// WithConcurrency bounds the number of deliveries in flight per dispatch
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithFailureHandler(h FailureHandler) DispatcherOption {
	return func(d *Dispatcher) {
		d.onFailure = h
	}
}

func WithDispatchLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(lister ActiveLister, deliverer Deliverer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		lister:      lister,
		deliverer:   deliverer,
		concurrency: DefaultDispatchConcurrency,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

/* Dispatch delivers the event to each eligible subscription and returns how many
 * succeeded. Subscriber failures never abort the fan-out. Store failures are joined
 * and returned along with the count of the deliveries that did succeed.
 */
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID, eventType string, fields map[string]any) (int, error) {
	if err := payload.ValidateEventType(eventType); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	subs, err := d.lister.ListActive(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("listing active subscriptions: %w", err)
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		delivered int
		errs      []error
	)
	sem := make(chan struct{}, d.concurrency)

	for _, sub := range subs {
		if !sub.EnabledFor(eventType) {
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(sub Subscription) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := d.deliverer.Attempt(ctx, sub, eventType, fields)

			mu.Lock()
			if result.Success() {
				delivered++
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			}
			mu.Unlock()

			if result.Attempted() && !result.Success() && d.onFailure != nil {
				if err := d.onFailure.HandleFailure(ctx, sub, eventType, fields); err != nil {
					d.logger.Error().Err(err).
						Str("subscription_id", sub.ID).
						Str("event_type", eventType).
						Msg("handling failed delivery")
				}
			}
		}(sub)
	}
	wg.Wait()

	d.logger.Info().
		Str("owner_id", ownerID).
		Str("event_type", eventType).
		Int("subscriptions", len(subs)).
		Int("delivered", delivered).
		Msg("event dispatched")

	return delivered, errors.Join(errs...)
}
