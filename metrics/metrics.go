package metrics

import (
	"context"
	"time"
)

// Snapshot represents the point-in-time state of the delivery pipeline.
type Snapshot struct {
	// TrackedClients is the number of client keys held by the rate limiter
	TrackedClients int64 `json:"tracked_clients"`

	// PendingRetries is the number of retry jobs waiting in the queue
	PendingRetries int64 `json:"pending_retries"`

	// Timestamp when the snapshot was collected
	Timestamp time.Time `json:"timestamp"`
}

// Collector gathers gauge values observed on every scrape.
type Collector interface {
	Collect(ctx context.Context) (Snapshot, error)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context) (Snapshot, error)

// Collect calls f(ctx)
func (f CollectorFunc) Collect(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// Recorder receives measurements from the delivery and rate-limit paths.
type Recorder interface {
	// DeliveryAttempted records one delivery attempt that reached the subscriber (or failed to)
	DeliveryAttempted(ctx context.Context, eventType, outcome string, duration time.Duration)

	// RateLimitDecision records one admission decision for an endpoint class
	RateLimitDecision(ctx context.Context, class string, admitted bool)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) DeliveryAttempted(context.Context, string, string, time.Duration) {}

func (Nop) RateLimitDecision(context.Context, string, bool) {}
