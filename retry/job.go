package retry

import (
	"context"
	"time"
)

// Job is one pending redelivery of a failed event to a single subscription
type Job struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	SubscriptionID string         `json:"subscription_id"`
	EventType      string         `json:"event_type"`
	Payload        map[string]any `json:"payload"`
	Attempt        int            `json:"attempt"` // 1 for the first retry
	NextAttemptAt  time.Time      `json:"next_attempt_at"`
}

// Queue holds jobs until they are due
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	/* Due removes and returns up to limit jobs whose NextAttemptAt is not after now,
	 * earliest first. A job is handed to exactly one caller. Jobs returned together
	 * with an error have been claimed and must still be handled.
	 */
	Due(ctx context.Context, now time.Time, limit int) ([]Job, error)
	Len(ctx context.Context) (int64, error)
}
