package webhook

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrInvalidEvent        = errors.New("invalid event")
)

// SubscriptionReader provides read operations for subscriptions
type SubscriptionReader interface {
	Get(ctx context.Context, ownerID, id string) (Subscription, error)
	/* List returns one page of the owner's subscriptions, newest first,
	 * together with the total number matching the filter
	 */
	List(ctx context.Context, ownerID string, opts ListOptions) ([]Subscription, int, error)
}

// ActiveLister loads the subscriptions eligible for fan-out
type ActiveLister interface {
	ListActive(ctx context.Context, ownerID string) ([]Subscription, error)
}

// SubscriptionWriter provides write operations for subscription configuration.
// Delivery counters are never written through it.
type SubscriptionWriter interface {
	Create(ctx context.Context, sub Subscription) error
	Update(ctx context.Context, sub Subscription) error
	RotateSecret(ctx context.Context, ownerID, id, secret string) error
	/* Delete removes the subscription and its delivery log */
	Delete(ctx context.Context, ownerID, id string) error
}

// DeliveryRecorder persists the bookkeeping of one attempt
type DeliveryRecorder interface {
	/* RecordDelivery increments total_deliveries (and failed_deliveries when
	 * the entry is not a success), sets last_triggered_at to entry.SentAt and
	 * appends the entry, all as one unit. Concurrent calls for the same
	 * subscription must never lose an increment.
	 */
	RecordDelivery(ctx context.Context, entry DeliveryLogEntry) error
}

// DeliveryLogReader reads the audit trail of a subscription
type DeliveryLogReader interface {
	ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]DeliveryLogEntry, error)
}

type Repository interface {
	SubscriptionReader
	ActiveLister
	SubscriptionWriter
	DeliveryRecorder
	DeliveryLogReader
	Close(ctx context.Context) error
}
