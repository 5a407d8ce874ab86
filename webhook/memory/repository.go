package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marcelsud/heatmap-webhooks/webhook"
)

/* Repository keeps subscriptions and their delivery logs in process memory.
 * A single RWMutex guards both maps, so counter updates and log appends of
 * one RecordDelivery call are observed together.
 */
type Repository struct {
	mu     sync.RWMutex
	subs   map[string]webhook.Subscription
	logs   map[string][]webhook.DeliveryLogEntry
	logCap int
}

// NewRepository creates an empty store. logCap bounds entries kept per subscription; 0 keeps all.
func NewRepository(logCap int) *Repository {
	return &Repository{
		subs:   make(map[string]webhook.Subscription),
		logs:   make(map[string][]webhook.DeliveryLogEntry),
		logCap: logCap,
	}
}

func (r *Repository) Get(ctx context.Context, ownerID, id string) (webhook.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	if !ok || sub.OwnerID != ownerID {
		return webhook.Subscription{}, webhook.ErrNotFound
	}
	return clone(sub), nil
}

func (r *Repository) List(ctx context.Context, ownerID string, opts webhook.ListOptions) ([]webhook.Subscription, int, error) {
	r.mu.RLock()
	matched := make([]webhook.Subscription, 0)
	for _, sub := range r.subs {
		if sub.OwnerID != ownerID || (opts.ActiveOnly && !sub.Active) {
			continue
		}
		matched = append(matched, clone(sub))
	}
	r.mu.RUnlock()

	sortNewestFirst(matched)
	total := len(matched)

	if opts.Offset >= total {
		return []webhook.Subscription{}, total, nil
	}
	end := total
	if opts.Limit > 0 && opts.Offset+opts.Limit < total {
		end = opts.Offset + opts.Limit
	}
	return matched[opts.Offset:end], total, nil
}

func (r *Repository) ListActive(ctx context.Context, ownerID string) ([]webhook.Subscription, error) {
	subs, _, err := r.List(ctx, ownerID, webhook.ListOptions{ActiveOnly: true})
	return subs, err
}

func (r *Repository) Create(ctx context.Context, sub webhook.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[sub.ID] = clone(sub)
	return nil
}

// Update overwrites configuration fields and keeps the stored counters
func (r *Repository) Update(ctx context.Context, sub webhook.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.subs[sub.ID]
	if !ok || current.OwnerID != sub.OwnerID {
		return webhook.ErrNotFound
	}

	current.Name = sub.Name
	current.Endpoint = sub.Endpoint
	current.Active = sub.Active
	current.EventFilter = append([]string(nil), sub.EventFilter...)
	current.MaxRetries = sub.MaxRetries
	current.RetryDelaySeconds = sub.RetryDelaySeconds
	current.UpdatedAt = sub.UpdatedAt
	r.subs[sub.ID] = current
	return nil
}

func (r *Repository) RotateSecret(ctx context.Context, ownerID, id, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok || sub.OwnerID != ownerID {
		return webhook.ErrNotFound
	}
	sub.Secret = secret
	r.subs[id] = sub
	return nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok || sub.OwnerID != ownerID {
		return webhook.ErrNotFound
	}
	delete(r.subs, id)
	delete(r.logs, id)
	return nil
}

func (r *Repository) RecordDelivery(ctx context.Context, entry webhook.DeliveryLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[entry.SubscriptionID]
	if !ok {
		return webhook.ErrNotFound
	}

	sub.TotalDeliveries++
	if !entry.Success {
		sub.FailedDeliveries++
	}
	sentAt := entry.SentAt
	sub.LastTriggeredAt = &sentAt
	r.subs[sub.ID] = sub

	logs := append(r.logs[sub.ID], entry)
	if r.logCap > 0 && len(logs) > r.logCap {
		logs = logs[len(logs)-r.logCap:]
	}
	r.logs[sub.ID] = logs
	return nil
}

// ListDeliveries returns up to limit entries, newest first
func (r *Repository) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]webhook.DeliveryLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := r.logs[subscriptionID]
	n := len(logs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]webhook.DeliveryLogEntry, 0, n)
	for i := len(logs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, logs[i])
	}
	return out, nil
}

func (r *Repository) Close(ctx context.Context) error {
	return nil
}

func clone(sub webhook.Subscription) webhook.Subscription {
	sub.EventFilter = append([]string(nil), sub.EventFilter...)
	if sub.LastTriggeredAt != nil {
		t := *sub.LastTriggeredAt
		sub.LastTriggeredAt = &t
	}
	return sub
}

func sortNewestFirst(subs []webhook.Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID > subs[j].ID
		}
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
}
