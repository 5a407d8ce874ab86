package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/heatmap-webhooks/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Repository
 * Uses a Hash per subscription, a Sorted Set per owner (scored by creation time)
 * and a capped List per subscription for the delivery log
 */

const (
	hashPrefix   = "subscription" // Hash naming: subscription:{id}
	ownerPrefix  = "owner"        // Sorted set naming: owner:{owner_id}:subscriptions
	logSuffix    = "deliveries"   // List naming: subscription:{id}:deliveries
	watchRetries = 10
)

// recordScript applies one delivery atomically; it returns 0 when the subscription is gone
var recordScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HINCRBY", KEYS[1], "total_deliveries", 1)
redis.call("HINCRBY", KEYS[1], "failed_deliveries", ARGV[1])
redis.call("HSET", KEYS[1], "last_triggered_at", ARGV[2])
redis.call("LPUSH", KEYS[2], ARGV[3])
local cap = tonumber(ARGV[4])
if cap > 0 then
	redis.call("LTRIM", KEYS[2], 0, cap - 1)
end
return 1
`)

type Repository struct {
	client *redis.Client
	logCap int
}

// NewRepository creates a new Redis repository keeping at most logCap log entries per subscription (0 keeps all)
func NewRepository(addr, password string, db, logCap int) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Repository{
		client: client,
		logCap: logCap,
	}, nil
}

// Get retrieves the owner's subscription from its hash
func (r *Repository) Get(ctx context.Context, ownerID, id string) (webhook.Subscription, error) {
	data, err := r.client.HGetAll(ctx, hashKey(id)).Result()
	if err != nil {
		return webhook.Subscription{}, fmt.Errorf("getting subscription: %w", err)
	}
	if len(data) == 0 || data["owner_id"] != ownerID {
		return webhook.Subscription{}, webhook.ErrNotFound
	}
	return decodeSubscription(data)
}

// List returns one page of the owner's subscriptions, newest first
func (r *Repository) List(ctx context.Context, ownerID string, opts webhook.ListOptions) ([]webhook.Subscription, int, error) {
	if !opts.ActiveOnly {
		total, err := r.client.ZCard(ctx, ownerKey(ownerID)).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("counting subscriptions: %w", err)
		}
		stop := int64(-1)
		if opts.Limit > 0 {
			stop = int64(opts.Offset + opts.Limit - 1)
		}
		ids, err := r.client.ZRevRange(ctx, ownerKey(ownerID), int64(opts.Offset), stop).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("listing subscription ids: %w", err)
		}
		subs, err := r.load(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		return subs, int(total), nil
	}

	ids, err := r.client.ZRevRange(ctx, ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("listing subscription ids: %w", err)
	}
	all, err := r.load(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	active := make([]webhook.Subscription, 0, len(all))
	for _, s := range all {
		if s.Active {
			active = append(active, s)
		}
	}
	return paginate(active, opts), len(active), nil
}

// ListActive returns the owner's active subscriptions, oldest first
func (r *Repository) ListActive(ctx context.Context, ownerID string) ([]webhook.Subscription, error) {
	ids, err := r.client.ZRange(ctx, ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing subscription ids: %w", err)
	}
	all, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	active := make([]webhook.Subscription, 0, len(all))
	for _, s := range all {
		if s.Active {
			active = append(active, s)
		}
	}
	return active, nil
}

// load fetches hashes in one pipeline, skipping ids whose hash has disappeared
func (r *Repository) load(ctx context.Context, ids []string) ([]webhook.Subscription, error) {
	if len(ids) == 0 {
		return []webhook.Subscription{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, hashKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading subscriptions: %w", err)
	}

	subs := make([]webhook.Subscription, 0, len(ids))
	for _, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			continue
		}
		s, err := decodeSubscription(data)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, nil
}

// Create stores the hash and indexes it under its owner
func (r *Repository) Create(ctx context.Context, s webhook.Subscription) error {
	fields, err := encodeSubscription(s)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey(s.ID), fields)
		pipe.ZAdd(ctx, ownerKey(s.OwnerID), redis.Z{
			Score:  float64(s.CreatedAt.UnixNano()),
			Member: s.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing subscription: %w", err)
	}
	return nil
}

// Update writes configuration fields only; counters are never overwritten
func (r *Repository) Update(ctx context.Context, s webhook.Subscription) error {
	filter, err := json.Marshal(filterOrEmpty(s.EventFilter))
	if err != nil {
		return fmt.Errorf("marshaling event filter: %w", err)
	}

	return r.mutateOwned(ctx, s.OwnerID, s.ID, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, hashKey(s.ID), map[string]interface{}{
			"name":                s.Name,
			"endpoint":            s.Endpoint,
			"active":              formatBool(s.Active),
			"event_filter":        string(filter),
			"max_retries":         s.MaxRetries,
			"retry_delay_seconds": s.RetryDelaySeconds,
			"updated_at":          formatTime(s.UpdatedAt),
		})
	})
}

// RotateSecret replaces the signing secret
func (r *Repository) RotateSecret(ctx context.Context, ownerID, id, secret string) error {
	return r.mutateOwned(ctx, ownerID, id, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, hashKey(id), "secret", secret, "updated_at", formatTime(time.Now()))
	})
}

// Delete removes the hash, its log and the owner index entry together
func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	return r.mutateOwned(ctx, ownerID, id, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, hashKey(id), logKey(id))
		pipe.ZRem(ctx, ownerKey(ownerID), id)
	})
}

// mutateOwned runs write inside MULTI after checking ownership under WATCH
func (r *Repository) mutateOwned(ctx context.Context, ownerID, id string, write func(pipe redis.Pipeliner)) error {
	key := hashKey(id)
	txf := func(tx *redis.Tx) error {
		owner, err := tx.HGet(ctx, key, "owner_id").Result()
		if errors.Is(err, redis.Nil) || (err == nil && owner != ownerID) {
			return webhook.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading owner: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe)
			return nil
		})
		return err
	}

	for i := 0; i < watchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, webhook.ErrNotFound) {
			return fmt.Errorf("updating subscription: %w", err)
		}
		return err
	}
	return fmt.Errorf("updating subscription: %w", redis.TxFailedErr)
}

// logRecord is the JSON shape of a list element
type logRecord struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	EventType      string    `json:"event_type"`
	Payload        string    `json:"payload"`
	ResponseStatus int       `json:"response_status"`
	ResponseBody   string    `json:"response_body"`
	Success        bool      `json:"success"`
	DurationMs     int64     `json:"duration_ms"`
	SentAt         time.Time `json:"sent_at"`
}

// RecordDelivery increments the counters and pushes the log entry in one script call
func (r *Repository) RecordDelivery(ctx context.Context, e webhook.DeliveryLogEntry) error {
	record, err := json.Marshal(logRecord{
		ID:             e.ID,
		SubscriptionID: e.SubscriptionID,
		EventType:      e.EventType,
		Payload:        string(e.Payload),
		ResponseStatus: e.ResponseStatus,
		ResponseBody:   e.ResponseBody,
		Success:        e.Success,
		DurationMs:     e.DurationMs,
		SentAt:         e.SentAt,
	})
	if err != nil {
		return fmt.Errorf("marshaling delivery log: %w", err)
	}

	failed := 0
	if !e.Success {
		failed = 1
	}
	applied, err := recordScript.Run(ctx, r.client,
		[]string{hashKey(e.SubscriptionID), logKey(e.SubscriptionID)},
		failed, formatTime(e.SentAt), string(record), r.logCap,
	).Int()
	if err != nil {
		return fmt.Errorf("recording delivery: %w", err)
	}
	if applied == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// ListDeliveries returns up to limit entries, newest first
func (r *Repository) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]webhook.DeliveryLogEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := r.client.LRange(ctx, logKey(subscriptionID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("reading delivery log: %w", err)
	}

	entries := make([]webhook.DeliveryLogEntry, 0, len(raw))
	for _, item := range raw {
		var rec logRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("unmarshaling delivery log: %w", err)
		}
		entries = append(entries, webhook.DeliveryLogEntry{
			ID:             rec.ID,
			SubscriptionID: rec.SubscriptionID,
			EventType:      rec.EventType,
			Payload:        []byte(rec.Payload),
			ResponseStatus: rec.ResponseStatus,
			ResponseBody:   rec.ResponseBody,
			Success:        rec.Success,
			DurationMs:     rec.DurationMs,
			SentAt:         rec.SentAt,
		})
	}
	return entries, nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

// Helper functions

func hashKey(id string) string {
	return fmt.Sprintf("%s:%s", hashPrefix, id)
}

func logKey(id string) string {
	return fmt.Sprintf("%s:%s:%s", hashPrefix, id, logSuffix)
}

func ownerKey(ownerID string) string {
	return fmt.Sprintf("%s:%s:subscriptions", ownerPrefix, ownerID)
}

func encodeSubscription(s webhook.Subscription) (map[string]interface{}, error) {
	filter, err := json.Marshal(filterOrEmpty(s.EventFilter))
	if err != nil {
		return nil, fmt.Errorf("marshaling event filter: %w", err)
	}
	lastTriggered := ""
	if s.LastTriggeredAt != nil {
		lastTriggered = formatTime(*s.LastTriggeredAt)
	}
	return map[string]interface{}{
		"id":                  s.ID,
		"owner_id":            s.OwnerID,
		"name":                s.Name,
		"endpoint":            s.Endpoint,
		"secret":              s.Secret,
		"active":              formatBool(s.Active),
		"event_filter":        string(filter),
		"max_retries":         s.MaxRetries,
		"retry_delay_seconds": s.RetryDelaySeconds,
		"total_deliveries":    s.TotalDeliveries,
		"failed_deliveries":   s.FailedDeliveries,
		"last_triggered_at":   lastTriggered,
		"created_at":          formatTime(s.CreatedAt),
		"updated_at":          formatTime(s.UpdatedAt),
	}, nil
}

func decodeSubscription(data map[string]string) (webhook.Subscription, error) {
	s := webhook.Subscription{
		ID:                data["id"],
		OwnerID:           data["owner_id"],
		Name:              data["name"],
		Endpoint:          data["endpoint"],
		Secret:            data["secret"],
		Active:            data["active"] == "1",
		MaxRetries:        int(parseInt64(data["max_retries"])),
		RetryDelaySeconds: int(parseInt64(data["retry_delay_seconds"])),
		TotalDeliveries:   parseInt64(data["total_deliveries"]),
		FailedDeliveries:  parseInt64(data["failed_deliveries"]),
		CreatedAt:         parseTime(data["created_at"]),
		UpdatedAt:         parseTime(data["updated_at"]),
	}
	if raw := data["event_filter"]; raw != "" {
		var filter []string
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			return webhook.Subscription{}, fmt.Errorf("unmarshaling event filter: %w", err)
		}
		if len(filter) > 0 {
			s.EventFilter = filter
		}
	}
	if raw := data["last_triggered_at"]; raw != "" {
		t := parseTime(raw)
		s.LastTriggeredAt = &t
	}
	return s, nil
}

func paginate(subs []webhook.Subscription, opts webhook.ListOptions) []webhook.Subscription {
	if opts.Offset >= len(subs) {
		return []webhook.Subscription{}
	}
	end := len(subs)
	if opts.Limit > 0 && opts.Offset+opts.Limit < end {
		end = opts.Offset + opts.Limit
	}
	return subs[opts.Offset:end]
}

func filterOrEmpty(filter []string) []string {
	if filter == nil {
		return []string{}
	}
	return filter
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
