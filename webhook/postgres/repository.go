package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/marcelsud/heatmap-webhooks/webhook"
)

/* Repository stores subscriptions and delivery logs in PostgreSQL.
 * RecordDelivery updates the counters and appends the log row in one
 * transaction; the UPDATE takes the row lock, so concurrent deliveries
 * to one subscription are serialised by the database.
 */
type Repository struct {
	DB *sql.DB
}

const subscriptionColumns = `id, owner_id, name, endpoint, secret, active, event_filter,
		max_retries, retry_delay_seconds, total_deliveries, failed_deliveries,
		last_triggered_at, created_at, updated_at`

// NewRepository opens a PostgreSQL repository with the default pool (25, 5, 5 min)
func NewRepository(connectionString string) (*Repository, error) {
	return NewRepositoryWithPoolConfig(connectionString, 25, 5, 5)
}

// NewRepositoryWithPoolConfig opens a PostgreSQL repository with a custom pool.
// maxOpenConns: 0 means unlimited
func NewRepositoryWithPoolConfig(connectionString string, maxOpenConns, maxIdleConns, maxLifeMinutes int) (*Repository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxLifeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(maxLifeMinutes) * time.Minute)
	}

	return &Repository{
		DB: db,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (webhook.Subscription, error) {
	var (
		s         webhook.Subscription
		filter    pq.StringArray
		triggered sql.NullTime
	)
	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.Name,
		&s.Endpoint,
		&s.Secret,
		&s.Active,
		&filter,
		&s.MaxRetries,
		&s.RetryDelaySeconds,
		&s.TotalDeliveries,
		&s.FailedDeliveries,
		&triggered,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return webhook.Subscription{}, err
	}
	if len(filter) > 0 {
		s.EventFilter = []string(filter)
	}
	if triggered.Valid {
		t := triggered.Time
		s.LastTriggeredAt = &t
	}
	return s, nil
}

// Get returns the owner's subscription by ID
func (r *Repository) Get(ctx context.Context, ownerID, id string) (webhook.Subscription, error) {
	if !validUUIDs(ownerID, id) {
		return webhook.Subscription{}, webhook.ErrNotFound
	}

	query := "SELECT " + subscriptionColumns + " FROM webhook_subscriptions WHERE id = $1 AND owner_id = $2"
	s, err := scanSubscription(r.DB.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.Subscription{}, webhook.ErrNotFound
	}
	if err != nil {
		return webhook.Subscription{}, fmt.Errorf("selecting subscription: %w", err)
	}
	return s, nil
}

// List returns one page of the owner's subscriptions, newest first, and the total
func (r *Repository) List(ctx context.Context, ownerID string, opts webhook.ListOptions) ([]webhook.Subscription, int, error) {
	if !validUUIDs(ownerID) {
		return []webhook.Subscription{}, 0, nil
	}

	var total int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM webhook_subscriptions WHERE owner_id = $1 AND ($2 = FALSE OR active)",
		ownerID, opts.ActiveOnly,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting subscriptions: %w", err)
	}

	var limit any
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	query := "SELECT " + subscriptionColumns + ` FROM webhook_subscriptions
		WHERE owner_id = $1 AND ($2 = FALSE OR active)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	subs, err := r.querySubscriptions(ctx, query, ownerID, opts.ActiveOnly, limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// ListActive returns every active subscription of the owner
func (r *Repository) ListActive(ctx context.Context, ownerID string) ([]webhook.Subscription, error) {
	if !validUUIDs(ownerID) {
		return []webhook.Subscription{}, nil
	}

	query := "SELECT " + subscriptionColumns + ` FROM webhook_subscriptions
		WHERE owner_id = $1 AND active
		ORDER BY created_at`
	return r.querySubscriptions(ctx, query, ownerID)
}

func (r *Repository) querySubscriptions(ctx context.Context, query string, args ...any) ([]webhook.Subscription, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []webhook.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

// Create inserts a new subscription
func (r *Repository) Create(ctx context.Context, s webhook.Subscription) error {
	query := `
		INSERT INTO webhook_subscriptions
			(id, owner_id, name, endpoint, secret, active, event_filter,
			 max_retries, retry_delay_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.DB.ExecContext(ctx, query,
		s.ID, s.OwnerID, s.Name, s.Endpoint, s.Secret, s.Active, pq.Array(filterOrEmpty(s.EventFilter)),
		s.MaxRetries, s.RetryDelaySeconds, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}
	return nil
}

// Update writes configuration fields only; delivery counters are left alone
func (r *Repository) Update(ctx context.Context, s webhook.Subscription) error {
	if !validUUIDs(s.OwnerID, s.ID) {
		return webhook.ErrNotFound
	}

	query := `
		UPDATE webhook_subscriptions
		SET name = $1, endpoint = $2, active = $3, event_filter = $4,
			max_retries = $5, retry_delay_seconds = $6, updated_at = $7
		WHERE id = $8 AND owner_id = $9
	`

	result, err := r.DB.ExecContext(ctx, query,
		s.Name, s.Endpoint, s.Active, pq.Array(filterOrEmpty(s.EventFilter)),
		s.MaxRetries, s.RetryDelaySeconds, s.UpdatedAt, s.ID, s.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("updating subscription: %w", err)
	}
	return requireRow(result)
}

// RotateSecret replaces the signing secret
func (r *Repository) RotateSecret(ctx context.Context, ownerID, id, secret string) error {
	if !validUUIDs(ownerID, id) {
		return webhook.ErrNotFound
	}

	result, err := r.DB.ExecContext(ctx,
		"UPDATE webhook_subscriptions SET secret = $1, updated_at = NOW() WHERE id = $2 AND owner_id = $3",
		secret, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("rotating secret: %w", err)
	}
	return requireRow(result)
}

// Delete removes the subscription; its log rows go with it through the foreign key
func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	if !validUUIDs(ownerID, id) {
		return webhook.ErrNotFound
	}

	result, err := r.DB.ExecContext(ctx,
		"DELETE FROM webhook_subscriptions WHERE id = $1 AND owner_id = $2",
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return requireRow(result)
}

// RecordDelivery increments the counters and appends the log row atomically
func (r *Repository) RecordDelivery(ctx context.Context, e webhook.DeliveryLogEntry) error {
	if !validUUIDs(e.SubscriptionID) {
		return webhook.ErrNotFound
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	failed := 0
	if !e.Success {
		failed = 1
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE webhook_subscriptions
		SET total_deliveries = total_deliveries + 1,
			failed_deliveries = failed_deliveries + $1,
			last_triggered_at = $2
		WHERE id = $3
	`, failed, e.SentAt, e.SubscriptionID)
	if err != nil {
		return fmt.Errorf("updating delivery counters: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO webhook_delivery_logs
			(id, subscription_id, event_type, payload, response_status,
			 response_body, success, duration_ms, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.SubscriptionID, e.EventType, string(e.Payload), e.ResponseStatus,
		e.ResponseBody, e.Success, e.DurationMs, e.SentAt)
	if err != nil {
		return fmt.Errorf("inserting delivery log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns up to limit entries, newest first
func (r *Repository) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]webhook.DeliveryLogEntry, error) {
	if !validUUIDs(subscriptionID) {
		return []webhook.DeliveryLogEntry{}, nil
	}

	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, subscription_id, event_type, payload, response_status,
			response_body, success, duration_ms, sent_at
		FROM webhook_delivery_logs
		WHERE subscription_id = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT $2
	`, subscriptionID, lim)
	if err != nil {
		return nil, fmt.Errorf("selecting delivery logs: %w", err)
	}
	defer rows.Close()

	entries := []webhook.DeliveryLogEntry{}
	for rows.Next() {
		var (
			e       webhook.DeliveryLogEntry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &e.EventType, &payload, &e.ResponseStatus,
			&e.ResponseBody, &e.Success, &e.DurationMs, &e.SentAt); err != nil {
			return nil, fmt.Errorf("scanning delivery log: %w", err)
		}
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery logs: %w", err)
	}
	return entries, nil
}

// Close closes the connection pool
func (r *Repository) Close(ctx context.Context) error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// validUUIDs guards UUID columns against malformed input, which would otherwise be a query error
func validUUIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func filterOrEmpty(filter []string) []string {
	if filter == nil {
		return []string{}
	}
	return filter
}
