package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/heatmap-webhooks/webhook"
	"github.com/marcelsud/heatmap-webhooks/webhook/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "7d5c1a4e-2f0b-4c4b-9a55-3f1f0f6f9d11"

func newSub(id string, created time.Time) webhook.Subscription {
	return webhook.Subscription{
		ID:                id,
		OwnerID:           owner,
		Name:              "hook " + id,
		Endpoint:          "https://example.com/hook",
		Secret:            "s",
		Active:            true,
		MaxRetries:        3,
		RetryDelaySeconds: 60,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func TestRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("success - create and get", func(t *testing.T) {
		repo := memory.NewRepository(0)
		require.NoError(t, repo.Create(ctx, newSub("a", base)))

		got, err := repo.Get(ctx, owner, "a")
		require.NoError(t, err)
		assert.Equal(t, "hook a", got.Name)
	})

	t.Run("other owners cannot see the subscription", func(t *testing.T) {
		repo := memory.NewRepository(0)
		require.NoError(t, repo.Create(ctx, newSub("a", base)))

		_, err := repo.Get(ctx, "someone-else", "a")
		assert.ErrorIs(t, err, webhook.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "someone-else", "a"), webhook.ErrNotFound)
	})

	t.Run("list is newest first and paginated", func(t *testing.T) {
		repo := memory.NewRepository(0)
		for i := 0; i < 5; i++ {
			require.NoError(t, repo.Create(ctx, newSub(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute))))
		}

		page, total, err := repo.List(ctx, owner, webhook.ListOptions{Offset: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, "s3", page[0].ID)
		assert.Equal(t, "s2", page[1].ID)

		page, total, err = repo.List(ctx, owner, webhook.ListOptions{Offset: 10, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, page)
	})

	t.Run("list active skips inactive", func(t *testing.T) {
		repo := memory.NewRepository(0)
		inactive := newSub("off", base)
		inactive.Active = false
		require.NoError(t, repo.Create(ctx, inactive))
		require.NoError(t, repo.Create(ctx, newSub("on", base)))

		subs, err := repo.ListActive(ctx, owner)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "on", subs[0].ID)
	})

	t.Run("update keeps counters", func(t *testing.T) {
		repo := memory.NewRepository(0)
		require.NoError(t, repo.Create(ctx, newSub("a", base)))
		require.NoError(t, repo.RecordDelivery(ctx, webhook.DeliveryLogEntry{ID: "e1", SubscriptionID: "a", SentAt: base}))

		changed := newSub("a", base)
		changed.Name = "renamed"
		changed.TotalDeliveries = 0
		require.NoError(t, repo.Update(ctx, changed))

		got, err := repo.Get(ctx, owner, "a")
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.Equal(t, int64(1), got.TotalDeliveries)
	})

	t.Run("rotate secret", func(t *testing.T) {
		repo := memory.NewRepository(0)
		require.NoError(t, repo.Create(ctx, newSub("a", base)))
		require.NoError(t, repo.RotateSecret(ctx, owner, "a", "fresh"))

		got, err := repo.Get(ctx, owner, "a")
		require.NoError(t, err)
		assert.Equal(t, "fresh", got.Secret)
		assert.ErrorIs(t, repo.RotateSecret(ctx, owner, "missing", "x"), webhook.ErrNotFound)
	})

	t.Run("delete removes the log", func(t *testing.T) {
		repo := memory.NewRepository(0)
		require.NoError(t, repo.Create(ctx, newSub("a", base)))
		require.NoError(t, repo.RecordDelivery(ctx, webhook.DeliveryLogEntry{ID: "e1", SubscriptionID: "a", SentAt: base}))
		require.NoError(t, repo.Delete(ctx, owner, "a"))

		entries, err := repo.ListDeliveries(ctx, "a", 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestRepository_RecordDelivery(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("success - counters and last triggered", func(t *testing.T) {
		repo := memory.NewRepository(0)
		require.NoError(t, repo.Create(ctx, newSub("a", base)))

		sent := base.Add(time.Hour)
		require.NoError(t, repo.RecordDelivery(ctx, webhook.DeliveryLogEntry{ID: "ok", SubscriptionID: "a", Success: true, ResponseStatus: 200, SentAt: base}))
		require.NoError(t, repo.RecordDelivery(ctx, webhook.DeliveryLogEntry{ID: "ko", SubscriptionID: "a", Success: false, ResponseStatus: 0, SentAt: sent}))

		got, err := repo.Get(ctx, owner, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.TotalDeliveries)
		assert.Equal(t, int64(1), got.FailedDeliveries)
		require.NotNil(t, got.LastTriggeredAt)
		assert.True(t, sent.Equal(*got.LastTriggeredAt))

		entries, err := repo.ListDeliveries(ctx, "a", 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "ko", entries[0].ID)
		assert.Equal(t, "ok", entries[1].ID)
	})

	t.Run("unknown subscription", func(t *testing.T) {
		repo := memory.NewRepository(0)
		err := repo.RecordDelivery(ctx, webhook.DeliveryLogEntry{SubscriptionID: "ghost"})
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})

	t.Run("log cap keeps newest entries", func(t *testing.T) {
		repo := memory.NewRepository(3)
		require.NoError(t, repo.Create(ctx, newSub("a", base)))
		for i := 0; i < 5; i++ {
			require.NoError(t, repo.RecordDelivery(ctx, webhook.DeliveryLogEntry{ID: fmt.Sprintf("e%d", i), SubscriptionID: "a", Success: true, SentAt: base}))
		}

		entries, err := repo.ListDeliveries(ctx, "a", 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "e4", entries[0].ID)
		assert.Equal(t, "e2", entries[2].ID)

		got, err := repo.Get(ctx, owner, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.TotalDeliveries)
	})

	t.Run("concurrent deliveries never lose an increment", func(t *testing.T) {
		repo := memory.NewRepository(0)
		require.NoError(t, repo.Create(ctx, newSub("a", base)))

		const n = 200
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = repo.RecordDelivery(ctx, webhook.DeliveryLogEntry{
					ID:             fmt.Sprintf("e%d", i),
					SubscriptionID: "a",
					Success:        i%2 == 0,
					SentAt:         base,
				})
			}(i)
		}
		wg.Wait()

		got, err := repo.Get(ctx, owner, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.TotalDeliveries)
		assert.Equal(t, int64(n/2), got.FailedDeliveries)

		entries, err := repo.ListDeliveries(ctx, "a", 0)
		require.NoError(t, err)
		assert.Len(t, entries, n)
	})
}
