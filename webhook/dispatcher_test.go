package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcelsud/heatmap-webhooks/webhook"
	"github.com/marcelsud/heatmap-webhooks/webhook/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type failureSpy struct {
	mu   sync.Mutex
	subs []string
}

func (f *failureSpy) HandleFailure(ctx context.Context, sub webhook.Subscription, eventType string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub.ID)
	return nil
}

func TestDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("success - one slow subscriber does not block the others", func(t *testing.T) {
		fast := subscriber(t, http.StatusOK, "", nil)
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer slow.Close()

		repo := storeWith(t,
			activeSub("one", fast.URL, "funnel.completed"),
			activeSub("two", slow.URL, "funnel.completed"),
			activeSub("three", fast.URL, "funnel.completed"),
		)
		spy := &failureSpy{}
		exec := webhook.NewExecutor(repo, webhook.WithTimeout(100*time.Millisecond))
		d := webhook.NewDispatcher(repo, exec, webhook.WithFailureHandler(spy))

		delivered, err := d.Dispatch(ctx, ownerID, "funnel.completed", map[string]any{"funnel_id": "f"})
		require.NoError(t, err)
		assert.Equal(t, 2, delivered)
		assert.Equal(t, []string{"two"}, spy.subs)

		for _, id := range []string{"one", "two", "three"} {
			sub, err := repo.Get(ctx, ownerID, id)
			require.NoError(t, err)
			assert.Equal(t, int64(1), sub.TotalDeliveries, id)
		}
		two, _ := repo.Get(ctx, ownerID, "two")
		assert.Equal(t, int64(1), two.FailedDeliveries)
	})

	t.Run("only matching active subscriptions receive the event", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
		defer srv.Close()

		inactive := activeSub("off", srv.URL)
		inactive.Active = false
		repo := storeWith(t,
			activeSub("all", srv.URL),
			activeSub("match", srv.URL, "funnel.completed"),
			activeSub("other", srv.URL, "funnel.dropped_off"),
			inactive,
		)
		d := webhook.NewDispatcher(repo, webhook.NewExecutor(repo))

		delivered, err := d.Dispatch(ctx, ownerID, "funnel.completed", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, delivered)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("no subscriptions", func(t *testing.T) {
		repo := storeWith(t)
		d := webhook.NewDispatcher(repo, webhook.NewExecutor(repo))

		delivered, err := d.Dispatch(ctx, ownerID, "funnel.completed", nil)
		require.NoError(t, err)
		assert.Zero(t, delivered)
	})

	t.Run("concurrency is bounded", func(t *testing.T) {
		var inFlight, peak atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
		}))
		defer srv.Close()

		var subs []webhook.Subscription
		for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
			subs = append(subs, activeSub(id, srv.URL))
		}
		repo := storeWith(t, subs...)
		d := webhook.NewDispatcher(repo, webhook.NewExecutor(repo), webhook.WithConcurrency(2))

		delivered, err := d.Dispatch(ctx, ownerID, "funnel.completed", nil)
		require.NoError(t, err)
		assert.Equal(t, 6, delivered)
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("error - listing fails", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		repo.On("ListActive", mock.Anything, ownerID).Return(nil, errors.New("db down"))
		d := webhook.NewDispatcher(repo, webhook.NewExecutor(repo))

		_, err := d.Dispatch(ctx, ownerID, "funnel.completed", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listing active subscriptions")
	})

	t.Run("error - bookkeeping failures are joined", func(t *testing.T) {
		srv := subscriber(t, http.StatusOK, "", nil)
		repo := mocks.NewRepository(t)
		repo.On("ListActive", mock.Anything, ownerID).Return([]webhook.Subscription{
			activeSub("a", srv.URL),
			activeSub("b", srv.URL),
		}, nil)
		repo.On("RecordDelivery", mock.Anything, webhook.MatchEntry(func(e webhook.DeliveryLogEntry) bool {
			return e.SubscriptionID == "a"
		})).Return(nil)
		repo.On("RecordDelivery", mock.Anything, webhook.MatchEntry(func(e webhook.DeliveryLogEntry) bool {
			return e.SubscriptionID == "b"
		})).Return(errors.New("write failed"))

		d := webhook.NewDispatcher(repo, webhook.NewExecutor(repo))
		delivered, err := d.Dispatch(ctx, ownerID, "funnel.completed", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "subscription b")
		assert.Equal(t, 2, delivered)
	})

	t.Run("error - invalid event type", func(t *testing.T) {
		d := webhook.NewDispatcher(mocks.NewRepository(t), nil)

		_, err := d.Dispatch(ctx, ownerID, "", nil)
		assert.ErrorIs(t, err, webhook.ErrInvalidEvent)
	})
}
