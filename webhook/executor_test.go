package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/marcelsud/heatmap-webhooks/webhook"
	"github.com/marcelsud/heatmap-webhooks/webhook/memory"
	"github.com/marcelsud/heatmap-webhooks/webhook/mocks"
	"github.com/marcelsud/heatmap-webhooks/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const ownerID = "0b9f0a4e-6a43-4b57-8f3e-5d2a7c9e1f20"

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// receivedRequest captures what a subscriber saw
type receivedRequest struct {
	Body    []byte
	Headers http.Header
}

func subscriber(t *testing.T, status int, body string, got chan<- receivedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if got != nil {
			got <- receivedRequest{Body: raw, Headers: r.Header.Clone()}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func storeWith(t *testing.T, subs ...webhook.Subscription) *memory.Repository {
	t.Helper()
	repo := memory.NewRepository(0)
	for _, s := range subs {
		require.NoError(t, repo.Create(context.Background(), s))
	}
	return repo
}

func activeSub(id, endpoint string, filter ...string) webhook.Subscription {
	return webhook.Subscription{
		ID:                id,
		OwnerID:           ownerID,
		Name:              "hook " + id,
		Endpoint:          endpoint,
		Secret:            "secret-" + id,
		Active:            true,
		EventFilter:       filter,
		MaxRetries:        3,
		RetryDelaySeconds: 60,
		CreatedAt:         fixedNow,
		UpdatedAt:         fixedNow,
	}
}

func TestExecutor_Attempt(t *testing.T) {
	ctx := context.Background()

	t.Run("success - signed canonical body", func(t *testing.T) {
		got := make(chan receivedRequest, 1)
		srv := subscriber(t, http.StatusOK, "thanks", got)
		sub := activeSub("a", srv.URL, "funnel.completed")
		repo := storeWith(t, sub)
		exec := webhook.NewExecutor(repo, webhook.WithClock(clock))

		result, err := exec.Attempt(ctx, sub, "funnel.completed", map[string]any{"funnel_id": "f-1"})
		require.NoError(t, err)
		assert.Equal(t, webhook.Delivered, result.Outcome)
		assert.True(t, result.Success())
		assert.Equal(t, 200, result.StatusCode)
		assert.Equal(t, "thanks", result.ResponseBody)

		req := <-got
		assert.Equal(t, `{"event_type":"funnel.completed","funnel_id":"f-1","timestamp":"2024-06-01T12:00:00.000Z"}`, string(req.Body))
		assert.Equal(t, "application/json", req.Headers.Get("Content-Type"))
		assert.Equal(t, webhook.DefaultUserAgent, req.Headers.Get("User-Agent"))

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(req.Body, &decoded))
		assert.True(t, signature.Verify(decoded, req.Headers.Get(signature.HeaderName), sub.Secret))

		stored, err := repo.Get(ctx, ownerID, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.TotalDeliveries)
		assert.Equal(t, int64(0), stored.FailedDeliveries)
		require.NotNil(t, stored.LastTriggeredAt)
		assert.True(t, fixedNow.Equal(*stored.LastTriggeredAt))

		entries, err := repo.ListDeliveries(ctx, "a", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, req.Body, entries[0].Payload)
		assert.True(t, entries[0].Success)
		assert.Equal(t, "thanks", entries[0].ResponseBody)
	})

	t.Run("empty filter receives any event type", func(t *testing.T) {
		srv := subscriber(t, http.StatusNoContent, "", nil)
		sub := activeSub("a", srv.URL)
		exec := webhook.NewExecutor(storeWith(t, sub))

		ok, err := exec.Deliver(ctx, sub, "anything.happened", nil)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("inactive subscription is skipped", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
		defer srv.Close()
		sub := activeSub("a", srv.URL)
		sub.Active = false
		repo := storeWith(t, sub)
		exec := webhook.NewExecutor(repo)

		result, err := exec.Attempt(ctx, sub, "funnel.completed", nil)
		require.NoError(t, err)
		assert.Equal(t, webhook.Skipped, result.Outcome)
		assert.False(t, result.Attempted())
		assert.Zero(t, hits.Load())

		stored, _ := repo.Get(ctx, ownerID, "a")
		assert.Zero(t, stored.TotalDeliveries)
		assert.Nil(t, stored.LastTriggeredAt)
	})

	t.Run("unsubscribed event type is skipped", func(t *testing.T) {
		sub := activeSub("a", "http://127.0.0.1:1", "funnel.dropped_off")
		exec := webhook.NewExecutor(mocks.NewRepository(t))

		ok, err := exec.Deliver(ctx, sub, "funnel.completed", nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("subscriber error is recorded as failure", func(t *testing.T) {
		long := strings.Repeat("x", 5000)
		srv := subscriber(t, http.StatusInternalServerError, long, nil)
		sub := activeSub("a", srv.URL)
		repo := storeWith(t, sub)
		exec := webhook.NewExecutor(repo)

		result, err := exec.Attempt(ctx, sub, "funnel.completed", nil)
		require.NoError(t, err)
		assert.Equal(t, webhook.Rejected, result.Outcome)
		assert.Len(t, result.ResponseBody, webhook.MaxResponseBodyLength)

		stored, _ := repo.Get(ctx, ownerID, "a")
		assert.Equal(t, int64(1), stored.TotalDeliveries)
		assert.Equal(t, int64(1), stored.FailedDeliveries)
	})

	t.Run("redirects are not followed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
		}))
		defer srv.Close()
		sub := activeSub("a", srv.URL)
		exec := webhook.NewExecutor(storeWith(t, sub))

		result, err := exec.Attempt(ctx, sub, "funnel.completed", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusFound, result.StatusCode)
		assert.True(t, result.Success())
	})

	t.Run("unreachable endpoint records status zero", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		endpoint := srv.URL
		srv.Close()

		sub := activeSub("a", endpoint)
		repo := storeWith(t, sub)
		exec := webhook.NewExecutor(repo)

		result, err := exec.Attempt(ctx, sub, "funnel.completed", nil)
		require.NoError(t, err)
		assert.Equal(t, webhook.Unreachable, result.Outcome)
		assert.Equal(t, webhook.TransportFailureStatus, result.StatusCode)
		assert.Error(t, result.Err)
		assert.True(t, strings.HasPrefix(result.ResponseBody, "Error: "))

		stored, _ := repo.Get(ctx, ownerID, "a")
		assert.Equal(t, int64(1), stored.TotalDeliveries)
		assert.Equal(t, int64(1), stored.FailedDeliveries)

		entries, _ := repo.ListDeliveries(ctx, "a", 1)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].TransportFailed())
	})

	t.Run("slow subscriber times out", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()
		sub := activeSub("a", srv.URL)
		exec := webhook.NewExecutor(storeWith(t, sub), webhook.WithTimeout(50*time.Millisecond))

		result, err := exec.Attempt(ctx, sub, "funnel.completed", nil)
		require.NoError(t, err)
		assert.Equal(t, webhook.Unreachable, result.Outcome)
	})

	t.Run("caller cancellation does not abort the attempt", func(t *testing.T) {
		srv := subscriber(t, http.StatusOK, "ok", nil)
		sub := activeSub("a", srv.URL)
		repo := storeWith(t, sub)
		exec := webhook.NewExecutor(repo)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		result, err := exec.Attempt(cancelled, sub, "funnel.completed", nil)
		require.NoError(t, err)
		assert.True(t, result.Success())

		stored, _ := repo.Get(ctx, ownerID, "a")
		assert.Equal(t, int64(1), stored.TotalDeliveries)
	})

	t.Run("free-form event types are delivered", func(t *testing.T) {
		got := make(chan receivedRequest, 1)
		srv := subscriber(t, http.StatusOK, "", got)
		sub := activeSub("a", srv.URL, "Funnel Completed")
		exec := webhook.NewExecutor(storeWith(t, sub))

		ok, err := exec.Deliver(ctx, sub, "Funnel Completed", nil)
		require.NoError(t, err)
		assert.True(t, ok)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal((<-got).Body, &decoded))
		assert.Equal(t, "Funnel Completed", decoded["event_type"])
	})

	t.Run("binary response body is stored as valid text", func(t *testing.T) {
		srv := subscriber(t, http.StatusOK, "\x1f\x8b\xff\xfeok", nil)
		sub := activeSub("a", srv.URL)
		repo := storeWith(t, sub)
		exec := webhook.NewExecutor(repo)

		result, err := exec.Attempt(ctx, sub, "funnel.completed", nil)
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(result.ResponseBody))
		assert.Equal(t, "\x1f\uFFFDok", result.ResponseBody)

		entries, err := repo.ListDeliveries(ctx, "a", 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, utf8.ValidString(entries[0].ResponseBody))
	})

	t.Run("reserved fields cannot be overridden", func(t *testing.T) {
		got := make(chan receivedRequest, 1)
		srv := subscriber(t, http.StatusOK, "", got)
		sub := activeSub("a", srv.URL)
		exec := webhook.NewExecutor(storeWith(t, sub), webhook.WithClock(clock))

		_, err := exec.Attempt(ctx, sub, "funnel.completed", map[string]any{"event_type": "spoofed"})
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal((<-got).Body, &decoded))
		assert.Equal(t, "funnel.completed", decoded["event_type"])
	})

	t.Run("error - invalid event type", func(t *testing.T) {
		sub := activeSub("a", "http://127.0.0.1:1")
		exec := webhook.NewExecutor(mocks.NewRepository(t))

		_, err := exec.Attempt(ctx, sub, "", nil)
		assert.ErrorIs(t, err, webhook.ErrInvalidEvent)
	})

	t.Run("error - bookkeeping failure is returned", func(t *testing.T) {
		srv := subscriber(t, http.StatusOK, "", nil)
		sub := activeSub("a", srv.URL)
		repo := mocks.NewRepository(t)
		repo.On("RecordDelivery", mock.Anything, webhook.MatchEntry(func(e webhook.DeliveryLogEntry) bool {
			return e.SubscriptionID == "a" && e.Success && e.ResponseStatus == 200
		})).Return(errors.New("connection refused"))

		exec := webhook.NewExecutor(repo)
		result, err := exec.Attempt(ctx, sub, "funnel.completed", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "recording delivery")
		assert.True(t, result.Success())
	})

	t.Run("custom user agent", func(t *testing.T) {
		got := make(chan receivedRequest, 1)
		srv := subscriber(t, http.StatusOK, "", got)
		sub := activeSub("a", srv.URL)
		exec := webhook.NewExecutor(storeWith(t, sub), webhook.WithUserAgent("Custom/2.0"))

		_, err := exec.Attempt(ctx, sub, "funnel.completed", nil)
		require.NoError(t, err)
		assert.Equal(t, "Custom/2.0", (<-got).Headers.Get("User-Agent"))
	})
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		status   int
		expected webhook.Outcome
	}{
		{0, webhook.Unreachable},
		{200, webhook.Delivered},
		{204, webhook.Delivered},
		{301, webhook.Delivered},
		{399, webhook.Delivered},
		{400, webhook.Rejected},
		{404, webhook.Rejected},
		{503, webhook.Rejected},
	}

	for _, tt := range tests {
		t.Run(tt.expected.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, webhook.Classify(tt.status))
		})
	}

	assert.Error(t, webhook.Outcome(99).Validate())
	assert.NoError(t, webhook.Skipped.Validate())
}
