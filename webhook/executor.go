package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/marcelsud/heatmap-webhooks/metrics"
	"github.com/marcelsud/heatmap-webhooks/webhook/payload"
	"github.com/marcelsud/heatmap-webhooks/webhook/signature"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultUserAgent = "Heatmap-Webhook/1.0"
	DefaultTimeout   = 30 * time.Second
)

// Result is the detail of a single delivery attempt
type Result struct {
	Outcome      Outcome
	StatusCode   int
	ResponseBody string
	Err          error // transport error, if no response was received
	Entry        *DeliveryLogEntry
}

// Attempted reports whether a request was sent and recorded
func (r Result) Attempted() bool {
	return r.Outcome != Skipped
}

// Success reports whether the subscriber acknowledged the delivery
func (r Result) Success() bool {
	return r.Outcome == Delivered
}

/* Executor performs one signed delivery and records it.
 * Uses pointer semantics as it's an API, not data
 */
type Executor struct {
	recorder  DeliveryRecorder
	client    *http.Client
	timeout   time.Duration
	userAgent string
	now       func() time.Time
	logger    zerolog.Logger
	metrics   metrics.Recorder
}

type ExecutorOption func(*Executor)

// WithHTTPClient replaces the default outbound client
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithTimeout bounds every outbound request
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

func WithUserAgent(userAgent string) ExecutorOption {
	return func(e *Executor) {
		if userAgent != "" {
			e.userAgent = userAgent
		}
	}
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithRecorder(recorder metrics.Recorder) ExecutorOption {
	return func(e *Executor) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

// NewExecutor creates an executor that records attempts through recorder
func NewExecutor(recorder DeliveryRecorder, opts ...ExecutorOption) *Executor {
	e := &Executor{
		recorder: recorder,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		now:       time.Now,
		logger:    zerolog.Nop(),
		metrics:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deliver sends fields as eventType to sub and reports whether the subscriber accepted it.
// Subscriber failures are not errors; only encoding and bookkeeping failures are.
func (e *Executor) Deliver(ctx context.Context, sub Subscription, eventType string, fields map[string]any) (bool, error) {
	r, err := e.Attempt(ctx, sub, eventType, fields)
	return r.Success(), err
}

/* Attempt performs one delivery and returns its full detail.
 * Inactive or filtered-out subscriptions yield a Skipped result with no side effects.
 * The request outlives caller cancellation and is bounded only by the executor timeout,
 * so every attempt that starts is also recorded.
 */
func (e *Executor) Attempt(ctx context.Context, sub Subscription, eventType string, fields map[string]any) (Result, error) {
	if !sub.EnabledFor(eventType) {
		return Result{Outcome: Skipped}, nil
	}

	env, err := payload.New(eventType, fields, e.now())
	if err != nil {
		return Result{Outcome: Skipped}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if dropped := env.Dropped(); len(dropped) > 0 {
		e.logger.Warn().
			Str("subscription_id", sub.ID).
			Str("event_type", eventType).
			Strs("fields", dropped).
			Msg("payload fields shadowed by reserved envelope fields")
	}

	body, sig, err := env.Sign(sub.Secret)
	if err != nil {
		return Result{Outcome: Skipped}, fmt.Errorf("signing payload: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	sentAt := e.now()
	started := time.Now()
	status, respBody, sendErr := e.send(ctx, sub.Endpoint, body, sig)
	elapsed := time.Since(started)

	outcome := Classify(status)
	entry := DeliveryLogEntry{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		EventType:      eventType,
		Payload:        body,
		ResponseStatus: status,
		ResponseBody:   respBody,
		Success:        outcome == Delivered,
		DurationMs:     elapsed.Milliseconds(),
		SentAt:         sentAt,
	}
	result := Result{
		Outcome:      outcome,
		StatusCode:   status,
		ResponseBody: respBody,
		Err:          sendErr,
		Entry:        &entry,
	}

	e.metrics.DeliveryAttempted(ctx, eventType, outcome.String(), elapsed)
	logEvent := e.logger.Info()
	if outcome.IsFailure() {
		logEvent = e.logger.Warn()
	}
	logEvent.
		Str("subscription_id", sub.ID).
		Str("event_type", eventType).
		Str("outcome", outcome.String()).
		Int("status", status).
		Int64("duration_ms", entry.DurationMs).
		Msg("webhook delivery attempted")

	if err := e.recorder.RecordDelivery(ctx, entry); err != nil {
		return result, fmt.Errorf("recording delivery: %w", err)
	}
	return result, nil
}

// send posts body to endpoint. A zero status means no response was received.
func (e *Executor) send(ctx context.Context, endpoint string, body []byte, sig string) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return TransportFailureStatus, errorBody(err), err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderName, sig)
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return TransportFailureStatus, errorBody(err), err
	}
	defer resp.Body.Close()

	// a body that fails mid-read keeps whatever arrived
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodyLength*utf8.UTFMax))
	return resp.StatusCode, truncateBody(string(raw)), nil
}

func errorBody(err error) string {
	return truncateBody("Error: " + err.Error())
}
