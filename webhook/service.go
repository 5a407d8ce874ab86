package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/heatmap-webhooks/webhook/signature"
)

const (
	TestEventType  = "test"
	TestProjectID  = "test_project"
	DefaultListMax = 100
	DefaultLogMax  = 50
)

// Event is a domain event raised by a collaborator such as the funnel engine
type Event struct {
	OwnerID string
	Type    string
	Payload map[string]any
}

/* Service represents the business logic layer
 * Uses pointer semantics as it's an API, not data
 */

// UseCase defines the business operations for webhook subscriptions
type UseCase interface {
	Create(ctx context.Context, ownerID string, in NewSubscription) (Subscription, error)
	Get(ctx context.Context, ownerID, id string) (Subscription, error)
	List(ctx context.Context, ownerID string, opts ListOptions) ([]Subscription, int, error)
	Update(ctx context.Context, ownerID, id string, patch SubscriptionPatch) (Subscription, error)
	Deactivate(ctx context.Context, ownerID, id string) (Subscription, error)
	Delete(ctx context.Context, ownerID, id string) error
	RotateSecret(ctx context.Context, ownerID, id string) (Subscription, error)
	Deliveries(ctx context.Context, ownerID, id string, limit int) ([]DeliveryLogEntry, error)
	Test(ctx context.Context, ownerID, id, eventType string, fields map[string]any) (Result, error)
	Dispatch(ctx context.Context, event Event) (int, error)
}

type Service struct {
	Repo       Repository
	Executor   Deliverer
	Dispatcher *Dispatcher
	now        func() time.Time
	newSecret  func() (string, error)
}

type ServiceOption func(*Service)

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSecretGenerator replaces signature.GenerateSecret
func WithSecretGenerator(gen func() (string, error)) ServiceOption {
	return func(s *Service) {
		if gen != nil {
			s.newSecret = gen
		}
	}
}

// NewService creates a new webhook service with dependency injection
func NewService(repo Repository, executor Deliverer, dispatcher *Dispatcher, opts ...ServiceOption) *Service {
	s := &Service{
		Repo:       repo,
		Executor:   executor,
		Dispatcher: dispatcher,
		now:        time.Now,
		newSecret:  signature.GenerateSecret,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new active subscription with a fresh secret
func (s *Service) Create(ctx context.Context, ownerID string, in NewSubscription) (Subscription, error) {
	secret, err := s.newSecret()
	if err != nil {
		return Subscription{}, fmt.Errorf("generating secret: %w", err)
	}

	now := s.now().UTC()
	sub := Subscription{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		Name:              strings.TrimSpace(in.Name),
		Endpoint:          strings.TrimSpace(in.Endpoint),
		Secret:            secret,
		Active:            true,
		EventFilter:       normalizeFilter(in.EventFilter),
		MaxRetries:        DefaultMaxRetries,
		RetryDelaySeconds: DefaultRetryDelaySeconds,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.MaxRetries != nil {
		sub.MaxRetries = *in.MaxRetries
	}
	if in.RetryDelaySeconds != nil {
		sub.RetryDelaySeconds = *in.RetryDelaySeconds
	}
	if err := sub.Validate(); err != nil {
		return Subscription{}, fmt.Errorf("validating subscription: %w", err)
	}

	if err := s.Repo.Create(ctx, sub); err != nil {
		return Subscription{}, fmt.Errorf("storing subscription: %w", err)
	}
	return sub, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (Subscription, error) {
	sub, err := s.Repo.Get(ctx, ownerID, id)
	if err != nil {
		return Subscription{}, fmt.Errorf("reading subscription: %w", err)
	}
	return sub, nil
}

// List returns one page of subscriptions and the total count
func (s *Service) List(ctx context.Context, ownerID string, opts ListOptions) ([]Subscription, int, error) {
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Limit <= 0 || opts.Limit > DefaultListMax {
		opts.Limit = DefaultListMax
	}
	subs, total, err := s.Repo.List(ctx, ownerID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing subscriptions: %w", err)
	}
	return subs, total, nil
}

// Update applies a patch to the configuration fields of a subscription
func (s *Service) Update(ctx context.Context, ownerID, id string, patch SubscriptionPatch) (Subscription, error) {
	current, err := s.Repo.Get(ctx, ownerID, id)
	if err != nil {
		return Subscription{}, fmt.Errorf("reading subscription: %w", err)
	}

	updated := patch.Apply(current)
	updated.UpdatedAt = s.now().UTC()
	if err := updated.Validate(); err != nil {
		return Subscription{}, fmt.Errorf("validating subscription: %w", err)
	}

	if err := s.Repo.Update(ctx, updated); err != nil {
		return Subscription{}, fmt.Errorf("updating subscription: %w", err)
	}
	return updated, nil
}

// Deactivate stops all future deliveries to the subscription
func (s *Service) Deactivate(ctx context.Context, ownerID, id string) (Subscription, error) {
	inactive := false
	return s.Update(ctx, ownerID, id, SubscriptionPatch{Active: &inactive})
}

// Delete removes the subscription together with its delivery log
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.Repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

// RotateSecret replaces the signing secret; the new one is returned once
func (s *Service) RotateSecret(ctx context.Context, ownerID, id string) (Subscription, error) {
	secret, err := s.newSecret()
	if err != nil {
		return Subscription{}, fmt.Errorf("generating secret: %w", err)
	}
	if err := s.Repo.RotateSecret(ctx, ownerID, id, secret); err != nil {
		return Subscription{}, fmt.Errorf("rotating secret: %w", err)
	}
	sub, err := s.Repo.Get(ctx, ownerID, id)
	if err != nil {
		return Subscription{}, fmt.Errorf("reading subscription: %w", err)
	}
	return sub, nil
}

// Deliveries returns the newest log entries of an owner's subscription
func (s *Service) Deliveries(ctx context.Context, ownerID, id string, limit int) ([]DeliveryLogEntry, error) {
	if _, err := s.Repo.Get(ctx, ownerID, id); err != nil {
		return nil, fmt.Errorf("reading subscription: %w", err)
	}
	if limit <= 0 || limit > DefaultListMax {
		limit = DefaultLogMax
	}
	entries, err := s.Repo.ListDeliveries(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	return entries, nil
}

// Test sends a sample event to a single subscription through the normal delivery path
func (s *Service) Test(ctx context.Context, ownerID, id, eventType string, fields map[string]any) (Result, error) {
	sub, err := s.Repo.Get(ctx, ownerID, id)
	if err != nil {
		return Result{}, fmt.Errorf("reading subscription: %w", err)
	}
	if eventType == "" {
		eventType = TestEventType
	}

	// caller fields override the sample ones
	sample := map[string]any{"project_id": TestProjectID, "test": true}
	for k, v := range fields {
		sample[k] = v
	}

	result, err := s.Executor.Attempt(ctx, sub, eventType, sample)
	if err != nil {
		return result, fmt.Errorf("delivering test event: %w", err)
	}
	return result, nil
}

// Dispatch fans a domain event out to the owner's subscriptions
func (s *Service) Dispatch(ctx context.Context, event Event) (int, error) {
	n, err := s.Dispatcher.Dispatch(ctx, event.OwnerID, event.Type, event.Payload)
	if err != nil {
		return n, fmt.Errorf("dispatching %s: %w", event.Type, err)
	}
	return n, nil
}
