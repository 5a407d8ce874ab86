package webhook

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/marcelsud/heatmap-webhooks/webhook/payload"
)

const (
	DefaultMaxRetries        = 3
	MaxMaxRetries            = 10
	DefaultRetryDelaySeconds = 60
	maxNameLength            = 255
)

/* Subscription is a registered webhook destination
 * Uses value semantics as it represents data, not behavior
 */
type Subscription struct {
	ID                string
	OwnerID           string
	Name              string
	Endpoint          string
	Secret            string
	Active            bool
	EventFilter       []string // empty means every event type
	MaxRetries        int
	RetryDelaySeconds int
	TotalDeliveries   int64
	FailedDeliveries  int64
	LastTriggeredAt   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EnabledFor reports whether the subscription should receive eventType
func (s Subscription) EnabledFor(eventType string) bool {
	if !s.Active {
		return false
	}
	return payload.MatchesEventType(s.EventFilter, eventType)
}

// Validate checks the configuration fields of the subscription
func (s Subscription) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidSubscription)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name cannot exceed %d characters", ErrInvalidSubscription, maxNameLength)
	}
	if err := validateEndpoint(s.Endpoint); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
	}
	if s.MaxRetries < 0 || s.MaxRetries > MaxMaxRetries {
		return fmt.Errorf("%w: max_retries must be between 0 and %d", ErrInvalidSubscription, MaxMaxRetries)
	}
	if s.RetryDelaySeconds < 0 {
		return fmt.Errorf("%w: retry_delay_seconds cannot be negative", ErrInvalidSubscription)
	}
	for _, eventType := range s.EventFilter {
		if err := payload.ValidateEventType(eventType); err != nil {
			return fmt.Errorf("%w: invalid event type '%s': %v", ErrInvalidSubscription, eventType, err)
		}
	}
	if s.FailedDeliveries > s.TotalDeliveries {
		return fmt.Errorf("%w: failed deliveries exceed total deliveries", ErrInvalidSubscription)
	}
	return nil
}

// NewSubscription holds the owner-supplied fields for a new subscription
type NewSubscription struct {
	Name              string
	Endpoint          string
	EventFilter       []string
	MaxRetries        *int
	RetryDelaySeconds *int
}

// SubscriptionPatch holds optional changes; nil fields are left untouched
type SubscriptionPatch struct {
	Name              *string
	Endpoint          *string
	Active            *bool
	EventFilter       *[]string
	MaxRetries        *int
	RetryDelaySeconds *int
}

// Apply returns a copy of s with the patch applied
func (p SubscriptionPatch) Apply(s Subscription) Subscription {
	if p.Name != nil {
		s.Name = strings.TrimSpace(*p.Name)
	}
	if p.Endpoint != nil {
		s.Endpoint = strings.TrimSpace(*p.Endpoint)
	}
	if p.Active != nil {
		s.Active = *p.Active
	}
	if p.EventFilter != nil {
		s.EventFilter = normalizeFilter(*p.EventFilter)
	}
	if p.MaxRetries != nil {
		s.MaxRetries = *p.MaxRetries
	}
	if p.RetryDelaySeconds != nil {
		s.RetryDelaySeconds = *p.RetryDelaySeconds
	}
	return s
}

// ListOptions paginates subscription listings
type ListOptions struct {
	Offset     int
	Limit      int
	ActiveOnly bool
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parsing endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint must include a host")
	}
	return nil
}

// normalizeFilter trims and deduplicates event types, keeping first-seen order
func normalizeFilter(filter []string) []string {
	out := make([]string, 0, len(filter))
	seen := make(map[string]struct{}, len(filter))
	for _, f := range filter {
		f = strings.TrimSpace(f)
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
