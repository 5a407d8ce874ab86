package payload

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/marcelsud/heatmap-webhooks/webhook/signature"
)

const (
	// FieldEventType and FieldTimestamp are reserved top-level envelope keys
	FieldEventType = "event_type"
	FieldTimestamp = "timestamp"

	// TimestampLayout is ISO-8601 UTC with millisecond precision
	TimestampLayout = "2006-01-02T15:04:05.000Z"
)

/* Envelope is the exact structure signed and sent to a subscriber.
 * Reserved fields live in typed slots; caller data sits in Fields and is merged
 * at the top level on the wire. A caller field named like a reserved one loses.
 */
type Envelope struct {
	EventType string
	Timestamp time.Time
	Fields    map[string]any

	dropped []string
}

// New creates an envelope stamped at now
func New(eventType string, fields map[string]any, now time.Time) (Envelope, error) {
	if err := ValidateEventType(eventType); err != nil {
		return Envelope{}, fmt.Errorf("validating event type: %w", err)
	}

	env := Envelope{
		EventType: eventType,
		Timestamp: now.UTC(),
		Fields:    make(map[string]any, len(fields)),
	}
	for k, v := range fields {
		if k == FieldEventType || k == FieldTimestamp {
			env.dropped = append(env.dropped, k)
			continue
		}
		env.Fields[k] = v
	}
	sort.Strings(env.dropped)
	return env, nil
}

// Dropped lists caller keys that collided with reserved fields
func (e Envelope) Dropped() []string {
	return e.dropped
}

// Map returns the flattened wire view of the envelope
func (e Envelope) Map() map[string]any {
	m := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		m[k] = v
	}
	m[FieldEventType] = e.EventType
	m[FieldTimestamp] = e.Timestamp.UTC().Format(TimestampLayout)
	return m
}

// Bytes returns the canonical JSON encoding: sorted keys, no whitespace.
// The same bytes are signed and sent.
func (e Envelope) Bytes() ([]byte, error) {
	return signature.Canonicalize(e.Map())
}

// MarshalJSON returns the canonical JSON encoding of the envelope
func (e Envelope) MarshalJSON() ([]byte, error) {
	return e.Bytes()
}

// Sign signs the canonical envelope with secret, returning body and signature together
func (e Envelope) Sign(secret string) ([]byte, string, error) {
	body, err := e.Bytes()
	if err != nil {
		return nil, "", fmt.Errorf("encoding envelope: %w", err)
	}
	return body, signature.SignBytes(body, secret), nil
}

// MatchesEventType checks if eventType is selected by filter.
// An empty filter selects every event type.
func MatchesEventType(filter []string, eventType string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == eventType {
			return true
		}
	}
	return false
}

// MaxEventTypeLength caps an event type, in characters
const MaxEventTypeLength = 100

// ValidateEventType accepts any non-empty event type up to MaxEventTypeLength characters
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if utf8.RuneCountInString(eventType) > MaxEventTypeLength {
		return fmt.Errorf("event type cannot exceed %d characters", MaxEventTypeLength)
	}
	return nil
}
