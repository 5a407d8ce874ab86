package webhook

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxResponseBodyLength caps the stored response body, in characters
	MaxResponseBodyLength = 1000

	// TransportFailureStatus is recorded when no HTTP response was received
	TransportFailureStatus = 0
)

// DeliveryLogEntry records one delivery attempt. Entries are never updated.
type DeliveryLogEntry struct {
	ID             string
	SubscriptionID string
	EventType      string
	Payload        []byte // canonical envelope exactly as sent
	ResponseStatus int
	ResponseBody   string
	Success        bool
	DurationMs     int64
	SentAt         time.Time
}

// TransportFailed reports whether the attempt never got an HTTP response
func (e DeliveryLogEntry) TransportFailed() bool {
	return e.ResponseStatus == TransportFailureStatus
}

func truncateBody(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if utf8.RuneCountInString(s) <= MaxResponseBodyLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxResponseBodyLength])
}
