package webhook

import "fmt"

/* Outcome classifies a single delivery attempt
 * Skipped means nothing was sent and nothing was recorded
 */
type Outcome int

const (
	Skipped Outcome = iota + 1
	Delivered
	Rejected
	Unreachable
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Validate checks if the outcome is valid
func (o Outcome) Validate() error {
	if o < Skipped || o > Unreachable {
		return fmt.Errorf("invalid outcome: %d", o)
	}
	return nil
}

// IsFailure returns true for attempts that reached bookkeeping and failed
func (o Outcome) IsFailure() bool {
	return o == Rejected || o == Unreachable
}

// Classify maps an HTTP status code to an outcome.
// Status 0 means no response was received.
func Classify(statusCode int) Outcome {
	switch {
	case statusCode == TransportFailureStatus:
		return Unreachable
	case statusCode >= 200 && statusCode < 400:
		return Delivered
	default:
		return Rejected
	}
}
