package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned when a caller hands the ledger a time it cannot use.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Status of an attendance record.
type Status string

const (
	StatusPresent Status = "Present"
	// StatusLate is reserved; nothing in the engine produces it yet.
	StatusLate Status = "Late"
)

// Record represents a single ledger entry.
type Record struct {
	ID           string    `json:"id"`
	IdentityName string    `json:"identity_name"`
	Timestamp    time.Time `json:"timestamp"`
	Status       Status    `json:"status"`
	Confidence   *float64  `json:"confidence,omitempty"`
}

// Outcome tells the caller whether a Record call appended to the ledger.
type Outcome int

const (
	Recorded Outcome = iota + 1
	Suppressed
)

func (o Outcome) String() string {
	switch o {
	case Recorded:
		return "recorded"
	case Suppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// ParseTimestamp parses an RFC3339 timestamp supplied at the API boundary.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return t, nil
}
