package attendance

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDedupWindow is how long a second sighting of the same name is ignored.
const DefaultDedupWindow = time.Hour

// EventKind identifies a ledger mutation.
type EventKind string

const (
	EventRecorded EventKind = "attendance.recorded"
	EventCleared  EventKind = "attendance.cleared"
)

// Event describes a ledger mutation delivered to subscribers.
type Event struct {
	Kind   EventKind `json:"kind"`
	Record *Record   `json:"record,omitempty"`
	At     time.Time `json:"at"`
}

// Ledger is the attendance ingestion engine. It is the only writer of the
// newest-first attendance ledger and applies the per-name dedup window.
type Ledger struct {
	mu      sync.RWMutex
	records []Record
	window  time.Duration

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)

	// serializes listener delivery so subscribers see mutations in order
	notifyMu sync.Mutex
}

// NewLedger creates an empty ledger.
func NewLedger(window time.Duration) *Ledger {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Ledger{window: window, subs: make(map[int]func(Event))}
}

// Window returns the dedup window.
func (l *Ledger) Window() time.Duration { return l.window }

// Record marks name present at now unless the same name was recorded at or
// after now minus the dedup window.
func (l *Ledger) Record(name string, now time.Time) (Outcome, error) {
	return l.record(name, now, nil)
}

// RecordWithConfidence is Record, keeping the recognizer's confidence on the entry.
func (l *Ledger) RecordWithConfidence(name string, now time.Time, confidence float64) (Outcome, error) {
	return l.record(name, now, &confidence)
}

func (l *Ledger) record(name string, now time.Time, confidence *float64) (Outcome, error) {
	if now.IsZero() {
		return 0, fmt.Errorf("%w: zero time for %q", ErrInvalidTimestamp, name)
	}
	windowStart := now.Add(-l.window)

	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	for _, r := range l.records {
		// inclusive: a sighting exactly one window later is still a duplicate
		if r.IdentityName == name && !r.Timestamp.Before(windowStart) {
			l.mu.Unlock()
			return Suppressed, nil
		}
	}
	rec := Record{
		ID:           uuid.NewString(),
		IdentityName: name,
		Timestamp:    now,
		Status:       StatusPresent,
		Confidence:   confidence,
	}
	l.records = append([]Record{rec}, l.records...)
	l.mu.Unlock()

	l.notify(Event{Kind: EventRecorded, Record: &rec, At: now})
	return Recorded, nil
}

// Clear empties the ledger. Gating behind an operator confirmation is the caller's job.
func (l *Ledger) Clear() {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()

	l.notify(Event{Kind: EventCleared, At: time.Now().UTC()})
}

// ListRecent returns up to n records, newest first.
func (l *Ledger) ListRecent(n int) []Record {
	if n <= 0 {
		return []Record{}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.records) {
		n = len(l.records)
	}
	out := make([]Record, n)
	copy(out, l.records[:n])
	return out
}

// ListAll returns every record in ledger order.
func (l *Ledger) ListAll() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Restore replaces the ledger with previously persisted records, which must
// already be newest-first. Subscribers are not notified.
func (l *Ledger) Restore(records []Record) {
	cp := make([]Record, len(records))
	copy(cp, records)
	l.mu.Lock()
	l.records = cp
	l.mu.Unlock()
}

// Subscribe registers fn for mutation events and returns a function that removes it.
func (l *Ledger) Subscribe(fn func(Event)) func() {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	return func() {
		l.subMu.Lock()
		delete(l.subs, id)
		l.subMu.Unlock()
	}
}

func (l *Ledger) notify(evt Event) {
	l.subMu.Lock()
	fns := make([]func(Event), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.subMu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}
