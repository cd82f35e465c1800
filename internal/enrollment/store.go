package enrollment

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("identity not found")
	ErrNameRequired  = errors.New("name required")
	ErrImageRequired = errors.New("reference image required")
)

// Identity is an enrolled person the recognizer can match against.
type Identity struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ReferenceImage []byte    `json:"reference_image"`
	EnrolledAt     time.Time `json:"enrolled_at"`
}

// EventKind identifies an enrollment mutation.
type EventKind string

const (
	EventAdded   EventKind = "enrollment.added"
	EventRemoved EventKind = "enrollment.removed"
)

// Event describes an enrollment mutation. Removed events carry only the ID.
type Event struct {
	Kind     EventKind `json:"kind"`
	Identity Identity  `json:"identity"`
}

// NormalizeName is the comparison form used to join recognizer labels to enrolled names.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Match returns the first identity whose name matches label after normalization.
// Duplicate names are indistinguishable, so the earliest enrollment wins.
func Match(label string, identities []Identity) (Identity, bool) {
	want := NormalizeName(label)
	if want == "" {
		return Identity{}, false
	}
	for _, id := range identities {
		if NormalizeName(id.Name) == want {
			return id, true
		}
	}
	return Identity{}, false
}

// Store owns the set of enrolled identities.
type Store struct {
	mu         sync.RWMutex
	identities []Identity

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)

	notifyMu sync.Mutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(Event))}
}

// Add enrolls a new identity.
func (s *Store) Add(name string, image []byte, now time.Time) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, ErrNameRequired
	}
	if len(image) == 0 {
		return Identity{}, ErrImageRequired
	}
	if now.IsZero() {
		now = time.Now()
	}
	id := Identity{
		ID:             uuid.NewString(),
		Name:           name,
		ReferenceImage: append([]byte(nil), image...),
		EnrolledAt:     now.UTC(),
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.identities = append(s.identities, id)
	s.mu.Unlock()

	s.notify(Event{Kind: EventAdded, Identity: id})
	return id, nil
}

// Remove deletes an identity by ID.
func (s *Store) Remove(id string) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	idx := -1
	for i, ident := range s.identities {
		if ident.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.identities = append(s.identities[:idx:idx], s.identities[idx+1:]...)
	s.mu.Unlock()

	s.notify(Event{Kind: EventRemoved, Identity: Identity{ID: id}})
	return nil
}

// List returns a snapshot of the enrolled identities in enrollment order.
func (s *Store) List() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Identity, len(s.identities))
	copy(out, s.identities)
	return out
}

// Get returns the identity with the given ID.
func (s *Store) Get(id string) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ident := range s.identities {
		if ident.ID == id {
			return ident, true
		}
	}
	return Identity{}, false
}

// Len returns the number of enrolled identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities)
}

// Restore replaces the store contents with persisted identities without notifying subscribers.
func (s *Store) Restore(identities []Identity) {
	cp := make([]Identity, len(identities))
	copy(cp, identities)
	s.mu.Lock()
	s.identities = cp
	s.mu.Unlock()
}

// Subscribe registers fn for mutation events and returns a function that removes it.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(evt Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}
