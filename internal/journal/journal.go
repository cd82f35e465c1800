// Package journal mirrors in-memory ledger and enrollment mutations to a
// queue so a separate worker can persist them without blocking the kiosk.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"faceguard/internal/attendance"
	"faceguard/internal/enrollment"
	"faceguard/internal/queue"
)

// Message types. They match the event kinds of the originating stores.
const (
	TypeAttendanceRecorded = string(attendance.EventRecorded)
	TypeAttendanceCleared  = string(attendance.EventCleared)
	TypeIdentityAdded      = string(enrollment.EventAdded)
	TypeIdentityRemoved    = string(enrollment.EventRemoved)
)

// ErrUnknownType is returned by Apply for messages it does not understand.
var ErrUnknownType = errors.New("unknown journal message type")

// Publisher forwards store events onto a queue.
type Publisher struct {
	q       queue.Queue
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a Publisher. Each publish is bounded by timeout.
func NewPublisher(q queue.Queue, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{q: q, timeout: timeout, logger: logger.With("component", "journal")}
}

// Attach subscribes to both stores and returns a function that detaches.
// Either argument may be nil.
func (p *Publisher) Attach(ledger *attendance.Ledger, identities *enrollment.Store) func() {
	var detach []func()
	if ledger != nil {
		detach = append(detach, ledger.Subscribe(p.OnAttendance))
	}
	if identities != nil {
		detach = append(detach, identities.Subscribe(p.OnEnrollment))
	}
	return func() {
		for _, fn := range detach {
			fn()
		}
	}
}

// OnAttendance publishes a ledger event.
func (p *Publisher) OnAttendance(evt attendance.Event) {
	p.publish(string(evt.Kind), evt)
}

// OnEnrollment publishes an enrollment event.
func (p *Publisher) OnEnrollment(evt enrollment.Event) {
	p.publish(string(evt.Kind), evt)
}

func (p *Publisher) publish(typ string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("encode journal message", "type", typ, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.q.Publish(ctx, queue.Message{Type: typ, Body: body}); err != nil {
		p.logger.Error("journal publish failed, mutation not persisted", "type", typ, "error", err)
	}
}

// AttendanceRepository is the persistence side of the ledger.
type AttendanceRepository interface {
	InsertRecord(ctx context.Context, rec attendance.Record) error
	ClearRecords(ctx context.Context) error
}

// IdentityRepository is the persistence side of the enrollment store.
type IdentityRepository interface {
	InsertIdentity(ctx context.Context, id enrollment.Identity) error
	DeleteIdentity(ctx context.Context, id string) error
}

// Applier writes journal messages to the repositories. Applying the same
// message twice leaves the database unchanged.
type Applier struct {
	attendance AttendanceRepository
	identities IdentityRepository
	logger     *slog.Logger
}

// NewApplier creates an Applier.
func NewApplier(att AttendanceRepository, ids IdentityRepository, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{attendance: att, identities: ids, logger: logger.With("component", "journal")}
}

// Apply persists one message.
func (a *Applier) Apply(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case TypeAttendanceRecorded:
		var evt attendance.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		if evt.Record == nil {
			return fmt.Errorf("decode %s: missing record", msg.Type)
		}
		return a.attendance.InsertRecord(ctx, *evt.Record)
	case TypeAttendanceCleared:
		return a.attendance.ClearRecords(ctx)
	case TypeIdentityAdded:
		var evt enrollment.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		return a.identities.InsertIdentity(ctx, evt.Identity)
	case TypeIdentityRemoved:
		var evt enrollment.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		return a.identities.DeleteIdentity(ctx, evt.Identity.ID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

// Run consumes q until ctx is done. Failed messages are retried a few times
// and then dropped with an error log.
func (a *Applier) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	a.logger.Info("journal applier started")
	for msg := range messages {
		a.applyWithRetry(ctx, msg)
	}
	a.logger.Info("journal applier stopped")
	return ctx.Err()
}

func (a *Applier) applyWithRetry(ctx context.Context, msg queue.Message) {
	const attempts = 3
	backoff := 200 * time.Millisecond
	for i := 1; ; i++ {
		err := a.Apply(ctx, msg)
		if err == nil {
			a.logger.Debug("journal message applied", "type", msg.Type)
			return
		}
		if errors.Is(err, ErrUnknownType) || i == attempts || ctx.Err() != nil {
			a.logger.Error("journal message dropped", "type", msg.Type, "attempt", i, "error", err)
			return
		}
		a.logger.Warn("journal apply failed, retrying", "type", msg.Type, "attempt", i, "error", err)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return
		}
	}
}
