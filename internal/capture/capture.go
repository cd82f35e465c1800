// Package capture holds the latest camera frame pushed by the kiosk client.
//
// The kiosk browser owns the camera; it posts stills to the API and the
// scheduler samples whatever is newest when it decides to scan. Frames are
// overwritten, never queued, so a slow recognizer never builds a backlog.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoFrame means no usable frame is available right now.
var ErrNoFrame = errors.New("no frame available")

// Source supplies still frames to the scheduler.
type Source interface {
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// FrameBuffer keeps only the most recent frame.
type FrameBuffer struct {
	mu     sync.Mutex
	frame  []byte
	at     time.Time
	seq    uint64
	closed bool

	maxAge time.Duration
	now    func() time.Time
}

// NewFrameBuffer creates a buffer that treats frames older than maxAge as
// unavailable. maxAge <= 0 disables the staleness check.
func NewFrameBuffer(maxAge time.Duration) *FrameBuffer {
	return &FrameBuffer{maxAge: maxAge, now: time.Now}
}

// Push replaces the current frame.
func (b *FrameBuffer) Push(frame []byte, at time.Time) error {
	if len(frame) == 0 {
		return errors.New("empty frame")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrNoFrame
	}
	if at.IsZero() {
		at = b.now()
	}
	b.frame = append(b.frame[:0], frame...)
	b.at = at
	b.seq++
	return nil
}

// CaptureFrame returns a copy of the newest frame.
func (b *FrameBuffer) CaptureFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || len(b.frame) == 0 {
		return nil, ErrNoFrame
	}
	if b.maxAge > 0 && b.now().Sub(b.at) > b.maxAge {
		return nil, ErrNoFrame
	}
	return append([]byte(nil), b.frame...), nil
}

// Stats describes the buffer for status endpoints.
type Stats struct {
	Frames     uint64     `json:"frames"`
	LastFrame  *time.Time `json:"last_frame,omitempty"`
	Bytes      int        `json:"bytes"`
	IsReleased bool       `json:"is_released"`
}

// Stats returns the current buffer stats.
func (b *FrameBuffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Stats{Frames: b.seq, Bytes: len(b.frame), IsReleased: b.closed}
	if !b.at.IsZero() {
		at := b.at
		st.LastFrame = &at
	}
	return st
}

// Close drops the held frame and refuses further pushes. Safe to call twice.
func (b *FrameBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.frame = nil
	return nil
}
