// Package scheduler runs the periodic capture and recognition loop.
//
// A Scheduler samples the latest camera frame at most once per cooldown,
// sends it with the enrolled gallery to a Recognizer, and forwards confident
// matches to the attendance ledger. At most one recognizer call is in flight.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"faceguard/internal/attendance"
	"faceguard/internal/capture"
	"faceguard/internal/enrollment"
	"faceguard/internal/faceclient"
	"faceguard/internal/metrics"
)

//go:generate mockgen -source=scheduler.go -destination=mocks/mocks.go -package=mocks IdentitySource,Sink
//go:generate mockgen -destination=mocks/collaborators.go -package=mocks faceguard/internal/faceclient Recognizer
//go:generate mockgen -destination=mocks/source.go -package=mocks faceguard/internal/capture Source

// IdentitySource provides the enrolled gallery snapshot for a cycle.
type IdentitySource interface {
	List() []enrollment.Identity
}

// Sink receives accepted detections.
type Sink interface {
	RecordWithConfidence(name string, now time.Time, confidence float64) (attendance.Outcome, error)
}

// Config controls scan pacing and match acceptance.
type Config struct {
	Interval         time.Duration
	Cooldown         time.Duration
	Threshold        float64
	RecognizeTimeout time.Duration
	MatchDisplay     time.Duration
	MaxImageSize     int
}

// DefaultConfig returns the kiosk defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         3 * time.Second,
		Cooldown:         4 * time.Second,
		Threshold:        0.7,
		RecognizeTimeout: 15 * time.Second,
		MatchDisplay:     3 * time.Second,
		MaxImageSize:     800,
	}
}

// TickResult is the outcome of one scheduler cycle.
type TickResult string

const (
	Scanned             TickResult = "scanned"
	Failed              TickResult = "failed"
	Discarded           TickResult = "discarded"
	SkippedEmptyGallery TickResult = "skipped_empty_gallery"
	SkippedCooldown     TickResult = "skipped_cooldown"
	SkippedBusy         TickResult = "skipped_busy"
	SkippedNoFrame      TickResult = "skipped_no_frame"
	Dispatched          TickResult = "dispatched"
)

// Status is a point-in-time view of the scheduler for the kiosk UI.
type Status struct {
	Processing  bool       `json:"processing"`
	LastScan    *time.Time `json:"last_scan,omitempty"`
	ActiveMatch string     `json:"active_match,omitempty"`
	Recognizer  string     `json:"recognizer"`
}

// Scheduler owns the scan timer and the in-flight guard.
type Scheduler struct {
	cfg        Config
	identities IdentitySource
	frames     capture.Source
	recognizer faceclient.Recognizer
	sink       Sink

	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	onStop  func()

	mu          sync.Mutex
	lastScan    time.Time
	processing  bool
	activeMatch string
	activeUntil time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithOnStop registers a hook run when Run returns, typically releasing the camera.
func WithOnStop(fn func()) Option {
	return func(s *Scheduler) { s.onStop = fn }
}

// New creates a Scheduler. Zero config fields fall back to DefaultConfig.
func New(cfg Config, identities IdentitySource, frames capture.Source, recognizer faceclient.Recognizer, sink Sink, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.RecognizeTimeout <= 0 {
		cfg.RecognizeTimeout = def.RecognizeTimeout
	}
	if cfg.MatchDisplay <= 0 {
		cfg.MatchDisplay = def.MatchDisplay
	}

	s := &Scheduler{
		cfg:        cfg,
		identities: identities,
		frames:     frames,
		recognizer: recognizer,
		sink:       sink,
		logger:     slog.Default(),
		now:        time.Now,
		onStop:     func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	return s
}

// cycle is a reserved scan: the processing flag is held and lastScan is set.
type cycle struct {
	snapshot []enrollment.Identity
	frame    []byte
	started  time.Time
}

// Tick runs one full cycle synchronously.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	c, res := s.begin(ctx)
	if c == nil {
		s.metrics.IncrementScan(string(res))
		return res
	}
	res = s.finish(ctx, c, func() bool { return false })
	s.metrics.IncrementScan(string(res))
	return res
}

// Run ticks every Interval until ctx is done. A cycle that is still waiting
// on the recognizer when ctx ends is left to settle; its result is dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer s.onStop()

	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval, "cooldown", s.cfg.Cooldown,
		"threshold", s.cfg.Threshold, "recognizer", s.recognizer.Name())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

func (s *Scheduler) dispatch(runCtx context.Context) TickResult {
	c, res := s.begin(runCtx)
	if c == nil {
		s.metrics.IncrementScan(string(res))
		return res
	}
	callCtx := context.WithoutCancel(runCtx)
	go func() {
		res := s.finish(callCtx, c, func() bool { return runCtx.Err() != nil })
		s.metrics.IncrementScan(string(res))
	}()
	return Dispatched
}

func (s *Scheduler) begin(ctx context.Context) (*cycle, TickResult) {
	snapshot := s.identities.List()
	if len(snapshot) == 0 {
		return nil, SkippedEmptyGallery
	}

	now := s.now()
	s.mu.Lock()
	if !s.lastScan.IsZero() && now.Sub(s.lastScan) < s.cfg.Cooldown {
		s.mu.Unlock()
		return nil, SkippedCooldown
	}
	if s.processing {
		s.mu.Unlock()
		return nil, SkippedBusy
	}
	s.processing = true
	s.mu.Unlock()

	frame, err := s.frames.CaptureFrame(ctx)
	if err != nil {
		s.release()
		if !errors.Is(err, capture.ErrNoFrame) {
			s.logger.Warn("frame capture failed", "error", err)
		}
		return nil, SkippedNoFrame
	}

	s.mu.Lock()
	s.lastScan = now
	s.mu.Unlock()
	s.metrics.RecognizerInFlight.Set(1)
	return &cycle{snapshot: snapshot, frame: frame, started: now}, ""
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.processing = false
	s.mu.Unlock()
}

func (s *Scheduler) finish(ctx context.Context, c *cycle, discard func() bool) TickResult {
	defer func() {
		s.release()
		s.metrics.RecognizerInFlight.Set(0)
	}()

	probe, err := faceclient.PrepareImage(c.frame, s.cfg.MaxImageSize)
	if err != nil {
		s.metrics.RecognizerFailures.Inc()
		s.logger.Warn("probe frame unusable", "error", err)
		return Failed
	}

	gallery := s.buildGallery(c.snapshot)
	if len(gallery) == 0 {
		s.logger.Warn("no decodable reference images, skipping recognition", "enrolled", len(c.snapshot))
		return Failed
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RecognizeTimeout)
	start := time.Now()
	matches, err := s.recognizer.Identify(callCtx, probe, gallery)
	cancel()
	s.metrics.ObserveRecognizer(start)
	if err != nil {
		s.metrics.RecognizerFailures.Inc()
		s.logger.Error("recognition failed", "recognizer", s.recognizer.Name(), "error", err)
		return Failed
	}
	if discard() {
		s.logger.Debug("scheduler stopped, dropping recognition result", "matches", len(matches))
		return Discarded
	}

	for _, m := range matches {
		if !(m.Confidence > s.cfg.Threshold) {
			continue
		}
		ident, ok := enrollment.Match(m.Label, c.snapshot)
		if !ok {
			s.logger.Debug("ignoring match for unknown label", "label", m.Label, "confidence", m.Confidence)
			continue
		}
		name := strings.TrimSpace(ident.Name)
		now := s.now()
		outcome, err := s.sink.RecordWithConfidence(name, now, m.Confidence)
		if err != nil {
			s.logger.Error("attendance record rejected", "name", name, "error", err)
			continue
		}
		s.metrics.IncrementDetection(outcome.String())
		s.logger.Info("match found", "name", name, "confidence", m.Confidence, "outcome", outcome.String())

		s.mu.Lock()
		s.activeMatch = name
		s.activeUntil = now.Add(s.cfg.MatchDisplay)
		s.mu.Unlock()
	}
	s.logger.Debug("scan complete", "matches", len(matches), "gallery", len(gallery), "cycle_started", c.started)
	return Scanned
}

func (s *Scheduler) buildGallery(snapshot []enrollment.Identity) []faceclient.GalleryEntry {
	gallery := make([]faceclient.GalleryEntry, 0, len(snapshot))
	for _, ident := range snapshot {
		img, err := faceclient.PrepareImage(ident.ReferenceImage, s.cfg.MaxImageSize)
		if err != nil {
			s.metrics.DecodeFailures.Inc()
			s.logger.Warn("skipping identity with undecodable reference image", "identity_id", ident.ID, "name", ident.Name, "error", err)
			continue
		}
		gallery = append(gallery, faceclient.GalleryEntry{Label: ident.Name, Image: img})
	}
	return gallery
}

// ActiveMatch returns the most recent confirmed match while it is still on display.
func (s *Scheduler) ActiveMatch() string {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeMatch == "" || !now.Before(s.activeUntil) {
		return ""
	}
	return s.activeMatch
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() Status {
	active := s.ActiveMatch()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Processing:  s.processing,
		ActiveMatch: active,
		Recognizer:  s.recognizer.Name(),
	}
	if !s.lastScan.IsZero() {
		last := s.lastScan
		st.LastScan = &last
	}
	return st
}
