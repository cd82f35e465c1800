package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the kiosk scan loop and the ledger.
type Metrics struct {
	ScanCycles         *prometheus.CounterVec
	RecognizerDuration prometheus.Histogram
	RecognizerFailures prometheus.Counter
	DecodeFailures     prometheus.Counter
	Detections         *prometheus.CounterVec
	RecognizerInFlight prometheus.Gauge
	FramesReceived     prometheus.Counter
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ScanCycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceguard_scan_cycles_total",
			Help: "Scheduler ticks by result",
		}, []string{"result"}),
		RecognizerDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceguard_recognizer_duration_seconds",
			Help:    "Duration of recognizer calls",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		RecognizerFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "faceguard_recognizer_failures_total",
			Help: "Recognizer calls that errored, timed out or returned malformed data",
		}),
		DecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "faceguard_gallery_decode_failures_total",
			Help: "Enrolled reference images skipped because they could not be decoded",
		}),
		Detections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceguard_detections_total",
			Help: "Accepted detections by ledger outcome",
		}, []string{"outcome"}),
		RecognizerInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "faceguard_recognizer_in_flight",
			Help: "1 while a recognizer call is outstanding",
		}),
		FramesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "faceguard_frames_received_total",
			Help: "Frames pushed by kiosk clients",
		}),
	}
}

// ObserveRecognizer records the duration of a recognizer call started at start.
func (m *Metrics) ObserveRecognizer(start time.Time) {
	m.RecognizerDuration.Observe(time.Since(start).Seconds())
}

// IncrementScan counts a scheduler tick with the given result label.
func (m *Metrics) IncrementScan(result string) {
	m.ScanCycles.WithLabelValues(result).Inc()
}

// IncrementDetection counts an accepted detection with the ledger outcome label.
func (m *Metrics) IncrementDetection(outcome string) {
	m.Detections.WithLabelValues(outcome).Inc()
}
