package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementScan("scanned")
	m.IncrementScan("scanned")
	m.IncrementScan("skipped_cooldown")
	m.IncrementDetection("recorded")
	m.FramesReceived.Inc()
	m.ObserveRecognizer(time.Now().Add(-time.Second))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScanCycles.WithLabelValues("scanned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanCycles.WithLabelValues("skipped_cooldown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Detections.WithLabelValues("recorded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RecognizerDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "faceguard_scan_cycles_total")
	assert.Contains(t, names, "faceguard_recognizer_duration_seconds")
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
