package app

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks plugin lifecycle performance metrics.
type Metrics struct {
	// Activation timing
	activationCount    atomic.Uint64
	activationTotalNs  atomic.Int64
	activationMinNs    atomic.Int64
	activationMaxNs    atomic.Int64
	activationFailures atomic.Uint64

	// Deactivation timing
	deactivationCount    atomic.Uint64
	deactivationTotalNs  atomic.Int64
	deactivationFailures atomic.Uint64

	// Setup timing
	setupCount   atomic.Uint64
	setupTotalNs atomic.Int64

	// Hook dispatch
	hookEmits     atomic.Uint64
	handlerPanics atomic.Uint64

	// Start time for uptime calculation
	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
	}
	// Initialize min to max int64 so the first activation will be smaller
	m.activationMinNs.Store(1<<63 - 1)
	return m
}

// RecordActivation records one activation attempt and its duration.
func (m *Metrics) RecordActivation(duration time.Duration, ok bool) {
	if !ok {
		m.activationFailures.Add(1)
		return
	}

	ns := duration.Nanoseconds()
	m.activationCount.Add(1)
	m.activationTotalNs.Add(ns)

	// Update min (atomic compare-and-swap loop)
	for {
		old := m.activationMinNs.Load()
		if ns >= old {
			break
		}
		if m.activationMinNs.CompareAndSwap(old, ns) {
			break
		}
	}

	// Update max (atomic compare-and-swap loop)
	for {
		old := m.activationMaxNs.Load()
		if ns <= old {
			break
		}
		if m.activationMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordDeactivation records one deactivation attempt and its duration.
func (m *Metrics) RecordDeactivation(duration time.Duration, ok bool) {
	if !ok {
		m.deactivationFailures.Add(1)
		return
	}
	m.deactivationCount.Add(1)
	m.deactivationTotalNs.Add(duration.Nanoseconds())
}

// RecordSetup records one completed setup and its duration.
func (m *Metrics) RecordSetup(duration time.Duration) {
	m.setupCount.Add(1)
	m.setupTotalNs.Add(duration.Nanoseconds())
}

// RecordHookEmit records one hook bus emission.
func (m *Metrics) RecordHookEmit() {
	m.hookEmits.Add(1)
}

// RecordHandlerPanic records a recovered hook handler panic.
func (m *Metrics) RecordHandlerPanic() {
	m.handlerPanics.Add(1)
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	activations := m.activationCount.Load()
	deactivations := m.deactivationCount.Load()
	setups := m.setupCount.Load()

	var avgActivationNs int64
	if activations > 0 {
		avgActivationNs = m.activationTotalNs.Load() / int64(activations)
	}

	var avgDeactivationNs int64
	if deactivations > 0 {
		avgDeactivationNs = m.deactivationTotalNs.Load() / int64(deactivations)
	}

	var avgSetupNs int64
	if setups > 0 {
		avgSetupNs = m.setupTotalNs.Load() / int64(setups)
	}

	minActivationNs := m.activationMinNs.Load()
	if minActivationNs == 1<<63-1 {
		minActivationNs = 0
	}

	return MetricsSnapshot{
		Uptime:               time.Since(m.startTime),
		Activations:          activations,
		AvgActivationNs:      avgActivationNs,
		MinActivationNs:      minActivationNs,
		MaxActivationNs:      m.activationMaxNs.Load(),
		ActivationFailures:   m.activationFailures.Load(),
		Deactivations:        deactivations,
		AvgDeactivationNs:    avgDeactivationNs,
		DeactivationFailures: m.deactivationFailures.Load(),
		Setups:               setups,
		AvgSetupNs:           avgSetupNs,
		HookEmits:            m.hookEmits.Load(),
		HandlerPanics:        m.handlerPanics.Load(),
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.activationCount.Store(0)
	m.activationTotalNs.Store(0)
	m.activationMinNs.Store(1<<63 - 1)
	m.activationMaxNs.Store(0)
	m.activationFailures.Store(0)
	m.deactivationCount.Store(0)
	m.deactivationTotalNs.Store(0)
	m.deactivationFailures.Store(0)
	m.setupCount.Store(0)
	m.setupTotalNs.Store(0)
	m.hookEmits.Store(0)
	m.handlerPanics.Store(0)
	m.startTime = time.Now()
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime               time.Duration
	Activations          uint64
	AvgActivationNs      int64
	MinActivationNs      int64
	MaxActivationNs      int64
	ActivationFailures   uint64
	Deactivations        uint64
	AvgDeactivationNs    int64
	DeactivationFailures uint64
	Setups               uint64
	AvgSetupNs           int64
	HookEmits            uint64
	HandlerPanics        uint64
}

// FailureRate returns the percentage of failed activations.
func (s MetricsSnapshot) FailureRate() float64 {
	total := s.Activations + s.ActivationFailures
	if total == 0 {
		return 0
	}
	return float64(s.ActivationFailures) / float64(total) * 100
}

// AvgActivationMs returns the average activation time in milliseconds.
func (s MetricsSnapshot) AvgActivationMs() float64 {
	return float64(s.AvgActivationNs) / 1e6
}

// Timer provides a simple way to measure elapsed time.
type Timer struct {
	start time.Time
}

// StartTimer creates a new timer.
func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ElapsedMs returns the elapsed time in milliseconds.
func (t *Timer) ElapsedMs() float64 {
	return float64(t.Elapsed().Nanoseconds()) / 1e6
}

// appMetrics is the application-wide metrics instance.
var (
	appMetrics     *Metrics
	appMetricsOnce sync.Once
)

// GetMetrics returns the application metrics.
func GetMetrics() *Metrics {
	appMetricsOnce.Do(func() {
		if appMetrics == nil {
			appMetrics = NewMetrics()
		}
	})
	return appMetrics
}

// SetMetrics sets the application-wide metrics.
func SetMetrics(m *Metrics) {
	appMetrics = m
}
