package conductor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMetrics is the in-memory metrics collector every Manager carries
// by default. It is intentionally dependency-free so a Manager can be
// constructed without a Prometheus registry; PrometheusRecorder (below) is
// the opt-in bridge to a real scrape endpoint.
type DefaultMetrics struct {
	mu sync.RWMutex

	componentStartTimes     map[string]time.Time
	componentReadyDurations map[string]time.Duration
	componentStopDurations  map[string]time.Duration
	componentErrors         map[string]map[string]int
}

// NewDefaultMetrics creates an empty DefaultMetrics.
func NewDefaultMetrics() *DefaultMetrics {
	return &DefaultMetrics{
		componentStartTimes:     make(map[string]time.Time),
		componentReadyDurations: make(map[string]time.Duration),
		componentStopDurations:  make(map[string]time.Duration),
		componentErrors:         make(map[string]map[string]int),
	}
}

func (m *DefaultMetrics) recordStart(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.componentStartTimes[name] = time.Now()
}

func (m *DefaultMetrics) recordReady(name string, succeeded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, ok := m.componentStartTimes[name]
	if !ok {
		return
	}
	if succeeded {
		m.componentReadyDurations[name] = time.Since(start)
	} else {
		m.recordErrorLocked(name, "start_failed")
	}
}

func (m *DefaultMetrics) recordStop(name string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.componentStopDurations[name] = d
}

func (m *DefaultMetrics) recordError(name, errType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErrorLocked(name, errType)
}

func (m *DefaultMetrics) recordErrorLocked(name, errType string) {
	if m.componentErrors[name] == nil {
		m.componentErrors[name] = make(map[string]int)
	}
	m.componentErrors[name][errType]++
}

// ComponentStartTime returns the recorded start time for a component.
func (m *DefaultMetrics) ComponentStartTime(name string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.componentStartTimes[name]
	return t, ok
}

// ComponentReadyDuration returns how long a component took to become ready.
func (m *DefaultMetrics) ComponentReadyDuration(name string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.componentReadyDurations[name]
	return d, ok
}

// ComponentStopDuration returns how long a component took to stop.
func (m *DefaultMetrics) ComponentStopDuration(name string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.componentStopDurations[name]
	return d, ok
}

// ComponentErrorCount returns how many times errType has been recorded for
// the named component.
func (m *DefaultMetrics) ComponentErrorCount(name, errType string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if errs, ok := m.componentErrors[name]; ok {
		return errs[errType]
	}
	return 0
}

// Snapshot returns a point-in-time copy of every tracked metric, suitable
// for a status/debug endpoint.
func (m *DefaultMetrics) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]any{
		"component_start_times":     m.componentStartTimes,
		"component_ready_durations": m.componentReadyDurations,
		"component_stop_durations":  m.componentStopDurations,
		"component_errors":          m.componentErrors,
	}
}

// PrometheusRecorder mirrors DefaultMetrics' events into a prometheus
// registry, for orchestrators running inside a process that already
// exposes a /metrics scrape endpoint.
type PrometheusRecorder struct {
	readyDuration *prometheus.HistogramVec
	stopDuration  *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	runningGauge  *prometheus.GaugeVec
}

// NewPrometheusRecorder registers its collectors against reg and returns
// the recorder. Pass prometheus.DefaultRegisterer for the global registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		readyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conductor",
			Name:      "component_ready_duration_seconds",
			Help:      "Time from start invocation to a component becoming ready.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
		stopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conductor",
			Name:      "component_stop_duration_seconds",
			Help:      "Time spent in a component's stop sequence.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "component_errors_total",
			Help:      "Count of component errors by type.",
		}, []string{"component", "type"}),
		runningGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "conductor",
			Name:      "component_running",
			Help:      "1 if the component is currently running, else 0.",
		}, []string{"component"}),
	}
	reg.MustRegister(r.readyDuration, r.stopDuration, r.errorsTotal, r.runningGauge)
	return r
}

func (r *PrometheusRecorder) observeReady(name string, d time.Duration) {
	r.readyDuration.WithLabelValues(name).Observe(d.Seconds())
	r.runningGauge.WithLabelValues(name).Set(1)
}

func (r *PrometheusRecorder) observeStartFailed(name string) {
	r.runningGauge.WithLabelValues(name).Set(0)
}

func (r *PrometheusRecorder) observeStop(name string, d time.Duration) {
	r.stopDuration.WithLabelValues(name).Observe(d.Seconds())
	r.runningGauge.WithLabelValues(name).Set(0)
}

func (r *PrometheusRecorder) observeError(name, errType string) {
	r.errorsTotal.WithLabelValues(name, errType).Inc()
}

// --- Manager-facing recording helpers, called from the lifecycle engine ---

func (m *Manager) recordComponentStart(name string) {
	m.metrics.recordStart(name)
}

func (m *Manager) recordComponentReady(name string, succeeded bool) {
	m.metrics.recordReady(name, succeeded)
	if m.promRec == nil {
		return
	}
	if succeeded {
		if d, ok := m.metrics.ComponentReadyDuration(name); ok {
			m.promRec.observeReady(name, d)
		}
	} else {
		m.promRec.observeStartFailed(name)
		m.promRec.observeError(name, "start_failed")
	}
}

func (m *Manager) recordComponentStop(name string, d time.Duration) {
	m.metrics.recordStop(name, d)
	if m.promRec != nil {
		m.promRec.observeStop(name, d)
	}
}

func (m *Manager) recordComponentError(name, errType string) {
	m.metrics.recordError(name, errType)
	if m.promRec != nil {
		m.promRec.observeError(name, errType)
	}
}
