package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marinraf/StimuliApp-sub001/internal/events"
	"github.com/marinraf/StimuliApp-sub001/internal/orchestrator"
	"github.com/marinraf/StimuliApp-sub001/internal/timeline"
	"github.com/marinraf/StimuliApp-sub001/internal/version"
)

var runStates = []orchestrator.RunState{
	orchestrator.RunStateIdle,
	orchestrator.RunStateRunning,
	orchestrator.RunStatePaused,
	orchestrator.RunStateAwaiting,
	orchestrator.RunStateCompleted,
	orchestrator.RunStateAborted,
}

// Metrics exports run counters to Prometheus. It is the run's observer.
type Metrics struct {
	registry    *prometheus.Registry
	frames      prometheus.Counter
	checkpoints *prometheus.CounterVec
	trials      *prometheus.CounterVec
	state       *prometheus.GaugeVec

	mu              sync.RWMutex
	startTime       time.Time
	droppedFrames   func() uint64
	publishFailures func() int
}

var _ orchestrator.Observer = (*Metrics)(nil)

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewMetrics builds the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stimuli_frames_total",
			Help: "Frames advanced by the scheduler.",
		}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stimuli_checkpoints_total",
			Help: "Checkpoints fired, by action.",
		}, []string{"action"}),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stimuli_trials_total",
			Help: "Completed trials, by section and correctness.",
		}, []string{"section", "correct"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stimuli_run_state",
			Help: "1 for the current run state, 0 otherwise.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.frames, m.checkpoints, m.trials, m.state,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "stimuli_events_total",
			Help: "Events emitted since startup.",
		}, func() float64 { return float64(events.TotalCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "stimuli_events_dropped_total",
			Help: "Events and trials the store queue dropped.",
		}, func() float64 { return float64(events.DroppedCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "stimuli_display_frames_dropped_total",
			Help: "Display frame ticks dropped because the run lagged.",
		}, func() float64 {
			m.mu.RLock()
			defer m.mu.RUnlock()
			if m.droppedFrames == nil {
				return 0
			}
			return float64(m.droppedFrames())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "stimuli_renderer_publish_failures_total",
			Help: "Checkpoint and trial messages the broker refused.",
		}, func() float64 {
			m.mu.RLock()
			defer m.mu.RUnlock()
			if m.publishFailures == nil {
				return 0
			}
			return float64(m.publishFailures())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stimuli_ws_clients",
			Help: "Active websocket event streams.",
		}, func() float64 { return float64(events.SubscriberCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stimuli_uptime_seconds",
			Help: "Seconds since the process started.",
		}, func() float64 {
			m.mu.RLock()
			defer m.mu.RUnlock()
			return time.Since(m.startTime).Seconds()
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stimuli_mqtt_connected",
			Help: "Whether the MQTT broker is connected.",
		}, func() float64 {
			readiness.mu.RLock()
			defer readiness.mu.RUnlock()
			return boolGauge(readiness.mqttConnected)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stimuli_store_connected",
			Help: "Whether the run store is reachable.",
		}, func() float64 {
			readiness.mu.RLock()
			defer readiness.mu.RUnlock()
			return boolGauge(readiness.storeConnected)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "stimuli_build_info",
			Help:        "Build version of the runner.",
			ConstLabels: prometheus.Labels{"version": version.Version},
		}, func() float64 { return 1 }),
	)
	m.StateChanged(orchestrator.RunStateIdle)
	return m
}

// FrameAdvanced counts one scheduler frame.
func (m *Metrics) FrameAdvanced() { m.frames.Inc() }

// CheckpointFired counts one checkpoint.
func (m *Metrics) CheckpointFired(action timeline.Action) {
	m.checkpoints.WithLabelValues(action.String()).Inc()
}

// TrialCompleted counts one scored trial.
func (m *Metrics) TrialCompleted(section string, o orchestrator.Outcome) {
	correct := "false"
	if o.Correct {
		correct = "true"
	}
	m.trials.WithLabelValues(section, correct).Inc()
}

// StateChanged moves the run state gauge.
func (m *Metrics) StateChanged(s orchestrator.RunState) {
	for _, st := range runStates {
		m.state.WithLabelValues(string(st)).Set(boolGauge(st == s))
	}
}

// WatchDroppedFrames exports the drop counter of the display frame source.
func (m *Metrics) WatchDroppedFrames(f func() uint64) {
	m.mu.Lock()
	m.droppedFrames = f
	m.mu.Unlock()
}

// WatchPublishFailures exports the failure counter of the renderer.
func (m *Metrics) WatchPublishFailures(f func() int) {
	m.mu.Lock()
	m.publishFailures = f
	m.mu.Unlock()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var (
	metricsMu  sync.Mutex
	runMetrics *Metrics
)

// RunMetrics returns the process metrics, creating them on first use.
func RunMetrics() *Metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if runMetrics == nil {
		runMetrics = NewMetrics()
	}
	return runMetrics
}

func metricsHandler() http.Handler {
	return RunMetrics().Handler()
}
