package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics emitted by the SDK.
type Metrics struct {
	// Session lifecycle
	LoginsTotal         *prometheus.CounterVec
	RefreshTotal        *prometheus.CounterVec
	SessionFetchesTotal *prometheus.CounterVec
	LogoutsTotal        *prometheus.CounterVec

	// Interceptor
	RequestReplaysTotal   prometheus.Counter
	RecoverySkippedTotal  *prometheus.CounterVec
	RotationTimeoutsTotal prometheus.Counter
	RotationWaitSeconds   prometheus.Histogram

	// Credential store
	PersistWritesTotal prometheus.Counter
	StoreClearsTotal   prometheus.Counter
}

// NewMetrics creates and registers all SDK metrics. A nil registry gets a
// private one, which keeps tests isolated from the default registerer.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablero_logins_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablero_session_refresh_total",
				Help: "Credential refresh attempts by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		SessionFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablero_session_fetches_total",
				Help: "Session (me) fetches by result",
			},
			[]string{"result"},
		),
		LogoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablero_logouts_total",
				Help: "Logouts by kind (user, silent)",
			},
			[]string{"kind"},
		),
		RequestReplaysTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tablero_request_replays_total",
				Help: "Requests replayed after a successful mid-flight refresh",
			},
		),
		RecoverySkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablero_recovery_skipped_total",
				Help: "401 responses propagated without recovery, by reason",
			},
			[]string{"reason"},
		),
		RotationTimeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tablero_csrf_rotation_timeouts_total",
				Help: "Anti-forgery token rotation waits that timed out",
			},
		),
		RotationWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tablero_csrf_rotation_wait_seconds",
				Help:    "Time spent waiting for a rotated anti-forgery token",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		PersistWritesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tablero_session_persist_writes_total",
				Help: "Effective credential-store mutations written to storage",
			},
		),
		StoreClearsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tablero_session_clears_total",
				Help: "Full credential-store clears",
			},
		),
	}

	registry.MustRegister(
		m.LoginsTotal,
		m.RefreshTotal,
		m.SessionFetchesTotal,
		m.LogoutsTotal,
		m.RequestReplaysTotal,
		m.RecoverySkippedTotal,
		m.RotationTimeoutsTotal,
		m.RotationWaitSeconds,
		m.PersistWritesTotal,
		m.StoreClearsTotal,
	)

	return m
}
