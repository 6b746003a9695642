package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	registrations prometheus.Counter
	throttled     prometheus.Counter
}

// newMetrics registers the auth counters on reg. Tests pass their own
// registry so parallel handlers never collide on registration.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reptrack",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reptrack",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Refresh attempts by result.",
		}, []string{"result"}),
		registrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "reptrack",
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Accounts created.",
		}),
		throttled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "reptrack",
			Subsystem: "auth",
			Name:      "logins_throttled_total",
			Help:      "Login attempts rejected by the rate limiter.",
		}),
	}
}

func (m *metrics) login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *metrics) refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *metrics) registered() {
	if m != nil {
		m.registrations.Inc()
	}
}

func (m *metrics) throttle() {
	if m != nil {
		m.throttled.Inc()
	}
}
