package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the request pipeline. A nil *Metrics is
// valid and records nothing, so tests can construct bare Transports.
type Metrics struct {
	// Requests by terminal outcome ("ok", "unauthorized", "error",
	// "network_error", "retried_ok", ...)
	Requests *prometheus.CounterVec

	// Refresh attempts by result ("success", "failure")
	Refreshes *prometheus.CounterVec

	// Sessions destroyed because a refresh failed terminally
	ForcedLogouts prometheus.Counter
}

// NewMetrics registers the pipeline metrics on the default registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_client_requests_total",
			Help: "Total API requests through the pipeline by outcome",
		}, []string{"outcome"}),

		Refreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_client_token_refreshes_total",
			Help: "Total token refresh attempts by result",
		}, []string{"result"}),

		ForcedLogouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "panel_client_forced_logouts_total",
			Help: "Total sessions cleared after a terminal refresh failure",
		}),
	}
}

// IncRequest records a request outcome.
func (m *Metrics) IncRequest(outcome string) {
	if m != nil {
		m.Requests.WithLabelValues(outcome).Inc()
	}
}

// IncRefresh records a refresh attempt result.
func (m *Metrics) IncRefresh(result string) {
	if m != nil {
		m.Refreshes.WithLabelValues(result).Inc()
	}
}

// IncForcedLogout records a forced logout.
func (m *Metrics) IncForcedLogout() {
	if m != nil {
		m.ForcedLogouts.Inc()
	}
}
