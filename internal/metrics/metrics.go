package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the gateway's Prometheus collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	requests     *prometheus.CounterVec
	active       prometheus.Gauge
	swept        prometheus.Counter
	transactions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ussd",
			Name:      "requests_total",
			Help:      "USSD requests handled, by the menu state they were handled in.",
		}, []string{"state"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ussd",
			Name:      "sessions_active",
			Help:      "Sessions currently stored.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ussd",
			Name:      "sessions_swept_total",
			Help:      "Sessions removed for being idle past the TTL.",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ussd",
			Name:      "transactions_total",
			Help:      "Executed orders, by kind and recorded status.",
		}, []string{"kind", "status"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.active, m.swept, m.transactions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRequest counts one request handled in state.
func (m *Metrics) ObserveRequest(state string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(state).Inc()
}

// ObserveSweep records one sweeper pass.
func (m *Metrics) ObserveSweep(removed, active int) {
	if m == nil {
		return
	}
	m.swept.Add(float64(removed))
	m.active.Set(float64(active))
}

// ObserveTransaction counts one executed order.
func (m *Metrics) ObserveTransaction(kind, status string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(kind, status).Inc()
}
