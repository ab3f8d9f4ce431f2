// Package metrics exposes market activity as Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Market records engine outcomes. It implements market.Recorder.
type Market struct {
	operations *prometheus.CounterVec
	loans      prometheus.Counter
	loanVolume prometheus.Counter
	bids       prometheus.Counter
	bidVolume  prometheus.Counter
	sseClients prometheus.Gauge
}

var (
	marketOnce     sync.Once
	marketRegistry *Market
)

// Default returns the process-wide collectors, registering them with the
// default Prometheus registry on first use.
func Default() *Market {
	marketOnce.Do(func() {
		marketRegistry = New()
		prometheus.MustRegister(marketRegistry.Collectors()...)
	})
	return marketRegistry
}

// New returns unregistered collectors.
func New() *Market {
	return &Market{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pledge",
			Subsystem: "market",
			Name:      "operations_total",
			Help:      "Market operations by name and outcome code.",
		}, []string{"op", "outcome"}),
		loans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pledge",
			Subsystem: "market",
			Name:      "loans_created_total",
			Help:      "Loans originated.",
		}),
		loanVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pledge",
			Subsystem: "market",
			Name:      "loan_volume_total",
			Help:      "Principal originated, in stable units.",
		}),
		bids: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pledge",
			Subsystem: "auction",
			Name:      "bids_total",
			Help:      "Accepted auction bids.",
		}),
		bidVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pledge",
			Subsystem: "auction",
			Name:      "bid_volume_total",
			Help:      "Stable units moved to the treasury by accepted bids.",
		}),
		sseClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pledge",
			Subsystem: "events",
			Name:      "sse_clients",
			Help:      "Connected event stream subscribers.",
		}),
	}
}

// Collectors lists every collector for registration.
func (m *Market) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operations, m.loans, m.loanVolume, m.bids, m.bidVolume, m.sseClients}
}

// ObserveOperation counts one engine operation.
func (m *Market) ObserveOperation(op, outcome string) {
	m.operations.WithLabelValues(op, outcome).Inc()
}

// ObserveLoanCreated counts an originated loan.
func (m *Market) ObserveLoanCreated(amount uint64) {
	m.loans.Inc()
	m.loanVolume.Add(float64(amount))
}

// ObserveBid counts an accepted bid.
func (m *Market) ObserveBid(amount uint64) {
	m.bids.Inc()
	m.bidVolume.Add(float64(amount))
}

// SetSSEClients reports the number of event stream subscribers.
func (m *Market) SetSSEClients(n int) {
	m.sseClients.Set(float64(n))
}
