package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ladder"

// Metrics are the book service's collectors, registered on an injected
// registry so every test can use a fresh one.
type Metrics struct {
	gatherer prometheus.Gatherer

	Submits       *prometheus.CounterVec
	Cancels       *prometheus.CounterVec
	Trades        prometheus.Counter
	Volume        prometheus.Counter
	SubmitLatency prometheus.Histogram

	BestBid prometheus.Gauge
	BestAsk prometheus.Gauge
	Resting prometheus.Gauge

	Published     prometheus.Counter
	PublishFailed prometheus.Counter
}

// New registers all collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		Submits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submits_total",
			Help:      "Order submissions by outcome.",
		}, []string{"result"}),
		Cancels: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancels_total",
			Help:      "Cancel requests by outcome.",
		}, []string{"result"}),
		Trades: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed.",
		}),
		Volume: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_quantity_total",
			Help:      "Quantity traded.",
		}),
		SubmitLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Time to journal and match one submission.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		BestBid: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_bid_ticks",
			Help:      "Best bid price in ticks, 0 when the side is empty.",
		}),
		BestAsk: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_ask_ticks",
			Help:      "Best ask price in ticks, 0 when the side is empty.",
		}),
		Resting: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resting_orders",
			Help:      "Orders resting on the book.",
		}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox records acknowledged by the broker.",
		}),
		PublishFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_failures_total",
			Help:      "Failed publish attempts.",
		}),
	}
}

// ObserveTop sets the top-of-book gauges.
func (m *Metrics) ObserveTop(bid, ask int64, resting int) {
	m.BestBid.Set(float64(bid))
	m.BestAsk.Set(float64(ask))
	m.Resting.Set(float64(resting))
}

// ObserveTrade counts one trade of size qty.
func (m *Metrics) ObserveTrade(qty int64) {
	m.Trades.Inc()
	m.Volume.Add(float64(qty))
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
