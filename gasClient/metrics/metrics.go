// Package metrics exposes Prometheus collectors for the engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

const Namespace = "pgasmon"

// Metrics groups every collector the engine updates.
type Metrics struct {
	samplesIngested  *prometheus.CounterVec
	samplesDropped   *prometheus.CounterVec
	feedErrors       *prometheus.CounterVec
	chainConnected   *prometheus.GaugeVec
	gasPriceGwei     *prometheus.GaugeVec
	referencePrice   prometheus.Gauge
	recomputeCount   prometheus.Counter
	recomputeLatency prometheus.Histogram
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		samplesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "samples_ingested_total",
			Help:      "Gas samples accepted into the store.",
		}, []string{"chain"}),
		samplesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "samples_dropped_total",
			Help:      "Gas samples not appended to history.",
		}, []string{"chain", "reason"}),
		feedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "feed_errors_total",
			Help:      "Errors reported by feed connections.",
		}, []string{"chain", "code"}),
		chainConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "chain_connected",
			Help:      "1 when the chain's feed is connected.",
		}, []string{"chain"}),
		gasPriceGwei: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "gas_price_gwei",
			Help:      "Latest total gas price per chain in gwei.",
		}, []string{"chain"}),
		referencePrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "reference_price_usd",
			Help:      "Native coin reference price in USD.",
		}),
		recomputeCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "simulation_recomputations_total",
			Help:      "Completed simulation recomputations.",
		}),
		recomputeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "simulation_recompute_seconds",
			Help:      "Time spent computing and committing a simulation.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.samplesIngested,
		m.samplesDropped,
		m.feedErrors,
		m.chainConnected,
		m.gasPriceGwei,
		m.referencePrice,
		m.recomputeCount,
		m.recomputeLatency,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveSample records a sample accepted by the store.
func (m *Metrics) ObserveSample(chain telemetry.ChainID, priceGwei float64, appended bool) {
	m.samplesIngested.WithLabelValues(string(chain)).Inc()
	m.gasPriceGwei.WithLabelValues(string(chain)).Set(priceGwei)
	if !appended {
		m.samplesDropped.WithLabelValues(string(chain), "out_of_order").Inc()
	}
}

// SampleDiscarded records a sample the feed could not use.
func (m *Metrics) SampleDiscarded(chain telemetry.ChainID, reason string) {
	m.samplesDropped.WithLabelValues(string(chain), reason).Inc()
}

// FeedError records an error event from a feed.
func (m *Metrics) FeedError(chain telemetry.ChainID, code string) {
	if code == "" {
		code = "unknown"
	}
	m.feedErrors.WithLabelValues(string(chain), code).Inc()
}

// SetChainConnected updates the connection gauge.
func (m *Metrics) SetChainConnected(chain telemetry.ChainID, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	m.chainConnected.WithLabelValues(string(chain)).Set(v)
}

// SetReferencePrice updates the reference price gauge.
func (m *Metrics) SetReferencePrice(price float64) {
	m.referencePrice.Set(price)
}

// SimulationRecomputed records one recomputation.
func (m *Metrics) SimulationRecomputed(elapsed time.Duration) {
	m.recomputeCount.Inc()
	m.recomputeLatency.Observe(elapsed.Seconds())
}
