package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "lp_pricer"

	MetricRPCRequestsTotal   = "rpc_requests_total"
	MetricRPCDurationSeconds = "rpc_duration_seconds"
	MetricValuationsTotal    = "valuations_total"
	MetricValuationSeconds   = "valuation_duration_seconds"
	MetricLPPriceUSD         = "lp_price_usd"
	MetricPoolTVLUSD         = "pool_tvl_usd"
	MetricStoreWritesTotal   = "store_writes_total"
)

// Metrics satisfies chain.Observer and records per-pool valuation results.
type Metrics struct {
	rpcRequests   *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
	valuations    *prometheus.CounterVec
	valuationTime *prometheus.HistogramVec
	lpPrice       *prometheus.GaugeVec
	tvl           *prometheus.GaugeVec
	storeWrites   *prometheus.CounterVec
	gatherer      prometheus.Gatherer
}

// NewMetrics registers the collectors on reg. A nil reg gets a private
// registry, which is also used as the gatherer.
func NewMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	if reg == nil {
		registry := prometheus.NewRegistry()
		reg = registry
		gatherer = registry
	} else if gatherer == nil {
		if g, ok := reg.(prometheus.Gatherer); ok {
			gatherer = g
		} else {
			gatherer = prometheus.DefaultGatherer
		}
	}

	factory := promauto.With(reg)
	return &Metrics{
		rpcRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      MetricRPCRequestsTotal,
			Help:      "Solana RPC round trips by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      MetricRPCDurationSeconds,
			Help:      "Latency of Solana RPC round trips.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		valuations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      MetricValuationsTotal,
			Help:      "LP valuations by pool and outcome.",
		}, []string{"pool", "outcome"}),
		valuationTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      MetricValuationSeconds,
			Help:      "Wall time of one LP valuation including every account read.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"pool"}),
		lpPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      MetricLPPriceUSD,
			Help:      "Last successfully computed USD price of one LP token.",
		}, []string{"pool"}),
		tvl: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      MetricPoolTVLUSD,
			Help:      "Last successfully computed USD value of both pool reserves.",
		}, []string{"pool"}),
		storeWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      MetricStoreWritesTotal,
			Help:      "Price tick inserts by outcome.",
		}, []string{"outcome"}),
		gatherer: gatherer,
	}
}

func (m *Metrics) ObserveRPC(method string, elapsed time.Duration, err error) {
	m.rpcRequests.WithLabelValues(method, outcome(err)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveValuation counts the attempt and, on success, moves the price gauges.
func (m *Metrics) ObserveValuation(pool string, lpPrice, tvl float64, elapsed time.Duration, err error) {
	m.valuations.WithLabelValues(pool, outcome(err)).Inc()
	m.valuationTime.WithLabelValues(pool).Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	m.lpPrice.WithLabelValues(pool).Set(lpPrice)
	m.tvl.WithLabelValues(pool).Set(tvl)
}

func (m *Metrics) ObserveStoreWrite(err error) {
	m.storeWrites.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
