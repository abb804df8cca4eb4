// Package metrics implements the pipeline metrics sink on Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantarc/oracled/internal/domain"
)

// Prometheus implements domain.MetricsSink with promauto collectors
// registered on the default registry and exposed via /metrics.
type Prometheus struct {
	fetchTotal      *prometheus.CounterVec
	fetchFailures   *prometheus.CounterVec
	fetchLatency    *prometheus.HistogramVec
	normFailures    *prometheus.CounterVec
	gateRejections  *prometheus.CounterVec
	consRejections  *prometheus.CounterVec
	consensusRounds *prometheus.CounterVec
	apiHits         *prometheus.CounterVec
}

// New registers the oracle collectors and returns the sink. Call once
// per process; promauto panics on duplicate registration.
func New() *Prometheus {
	return &Prometheus{
		fetchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_fetch_total",
			Help: "Feed fetch attempts by source.",
		}, []string{"source"}),
		fetchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_fetch_failures_total",
			Help: "Feed fetch failures by source and kind.",
		}, []string{"source", "kind"}),
		fetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oracle_fetch_latency_seconds",
			Help:    "Feed fetch latency by source.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"source"}),
		normFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_normalization_failures_total",
			Help: "Payload normalization failures by source and reason.",
		}, []string{"source", "reason"}),
		gateRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_gate_rejections_total",
			Help: "Quote gate rejections by source and reason (stale, confidence_too_high).",
		}, []string{"source", "reason"}),
		consRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_consensus_rejections_total",
			Help: "Consensus-stage quote rejections by source and reason (deviation from the round median).",
		}, []string{"source", "reason"}),
		consensusRounds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_consensus_rounds_total",
			Help: "Consensus rounds by symbol and status.",
		}, []string{"symbol", "status"}),
		apiHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_api_hits_total",
			Help: "API requests by route.",
		}, []string{"route"}),
	}
}

func (p *Prometheus) FetchAttempt(src domain.Source) {
	p.fetchTotal.WithLabelValues(string(src)).Inc()
}

func (p *Prometheus) FetchFailure(src domain.Source, kind domain.FetchKind) {
	p.fetchFailures.WithLabelValues(string(src), string(kind)).Inc()
}

func (p *Prometheus) FetchLatency(src domain.Source, d time.Duration) {
	p.fetchLatency.WithLabelValues(string(src)).Observe(d.Seconds())
}

func (p *Prometheus) NormalizationFailure(src domain.Source, reason domain.NormReason) {
	p.normFailures.WithLabelValues(string(src), string(reason)).Inc()
}

func (p *Prometheus) GateRejection(src domain.Source, reason domain.RejectReason) {
	p.gateRejections.WithLabelValues(string(src), string(reason)).Inc()
}

func (p *Prometheus) ConsensusRejection(src domain.Source, reason domain.RejectReason) {
	p.consRejections.WithLabelValues(string(src), string(reason)).Inc()
}

func (p *Prometheus) ConsensusRound(symbol string, status domain.ConsensusStatus) {
	p.consensusRounds.WithLabelValues(symbol, string(status)).Inc()
}

func (p *Prometheus) APIHit(route string) {
	p.apiHits.WithLabelValues(route).Inc()
}

// Compile-time interface check.
var _ domain.MetricsSink = (*Prometheus)(nil)
