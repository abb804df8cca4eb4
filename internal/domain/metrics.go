package domain

import "time"

// MetricsSink receives ingestion pipeline observations. It is injected
// into the pipeline so tests can assert on emitted metrics without a
// registry.
type MetricsSink interface {
	FetchAttempt(source Source)
	FetchFailure(source Source, kind FetchKind)
	FetchLatency(source Source, d time.Duration)
	NormalizationFailure(source Source, reason NormReason)
	GateRejection(source Source, reason RejectReason)
	ConsensusRejection(source Source, reason RejectReason)
	ConsensusRound(symbol string, status ConsensusStatus)
	APIHit(route string)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) FetchAttempt(Source)                     {}
func (NopMetrics) FetchFailure(Source, FetchKind)          {}
func (NopMetrics) FetchLatency(Source, time.Duration)      {}
func (NopMetrics) NormalizationFailure(Source, NormReason) {}
func (NopMetrics) GateRejection(Source, RejectReason)      {}
func (NopMetrics) ConsensusRejection(Source, RejectReason) {}
func (NopMetrics) ConsensusRound(string, ConsensusStatus)  {}
func (NopMetrics) APIHit(string)                           {}
