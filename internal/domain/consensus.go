package domain

import (
	"time"

	"cosmossdk.io/math"
)

// ConsensusStatus is the terminal outcome of one consensus round.
type ConsensusStatus string

const (
	StatusOk                  ConsensusStatus = "ok"
	StatusInsufficientSources ConsensusStatus = "insufficient_sources"
	StatusAllRejected         ConsensusStatus = "all_rejected"
)

// RejectReason explains why a source was excluded from a round.
type RejectReason string

const (
	RejectStale             RejectReason = "stale"
	RejectConfidenceTooHigh RejectReason = "confidence_too_high"
	RejectDeviation         RejectReason = "deviation"
)

// RejectedSource pairs a source with the reason it was excluded.
type RejectedSource struct {
	Source Source       `json:"source"`
	Reason RejectReason `json:"reason"`
}

// ConsensusResult is the output of one consensus round for one symbol.
// MedianPrice is an integer mantissa at MedianExpo; math.Int marshals
// as a JSON string, so the value survives any JSON round trip exactly.
// On non-Ok rounds MedianPrice is zero and MedianExpo is meaningless.
type ConsensusResult struct {
	Symbol      string           `json:"symbol"`
	RoundID     string           `json:"round_id"`
	Status      ConsensusStatus  `json:"status"`
	MedianPrice math.Int         `json:"median_price"`
	MedianExpo  int32            `json:"median_expo"`
	Accepted    []Source         `json:"accepted_sources"`
	Rejected    []RejectedSource `json:"rejected_sources"`
	ComputedAt  time.Time        `json:"computed_at"`
}

// Age returns how long ago the round was computed.
func (r ConsensusResult) Age(now time.Time) time.Duration {
	return now.Sub(r.ComputedAt)
}
