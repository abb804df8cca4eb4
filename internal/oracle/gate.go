package oracle

import (
	"cosmossdk.io/math"

	"github.com/quantarc/oracled/internal/domain"
)

// Gate checks one quote against the symbol's freshness and confidence
// thresholds. now is unix seconds, sampled once per cycle at gate time.
// It returns false with a reason when the quote must be excluded.
//
// A quote exactly at the staleness boundary (age == MaxStalenessSec)
// is accepted. The confidence check compares
// confidence*10_000 > max_confidence_bps*|price| in exact integer
// arithmetic, which is the ratio test confidence/|price| > bps/10_000
// without division.
func Gate(q domain.Quote, pol domain.Policy, now int64) (domain.RejectReason, bool) {
	if now-q.ObservedAt > pol.MaxStalenessSec {
		return domain.RejectStale, false
	}
	lhs := math.NewInt(q.Confidence).MulRaw(10000)
	rhs := math.NewInt(pol.MaxConfidenceBps).Mul(math.NewInt(q.Price).Abs())
	if lhs.GT(rhs) {
		return domain.RejectConfidenceTooHigh, false
	}
	return "", true
}
