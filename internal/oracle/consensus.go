package oracle

import (
	"sort"
	"time"

	"cosmossdk.io/math"

	"github.com/quantarc/oracled/internal/domain"
)

// Consensus computes one round over quotes that already passed the
// gate. The result carries only deviation rejections; the caller
// merges gate rejections and assigns the round ID.
//
// The algorithm is fixed for on-chain re-verification:
//
//  1. Quorum: fewer than MinSources quotes is insufficient_sources.
//  2. All mantissas are brought to the common scale min(expo) by
//     scaling up (multiply by powers of ten only, never divide).
//  3. Median is the element at index (n-1)/2 of the sorted mantissas,
//     the lower of the two middle values for even n.
//  4. deviation_bps = |p-m| * 10_000 / |m|, truncating division. A
//     zero median makes the ratio undefined and fails the round as
//     all_rejected rather than dividing by zero.
//  5. Every quote is judged against the one median from step 3. The
//     median is never recomputed after rejections, so a single
//     outlier cannot shift the reference point for its peers.
//  6. Fewer than MinSources survivors is all_rejected; sources that
//     individually passed stay listed in Accepted for the audit
//     trail, the status alone decides publication.
func Consensus(symbol string, quotes []domain.Quote, pol domain.Policy, now time.Time) domain.ConsensusResult {
	res := domain.ConsensusResult{
		Symbol:      symbol,
		MedianPrice: math.ZeroInt(),
		ComputedAt:  now,
	}
	if len(quotes) < pol.MinSources {
		res.Status = domain.StatusInsufficientSources
		return res
	}

	minExpo := quotes[0].Expo
	for _, q := range quotes[1:] {
		if q.Expo < minExpo {
			minExpo = q.Expo
		}
	}
	type scaledQuote struct {
		source   domain.Source
		mantissa math.Int
	}
	scaled := make([]scaledQuote, len(quotes))
	for i, q := range quotes {
		m := math.NewInt(q.Price)
		if diff := q.Expo - minExpo; diff > 0 {
			m = m.Mul(pow10(diff))
		}
		scaled[i] = scaledQuote{source: q.Source, mantissa: m}
	}

	ordered := make([]math.Int, len(scaled))
	for i, s := range scaled {
		ordered[i] = s.mantissa
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].LT(ordered[j]) })
	median := ordered[(len(ordered)-1)/2]

	if median.IsZero() {
		res.Status = domain.StatusAllRejected
		for _, s := range scaled {
			res.Rejected = append(res.Rejected, domain.RejectedSource{Source: s.source, Reason: domain.RejectDeviation})
		}
		return res
	}

	maxDev := math.NewInt(pol.MaxDeviationBps)
	absMedian := median.Abs()
	for _, s := range scaled {
		dev := s.mantissa.Sub(median).Abs().MulRaw(10000).Quo(absMedian)
		if dev.GT(maxDev) {
			res.Rejected = append(res.Rejected, domain.RejectedSource{Source: s.source, Reason: domain.RejectDeviation})
			continue
		}
		res.Accepted = append(res.Accepted, s.source)
	}

	if len(res.Accepted) < pol.MinSources {
		res.Status = domain.StatusAllRejected
		return res
	}
	res.Status = domain.StatusOk
	res.MedianPrice = median
	res.MedianExpo = minExpo
	return res
}

func pow10(n int32) math.Int {
	return math.NewIntWithDecimal(1, int(n))
}
