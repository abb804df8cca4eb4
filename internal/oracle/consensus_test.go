package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarc/oracled/internal/domain"
)

func testPolicy() domain.Policy {
	return domain.Policy{
		MaxStalenessSec:  30,
		MaxConfidenceBps: 200,
		MaxDeviationBps:  100,
		MinSources:       2,
	}
}

func quote(src domain.Source, price int64, expo int32) domain.Quote {
	return domain.Quote{Symbol: "BTC", Source: src, Price: price, Expo: expo}
}

func TestConsensusTwoSourcesWithinDeviation(t *testing.T) {
	// 100.00 and 100.50 at expo -2, 50 bps apart.
	quotes := []domain.Quote{
		quote(domain.SourcePyth, 10000, -2),
		quote(domain.SourceSwitchboard, 10050, -2),
	}
	res := Consensus("BTC", quotes, testPolicy(), time.Unix(1000, 0))

	require.Equal(t, domain.StatusOk, res.Status)
	// Even count takes the lower of the two middle values.
	assert.Equal(t, "10000", res.MedianPrice.String())
	assert.Equal(t, int32(-2), res.MedianExpo)
	assert.ElementsMatch(t, []domain.Source{domain.SourcePyth, domain.SourceSwitchboard}, res.Accepted)
	assert.Empty(t, res.Rejected)
}

func TestConsensusOutlierRejectedMedianFixed(t *testing.T) {
	// 100.00, 100.10, 110.00: median 100.10, the 110.00 quote is ~989
	// bps off and must go, without shifting the median for the others.
	quotes := []domain.Quote{
		quote(domain.SourcePyth, 10000, -2),
		quote(domain.SourceSwitchboard, 10010, -2),
		quote(domain.SourceInternal, 11000, -2),
	}
	res := Consensus("BTC", quotes, testPolicy(), time.Unix(1000, 0))

	require.Equal(t, domain.StatusOk, res.Status)
	assert.Equal(t, "10010", res.MedianPrice.String())
	assert.ElementsMatch(t, []domain.Source{domain.SourcePyth, domain.SourceSwitchboard}, res.Accepted)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, domain.SourceInternal, res.Rejected[0].Source)
	assert.Equal(t, domain.RejectDeviation, res.Rejected[0].Reason)
}

func TestConsensusInsufficientSources(t *testing.T) {
	quotes := []domain.Quote{quote(domain.SourcePyth, 10000, -2)}
	res := Consensus("BTC", quotes, testPolicy(), time.Unix(1000, 0))

	assert.Equal(t, domain.StatusInsufficientSources, res.Status)
	assert.True(t, res.MedianPrice.IsZero())
	assert.Empty(t, res.Accepted)
	assert.Empty(t, res.Rejected)
}

func TestConsensusZeroMedianAllRejected(t *testing.T) {
	quotes := []domain.Quote{
		quote(domain.SourcePyth, -5, -2),
		quote(domain.SourceSwitchboard, 0, -2),
		quote(domain.SourceInternal, 7, -2),
	}
	res := Consensus("BTC", quotes, testPolicy(), time.Unix(1000, 0))

	require.Equal(t, domain.StatusAllRejected, res.Status)
	assert.Empty(t, res.Accepted)
	assert.Len(t, res.Rejected, 3)
	for _, r := range res.Rejected {
		assert.Equal(t, domain.RejectDeviation, r.Reason)
	}
}

func TestConsensusPartialQuorumAllRejected(t *testing.T) {
	// Only one survivor after deviation: partial quorums are not
	// trusted, but the survivor stays visible for audit.
	quotes := []domain.Quote{
		quote(domain.SourcePyth, 10000, -2),
		quote(domain.SourceSwitchboard, 12000, -2),
	}
	res := Consensus("BTC", quotes, testPolicy(), time.Unix(1000, 0))

	require.Equal(t, domain.StatusAllRejected, res.Status)
	assert.Equal(t, []domain.Source{domain.SourcePyth}, res.Accepted)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, domain.SourceSwitchboard, res.Rejected[0].Source)
	assert.True(t, res.MedianPrice.IsZero())
}

func TestConsensusCommonScaleScalesUpOnly(t *testing.T) {
	// Same price at different exponents: 84567.0 as 845670*10^-1 and
	// 8456700000000*10^-8. Common scale is -8 and the coarser quote is
	// multiplied up, so no precision is lost.
	quotes := []domain.Quote{
		quote(domain.SourcePyth, 845670, -1),
		quote(domain.SourceSwitchboard, 8456700000000, -8),
	}
	res := Consensus("BTC", quotes, testPolicy(), time.Unix(1000, 0))

	require.Equal(t, domain.StatusOk, res.Status)
	assert.Equal(t, "8456700000000", res.MedianPrice.String())
	assert.Equal(t, int32(-8), res.MedianExpo)
	assert.Len(t, res.Accepted, 2)
}

func TestConsensusOddCountMiddleElement(t *testing.T) {
	quotes := []domain.Quote{
		quote(domain.SourceInternal, 10020, -2),
		quote(domain.SourcePyth, 10000, -2),
		quote(domain.SourceSwitchboard, 10010, -2),
	}
	res := Consensus("BTC", quotes, testPolicy(), time.Unix(1000, 0))

	require.Equal(t, domain.StatusOk, res.Status)
	assert.Equal(t, "10010", res.MedianPrice.String())
}

func TestConsensusDeviationBoundaryInclusive(t *testing.T) {
	// 10100 vs median 10000 is exactly 100 bps: allowed, only
	// strictly greater deviations are rejected.
	quotes := []domain.Quote{
		quote(domain.SourcePyth, 10000, -2),
		quote(domain.SourceSwitchboard, 10000, -2),
		quote(domain.SourceInternal, 10100, -2),
	}
	res := Consensus("BTC", quotes, testPolicy(), time.Unix(1000, 0))

	require.Equal(t, domain.StatusOk, res.Status)
	assert.Len(t, res.Accepted, 3)
}

func TestConsensusLargeMantissaNoOverflow(t *testing.T) {
	// Mantissas near int64 max survive the *10000 deviation step.
	quotes := []domain.Quote{
		quote(domain.SourcePyth, 9_200_000_000_000_000_000, -8),
		quote(domain.SourceSwitchboard, 9_200_000_000_000_000_001, -8),
	}
	res := Consensus("BTC", quotes, testPolicy(), time.Unix(1000, 0))

	require.Equal(t, domain.StatusOk, res.Status)
	assert.Equal(t, "9200000000000000000", res.MedianPrice.String())
	assert.Len(t, res.Accepted, 2)
}

func TestConsensusComputedAtStamped(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := Consensus("BTC", nil, testPolicy(), now)
	assert.Equal(t, now, res.ComputedAt)
}
