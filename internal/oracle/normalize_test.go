package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarc/oracled/internal/domain"
)

const pythPayload = `{
	"parsed": [{
		"id": "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
		"price": {
			"price": "8456712345678",
			"conf": "4500000000",
			"expo": -8,
			"publish_time": 1700000000
		}
	}]
}`

func TestNormalizePyth(t *testing.T) {
	q, err := Normalize(domain.SourcePyth, "BTC", []byte(pythPayload))
	require.NoError(t, err)

	assert.Equal(t, domain.Quote{
		Symbol:     "BTC",
		Source:     domain.SourcePyth,
		Price:      8456712345678,
		Confidence: 4500000000,
		Expo:       -8,
		ObservedAt: 1700000000,
	}, q)
}

func TestNormalizeIdempotent(t *testing.T) {
	first, err := Normalize(domain.SourcePyth, "BTC", []byte(pythPayload))
	require.NoError(t, err)
	second, err := Normalize(domain.SourcePyth, "BTC", []byte(pythPayload))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizePythFailures(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantReason domain.NormReason
	}{
		{name: "not json", payload: `<html>bad gateway</html>`, wantReason: domain.NormMalformedPayload},
		{name: "empty parsed", payload: `{"parsed": []}`, wantReason: domain.NormMissingField},
		{
			name:       "missing expo",
			payload:    `{"parsed":[{"price":{"price":"100","conf":"1","publish_time":1700000000}}]}`,
			wantReason: domain.NormMissingField,
		},
		{
			name:       "mantissa not an integer",
			payload:    `{"parsed":[{"price":{"price":"84567.12","conf":"1","expo":-8,"publish_time":1700000000}}]}`,
			wantReason: domain.NormUnparseableNumber,
		},
		{
			name:       "negative confidence",
			payload:    `{"parsed":[{"price":{"price":"100","conf":"-1","expo":-8,"publish_time":1700000000}}]}`,
			wantReason: domain.NormUnparseableNumber,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(domain.SourcePyth, "BTC", []byte(tt.payload))
			var nerr *domain.NormalizationError
			require.True(t, errors.As(err, &nerr))
			assert.Equal(t, tt.wantReason, nerr.Reason)
			assert.Equal(t, domain.SourcePyth, nerr.Source)
		})
	}
}

func TestNormalizeSwitchboard(t *testing.T) {
	payload := `{"value": 8456712345678, "std_dev": 2100000000, "scale": 8, "updated_at": 1700000042}`
	q, err := Normalize(domain.SourceSwitchboard, "BTC", []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, domain.Quote{
		Symbol:     "BTC",
		Source:     domain.SourceSwitchboard,
		Price:      8456712345678,
		Confidence: 2100000000,
		Expo:       -8,
		ObservedAt: 1700000042,
	}, q)
}

func TestNormalizeSwitchboardFailures(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantReason domain.NormReason
	}{
		{name: "missing scale", payload: `{"value": 100, "std_dev": 1, "updated_at": 1}`, wantReason: domain.NormMissingField},
		{name: "fractional value", payload: `{"value": 100.5, "std_dev": 1, "scale": 8, "updated_at": 1}`, wantReason: domain.NormUnparseableNumber},
		{name: "negative scale", payload: `{"value": 100, "std_dev": 1, "scale": -2, "updated_at": 1}`, wantReason: domain.NormUnparseableNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(domain.SourceSwitchboard, "BTC", []byte(tt.payload))
			var nerr *domain.NormalizationError
			require.True(t, errors.As(err, &nerr))
			assert.Equal(t, tt.wantReason, nerr.Reason)
		})
	}
}

func TestNormalizeInternal(t *testing.T) {
	payload := `{"price": "-123456", "confidence": "42", "expo": -4, "observed_at": 1700000099}`
	q, err := Normalize(domain.SourceInternal, "ETH", []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, domain.Quote{
		Symbol:     "ETH",
		Source:     domain.SourceInternal,
		Price:      -123456,
		Confidence: 42,
		Expo:       -4,
		ObservedAt: 1700000099,
	}, q)
}

func TestNormalizeUnknownSource(t *testing.T) {
	_, err := Normalize(domain.Source("chainlink"), "BTC", []byte(`{}`))
	var nerr *domain.NormalizationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, domain.NormMalformedPayload, nerr.Reason)
}

func TestNormalizeZeroExpoIsValid(t *testing.T) {
	// expo 0 is a legitimate scale and must not be confused with a
	// missing field.
	payload := `{"price": "84567", "confidence": "1", "expo": 0, "observed_at": 1700000000}`
	q, err := Normalize(domain.SourceInternal, "BTC", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, int32(0), q.Expo)
}
