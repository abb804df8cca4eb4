package domain

// Source identifies a price feed. The set is closed: adding a source
// means adding a normalizer and a feed client; everything downstream
// treats sources as opaque labels.
type Source string

const (
	SourcePyth        Source = "pyth"
	SourceSwitchboard Source = "switchboard"
	SourceInternal    Source = "internal"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourcePyth, SourceSwitchboard, SourceInternal:
		return true
	}
	return false
}

// Quote is a normalized price observation from a single source.
// Price and Confidence are integer mantissas scaled by 10^Expo, where
// Expo is typically negative (price -8456700000000, expo -8 => 84567.0).
// Confidence is an absolute interval half-width in the same scale and
// is never negative. A Quote is built fresh every cycle and never
// carried across cycles.
type Quote struct {
	Symbol     string `json:"symbol"`
	Source     Source `json:"source"`
	Price      int64  `json:"price"`
	Confidence int64  `json:"confidence"`
	Expo       int32  `json:"expo"`
	ObservedAt int64  `json:"observed_at"` // unix seconds, source-reported
}

// Policy holds the per-symbol acceptance thresholds. It is read-only
// to the gate and consensus logic; changes arrive via config reload
// and take effect on the next cycle.
type Policy struct {
	MaxStalenessSec  int64 `json:"max_staleness_sec"`
	MaxConfidenceBps int64 `json:"max_confidence_bps"`
	MaxDeviationBps  int64 `json:"max_deviation_bps"`
	MinSources       int   `json:"min_sources"`
}
