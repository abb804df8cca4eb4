// Package oracle implements the pure price engine: payload
// normalization, freshness and confidence gating, and median
// consensus. Everything here is deterministic integer arithmetic with
// no I/O; the pipeline owns clocks, timeouts and persistence.
package oracle

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/quantarc/oracled/internal/domain"
)

// Feed payloads carry mantissas as decimal strings (Pyth, internal) or
// bare JSON numbers (Switchboard). Both are parsed with strconv over
// the raw token so a value never passes through a float64.

type pythPrice struct {
	Price       *string `json:"price"`
	Conf        *string `json:"conf"`
	Expo        *int32  `json:"expo"`
	PublishTime *int64  `json:"publish_time"`
}

type pythEntry struct {
	ID    string     `json:"id"`
	Price *pythPrice `json:"price"`
}

type pythResponse struct {
	Parsed []pythEntry `json:"parsed"`
}

type switchboardResponse struct {
	Value     *json.Number `json:"value"`
	StdDev    *json.Number `json:"std_dev"`
	Scale     *int32       `json:"scale"`
	UpdatedAt *int64       `json:"updated_at"`
}

type internalResponse struct {
	Price      *string `json:"price"`
	Confidence *string `json:"confidence"`
	Expo       *int32  `json:"expo"`
	ObservedAt *int64  `json:"observed_at"`
}

// Normalize decodes one raw feed payload into a canonical Quote.
// Failures come back as *domain.NormalizationError. Normalization is
// pure: the same payload always yields a bit-identical Quote.
func Normalize(source domain.Source, symbol string, payload []byte) (domain.Quote, error) {
	switch source {
	case domain.SourcePyth:
		return normalizePyth(symbol, payload)
	case domain.SourceSwitchboard:
		return normalizeSwitchboard(symbol, payload)
	case domain.SourceInternal:
		return normalizeInternal(symbol, payload)
	}
	return domain.Quote{}, &domain.NormalizationError{
		Source: source,
		Reason: domain.NormMalformedPayload,
		Detail: "no normalizer registered for source",
	}
}

func normalizePyth(symbol string, payload []byte) (domain.Quote, error) {
	var resp pythResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return domain.Quote{}, normErr(domain.SourcePyth, domain.NormMalformedPayload, "invalid json")
	}
	if len(resp.Parsed) == 0 || resp.Parsed[0].Price == nil {
		return domain.Quote{}, normErr(domain.SourcePyth, domain.NormMissingField, "parsed[0].price")
	}
	p := resp.Parsed[0].Price
	if p.Price == nil {
		return domain.Quote{}, normErr(domain.SourcePyth, domain.NormMissingField, "price.price")
	}
	if p.Conf == nil {
		return domain.Quote{}, normErr(domain.SourcePyth, domain.NormMissingField, "price.conf")
	}
	if p.Expo == nil {
		return domain.Quote{}, normErr(domain.SourcePyth, domain.NormMissingField, "price.expo")
	}
	if p.PublishTime == nil {
		return domain.Quote{}, normErr(domain.SourcePyth, domain.NormMissingField, "price.publish_time")
	}
	price, err := strconv.ParseInt(*p.Price, 10, 64)
	if err != nil {
		return domain.Quote{}, normErr(domain.SourcePyth, domain.NormUnparseableNumber, "price.price")
	}
	conf, err := strconv.ParseInt(*p.Conf, 10, 64)
	if err != nil || conf < 0 {
		return domain.Quote{}, normErr(domain.SourcePyth, domain.NormUnparseableNumber, "price.conf")
	}
	return domain.Quote{
		Symbol:     symbol,
		Source:     domain.SourcePyth,
		Price:      price,
		Confidence: conf,
		Expo:       *p.Expo,
		ObservedAt: *p.PublishTime,
	}, nil
}

func normalizeSwitchboard(symbol string, payload []byte) (domain.Quote, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var resp switchboardResponse
	if err := dec.Decode(&resp); err != nil {
		return domain.Quote{}, normErr(domain.SourceSwitchboard, domain.NormMalformedPayload, "invalid json")
	}
	if resp.Value == nil {
		return domain.Quote{}, normErr(domain.SourceSwitchboard, domain.NormMissingField, "value")
	}
	if resp.StdDev == nil {
		return domain.Quote{}, normErr(domain.SourceSwitchboard, domain.NormMissingField, "std_dev")
	}
	if resp.Scale == nil {
		return domain.Quote{}, normErr(domain.SourceSwitchboard, domain.NormMissingField, "scale")
	}
	if resp.UpdatedAt == nil {
		return domain.Quote{}, normErr(domain.SourceSwitchboard, domain.NormMissingField, "updated_at")
	}
	value, err := strconv.ParseInt(resp.Value.String(), 10, 64)
	if err != nil {
		return domain.Quote{}, normErr(domain.SourceSwitchboard, domain.NormUnparseableNumber, "value")
	}
	stdDev, err := strconv.ParseInt(resp.StdDev.String(), 10, 64)
	if err != nil || stdDev < 0 {
		return domain.Quote{}, normErr(domain.SourceSwitchboard, domain.NormUnparseableNumber, "std_dev")
	}
	if *resp.Scale < 0 {
		return domain.Quote{}, normErr(domain.SourceSwitchboard, domain.NormUnparseableNumber, "scale")
	}
	// Switchboard reports a positive decimal scale; canonical form uses
	// a signed exponent, so scale 8 becomes expo -8.
	return domain.Quote{
		Symbol:     symbol,
		Source:     domain.SourceSwitchboard,
		Price:      value,
		Confidence: stdDev,
		Expo:       -*resp.Scale,
		ObservedAt: *resp.UpdatedAt,
	}, nil
}

func normalizeInternal(symbol string, payload []byte) (domain.Quote, error) {
	var resp internalResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return domain.Quote{}, normErr(domain.SourceInternal, domain.NormMalformedPayload, "invalid json")
	}
	if resp.Price == nil {
		return domain.Quote{}, normErr(domain.SourceInternal, domain.NormMissingField, "price")
	}
	if resp.Confidence == nil {
		return domain.Quote{}, normErr(domain.SourceInternal, domain.NormMissingField, "confidence")
	}
	if resp.Expo == nil {
		return domain.Quote{}, normErr(domain.SourceInternal, domain.NormMissingField, "expo")
	}
	if resp.ObservedAt == nil {
		return domain.Quote{}, normErr(domain.SourceInternal, domain.NormMissingField, "observed_at")
	}
	price, err := strconv.ParseInt(*resp.Price, 10, 64)
	if err != nil {
		return domain.Quote{}, normErr(domain.SourceInternal, domain.NormUnparseableNumber, "price")
	}
	conf, err := strconv.ParseInt(*resp.Confidence, 10, 64)
	if err != nil || conf < 0 {
		return domain.Quote{}, normErr(domain.SourceInternal, domain.NormUnparseableNumber, "confidence")
	}
	return domain.Quote{
		Symbol:     symbol,
		Source:     domain.SourceInternal,
		Price:      price,
		Confidence: conf,
		Expo:       *resp.Expo,
		ObservedAt: *resp.ObservedAt,
	}, nil
}

func normErr(src domain.Source, reason domain.NormReason, detail string) error {
	return &domain.NormalizationError{Source: src, Reason: reason, Detail: detail}
}
