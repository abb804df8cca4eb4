package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUnknownSource   = errors.New("unknown source")
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrContextDone     = errors.New("context cancelled")
	ErrInvalidPolicy   = errors.New("invalid policy")
	ErrFeedUnavailable = errors.New("feed unavailable")
)

// NormReason classifies a normalization failure.
type NormReason string

const (
	NormMalformedPayload  NormReason = "malformed_payload"
	NormUnparseableNumber NormReason = "unparseable_number"
	NormMissingField      NormReason = "missing_field"
)

// NormalizationError reports that a raw feed payload could not be
// turned into a Quote. It carries enough context for metrics and logs
// without echoing payload contents.
type NormalizationError struct {
	Source Source
	Reason NormReason
	Detail string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %s: %s", e.Source, e.Reason, e.Detail)
}

// FetchKind classifies a feed fetch failure.
type FetchKind string

const (
	FetchTimeout     FetchKind = "timeout"
	FetchUnreachable FetchKind = "unreachable"
	FetchBadStatus   FetchKind = "bad_status"
)

// FetchError reports a failed fetch from a price feed.
type FetchError struct {
	Source Source
	Kind   FetchKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
