package domain

import "context"

// FeedClient fetches one raw payload for a symbol from an upstream
// price feed. Implementations honour ctx deadlines and classify
// failures with *FetchError.
type FeedClient interface {
	Source() Source
	Fetch(ctx context.Context, symbol string) ([]byte, error)
}
