package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/quantarc/oracled/internal/domain"
)

// PythClient fetches price updates from a Pyth Hermes endpoint.
// Hermes addresses prices by feed ID rather than symbol, so the client
// carries a symbol-to-feed-ID mapping from config.
type PythClient struct {
	baseURL    string
	apiKey     string
	feedIDs    map[string]string
	httpClient *http.Client
}

var _ domain.FeedClient = (*PythClient)(nil)

// NewPythClient creates a Hermes client.
//
// baseURL is the Hermes root, e.g. "https://hermes.pyth.network".
// feedIDs maps symbol ("BTC") to the 64-hex-char Pyth feed ID.
func NewPythClient(baseURL, apiKey string, feedIDs map[string]string) *PythClient {
	return &PythClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		feedIDs:    feedIDs,
		httpClient: newHTTPClient(),
	}
}

func (c *PythClient) Source() domain.Source { return domain.SourcePyth }

// Fetch returns the raw Hermes response for the symbol's feed ID.
func (c *PythClient) Fetch(ctx context.Context, symbol string) ([]byte, error) {
	feedID, ok := c.feedIDs[symbol]
	if !ok {
		return nil, fmt.Errorf("feed/pyth: %w: %s", domain.ErrUnknownSymbol, symbol)
	}
	params := url.Values{}
	params.Set("ids[]", feedID)
	u := c.baseURL + "/v2/updates/price/latest?" + params.Encode()
	return doGet(ctx, c.httpClient, domain.SourcePyth, u, c.apiKey)
}
