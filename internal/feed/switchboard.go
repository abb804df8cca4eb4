package feed

import (
	"context"
	"net/http"
	"net/url"

	"github.com/quantarc/oracled/internal/domain"
)

// SwitchboardClient fetches aggregator results from a Switchboard
// gateway.
type SwitchboardClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ domain.FeedClient = (*SwitchboardClient)(nil)

// NewSwitchboardClient creates a gateway client rooted at baseURL.
func NewSwitchboardClient(baseURL, apiKey string) *SwitchboardClient {
	return &SwitchboardClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: newHTTPClient(),
	}
}

func (c *SwitchboardClient) Source() domain.Source { return domain.SourceSwitchboard }

// Fetch returns the raw aggregator result for symbol.
func (c *SwitchboardClient) Fetch(ctx context.Context, symbol string) ([]byte, error) {
	u := c.baseURL + "/api/v1/price/" + url.PathEscape(symbol)
	return doGet(ctx, c.httpClient, domain.SourceSwitchboard, u, c.apiKey)
}
