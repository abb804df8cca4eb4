package feed

import (
	"context"
	"net/http"
	"net/url"

	"github.com/quantarc/oracled/internal/domain"
)

// InternalClient fetches quotes from the in-house pricing service.
type InternalClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ domain.FeedClient = (*InternalClient)(nil)

// NewInternalClient creates a client for the in-house price endpoint.
func NewInternalClient(baseURL, apiKey string) *InternalClient {
	return &InternalClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: newHTTPClient(),
	}
}

func (c *InternalClient) Source() domain.Source { return domain.SourceInternal }

// Fetch returns the raw internal quote for symbol.
func (c *InternalClient) Fetch(ctx context.Context, symbol string) ([]byte, error) {
	u := c.baseURL + "/quotes/" + url.PathEscape(symbol)
	return doGet(ctx, c.httpClient, domain.SourceInternal, u, c.apiKey)
}
