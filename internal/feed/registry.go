package feed

import (
	"fmt"

	"github.com/quantarc/oracled/internal/config"
	"github.com/quantarc/oracled/internal/domain"
)

// Registry holds the constructed feed clients keyed by source.
type Registry struct {
	clients map[domain.Source]domain.FeedClient
}

// NewRegistry builds clients for every enabled feed. Symbol configs
// contribute the Pyth feed-ID mapping.
func NewRegistry(feeds config.FeedsConfig, symbols []config.SymbolConfig) *Registry {
	r := &Registry{clients: make(map[domain.Source]domain.FeedClient)}

	if feeds.Pyth.Enabled {
		feedIDs := make(map[string]string, len(symbols))
		for _, s := range symbols {
			if s.PythFeedID != "" {
				feedIDs[s.Symbol] = s.PythFeedID
			}
		}
		r.clients[domain.SourcePyth] = NewPythClient(feeds.Pyth.BaseURL, feeds.Pyth.APIKey, feedIDs)
	}
	if feeds.Switchboard.Enabled {
		r.clients[domain.SourceSwitchboard] = NewSwitchboardClient(feeds.Switchboard.BaseURL, feeds.Switchboard.APIKey)
	}
	if feeds.Internal.Enabled {
		r.clients[domain.SourceInternal] = NewInternalClient(feeds.Internal.BaseURL, feeds.Internal.APIKey)
	}
	return r
}

// Get returns the client for src.
func (r *Registry) Get(src domain.Source) (domain.FeedClient, error) {
	c, ok := r.clients[src]
	if !ok {
		return nil, fmt.Errorf("feed: %w: %s (not enabled)", domain.ErrUnknownSource, src)
	}
	return c, nil
}

// Resolve maps source names to clients, failing on any name without an
// enabled client so misconfiguration surfaces at wiring time rather
// than mid-cycle.
func (r *Registry) Resolve(names []string) ([]domain.FeedClient, error) {
	out := make([]domain.FeedClient, 0, len(names))
	for _, name := range names {
		c, err := r.Get(domain.Source(name))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
