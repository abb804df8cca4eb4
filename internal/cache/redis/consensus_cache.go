package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quantarc/oracled/internal/domain"
)

// ConsensusCache implements domain.ConsensusCache on Redis strings.
// Each symbol's latest Ok round is the whole JSON document at key
// "consensus:{symbol}", written with a single SET so readers always
// see a complete round. No TTL: the last good value stays serveable
// and its age is visible through computed_at.
type ConsensusCache struct {
	rdb *redis.Client
}

// NewConsensusCache creates a ConsensusCache backed by the given Client.
func NewConsensusCache(c *Client) *ConsensusCache {
	return &ConsensusCache{rdb: c.Underlying()}
}

func consensusKey(symbol string) string {
	return "consensus:" + symbol
}

// Put replaces the cached round for result.Symbol.
func (cc *ConsensusCache) Put(ctx context.Context, result domain.ConsensusResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: marshal consensus %s: %w", result.Symbol, err)
	}
	if err := cc.rdb.Set(ctx, consensusKey(result.Symbol), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: put consensus %s: %w", result.Symbol, err)
	}
	return nil
}

// Get retrieves the latest cached round for symbol. It returns
// domain.ErrNotFound when no round has been published yet.
func (cc *ConsensusCache) Get(ctx context.Context, symbol string) (domain.ConsensusResult, error) {
	raw, err := cc.rdb.Get(ctx, consensusKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ConsensusResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ConsensusResult{}, fmt.Errorf("redis: get consensus %s: %w", symbol, err)
	}

	var result domain.ConsensusResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.ConsensusResult{}, fmt.Errorf("redis: decode consensus %s: %w", symbol, err)
	}
	return result, nil
}

// Compile-time interface check.
var _ domain.ConsensusCache = (*ConsensusCache)(nil)
