package domain

import (
	"context"
	"time"
)

// ConsensusCache holds the latest successful consensus round per
// symbol. Put replaces the whole value atomically; readers never see a
// partially written round. Only Ok rounds are ever written, so a Get
// always returns the last known-good price.
type ConsensusCache interface {
	Put(ctx context.Context, result ConsensusResult) error
	Get(ctx context.Context, symbol string) (ConsensusResult, error)
}

// SignalBus provides pub/sub fan-out of consensus publishes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter bounds request rates per key. Allow reports whether one more
// request fits the window and counts it when it does.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
