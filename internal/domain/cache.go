package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// PipelineStats are the periodic ingestion counters.
type PipelineStats struct {
	PacketCount   int64     `json:"packet_count"`
	AvgQueueDepth float64   `json:"avg_queue_depth"`
	Matches       int       `json:"matches"`
	Opportunities int       `json:"opportunities"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OpportunityCache holds the live opportunity list for readers outside the
// discovery process.
type OpportunityCache interface {
	SetLive(ctx context.Context, summaries []Summary) error
	GetLive(ctx context.Context) ([]Summary, error)
	SetStats(ctx context.Context, stats PipelineStats) error
	GetStats(ctx context.Context) (PipelineStats, error)
}

// RateLimiter admits requests per key within a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
