package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// OpportunityCache implements domain.OpportunityCache. The live list is one
// JSON string key with a TTL so a dead process does not leave stale
// opportunities behind; stats are a hash.
type OpportunityCache struct {
	c       *Client
	liveTTL time.Duration
}

// NewOpportunityCache creates an OpportunityCache.
func NewOpportunityCache(c *Client, liveTTL time.Duration) *OpportunityCache {
	if liveTTL <= 0 {
		liveTTL = time.Minute
	}
	return &OpportunityCache{c: c, liveTTL: liveTTL}
}

func (oc *OpportunityCache) liveKey() string  { return oc.c.key("live") }
func (oc *OpportunityCache) statsKey() string { return oc.c.key("stats") }

// SetLive replaces the live snapshot.
func (oc *OpportunityCache) SetLive(ctx context.Context, summaries []domain.Summary) error {
	if summaries == nil {
		summaries = []domain.Summary{}
	}
	data, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("redis: marshal live: %w", err)
	}
	if err := oc.c.rdb.Set(ctx, oc.liveKey(), data, oc.liveTTL).Err(); err != nil {
		return fmt.Errorf("redis: set live: %w", err)
	}
	return nil
}

// GetLive returns the live snapshot, empty when none is stored.
func (oc *OpportunityCache) GetLive(ctx context.Context) ([]domain.Summary, error) {
	data, err := oc.c.rdb.Get(ctx, oc.liveKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return []domain.Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get live: %w", err)
	}
	var out []domain.Summary
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("redis: decode live: %w", err)
	}
	return out, nil
}

// SetStats stores the ingestion counters.
func (oc *OpportunityCache) SetStats(ctx context.Context, s domain.PipelineStats) error {
	fields := map[string]any{
		"packet_count":    strconv.FormatInt(s.PacketCount, 10),
		"avg_queue_depth": strconv.FormatFloat(s.AvgQueueDepth, 'f', -1, 64),
		"matches":         strconv.Itoa(s.Matches),
		"opportunities":   strconv.Itoa(s.Opportunities),
		"updated_at":      strconv.FormatInt(s.UpdatedAt.UnixNano(), 10),
	}
	if err := oc.c.rdb.HSet(ctx, oc.statsKey(), fields).Err(); err != nil {
		return fmt.Errorf("redis: set stats: %w", err)
	}
	return nil
}

// GetStats returns the ingestion counters, or domain.ErrNotFound.
func (oc *OpportunityCache) GetStats(ctx context.Context) (domain.PipelineStats, error) {
	vals, err := oc.c.rdb.HGetAll(ctx, oc.statsKey()).Result()
	if err != nil {
		return domain.PipelineStats{}, fmt.Errorf("redis: get stats: %w", err)
	}
	if len(vals) == 0 {
		return domain.PipelineStats{}, domain.ErrNotFound
	}
	var s domain.PipelineStats
	s.PacketCount, _ = strconv.ParseInt(vals["packet_count"], 10, 64)
	s.AvgQueueDepth, _ = strconv.ParseFloat(vals["avg_queue_depth"], 64)
	s.Matches, _ = strconv.Atoi(vals["matches"])
	s.Opportunities, _ = strconv.Atoi(vals["opportunities"])
	if ns, err := strconv.ParseInt(vals["updated_at"], 10, 64); err == nil {
		s.UpdatedAt = time.Unix(0, ns).UTC()
	}
	return s, nil
}

var _ domain.OpportunityCache = (*OpportunityCache)(nil)
