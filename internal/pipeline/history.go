package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// HistoryConfig tunes the history logger.
type HistoryConfig struct {
	// NoRepeat suppresses persisting an identical opportunity again.
	NoRepeat time.Duration
	// PruneInterval is how often the no-repeat table is pruned.
	PruneInterval time.Duration
}

type liveEntry struct {
	opp       domain.Opportunity
	firstSeen time.Time
	lastSeen  time.Time
}

// HistoryLogger persists each opportunity once, when it disappears from the
// live list. It is driven from the discovery loop and is not safe for
// concurrent use.
type HistoryLogger struct {
	store    domain.HistoryStore
	registry *domain.BookieRegistry
	cfg      HistoryConfig
	logger   *slog.Logger

	live      map[string]*liveEntry
	persisted map[string]time.Time
	lastPrune time.Time
	written   int64
}

// NewHistoryLogger creates a logger writing to store.
func NewHistoryLogger(store domain.HistoryStore, registry *domain.BookieRegistry, cfg HistoryConfig, logger *slog.Logger) *HistoryLogger {
	if cfg.NoRepeat <= 0 {
		cfg.NoRepeat = 6 * time.Hour
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = 8 * time.Hour
	}
	return &HistoryLogger{
		store:     store,
		registry:  registry,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "history_logger")),
		live:      make(map[string]*liveEntry),
		persisted: make(map[string]time.Time),
	}
}

// Observe takes the full opportunity list of one cycle.
func (h *HistoryLogger) Observe(ctx context.Context, opps []domain.Opportunity, now time.Time) {
	if h.lastPrune.IsZero() {
		h.lastPrune = now
	}
	current := make(map[string]struct{}, len(opps))
	for _, o := range opps {
		k := o.Key()
		current[k] = struct{}{}
		if e, ok := h.live[k]; ok {
			e.lastSeen = now
			continue
		}
		h.live[k] = &liveEntry{opp: o, firstSeen: now, lastSeen: now}
	}

	var gone []*liveEntry
	for k, e := range h.live {
		if _, ok := current[k]; !ok {
			gone = append(gone, e)
			delete(h.live, k)
		}
	}
	h.persist(ctx, gone, now)

	if now.Sub(h.lastPrune) >= h.cfg.PruneInterval {
		h.prune(now)
	}
}

// Flush persists every still-live opportunity. Called on shutdown.
func (h *HistoryLogger) Flush(ctx context.Context, now time.Time) {
	entries := make([]*liveEntry, 0, len(h.live))
	for k, e := range h.live {
		entries = append(entries, e)
		delete(h.live, k)
	}
	h.persist(ctx, entries, now)
	h.logger.Info("history flushed", slog.Int("live", len(entries)), slog.Int64("written", h.written))
}

// Live is the number of opportunities currently tracked.
func (h *HistoryLogger) Live() int { return len(h.live) }

func (h *HistoryLogger) persist(ctx context.Context, entries []*liveEntry, now time.Time) {
	if len(entries) == 0 {
		return
	}
	rows := make([]domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		summary := e.opp.Summarize(h.registry)
		key := summary.ComparableKey()
		if at, ok := h.persisted[key]; ok && now.Sub(at) < h.cfg.NoRepeat {
			continue
		}
		h.persisted[key] = now
		rows = append(rows, domain.HistoryEntry{
			ID:          uuid.NewString(),
			Opportunity: e.opp,
			Summary:     summary,
			FirstSeenAt: e.firstSeen,
			LastSeenAt:  e.lastSeen,
		})
	}
	if len(rows) == 0 {
		return
	}
	if err := h.store.Insert(ctx, rows); err != nil {
		h.logger.Error("history insert failed", slog.String("error", err.Error()), slog.Int("rows", len(rows)))
		return
	}
	h.written += int64(len(rows))
	h.logger.Debug("history written", slog.Int("rows", len(rows)))
}

func (h *HistoryLogger) prune(now time.Time) {
	before := len(h.persisted)
	for k, at := range h.persisted {
		if now.Sub(at) >= h.cfg.NoRepeat {
			delete(h.persisted, k)
		}
	}
	h.lastPrune = now
	h.logger.Info("history dedup pruned", slog.Int("removed", before-len(h.persisted)), slog.Int("kept", len(h.persisted)))
}
