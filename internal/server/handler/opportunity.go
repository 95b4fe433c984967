package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// LiveSource returns the current opportunity list and ingestion counters,
// either from the discovery loop in this process or from the shared cache.
type LiveSource interface {
	Live(ctx context.Context) ([]domain.Summary, error)
	Stats(ctx context.Context) (domain.PipelineStats, error)
}

// OpportunityHandler serves live and historical opportunities.
type OpportunityHandler struct {
	live    LiveSource
	history domain.HistoryStore
	logger  *slog.Logger
}

// NewOpportunityHandler accepts nil for either source; the matching
// endpoints then answer 503.
func NewOpportunityHandler(live LiveSource, history domain.HistoryStore, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{live: live, history: history, logger: logger}
}

// ListLive returns the last discovery cycle's opportunities.
// GET /api/opportunities
func (h *OpportunityHandler) ListLive(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		writeUnavailable(w, "live opportunities")
		return
	}
	summaries, err := h.live.Live(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: live opportunities", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read live opportunities")
		return
	}
	if summaries == nil {
		summaries = []domain.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": summaries})
}

type historyRow struct {
	ID          string         `json:"id"`
	Summary     domain.Summary `json:"summary"`
	FirstSeenAt string         `json:"first_seen_at"`
	LastSeenAt  string         `json:"last_seen_at"`
	DurationMs  int64          `json:"duration_ms"`
}

// ListHistory pages through persisted opportunities, newest first.
// GET /api/opportunities/history?limit=50&offset=0&since=...&until=...
func (h *OpportunityHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeUnavailable(w, "opportunity history")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.history.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list history", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunity history")
		return
	}
	rows := make([]historyRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, historyRow{
			ID:          e.ID,
			Summary:     e.Summary,
			FirstSeenAt: e.FirstSeenAt.In(domain.HKZone).Format("2006-01-02 15:04:05.000"),
			LastSeenAt:  e.LastSeenAt.In(domain.HKZone).Format("2006-01-02 15:04:05.000"),
			DurationMs:  e.Duration().Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": rows,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// Stats returns the latest ingestion counters.
// GET /api/stats
func (h *OpportunityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		writeUnavailable(w, "stats")
		return
	}
	stats, err := h.live.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stats", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
