package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

const (
	defaultStreamCount = 100
	maxStreamCount     = 1000
)

// StreamReader reads a durable opportunity stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error)
}

// StreamHandler lets a consumer that was offline catch up on published
// opportunity lists by stream id.
type StreamHandler struct {
	reader StreamReader
	stream string
	logger *slog.Logger
}

// NewStreamHandler accepts a nil reader; the endpoint then answers 503.
func NewStreamHandler(reader StreamReader, stream string, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{reader: reader, stream: stream, logger: logger}
}

type streamEntry struct {
	ID            string           `json:"id"`
	Opportunities []domain.Summary `json:"opportunities"`
}

// Since returns the entries published after the given id.
// GET /api/opportunities/stream?after=0&count=100
func (h *StreamHandler) Since(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeUnavailable(w, "opportunity stream")
		return
	}
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	count := defaultStreamCount
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errBadParam("count").Error())
			return
		}
		count = min(n, maxStreamCount)
	}

	msgs, err := h.reader.StreamRead(r.Context(), h.stream, after, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read stream", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read opportunity stream")
		return
	}

	entries := make([]streamEntry, 0, len(msgs))
	last := after
	for _, m := range msgs {
		last = m.ID
		var summaries []domain.Summary
		if err := json.Unmarshal(m.Payload, &summaries); err != nil {
			h.logger.WarnContext(r.Context(), "handler: skip stream entry", slog.String("id", m.ID))
			continue
		}
		entries = append(entries, streamEntry{ID: m.ID, Opportunities: summaries})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "last_id": last})
}
