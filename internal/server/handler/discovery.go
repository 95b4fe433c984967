package handler

import (
	"cmp"
	"net/http"
	"slices"
	"strconv"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/store/memory"
)

// MatchInspector lists running matches with their odds.
type MatchInspector interface {
	Inspect() []memory.InspectorRow
}

// AvailabilityReader exposes the current bookmaker availability.
type AvailabilityReader interface {
	Availability() domain.Availability
}

// DiscoveryHandler serves views into the in-process discovery state. Both
// sources are nil in server mode.
type DiscoveryHandler struct {
	matches  MatchInspector
	avail    AvailabilityReader
	registry *domain.BookieRegistry
}

func NewDiscoveryHandler(matches MatchInspector, avail AvailabilityReader, registry *domain.BookieRegistry) *DiscoveryHandler {
	return &DiscoveryHandler{matches: matches, avail: avail, registry: registry}
}

// ListMatches returns the inspector table.
// GET /api/matches
func (h *DiscoveryHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	if h.matches == nil {
		writeUnavailable(w, "match inspection")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": h.matches.Inspect()})
}

type bookieAvailability struct {
	ID          domain.BookieID `json:"id"`
	Name        string          `json:"name"`
	DeadBall    bool            `json:"dead_ball"`
	RunningBall bool            `json:"running_ball"`
}

// ListAvailability returns every bookmaker's dead-ball and running-ball
// status ordered by id.
// GET /api/availability
func (h *DiscoveryHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	if h.avail == nil {
		writeUnavailable(w, "availability")
		return
	}
	avail := h.avail.Availability()
	out := make([]bookieAvailability, 0, len(avail))
	for id, st := range avail {
		out = append(out, bookieAvailability{
			ID:          id,
			Name:        h.registry.Name(id),
			DeadBall:    st.DeadBall,
			RunningBall: st.RunningBall,
		})
	}
	slices.SortFunc(out, func(a, b bookieAvailability) int {
		ai, _ := strconv.Atoi(string(a.ID))
		bi, _ := strconv.Atoi(string(b.ID))
		return cmp.Or(cmp.Compare(ai, bi), cmp.Compare(a.ID, b.ID))
	})
	writeJSON(w, http.StatusOK, map[string]any{"bookies": out})
}
