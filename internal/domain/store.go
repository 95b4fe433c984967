package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// HistoryEntry is one persisted opportunity: written once, when the
// opportunity disappeared from the live list.
type HistoryEntry struct {
	ID          string      `json:"id"`
	Opportunity Opportunity `json:"opportunity"`
	Summary     Summary     `json:"summary"`
	FirstSeenAt time.Time   `json:"first_seen_at"`
	LastSeenAt  time.Time   `json:"last_seen_at"`
}

// Duration is how long the opportunity stayed live.
func (h HistoryEntry) Duration() time.Duration { return h.LastSeenAt.Sub(h.FirstSeenAt) }

// HistoryStore persists opportunity history.
type HistoryStore interface {
	Insert(ctx context.Context, entries []HistoryEntry) error
	ListRecent(ctx context.Context, opts ListOpts) ([]HistoryEntry, error)
	// ListPersisted returns rows written in [since, until), oldest first.
	ListPersisted(ctx context.Context, since, until time.Time) ([]HistoryEntry, error)
}

// OpportunityPublisher pushes live opportunities to downstream consumers.
type OpportunityPublisher interface {
	PublishOpportunities(ctx context.Context, opps []Opportunity) error
}
