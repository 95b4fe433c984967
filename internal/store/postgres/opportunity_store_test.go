package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

func TestRecentQuery(t *testing.T) {
	q, args := recentQuery(domain.ListOpts{})
	assert.False(t, strings.Contains(q, "WHERE"))
	assert.True(t, strings.HasSuffix(q, "ORDER BY last_seen_at DESC"))
	assert.Empty(t, args)

	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)
	q, args = recentQuery(domain.ListOpts{Since: &since, Until: &until, Limit: 50, Offset: 100})
	assert.Contains(t, q, "WHERE last_seen_at >= $1 AND last_seen_at < $2")
	assert.True(t, strings.HasSuffix(q, "LIMIT $3 OFFSET $4"))
	assert.Equal(t, []any{since, until, 50, 100}, args)

	q, args = recentQuery(domain.ListOpts{Until: &until, Offset: 5})
	assert.Contains(t, q, "WHERE last_seen_at < $1")
	assert.True(t, strings.HasSuffix(q, "OFFSET $2"))
	assert.Len(t, args, 2)
}

// TestOpportunityStoreRoundTrip needs a scratch database in
// ARBD_TEST_POSTGRES_DSN.
func TestOpportunityStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("ARBD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ARBD_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx))

	store := NewOpportunityStore(c.Pool())
	before := time.Now().Add(-time.Second)
	seen := time.Now().UTC().Truncate(time.Millisecond)
	e := domain.HistoryEntry{
		ID: uuid.NewString(),
		Opportunity: domain.Opportunity{
			StrategyID: domain.StrategyID(1),
			Profit:     0.012,
			Match:      domain.OpportunityMatch{MatchID: "pgtest-" + uuid.NewString()},
		},
		Summary:     domain.Summary{StrategyID: 1, Home: "Arsenal", Away: "Chelsea"},
		FirstSeenAt: seen,
		LastSeenAt:  seen.Add(30 * time.Second),
	}
	require.NoError(t, store.Insert(ctx, []domain.HistoryEntry{e, e}))

	got, err := store.ListPersisted(ctx, before, time.Now().Add(time.Second))
	require.NoError(t, err)
	var found *domain.HistoryEntry
	for i := range got {
		if got[i].ID == e.ID {
			found = &got[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "Arsenal", found.Summary.Home)
	assert.InDelta(t, 0.012, found.Opportunity.Profit, 1e-9)
	assert.Equal(t, 30*time.Second, found.Duration())

	_, err = c.pool.Exec(ctx, "DELETE FROM opportunity_history WHERE id = $1", e.ID)
	require.NoError(t, err)
}
