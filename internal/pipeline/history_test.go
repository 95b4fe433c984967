package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

func opportunity(matchID string, price float64) domain.Opportunity {
	return domain.Opportunity{
		Match:      domain.OpportunityMatch{MatchID: matchID, HomeTeamName: "Wolfsburg", AwayTeamName: "Napoli"},
		StrategyID: domain.StrategyDirect,
		Profit:     0.0123,
		Selections: []domain.Selection{
			{Market: domain.MarketAH, Side: domain.SideHome, Line: -0.5, Half: domain.HalfFT, Bookie: "15", Stake: 49.4, Price: price},
			{Market: domain.MarketAH, Side: domain.SideAway, Line: 0.5, Half: domain.HalfFT, Bookie: "52", Stake: 50.6, Price: 2.0},
		},
	}
}

func newTestHistory() (*HistoryLogger, *fakeHistoryStore) {
	store := &fakeHistoryStore{}
	return NewHistoryLogger(store, domain.DefaultBookieRegistry(), HistoryConfig{}, discard), store
}

func TestHistoryPersistsOnDisappearance(t *testing.T) {
	h, store := newTestHistory()
	ctx := context.Background()
	t0 := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	a := opportunity("1", 2.05)

	h.Observe(ctx, []domain.Opportunity{a}, t0)
	h.Observe(ctx, []domain.Opportunity{a}, t0.Add(time.Second))
	assert.Empty(t, store.rows())
	assert.Equal(t, 1, h.Live())

	h.Observe(ctx, nil, t0.Add(2*time.Second))
	rows := store.rows()
	require.Len(t, rows, 1)
	assert.Equal(t, t0, rows[0].FirstSeenAt)
	assert.Equal(t, t0.Add(time.Second), rows[0].LastSeenAt)
	assert.Equal(t, time.Second, rows[0].Duration())
	assert.NotEmpty(t, rows[0].ID)
	assert.Equal(t, "1.23 %", rows[0].Summary.ProfitPct)
	assert.Zero(t, h.Live())
}

func TestHistorySuppressesRepeatsWithinWindow(t *testing.T) {
	h, store := newTestHistory()
	ctx := context.Background()
	t0 := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	a := opportunity("1", 2.05)

	h.Observe(ctx, []domain.Opportunity{a}, t0)
	h.Observe(ctx, nil, t0.Add(time.Minute))
	h.Observe(ctx, []domain.Opportunity{a}, t0.Add(2*time.Minute))
	h.Observe(ctx, nil, t0.Add(3*time.Minute))
	assert.Len(t, store.rows(), 1)

	// a different price is a different opportunity
	h.Observe(ctx, []domain.Opportunity{opportunity("1", 2.06)}, t0.Add(4*time.Minute))
	h.Observe(ctx, nil, t0.Add(5*time.Minute))
	assert.Len(t, store.rows(), 2)

	h.Observe(ctx, []domain.Opportunity{a}, t0.Add(7*time.Hour))
	h.Observe(ctx, nil, t0.Add(7*time.Hour+time.Minute))
	assert.Len(t, store.rows(), 3)
}

func TestHistoryPrunesDedupTable(t *testing.T) {
	h, _ := newTestHistory()
	ctx := context.Background()
	t0 := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	h.Observe(ctx, []domain.Opportunity{opportunity("1", 2.05)}, t0)
	h.Observe(ctx, nil, t0.Add(time.Minute))
	assert.Len(t, h.persisted, 1)

	h.Observe(ctx, nil, t0.Add(9*time.Hour))
	assert.Empty(t, h.persisted)
}

func TestHistoryFlushWritesLive(t *testing.T) {
	h, store := newTestHistory()
	ctx := context.Background()
	t0 := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	h.Observe(ctx, []domain.Opportunity{opportunity("1", 2.05), opportunity("2", 2.05)}, t0)
	h.Flush(ctx, t0.Add(time.Second))
	assert.Len(t, store.rows(), 2)
	assert.Zero(t, h.Live())
}
