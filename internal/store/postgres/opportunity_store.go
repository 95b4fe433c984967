package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// OpportunityStore implements domain.HistoryStore. The full opportunity and
// its display summary are kept as JSONB next to a few indexed columns.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const historySelectCols = `id::text, opportunity, summary, first_seen_at, last_seen_at`

// Insert writes entries in one batch.
func (s *OpportunityStore) Insert(ctx context.Context, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	const query = `
		INSERT INTO opportunity_history (
			id, match_id, strategy_id, profit,
			league, home_team, away_team, home_score, away_score, in_running,
			first_seen_at, last_seen_at, duration_ms,
			opportunity, summary
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10,
			$11, $12, $13,
			$14, $15
		) ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range entries {
		opp, err := json.Marshal(e.Opportunity)
		if err != nil {
			return fmt.Errorf("postgres: marshal opportunity %s: %w", e.ID, err)
		}
		sum, err := json.Marshal(e.Summary)
		if err != nil {
			return fmt.Errorf("postgres: marshal summary %s: %w", e.ID, err)
		}
		m := e.Opportunity.Match
		batch.Queue(query,
			e.ID, m.MatchID, int(e.Opportunity.StrategyID), e.Opportunity.Profit,
			m.LeagueName, m.HomeTeamName, m.AwayTeamName, m.HomeScore, m.AwayScore, m.InRunning,
			e.FirstSeenAt, e.LastSeenAt, e.Duration().Milliseconds(),
			opp, sum,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, e := range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert history %s: %w", e.ID, err)
		}
	}
	return nil
}

// ListRecent returns entries ordered by last_seen_at, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.HistoryEntry, error) {
	query, args := recentQuery(opts)
	return s.query(ctx, query, args...)
}

func recentQuery(opts domain.ListOpts) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Since != nil {
		where = append(where, "last_seen_at >= "+arg(*opts.Since))
	}
	if opts.Until != nil {
		where = append(where, "last_seen_at < "+arg(*opts.Until))
	}
	query := `SELECT ` + historySelectCols + ` FROM opportunity_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_seen_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + arg(opts.Offset)
	}
	return query, args
}

// ListPersisted returns rows created in [since, until), oldest first.
func (s *OpportunityStore) ListPersisted(ctx context.Context, since, until time.Time) ([]domain.HistoryEntry, error) {
	const query = `SELECT ` + historySelectCols + ` FROM opportunity_history
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`
	return s.query(ctx, query, since, until)
}

func (s *OpportunityStore) query(ctx context.Context, query string, args ...any) ([]domain.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			e        domain.HistoryEntry
			opp, sum []byte
		)
		if err := rows.Scan(&e.ID, &opp, &sum, &e.FirstSeenAt, &e.LastSeenAt); err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		if err := json.Unmarshal(opp, &e.Opportunity); err != nil {
			return nil, fmt.Errorf("postgres: decode opportunity %s: %w", e.ID, err)
		}
		if err := json.Unmarshal(sum, &e.Summary); err != nil {
			return nil, fmt.Errorf("postgres: decode summary %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate history: %w", err)
	}
	return out, nil
}

var _ domain.HistoryStore = (*OpportunityStore)(nil)
