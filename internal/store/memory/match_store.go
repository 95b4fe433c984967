// Package memory holds the authoritative in-memory match and odds model.
package memory

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Options tunes the housekeeping intervals of a MatchStore.
type Options struct {
	EvictionInterval    time.Duration
	IdleTimeout         time.Duration
	PriceTTL            time.Duration
	PriceExpiryInterval time.Duration
	// FinishedMinute is the second-half minute after which an idle match is
	// considered finished.
	FinishedMinute int
}

// DefaultOptions returns the production housekeeping intervals.
func DefaultOptions() Options {
	return Options{
		EvictionInterval:    5 * time.Minute,
		IdleTimeout:         10 * time.Minute,
		PriceTTL:            30 * time.Second,
		PriceExpiryInterval: 5 * time.Second,
		FinishedMinute:      45,
	}
}

type matchEntry struct {
	info        *domain.MatchInfo
	infoUpdated time.Time
	odds        domain.Odds
}

// MatchStore owns every match by id. Mutation is expected from a single
// goroutine; the lock makes inspection and reset safe from other goroutines.
type MatchStore struct {
	mu       sync.RWMutex
	matches  map[string]*matchEntry
	registry *domain.BookieRegistry
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	lastEviction time.Time
	lastExpiry   time.Time
}

// NewMatchStore creates an empty store.
func NewMatchStore(registry *domain.BookieRegistry, opts Options, logger *slog.Logger) *MatchStore {
	now := time.Now()
	return &MatchStore{
		matches:      make(map[string]*matchEntry),
		registry:     registry,
		opts:         opts,
		logger:       logger.With(slog.String("component", "match_store")),
		now:          time.Now,
		lastEviction: now,
		lastExpiry:   now,
	}
}

// SetClock replaces the time source. Used by replay and tests.
func (s *MatchStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.lastEviction = now()
	s.lastExpiry = now()
}

// ApplyBatch applies one decoded packet. Snapshot batches accept initial odds
// and reject incremental ones; update batches do the opposite.
func (s *MatchStore) ApplyBatch(b domain.Batch) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, rec := range b.Records {
		switch r := rec.(type) {
		case domain.MatchInfoRecord:
			s.applyMatchInfo(r)
			applied++
		case domain.InitOddsRecord:
			if !b.Snapshot {
				s.logger.Error("initial odds record in an update packet", slog.String("record", r.Raw))
				continue
			}
			if s.applyOdds(r.MatchID, r.Quote) {
				applied++
			}
		case domain.UpdateOddsRecord:
			if b.Snapshot {
				s.logger.Error("update record in an initial packet", slog.String("record", r.Raw))
				continue
			}
			if s.applyOdds(r.MatchID, r.Quote) {
				applied++
			}
		}
	}
	return applied
}

// ApplyMatchInfo replaces a match's info, creating the match when absent.
func (s *MatchStore) ApplyMatchInfo(r domain.MatchInfoRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyMatchInfo(r)
}

// ApplyOdds merges one quote into a known match. It reports whether the
// quote was stored.
func (s *MatchStore) ApplyOdds(matchID string, q domain.OddsQuote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyOdds(matchID, q)
}

func (s *MatchStore) applyMatchInfo(r domain.MatchInfoRecord) {
	info := r.Info
	e, ok := s.matches[r.MatchID]
	if !ok {
		s.matches[r.MatchID] = &matchEntry{info: &info, infoUpdated: s.now()}
		return
	}
	if e.info != nil && s.scored(*e.info, info) {
		e.odds.Clear()
	}
	e.info = &info
	e.infoUpdated = s.now()
}

// scored reports whether a running match's score went up between prev and
// next. Jumps of more than one goal and running matches without a score are
// only logged.
func (s *MatchStore) scored(prev, next domain.MatchInfo) bool {
	if !prev.InRunning {
		return false
	}
	dh := next.HomeScore - prev.HomeScore
	da := next.AwayScore - prev.AwayScore
	if dh > 1 || da > 1 {
		s.logger.Error("score jumped by more than one goal",
			slog.String("match_id", prev.MatchID),
			slog.String("home", prev.HomeTeamName),
			slog.String("away", prev.AwayTeamName),
			slog.Int("prev_home", prev.HomeScore),
			slog.Int("prev_away", prev.AwayScore),
			slog.Int("home_score", next.HomeScore),
			slog.Int("away_score", next.AwayScore),
		)
	}
	if prev.HomeScore == domain.NoScore || prev.AwayScore == domain.NoScore {
		s.logger.Warn("running match has no score",
			slog.String("match_id", prev.MatchID),
			slog.String("home", prev.HomeTeamName),
			slog.String("away", prev.AwayTeamName),
		)
		return false
	}
	return dh >= 1 || da >= 1
}

func (s *MatchStore) applyOdds(matchID string, q domain.OddsQuote) bool {
	e, ok := s.matches[matchID]
	if !ok {
		return false
	}
	bookie := q.Bookie
	if !s.registry.Known(bookie) {
		return false
	}
	if q.Lay && s.registry.HasLay(bookie) {
		bookie = bookie.Lay()
	}

	line := q.Line
	if q.Market == domain.MarketAH && s.registry.NonTraditionalAH(bookie) {
		// exchange handicaps ignore the live score
		if e.info == nil {
			return false
		}
		line += float64(e.info.GoalDiff())
	}

	if e.odds == nil {
		e.odds = make(domain.Odds)
	}
	e.odds.Set(q.Key(), line, bookie, domain.PriceEntry{
		Prices:      append([]float64(nil), q.Prices...),
		Receipt:     q.BetData,
		LastUpdated: s.now(),
	})
	return true
}

// EvictFinished removes finished or info-less matches. It does nothing when
// called again within the eviction interval.
func (s *MatchStore) EvictFinished() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastEviction) <= s.opts.EvictionInterval {
		return nil
	}
	s.lastEviction = now

	var removed []string
	for id, e := range s.matches {
		if !s.finished(e, now) {
			continue
		}
		delete(s.matches, id)
		removed = append(removed, id)
		if e.info != nil {
			s.logger.Info("removed finished match",
				slog.String("match_id", id),
				slog.String("league", e.info.LeagueName),
				slog.String("home", e.info.HomeTeamName),
				slog.String("away", e.info.AwayTeamName),
			)
		}
	}
	sort.Strings(removed)
	return removed
}

func (s *MatchStore) finished(e *matchEntry, now time.Time) bool {
	if e.info == nil {
		return true
	}
	return e.info.SecondHalfPast(s.opts.FinishedMinute) && now.Sub(e.infoUpdated) > s.opts.IdleTimeout
}

// ExpireRunningPrices drops in-play quotes older than the price TTL. It does
// nothing when called again within the expiry interval.
func (s *MatchStore) ExpireRunningPrices() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastExpiry) <= s.opts.PriceExpiryInterval {
		return 0
	}
	s.lastExpiry = now

	cutoff := now.Add(-s.opts.PriceTTL)
	removed := 0
	for _, e := range s.matches {
		if e.info == nil || !e.info.InRunning || e.odds == nil {
			continue
		}
		removed += e.odds.ExpireBefore(cutoff)
	}
	return removed
}

// DropRunning removes every in-play match, for dead-ball-only operation.
func (s *MatchStore) DropRunning() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.matches {
		if e.info != nil && e.info.InRunning {
			delete(s.matches, id)
			n++
		}
	}
	return n
}

// Views returns deep copies of every match that has both info and odds,
// ordered by match id.
func (s *MatchStore) Views() []domain.MatchView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]domain.MatchView, 0, len(s.matches))
	for _, e := range s.matches {
		if e.info == nil || e.odds.Len() == 0 {
			continue
		}
		views = append(views, domain.MatchView{Info: *e.info, Odds: e.odds.Clone()})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Info.MatchID < views[j].Info.MatchID })
	return views
}

// Match returns a copy of one match.
func (s *MatchStore) Match(id string) (domain.MatchView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.matches[id]
	if !ok || e.info == nil {
		return domain.MatchView{}, false
	}
	return domain.MatchView{Info: *e.info, Odds: e.odds.Clone()}, true
}

// Len is the number of matches held.
func (s *MatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}

// Clear drops everything.
func (s *MatchStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = make(map[string]*matchEntry)
}

// InspectorRow is one line of the match inspection table.
type InspectorRow struct {
	MatchID      string `json:"match_id"`
	InRunning    bool   `json:"is_in_running"`
	RunningTime  string `json:"running_time"`
	League       string `json:"league_name"`
	LeagueTrad   string `json:"league_name_trad"`
	HomeTeam     string `json:"home_team_name"`
	HomeTeamTrad string `json:"home_team_name_trad"`
	HomeScore    int    `json:"home_team_score"`
	AwayScore    int    `json:"away_team_score"`
	AwayTeam     string `json:"away_team_name"`
	AwayTeamTrad string `json:"away_team_name_trad"`
	Quotes       int    `json:"quotes"`
}

// Inspect lists every match with odds, ordered by match id.
func (s *MatchStore) Inspect() []InspectorRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]InspectorRow, 0, len(s.matches))
	for id, e := range s.matches {
		if e.info == nil || e.odds.Len() == 0 {
			continue
		}
		rows = append(rows, InspectorRow{
			MatchID:      id,
			InRunning:    e.info.InRunning,
			RunningTime:  e.info.RunningTime,
			League:       e.info.LeagueName,
			LeagueTrad:   e.info.LeagueNameTrad,
			HomeTeam:     e.info.HomeTeamName,
			HomeTeamTrad: e.info.HomeTeamNameTrad,
			HomeScore:    e.info.HomeScore,
			AwayScore:    e.info.AwayScore,
			AwayTeam:     e.info.AwayTeamName,
			AwayTeamTrad: e.info.AwayTeamNameTrad,
			Quotes:       e.odds.Len(),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].MatchID < rows[j].MatchID })
	return rows
}
