package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StrategyID identifies the detector that produced an opportunity. The numeric
// value travels on the execution wire.
type StrategyID int

const (
	StrategyDirect         StrategyID = 1
	StrategyDirectCombined StrategyID = 2
	StrategyAHvs2          StrategyID = 3
	StrategyAHvsXvs2       StrategyID = 4
	StrategyEHvsEHXvsAH    StrategyID = 5
	StrategyCrossHandicap  StrategyID = 6
)

// Side is the outcome a selection backs.
type Side string

const (
	SideHome  Side = "Home"
	SideAway  Side = "Away"
	SideDraw  Side = "Draw"
	SideOver  Side = "Over"
	SideUnder Side = "Under"
)

// Selection is one leg of an opportunity.
type Selection struct {
	Market Market   `json:"market"`
	Side   Side     `json:"side"`
	Line   float64  `json:"line"`
	Half   Half     `json:"half"`
	Bookie BookieID `json:"bookie"`
	Stake  float64  `json:"stake"`
	Price  float64  `json:"price"`
	// Receipt is the bookmaker bet data needed to place the bet.
	Receipt string `json:"receipt"`
	Lay     bool   `json:"lay"`
}

// Label is the market label, e.g. "AH Home". Win/draw/lose markets carry the
// side in the subtype instead.
func (s Selection) Label() string {
	if s.Market == Market1x2 || s.Market == Market1or2 {
		return string(s.Market)
	}
	return string(s.Market) + " " + string(s.Side)
}

// Subtype is the line for handicap markets or the side otherwise.
func (s Selection) Subtype() string {
	if !s.Market.HasLine() {
		return string(s.Side)
	}
	return strconv.FormatFloat(s.Line, 'f', -1, 64)
}

// Candidate is a strategy's raw finding before match context is attached.
type Candidate struct {
	Profit     float64
	Selections []Selection
}

// OpportunityMatch is the subset of match info carried by an opportunity.
type OpportunityMatch struct {
	MatchID          string `json:"match_id"`
	LeagueName       string `json:"league_name"`
	LeagueNameSimp   string `json:"league_name_simp"`
	HomeTeamName     string `json:"home_team_name"`
	HomeTeamNameSimp string `json:"home_team_name_simp"`
	AwayTeamName     string `json:"away_team_name"`
	AwayTeamNameSimp string `json:"away_team_name_simp"`
	HomeScore        int    `json:"home_team_score"`
	AwayScore        int    `json:"away_team_score"`
	InRunning        bool   `json:"is_in_running"`
	MatchHKTime      string `json:"match_hk_time"`
	RunningTime      string `json:"running_time"`
}

// NewOpportunityMatch copies the carried subset out of info.
func NewOpportunityMatch(info MatchInfo) OpportunityMatch {
	return OpportunityMatch{
		MatchID:          info.MatchID,
		LeagueName:       info.LeagueName,
		LeagueNameSimp:   info.LeagueNameSimp,
		HomeTeamName:     info.HomeTeamName,
		HomeTeamNameSimp: info.HomeTeamNameSimp,
		AwayTeamName:     info.AwayTeamName,
		AwayTeamNameSimp: info.AwayTeamNameSimp,
		HomeScore:        info.HomeScore,
		AwayScore:        info.AwayScore,
		InRunning:        info.InRunning,
		MatchHKTime:      info.MatchHKTime,
		RunningTime:      info.RunningTime,
	}
}

// Opportunity is an immutable arbitrage finding.
type Opportunity struct {
	Match      OpportunityMatch `json:"match"`
	StrategyID StrategyID       `json:"strategy_id"`
	OccurredAt time.Time        `json:"occurred_at"`
	Profit     float64          `json:"profit"`
	Selections []Selection      `json:"selections"`
}

// OccurredAtHK formats the discovery time in HK time with millisecond precision.
func (o Opportunity) OccurredAtHK() string {
	return o.OccurredAt.In(HKZone).Format("2006-01-02 15:04:05.000")
}

// Key identifies an opportunity by match, strategy and legs. Two
// opportunities with equal keys are the same opportunity.
func (o Opportunity) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d", o.Match.MatchID, o.StrategyID)
	for _, s := range o.Selections {
		fmt.Fprintf(&b, "|%s,%s,%s,%s,%v,%v,%s,%t", s.Label(), s.Subtype(), s.Half, s.Bookie, s.Stake, s.Price, s.Receipt, s.Lay)
	}
	return b.String()
}

// Equal reports whether o and other are the same opportunity.
func (o Opportunity) Equal(other Opportunity) bool { return o.Key() == other.Key() }

// BookieIDs lists the bookmakers involved.
func (o Opportunity) BookieIDs() []BookieID {
	ids := make([]BookieID, len(o.Selections))
	for i, s := range o.Selections {
		ids[i] = s.Bookie
	}
	return ids
}

// SelectionSummary is the display form of one leg.
type SelectionSummary struct {
	Label         string  `json:"type"`
	Subtype       string  `json:"subtype"`
	Half          Half    `json:"half"`
	Bookie        string  `json:"bookie"`
	BookieCN      string  `json:"bookie_cn"`
	Stake         float64 `json:"stake"`
	RawOdds       float64 `json:"raw_odds"`
	EffectiveOdds float64 `json:"effective_odds"`
	CommissionPct string  `json:"commission"`
	Lay           bool    `json:"lay"`
}

// Summary is the display form of an opportunity for presentation layers and
// the history log.
type Summary struct {
	StrategyID   StrategyID         `json:"strategy_id"`
	ProfitPct    string             `json:"profit"`
	OccurredAtHK string             `json:"occurred_at_hk"`
	League       string             `json:"league"`
	LeagueCN     string             `json:"league_cn"`
	Home         string             `json:"home"`
	HomeCN       string             `json:"home_cn"`
	HomeScore    int                `json:"home_score"`
	AwayScore    int                `json:"away_score"`
	Away         string             `json:"away"`
	AwayCN       string             `json:"away_cn"`
	Selections   []SelectionSummary `json:"selections"`
}

// ComparableKey identifies a summary ignoring when it was seen.
func (s Summary) ComparableKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s|%s|%d|%d", s.StrategyID, s.ProfitPct, s.League, s.Home, s.HomeScore, s.AwayScore)
	for _, sel := range s.Selections {
		fmt.Fprintf(&b, "|%s,%s,%s,%s,%v,%v,%t", sel.Label, sel.Subtype, sel.Half, sel.Bookie, sel.Stake, sel.RawOdds, sel.Lay)
	}
	return b.String()
}

// Summarize renders o for display. Sporttery prices are effective prices with
// the rebate already folded in; everything else is raw.
func (o Opportunity) Summarize(reg *BookieRegistry) Summary {
	sels := make([]SelectionSummary, len(o.Selections))
	for i, s := range o.Selections {
		name := reg.Name(s.Bookie)
		cn := reg.NameCN(s.Bookie)
		if cn == "" {
			cn = name
		}
		comm := reg.Commission(s.Bookie)
		raw, eff := s.Price, EffectiveOdds(s.Price, comm)
		if s.Bookie == SportteryID {
			raw, eff = RawOddsFromEffective(s.Price, reg.SportteryRebate()), s.Price
		}
		sels[i] = SelectionSummary{
			Label:         s.Label(),
			Subtype:       s.Subtype(),
			Half:          s.Half,
			Bookie:        name,
			BookieCN:      cn,
			Stake:         s.Stake,
			RawOdds:       raw,
			EffectiveOdds: eff,
			CommissionPct: decimal.NewFromFloat(comm).Shift(2).String() + " %",
			Lay:           s.Lay,
		}
	}
	return Summary{
		StrategyID:   o.StrategyID,
		ProfitPct:    decimal.NewFromFloat(o.Profit).Shift(2).String() + " %",
		OccurredAtHK: o.OccurredAtHK(),
		League:       o.Match.LeagueName,
		LeagueCN:     o.Match.LeagueNameSimp,
		Home:         o.Match.HomeTeamName,
		HomeCN:       o.Match.HomeTeamNameSimp,
		HomeScore:    o.Match.HomeScore,
		AwayScore:    o.Match.AwayScore,
		Away:         o.Match.AwayTeamName,
		AwayCN:       o.Match.AwayTeamNameSimp,
		Selections:   sels,
	}
}

// EffectiveOdds folds a commission into a raw price, rounded to 3 places.
func EffectiveOdds(raw, commission float64) float64 {
	return decimal.NewFromFloat(raw * (1 + commission)).Round(3).InexactFloat64()
}

// RawOddsFromEffective removes a rebate from an effective price, rounded to 2 places.
func RawOddsFromEffective(effective, rebate float64) float64 {
	return decimal.NewFromFloat((effective-1)*(1-rebate) + 1).Round(2).InexactFloat64()
}
