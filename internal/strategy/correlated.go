package strategy

import (
	"github.com/alanyoungcy/arbdiscovery/internal/arbitrage"
	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// orientation says which side of the handicap is backed. The normal form
// backs the home handicap against the away result; reversed mirrors it.
type orientation struct {
	ahIdx   int
	xIdx    int
	layIdx  int
	ahSide  domain.Side
	laySide domain.Side
	xSide   domain.Side
	sign    float64
}

var (
	normal = orientation{
		ahIdx: 0, xIdx: 2, layIdx: 0,
		ahSide: domain.SideHome, laySide: domain.SideHome, xSide: domain.SideAway,
		sign: 1,
	}
	reversed = orientation{
		ahIdx: 1, xIdx: 0, layIdx: 2,
		ahSide: domain.SideAway, laySide: domain.SideAway, xSide: domain.SideHome,
		sign: -1,
	}
)

var bothHalves = []domain.Half{domain.HalfFT, domain.HalfHT}

// traditionalAH keeps back quotes whose handicap counts the live score.
func traditionalAH(cfg Config, p period) func(domain.BookieID) bool {
	return func(id domain.BookieID) bool {
		return p.allows(id) && !id.IsLay() && !cfg.Registry.NonTraditionalAH(id)
	}
}

// AHvs2 backs a half-goal handicap that loses only on one result against that
// result in the 1x2 market.
type AHvs2 struct {
	cfg Config
}

// NewAHvs2 creates the handicap-versus-result detector.
func NewAHvs2(cfg Config) *AHvs2 { return &AHvs2{cfg: cfg} }

func (s *AHvs2) ID() domain.StrategyID { return domain.StrategyAHvs2 }
func (s *AHvs2) Name() string          { return "ah_vs_2" }

// Spot implements Strategy.
func (s *AHvs2) Spot(view domain.MatchView, avail domain.Availability) []domain.Candidate {
	p := newPeriod(view, avail)
	home, away := view.Info.HomeScore, view.Info.AwayScore
	gd := float64(home - away)
	switch {
	case home == away:
		return append(s.spot(view.Odds, 0.5, normal, p), s.spot(view.Odds, -0.5, reversed, p)...)
	case home > away:
		return s.spot(view.Odds, gd+0.5, normal, p)
	default:
		return s.spot(view.Odds, gd-0.5, reversed, p)
	}
}

func (s *AHvs2) spot(odds domain.Odds, line float64, o orientation, p period) []domain.Candidate {
	keep := traditionalAH(s.cfg, p)
	var out []domain.Candidate
	for _, half := range bothHalves {
		ahQ, ok1 := odds.Quotes(domain.MarketKey{Half: half, Market: domain.MarketAH}, line)
		xQ, ok2 := odds.Quotes(domain.MarketKey{Half: half, Market: domain.Market1x2}, domain.NoLine)
		if !ok1 || !ok2 {
			continue
		}
		ahs := pick(ahQ, o.ahIdx, keep)
		xs := pick(xQ, o.xIdx, keep)
		for i := 0; i < len(ahs) && i < len(xs); i++ {
			ah, x := ahs[i], xs[i]
			if domain.SameIdentity(ah.Bookie, x.Bookie) {
				continue
			}
			split, ok := arbitrage.CalcStakes2(ah.Price, x.Price, 0, 0, s.cfg.Threshold)
			if !ok {
				break
			}
			out = append(out, domain.Candidate{
				Profit: split.Profit,
				Selections: []domain.Selection{
					{Market: domain.MarketAH, Side: o.ahSide, Line: line * o.sign, Half: half, Bookie: ah.Bookie, Stake: split.Stake1, Price: ah.Price, Receipt: ah.Receipt},
					{Market: domain.Market1x2, Side: o.xSide, Half: half, Bookie: x.Bookie, Stake: split.Stake2, Price: x.Price, Receipt: x.Receipt},
				},
			})
		}
	}
	return out
}

// AHvsXvs2 covers a half-goal handicap with the draw and the opposite result,
// or, at level scores, with a lay of the handicap side's win.
type AHvsXvs2 struct {
	cfg Config
}

// NewAHvsXvs2 creates the handicap-draw-result detector.
func NewAHvsXvs2(cfg Config) *AHvsXvs2 { return &AHvsXvs2{cfg: cfg} }

func (s *AHvsXvs2) ID() domain.StrategyID { return domain.StrategyAHvsXvs2 }
func (s *AHvsXvs2) Name() string          { return "ah_vs_x_vs_2" }

// Spot implements Strategy.
func (s *AHvsXvs2) Spot(view domain.MatchView, avail domain.Availability) []domain.Candidate {
	p := newPeriod(view, avail)
	home, away := view.Info.HomeScore, view.Info.AwayScore
	gd := float64(home - away)
	switch {
	case home == away:
		return append(s.spot(view.Odds, -0.5, normal, p, true), s.spot(view.Odds, 0.5, reversed, p, true)...)
	case home < away:
		return s.spot(view.Odds, gd-0.5, normal, p, false)
	default:
		return s.spot(view.Odds, gd+0.5, reversed, p, false)
	}
}

func (s *AHvsXvs2) spot(odds domain.Odds, line float64, o orientation, p period, level bool) []domain.Candidate {
	var out []domain.Candidate
	back := func(id domain.BookieID) bool { return p.allows(id) && !id.IsLay() }
	for _, half := range bothHalves {
		ahQ, ok1 := odds.Quotes(domain.MarketKey{Half: half, Market: domain.MarketAH}, line)
		xQ, ok2 := odds.Quotes(domain.MarketKey{Half: half, Market: domain.Market1x2}, domain.NoLine)
		if !ok1 || !ok2 {
			continue
		}
		ahs := pick(ahQ, o.ahIdx, traditionalAH(s.cfg, p))
		draws := pick(xQ, 1, back)
		xs := pick(xQ, o.xIdx, back)
		lays := pickLay(xQ, o.layIdx, p.allows)

		if level {
			var found []domain.Candidate
			ahs, found = s.layPairs(ahs, lays, line, half, o)
			if len(found) > 0 {
				// a two-leg hedge dominates the three-leg one
				out = append(out, found...)
				continue
			}
		}

		for i := 0; i < len(ahs) && i < len(draws) && i < len(xs); i++ {
			ah, dr, x := ahs[i], draws[i], xs[i]
			if sharesBookie([]domain.BookieID{ah.Bookie}, []domain.BookieID{dr.Bookie, x.Bookie}) ||
				domain.SameIdentity(dr.Bookie, x.Bookie) {
				continue
			}
			split, ok := arbitrage.CalcStakesN(
				[]float64{ah.Price, dr.Price, x.Price},
				[]float64{s.cfg.commission(ah.Bookie), s.cfg.commission(dr.Bookie), s.cfg.commission(x.Bookie)},
				s.cfg.Threshold,
			)
			if !ok {
				break
			}
			out = append(out, domain.Candidate{
				Profit: split.Profit,
				Selections: []domain.Selection{
					{Market: domain.MarketAH, Side: o.ahSide, Line: line * o.sign, Half: half, Bookie: ah.Bookie, Stake: split.Stakes[0], Price: ah.Price, Receipt: ah.Receipt},
					{Market: domain.Market1x2, Side: domain.SideDraw, Half: half, Bookie: dr.Bookie, Stake: split.Stakes[1], Price: dr.Price, Receipt: dr.Receipt},
					{Market: domain.Market1x2, Side: o.xSide, Half: half, Bookie: x.Bookie, Stake: split.Stakes[2], Price: x.Price, Receipt: x.Receipt},
				},
			})
		}
	}
	return out
}

// layPairs greedily matches each lay price with the best unused handicap
// price. Handicap prices used here are removed from the returned list.
func (s *AHvsXvs2) layPairs(ahs, lays []arbitrage.Quote, line float64, half domain.Half, o orientation) ([]arbitrage.Quote, []domain.Candidate) {
	var out []domain.Candidate
	used := make(map[int]bool)
	for _, l := range lays {
		for ai, ah := range ahs {
			if used[ai] || domain.SameIdentity(ah.Bookie, l.Bookie) {
				continue
			}
			split, ok := arbitrage.CalcStakes2(ah.Price, l.Price, s.cfg.commission(ah.Bookie), s.cfg.commission(l.Bookie), s.cfg.Threshold)
			if !ok {
				break
			}
			out = append(out, domain.Candidate{
				Profit: split.Profit,
				Selections: []domain.Selection{
					{Market: domain.MarketAH, Side: o.ahSide, Line: line * o.sign, Half: half, Bookie: ah.Bookie, Stake: split.Stake1, Price: ah.Price, Receipt: ah.Receipt},
					{Market: domain.Market1x2, Side: o.laySide, Half: half, Bookie: l.Bookie.Base(), Stake: split.Stake2,
						Price: arbitrage.ConvertBackLay(l.Price, true), Receipt: l.Receipt, Lay: true},
				},
			})
			used[ai] = true
			break
		}
	}
	rest := make([]arbitrage.Quote, 0, len(ahs))
	for i, ah := range ahs {
		if !used[i] {
			rest = append(rest, ah)
		}
	}
	return rest, out
}
