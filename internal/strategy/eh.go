package strategy

import (
	"github.com/alanyoungcy/arbdiscovery/internal/arbitrage"
	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// ehPair links a whole-goal European handicap with the half-goal Asian line
// that covers the remaining results.
type ehPair struct {
	eh, ah float64
}

type ehOrientation struct {
	pairs    []ehPair
	ehIdx    int
	ehLayIdx int
	ahIdx    int
	reversed bool
}

var (
	ehNormal = ehOrientation{
		pairs: []ehPair{{-1, -0.5}, {-2, -1.5}, {-3, -2.5}},
		ehIdx: 0, ehLayIdx: 2, ahIdx: 1,
	}
	ehReversed = ehOrientation{
		pairs: []ehPair{{1, 0.5}, {2, 1.5}, {3, 2.5}},
		ehIdx: 2, ehLayIdx: 0, ahIdx: 0,
		reversed: true,
	}
)

// EHvsEHXvsAH covers a European handicap win and draw with the opposite Asian
// handicap, or pairs a European handicap lay with the Asian line directly.
// Only full-time markets at level scores are considered.
type EHvsEHXvsAH struct {
	cfg Config
}

// NewEHvsEHXvsAH creates the European handicap detector.
func NewEHvsEHXvsAH(cfg Config) *EHvsEHXvsAH { return &EHvsEHXvsAH{cfg: cfg} }

func (s *EHvsEHXvsAH) ID() domain.StrategyID { return domain.StrategyEHvsEHXvsAH }
func (s *EHvsEHXvsAH) Name() string          { return "eh_vs_ehx_vs_ah" }

// Spot implements Strategy.
func (s *EHvsEHXvsAH) Spot(view domain.MatchView, avail domain.Availability) []domain.Candidate {
	if view.GoalDiff() != 0 {
		return nil
	}
	p := newPeriod(view, avail)
	var out []domain.Candidate
	for _, o := range []ehOrientation{ehNormal, ehReversed} {
		for _, pair := range o.pairs {
			out = append(out, s.spot(view.Odds, pair, o, p)...)
		}
	}
	return out
}

func (s *EHvsEHXvsAH) spot(odds domain.Odds, pair ehPair, o ehOrientation, p period) []domain.Candidate {
	ehQ, ok1 := odds.Quotes(domain.MarketKey{Half: domain.HalfFT, Market: domain.MarketEH}, pair.eh)
	ahQ, ok2 := odds.Quotes(domain.MarketKey{Half: domain.HalfFT, Market: domain.MarketAH}, pair.ah)
	if !ok1 || !ok2 {
		return nil
	}
	ahs := pick(ahQ, o.ahIdx, traditionalAH(s.cfg, p))
	backEH := func(id domain.BookieID) bool {
		e := ehQ[id]
		return p.allows(id) && !id.IsLay() && len(e.Prices) == 3 && e.Prices[1] != 0 && e.Prices[o.ehIdx] != 0
	}
	ehs := pick(ehQ, o.ehIdx, backEH)
	draws := pick(ehQ, 1, backEH)
	lays := pickLay(ehQ, o.ehLayIdx, p.allows)

	if found := s.layPairs(lays, ahs, pair, o); len(found) > 0 {
		return found
	}

	var out []domain.Candidate
	for i := 0; i < len(ehs) && i < len(draws) && i < len(ahs); i++ {
		eh, dr, ah := ehs[i], draws[i], ahs[i]
		if sharesBookie([]domain.BookieID{ah.Bookie}, []domain.BookieID{eh.Bookie, dr.Bookie}) ||
			domain.SameIdentity(eh.Bookie, dr.Bookie) {
			continue
		}
		ehLeg := domain.Selection{Market: domain.MarketEH, Half: domain.HalfFT, Bookie: eh.Bookie, Price: eh.Price, Receipt: eh.Receipt}
		drawLeg := domain.Selection{Market: domain.MarketEH, Side: domain.SideDraw, Line: pair.eh, Half: domain.HalfFT, Bookie: dr.Bookie, Price: dr.Price, Receipt: dr.Receipt}
		ahLeg := domain.Selection{Market: domain.MarketAH, Half: domain.HalfFT, Bookie: ah.Bookie, Price: ah.Price, Receipt: ah.Receipt}

		var (
			legs   []domain.Selection
			prices []float64
		)
		if o.reversed {
			ahLeg.Side, ahLeg.Line = domain.SideHome, pair.ah
			ehLeg.Side, ehLeg.Line = domain.SideAway, -pair.eh
			legs = []domain.Selection{ahLeg, drawLeg, ehLeg}
		} else {
			ehLeg.Side, ehLeg.Line = domain.SideHome, pair.eh
			ahLeg.Side, ahLeg.Line = domain.SideAway, -pair.ah
			legs = []domain.Selection{ehLeg, drawLeg, ahLeg}
		}
		comms := make([]float64, len(legs))
		for j, l := range legs {
			prices = append(prices, l.Price)
			comms[j] = s.cfg.commission(l.Bookie)
		}
		split, ok := arbitrage.CalcStakesN(prices, comms, s.cfg.Threshold)
		if !ok {
			break
		}
		for j := range legs {
			legs[j].Stake = split.Stakes[j]
		}
		out = append(out, domain.Candidate{Profit: split.Profit, Selections: legs})
	}
	return out
}

func (s *EHvsEHXvsAH) layPairs(lays, ahs []arbitrage.Quote, pair ehPair, o ehOrientation) []domain.Candidate {
	var out []domain.Candidate
	for i := 0; i < len(lays) && i < len(ahs); i++ {
		l, ah := lays[i], ahs[i]
		if domain.SameIdentity(l.Bookie, ah.Bookie) {
			continue
		}
		layLeg := domain.Selection{
			Market: domain.MarketEH, Half: domain.HalfFT, Bookie: l.Bookie.Base(),
			Price: arbitrage.ConvertBackLay(l.Price, true), Receipt: l.Receipt, Lay: true,
		}
		ahLeg := domain.Selection{Market: domain.MarketAH, Half: domain.HalfFT, Bookie: ah.Bookie, Price: ah.Price, Receipt: ah.Receipt}
		lc, ac := s.cfg.commission(l.Bookie), s.cfg.commission(ah.Bookie)

		if o.reversed {
			split, ok := arbitrage.CalcStakes2(ah.Price, l.Price, ac, lc, s.cfg.Threshold)
			if !ok {
				break
			}
			ahLeg.Side, ahLeg.Line, ahLeg.Stake = domain.SideHome, pair.ah, split.Stake1
			layLeg.Side, layLeg.Line, layLeg.Stake = domain.SideHome, pair.eh, split.Stake2
			out = append(out, domain.Candidate{Profit: split.Profit, Selections: []domain.Selection{ahLeg, layLeg}})
			continue
		}
		split, ok := arbitrage.CalcStakes2(l.Price, ah.Price, lc, ac, s.cfg.Threshold)
		if !ok {
			break
		}
		layLeg.Side, layLeg.Line, layLeg.Stake = domain.SideAway, -pair.eh, split.Stake1
		ahLeg.Side, ahLeg.Line, ahLeg.Stake = domain.SideAway, -pair.ah, split.Stake2
		out = append(out, domain.Candidate{Profit: split.Profit, Selections: []domain.Selection{layLeg, ahLeg}})
	}
	return out
}
