package strategy

import (
	"math"
	"sort"

	"github.com/alanyoungcy/arbdiscovery/internal/arbitrage"
	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/goalmodel"
)

// CrossThreshold is the minimum profit for model-derived opportunities.
const CrossThreshold = 0.005

// CrossHandicap compares quotes on different lines of the same market by
// mapping them onto a reference line through a Poisson goal model. It runs
// on pre-match odds only.
type CrossHandicap struct {
	cfg Config
}

// NewCrossHandicap creates the cross-line detector. The configured threshold
// is ignored in favour of CrossThreshold.
func NewCrossHandicap(cfg Config) *CrossHandicap { return &CrossHandicap{cfg: cfg} }

func (s *CrossHandicap) ID() domain.StrategyID { return domain.StrategyCrossHandicap }
func (s *CrossHandicap) Name() string          { return "cross_handicap" }

// Spot implements Strategy.
func (s *CrossHandicap) Spot(view domain.MatchView, avail domain.Availability) []domain.Candidate {
	if view.Running() {
		return nil
	}
	p := newPeriod(view, avail)
	keep := func(id domain.BookieID) bool { return p.allows(id) && !id.IsLay() }
	var out []domain.Candidate
	for _, half := range bothHalves {
		total, c, ok := s.spotTotals(view.Odds, half, keep)
		if ok {
			out = append(out, c)
		}
		if total <= 0 {
			continue
		}
		if c, ok := s.spotHandicap(view.Odds, half, total, keep); ok {
			out = append(out, c)
		}
	}
	return out
}

// refLine is the middle quoted line, or false with fewer than two lines.
func refLine(odds domain.Odds, key domain.MarketKey) ([]float64, float64, bool) {
	lines := odds.Lines(key)
	if len(lines) < 2 {
		return nil, 0, false
	}
	sort.Float64s(lines)
	return lines, lines[len(lines)/2], true
}

// spotTotals returns the fitted expected total for the half along with the
// best over/under candidate, if any.
func (s *CrossHandicap) spotTotals(odds domain.Odds, half domain.Half, keep func(domain.BookieID) bool) (float64, domain.Candidate, bool) {
	key := domain.MarketKey{Half: half, Market: domain.MarketOU}
	lines, ref, ok := refLine(odds, key)
	if !ok {
		return 0, domain.Candidate{}, false
	}
	q, _ := odds.Quotes(key, ref)
	over, _, ok := topPrices(q, keep)
	if !ok {
		return 0, domain.Candidate{}, false
	}
	total, err := goalmodel.FitTotal(domain.SideOver, ref, over.Price)
	if err != nil {
		return 0, domain.Candidate{}, false
	}
	model := goalmodel.New(total, 0)

	var (
		best     arbitrage.Quote
		bestLine float64
		bestEq   float64
	)
	for _, l := range lines {
		if l == ref {
			continue
		}
		lq, _ := odds.Quotes(key, l)
		_, under, ok := topPrices(lq, keep)
		if !ok || domain.SameIdentity(under.Bookie, over.Bookie) {
			continue
		}
		if under.Price <= model.OUPrice(domain.SideUnder, l) {
			continue
		}
		t2, err := goalmodel.FitTotal(domain.SideUnder, l, under.Price)
		if err != nil {
			continue
		}
		eq := goalmodel.New(t2, 0).OUPrice(domain.SideUnder, ref)
		if math.IsInf(eq, 0) || eq <= bestEq {
			continue
		}
		best, bestLine, bestEq = under, l, eq
	}
	if bestEq == 0 {
		return total, domain.Candidate{}, false
	}
	split, ok := arbitrage.CalcStakes2(over.Price, bestEq, s.cfg.commission(over.Bookie), s.cfg.commission(best.Bookie), CrossThreshold)
	if !ok {
		return total, domain.Candidate{}, false
	}
	return total, domain.Candidate{
		Profit: split.Profit,
		Selections: []domain.Selection{
			{Market: domain.MarketOU, Side: domain.SideOver, Line: ref, Half: half, Bookie: over.Bookie, Stake: split.Stake1, Price: over.Price, Receipt: over.Receipt},
			{Market: domain.MarketOU, Side: domain.SideUnder, Line: bestLine, Half: half, Bookie: best.Bookie, Stake: split.Stake2, Price: best.Price, Receipt: best.Receipt},
		},
	}, true
}

// spotHandicap backs the favoured side at the reference line and looks for
// the other side on any line that beats the model.
func (s *CrossHandicap) spotHandicap(odds domain.Odds, half domain.Half, total float64, keep func(domain.BookieID) bool) (domain.Candidate, bool) {
	key := domain.MarketKey{Half: half, Market: domain.MarketAH}
	lines, ref, ok := refLine(odds, key)
	if !ok {
		return domain.Candidate{}, false
	}
	q, _ := odds.Quotes(key, ref)
	home, away, ok := topPrices(q, keep)
	if !ok {
		return domain.Candidate{}, false
	}

	// back is the side taken at ref, other the side taken at the other line.
	back, backSide, backLine := home, domain.SideHome, ref
	otherSide, otherIdx := domain.SideAway, 1
	if ref > 0 {
		back, backSide, backLine = away, domain.SideAway, -ref
		otherSide, otherIdx = domain.SideHome, 0
	}
	sup, err := goalmodel.FitSupremacy(total, backSide, backLine, back.Price)
	if err != nil {
		return domain.Candidate{}, false
	}
	model := goalmodel.New(total, sup)

	var (
		best      arbitrage.Quote
		bestLine  float64
		bestEq    float64
		otherLine = func(l float64) float64 {
			if otherSide == domain.SideAway {
				return -l
			}
			return l
		}
	)
	for _, l := range lines {
		if l == ref {
			continue
		}
		lq, _ := odds.Quotes(key, l)
		quotes := pick(lq, otherIdx, keep)
		if len(quotes) == 0 || domain.SameIdentity(quotes[0].Bookie, back.Bookie) {
			continue
		}
		o := quotes[0]
		if o.Price <= model.AHPrice(otherSide, otherLine(l)) {
			continue
		}
		sup2, err := goalmodel.FitSupremacy(total, otherSide, otherLine(l), o.Price)
		if err != nil {
			continue
		}
		eq := goalmodel.New(total, sup2).AHPrice(otherSide, otherLine(ref))
		if math.IsInf(eq, 0) || eq <= bestEq {
			continue
		}
		best, bestLine, bestEq = o, l, eq
	}
	if bestEq == 0 {
		return domain.Candidate{}, false
	}
	split, ok := arbitrage.CalcStakes2(back.Price, bestEq, s.cfg.commission(back.Bookie), s.cfg.commission(best.Bookie), CrossThreshold)
	if !ok {
		return domain.Candidate{}, false
	}
	backLeg := domain.Selection{Market: domain.MarketAH, Side: backSide, Line: backLine, Half: half, Bookie: back.Bookie, Stake: split.Stake1, Price: back.Price, Receipt: back.Receipt}
	otherLeg := domain.Selection{Market: domain.MarketAH, Side: otherSide, Line: otherLine(bestLine), Half: half, Bookie: best.Bookie, Stake: split.Stake2, Price: best.Price, Receipt: best.Receipt}
	sels := []domain.Selection{backLeg, otherLeg}
	if backSide == domain.SideAway {
		sels = []domain.Selection{otherLeg, backLeg}
	}
	return domain.Candidate{Profit: split.Profit, Selections: sels}, true
}
