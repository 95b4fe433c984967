package strategy

import (
	"sort"

	"github.com/alanyoungcy/arbdiscovery/internal/arbitrage"
	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// wholeLineMin and wholeLineMax bound the whole lines synthesised from their
// quarter neighbours.
const (
	wholeLineMin = -4
	wholeLineMax = 4
)

// DirectCombined prices a whole line from the best back prices on the two
// adjacent quarter lines and pairs that synthetic price against real quotes
// on the whole line.
type DirectCombined struct {
	cfg Config
}

// NewDirectCombined creates the combined-line detector.
func NewDirectCombined(cfg Config) *DirectCombined { return &DirectCombined{cfg: cfg} }

func (c *DirectCombined) ID() domain.StrategyID { return domain.StrategyDirectCombined }
func (c *DirectCombined) Name() string          { return "direct_combined" }

// synthetic is one side of a whole line built from two quarter-line bets.
type synthetic struct {
	price      float64
	plus       arbitrage.Quote
	plusShare  float64
	minus      arbitrage.Quote
	minusShare float64
}

func newSynthetic(plus, minus arbitrage.Quote) synthetic {
	sum := plus.Price + minus.Price
	s := synthetic{plus: plus, minus: minus, plusShare: minus.Price / sum, minusShare: plus.Price / sum}
	s.price = s.plusShare * plus.Price * 2
	return s
}

// slot is an entry in a combined price list: a real quote or the synthetic.
type slot struct {
	quote arbitrage.Quote
	syn   *synthetic
}

func (s slot) price() float64 {
	if s.syn != nil {
		return s.syn.price
	}
	return s.quote.Price
}

func (s slot) bookies() []domain.BookieID {
	if s.syn != nil {
		return []domain.BookieID{s.syn.plus.Bookie, s.syn.minus.Bookie}
	}
	return []domain.BookieID{s.quote.Bookie}
}

// Spot implements Strategy.
func (c *DirectCombined) Spot(view domain.MatchView, avail domain.Availability) []domain.Candidate {
	p := newPeriod(view, avail)
	keep := func(id domain.BookieID) bool { return p.allows(id) && !id.IsLay() }

	var out []domain.Candidate
	for _, half := range []domain.Half{domain.HalfFT, domain.HalfHT} {
		for _, market := range []domain.Market{domain.MarketAH, domain.MarketOU} {
			key := domain.MarketKey{Half: half, Market: market}
			if len(view.Odds[key]) <= 2 {
				continue
			}
			for i := wholeLineMin; i <= wholeLineMax; i++ {
				out = append(out, c.spotLine(view.Odds, key, float64(i), keep)...)
			}
		}
	}
	return out
}

func (c *DirectCombined) spotLine(odds domain.Odds, key domain.MarketKey, line float64, keep func(domain.BookieID) bool) []domain.Candidate {
	whole, ok := odds.Quotes(key, line)
	if !ok {
		return nil
	}
	plusQ, ok1 := odds.Quotes(key, line+0.25)
	minusQ, ok2 := odds.Quotes(key, line-0.25)
	if !ok1 || !ok2 {
		return nil
	}
	plusHome, plusAway, ok1 := topPrices(plusQ, keep)
	minusHome, minusAway, ok2 := topPrices(minusQ, keep)
	if !ok1 || !ok2 {
		return nil
	}
	homeSyn := newSynthetic(plusHome, minusHome)
	awaySyn := newSynthetic(plusAway, minusAway)

	homes := []slot{{syn: &homeSyn}}
	aways := []slot{{syn: &awaySyn}}
	for _, id := range sortedBookies(whole) {
		e := whole[id]
		if !keep(id) || len(e.Prices) < 2 || e.Prices[0] == 0 || e.Prices[1] == 0 {
			continue
		}
		homes = append(homes, slot{quote: arbitrage.Quote{Bookie: id, Price: e.Prices[0], Receipt: e.Receipt}})
		aways = append(aways, slot{quote: arbitrage.Quote{Bookie: id, Price: e.Prices[1], Receipt: e.Receipt}})
	}
	sortSlots(homes)
	sortSlots(aways)

	side1, side2 := sides(key.Market)
	var out []domain.Candidate
	for i := 0; i < len(homes) && i < len(aways); i++ {
		h, a := homes[i], aways[i]
		if sharesBookie(h.bookies(), a.bookies()) {
			continue
		}
		split, ok := arbitrage.CalcStakes2(h.price(), a.price(), c.slotCommission(h), c.slotCommission(a), c.cfg.Threshold)
		if !ok || (h.syn == nil && a.syn == nil) {
			break
		}
		var sels []domain.Selection
		if h.syn != nil {
			sels = append(sels, c.quarterLegs(key, line, side1, *h.syn, split.Stake1)...)
		} else {
			sels = append(sels, c.wholeLeg(key, line, side1, h.quote, split.Stake1))
		}
		if a.syn != nil {
			sels = append(sels, c.quarterLegs(key, line, side2, *a.syn, split.Stake2)...)
		} else {
			sels = append(sels, c.wholeLeg(key, line, side2, a.quote, split.Stake2))
		}
		out = append(out, domain.Candidate{Profit: split.Profit, Selections: sels})
	}
	return out
}

// slotCommission charges a synthetic the larger commission of its two legs.
func (c *DirectCombined) slotCommission(s slot) float64 {
	if s.syn == nil {
		return c.cfg.commission(s.quote.Bookie)
	}
	return max(c.cfg.commission(s.syn.plus.Bookie), c.cfg.commission(s.syn.minus.Bookie))
}

func (c *DirectCombined) lineFor(m domain.Market, side domain.Side, line float64) float64 {
	if side == domain.SideAway {
		return awayLine(m, line)
	}
	return line
}

func (c *DirectCombined) quarterLegs(key domain.MarketKey, line float64, side domain.Side, s synthetic, stake float64) []domain.Selection {
	return []domain.Selection{
		{
			Market: key.Market, Side: side, Line: c.lineFor(key.Market, side, line+0.25), Half: key.Half,
			Bookie: s.plus.Bookie, Stake: arbitrage.Round(stake*s.plusShare, 2), Price: s.plus.Price, Receipt: s.plus.Receipt,
		},
		{
			Market: key.Market, Side: side, Line: c.lineFor(key.Market, side, line-0.25), Half: key.Half,
			Bookie: s.minus.Bookie, Stake: arbitrage.Round(stake*s.minusShare, 2), Price: s.minus.Price, Receipt: s.minus.Receipt,
		},
	}
}

func (c *DirectCombined) wholeLeg(key domain.MarketKey, line float64, side domain.Side, q arbitrage.Quote, stake float64) domain.Selection {
	return domain.Selection{
		Market: key.Market, Side: side, Line: c.lineFor(key.Market, side, line), Half: key.Half,
		Bookie: q.Bookie, Stake: stake, Price: q.Price, Receipt: q.Receipt,
	}
}

// sortSlots orders best price first; the synthetic stays ahead on ties.
func sortSlots(s []slot) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].price() > s[j].price() })
}

func sharesBookie(a, b []domain.BookieID) bool {
	for _, x := range a {
		for _, y := range b {
			if domain.SameIdentity(x, y) {
				return true
			}
		}
	}
	return false
}
