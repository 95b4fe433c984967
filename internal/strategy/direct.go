package strategy

import (
	"sort"

	"github.com/alanyoungcy/arbdiscovery/internal/arbitrage"
	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Direct pairs opposite sides of the same market and line across bookmakers.
// Exchange back prices compete with their own converted lay prices for each
// position.
type Direct struct {
	cfg Config
}

// NewDirect creates the direct detector.
func NewDirect(cfg Config) *Direct { return &Direct{cfg: cfg} }

func (d *Direct) ID() domain.StrategyID { return domain.StrategyDirect }
func (d *Direct) Name() string          { return "direct" }

// Spot implements Strategy.
func (d *Direct) Spot(view domain.MatchView, avail domain.Availability) []domain.Candidate {
	p := newPeriod(view, avail)
	var out []domain.Candidate
	for _, key := range marketKeys(view.Odds) {
		switch key.Market {
		case domain.MarketAH, domain.MarketOU:
			out = append(out, d.twoWay(view, key, p)...)
		case domain.Market1x2:
			out = append(out, d.backVsLay(view, key, p)...)
		case domain.Market1or2:
			out = append(out, d.winLose(view, key, p)...)
		}
	}
	return out
}

func marketKeys(o domain.Odds) []domain.MarketKey {
	keys := make([]domain.MarketKey, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Half != keys[j].Half {
			return keys[i].Half < keys[j].Half
		}
		return keys[i].Market < keys[j].Market
	})
	return keys
}

// byPosition lists home and away prices best first. Lay quotes are converted
// and swapped into the position they hedge, and each exchange contributes
// only the better of back and lay per position.
func (d *Direct) byPosition(q domain.BookieQuotes, p period) (home, away []arbitrage.Quote) {
	pairs := make(map[domain.BookieID]*arbitrage.BackLayPair)
	for _, id := range sortedBookies(q) {
		e := q[id]
		if !p.allows(id) || len(e.Prices) < 2 || e.Prices[0] == 0 || e.Prices[1] == 0 {
			continue
		}
		if !d.cfg.Registry.HasLay(id) {
			home = append(home, arbitrage.Quote{Bookie: id, Price: e.Prices[0], Receipt: e.Receipt})
			away = append(away, arbitrage.Quote{Bookie: id, Price: e.Prices[1], Receipt: e.Receipt})
			continue
		}
		if id.IsLay() && (!arbitrage.Convertible(e.Prices[0]) || !arbitrage.Convertible(e.Prices[1])) {
			continue
		}
		pair, ok := pairs[id.Base()]
		if !ok {
			pair = &arbitrage.BackLayPair{ID: id.Base()}
			pairs[id.Base()] = pair
		}
		if id.IsLay() {
			pair.Lay = []float64{
				arbitrage.ConvertBackLay(e.Prices[1], false),
				arbitrage.ConvertBackLay(e.Prices[0], false),
			}
			pair.LayReceipt = e.Receipt
		} else {
			pair.Back = []float64{e.Prices[0], e.Prices[1]}
			pair.BackReceipt = e.Receipt
		}
	}
	bases := make([]domain.BookieID, 0, len(pairs))
	for id := range pairs {
		bases = append(bases, id)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
	for _, id := range bases {
		h, a := pairs[id].Better()
		home = append(home, h)
		away = append(away, a)
	}
	arbitrage.SortDesc(home)
	arbitrage.SortDesc(away)
	return home, away
}

func (d *Direct) twoWay(view domain.MatchView, key domain.MarketKey, p period) []domain.Candidate {
	var out []domain.Candidate
	side1, side2 := sides(key.Market)
	gd := float64(view.GoalDiff())
	for _, line := range view.Odds.Lines(key) {
		q, _ := view.Odds.Quotes(key, line)
		home, away := d.byPosition(q, p)
		for i := 0; i < len(home) && i < len(away); i++ {
			h, a := home[i], away[i]
			if domain.SameIdentity(h.Bookie, a.Bookie) {
				continue
			}
			split, ok := arbitrage.CalcStakes2(h.Price, a.Price, d.cfg.commission(h.Bookie), d.cfg.commission(a.Bookie), d.cfg.Threshold)
			if !ok {
				break
			}
			out = append(out, domain.Candidate{
				Profit: split.Profit,
				Selections: []domain.Selection{
					d.leg(key, line, gd, h, split.Stake1, side1, side2),
					d.leg(key, line, gd, a, split.Stake2, side2, side1),
				},
			})
		}
	}
	return out
}

// leg builds the selection backing side. A lay quote becomes a lay of the
// opposite side at the exchange's own price.
func (d *Direct) leg(key domain.MarketKey, line, gd float64, q arbitrage.Quote, stake float64, side, other domain.Side) domain.Selection {
	if key.Market == domain.MarketAH && d.cfg.Registry.NonTraditionalAH(q.Bookie) {
		line -= gd
	}
	lineFor := func(s domain.Side) float64 {
		if s == domain.SideAway {
			return awayLine(key.Market, line)
		}
		return line
	}
	sel := domain.Selection{
		Market:  key.Market,
		Half:    key.Half,
		Bookie:  q.Bookie,
		Stake:   stake,
		Price:   q.Price,
		Receipt: q.Receipt,
	}
	if q.Bookie.IsLay() {
		sel.Side = other
		sel.Line = lineFor(other)
		sel.Bookie = q.Bookie.Base()
		sel.Price = arbitrage.ConvertBackLay(q.Price, true)
		sel.Lay = true
		return sel
	}
	sel.Side = side
	sel.Line = lineFor(side)
	return sel
}

var threeWaySides = []domain.Side{domain.SideHome, domain.SideDraw, domain.SideAway}

// backVsLay pairs a back price with a converted lay price on the same 1x2
// outcome. Exchanges never contribute back prices here.
func (d *Direct) backVsLay(view domain.MatchView, key domain.MarketKey, p period) []domain.Candidate {
	q, ok := view.Odds.Quotes(key, domain.NoLine)
	if !ok {
		return nil
	}
	backs := make([][]arbitrage.Quote, 3)
	lays := make([][]arbitrage.Quote, 3)
	for _, id := range sortedBookies(q) {
		e := q[id]
		if !p.allows(id) || len(e.Prices) < 3 || e.Prices[0] == 0 || e.Prices[1] == 0 || e.Prices[2] == 0 {
			continue
		}
		switch {
		case id.IsLay():
			if !arbitrage.Convertible(e.Prices[0]) || !arbitrage.Convertible(e.Prices[1]) || !arbitrage.Convertible(e.Prices[2]) {
				continue
			}
			for i := range lays {
				lays[i] = append(lays[i], arbitrage.Quote{Bookie: id, Price: arbitrage.ConvertBackLay(e.Prices[i], false), Receipt: e.Receipt})
			}
		case d.cfg.Registry.HasLay(id):
			// the exchange could be on the lay side of the same pair
		default:
			for i := range backs {
				backs[i] = append(backs[i], arbitrage.Quote{Bookie: id, Price: e.Prices[i], Receipt: e.Receipt})
			}
		}
	}
	for i := range lays {
		if len(lays[i]) == 0 {
			return nil
		}
		arbitrage.SortDesc(lays[i])
		arbitrage.SortDesc(backs[i])
	}

	var out []domain.Candidate
	for i, side := range threeWaySides {
		for j := 0; j < len(backs[i]) && j < len(lays[i]); j++ {
			b, l := backs[i][j], lays[i][j]
			split, ok := arbitrage.CalcStakes2(b.Price, l.Price, d.cfg.commission(b.Bookie), d.cfg.commission(l.Bookie), d.cfg.Threshold)
			if !ok {
				continue
			}
			out = append(out, domain.Candidate{
				Profit: split.Profit,
				Selections: []domain.Selection{
					{Market: key.Market, Side: side, Half: key.Half, Bookie: b.Bookie, Stake: split.Stake1, Price: b.Price, Receipt: b.Receipt},
					{Market: key.Market, Side: side, Half: key.Half, Bookie: l.Bookie.Base(), Stake: split.Stake2,
						Price: arbitrage.ConvertBackLay(l.Price, true), Receipt: l.Receipt, Lay: true},
				},
			})
		}
	}
	return out
}

// winLose is the two-way case of the win/draw/lose market, with no draw.
func (d *Direct) winLose(view domain.MatchView, key domain.MarketKey, p period) []domain.Candidate {
	q, ok := view.Odds.Quotes(key, domain.NoLine)
	if !ok {
		return nil
	}
	var home, away []arbitrage.Quote
	for _, id := range sortedBookies(q) {
		e := q[id]
		if !p.allows(id) || id.IsLay() || len(e.Prices) < 2 || e.Prices[0] == 0 || e.Prices[1] == 0 {
			continue
		}
		home = append(home, arbitrage.Quote{Bookie: id, Price: e.Prices[0], Receipt: e.Receipt})
		away = append(away, arbitrage.Quote{Bookie: id, Price: e.Prices[1], Receipt: e.Receipt})
	}
	arbitrage.SortDesc(home)
	arbitrage.SortDesc(away)

	var out []domain.Candidate
	for i := 0; i < len(home) && i < len(away); i++ {
		h, a := home[i], away[i]
		if domain.SameIdentity(h.Bookie, a.Bookie) {
			continue
		}
		split, ok := arbitrage.CalcStakes2(h.Price, a.Price, d.cfg.commission(h.Bookie), d.cfg.commission(a.Bookie), d.cfg.Threshold)
		if !ok {
			break
		}
		out = append(out, domain.Candidate{
			Profit: split.Profit,
			Selections: []domain.Selection{
				{Market: key.Market, Side: domain.SideHome, Half: key.Half, Bookie: h.Bookie, Stake: split.Stake1, Price: h.Price, Receipt: h.Receipt},
				{Market: key.Market, Side: domain.SideAway, Half: key.Half, Bookie: a.Bookie, Stake: split.Stake2, Price: a.Price, Receipt: a.Receipt},
			},
		})
	}
	return out
}
