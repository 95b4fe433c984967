package strategy

import (
	"sort"

	"github.com/alanyoungcy/arbdiscovery/internal/arbitrage"
	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// period is the availability filter for one match.
type period struct {
	avail   domain.Availability
	running bool
}

func newPeriod(view domain.MatchView, avail domain.Availability) period {
	return period{avail: avail, running: view.Running()}
}

func (p period) allows(id domain.BookieID) bool { return p.avail.Allows(id, p.running) }

// sortedBookies iterates quotes in a stable order.
func sortedBookies(q domain.BookieQuotes) []domain.BookieID {
	ids := make([]domain.BookieID, 0, len(q))
	for id := range q {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// pick collects the price at idx from each quote accepted by keep, skipping
// empty prices, best first.
func pick(q domain.BookieQuotes, idx int, keep func(domain.BookieID) bool) []arbitrage.Quote {
	var out []arbitrage.Quote
	for _, id := range sortedBookies(q) {
		if !keep(id) {
			continue
		}
		e := q[id]
		if idx >= len(e.Prices) || e.Prices[idx] == 0 {
			continue
		}
		out = append(out, arbitrage.Quote{Bookie: id, Price: e.Prices[idx], Receipt: e.Receipt})
	}
	arbitrage.SortDesc(out)
	return out
}

// pickLay is pick for lay identities with prices converted to back terms.
func pickLay(q domain.BookieQuotes, idx int, keep func(domain.BookieID) bool) []arbitrage.Quote {
	raw := pick(q, idx, func(id domain.BookieID) bool { return id.IsLay() && keep(id) })
	out := raw[:0]
	for _, l := range raw {
		if !arbitrage.Convertible(l.Price) {
			continue
		}
		l.Price = arbitrage.ConvertBackLay(l.Price, false)
		out = append(out, l)
	}
	arbitrage.SortDesc(out)
	return out
}

// topPrices returns the best home and away back quote on a two-way line.
func topPrices(q domain.BookieQuotes, keep func(domain.BookieID) bool) (home, away arbitrage.Quote, ok bool) {
	for _, id := range sortedBookies(q) {
		if !keep(id) {
			continue
		}
		e := q[id]
		if len(e.Prices) < 2 {
			continue
		}
		if e.Prices[0] > home.Price {
			home = arbitrage.Quote{Bookie: id, Price: e.Prices[0], Receipt: e.Receipt}
		}
		if e.Prices[1] > away.Price {
			away = arbitrage.Quote{Bookie: id, Price: e.Prices[1], Receipt: e.Receipt}
		}
	}
	return home, away, home.Bookie != "" && away.Bookie != ""
}

func allSame(ids ...domain.BookieID) bool {
	for _, id := range ids[1:] {
		if id != ids[0] {
			return false
		}
	}
	return true
}

func oppositeSide(s domain.Side) domain.Side {
	switch s {
	case domain.SideHome:
		return domain.SideAway
	case domain.SideAway:
		return domain.SideHome
	case domain.SideOver:
		return domain.SideUnder
	case domain.SideUnder:
		return domain.SideOver
	}
	return s
}

// sides returns the first and second outcome of a two-way lined market.
func sides(m domain.Market) (domain.Side, domain.Side) {
	if m == domain.MarketOU {
		return domain.SideOver, domain.SideUnder
	}
	return domain.SideHome, domain.SideAway
}

// awayLine is the second side's own line: negated for handicaps, shared for totals.
func awayLine(m domain.Market, line float64) float64 {
	if m == domain.MarketAH {
		return -line
	}
	return line
}
