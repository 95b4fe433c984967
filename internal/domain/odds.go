package domain

import (
	"sort"
	"time"
)

// Half is the period an odds market settles on.
type Half string

const (
	HalfFT Half = "FT"
	HalfHT Half = "HT"
)

// Market is the odds type.
type Market string

const (
	Market1x2  Market = "1x2"
	MarketAH   Market = "AH"
	MarketOU   Market = "OU"
	MarketEH   Market = "EH"
	Market1or2 Market = "1or2"
)

// HasLine reports whether the market is indexed by a handicap or total line.
func (m Market) HasLine() bool { return m == MarketAH || m == MarketOU || m == MarketEH }

// Outcomes is the number of prices quoted per entry.
func (m Market) Outcomes() int {
	if m == Market1x2 || m == MarketEH {
		return 3
	}
	return 2
}

// NoLine is the line key used by markets without a handicap.
const NoLine = -999.0

// MarketKey groups odds by half and market.
type MarketKey struct {
	Half   Half
	Market Market
}

// PriceEntry is one bookmaker's quote on one line.
type PriceEntry struct {
	Prices      []float64 `json:"prices"`
	Receipt     string    `json:"receipt"`
	LastUpdated time.Time `json:"last_updated"`
}

// BookieQuotes maps bookmaker to its latest quote on a line.
type BookieQuotes map[BookieID]PriceEntry

// LineBook maps handicap line to quotes.
type LineBook map[float64]BookieQuotes

// Odds is the per-match nested odds map.
type Odds map[MarketKey]LineBook

// Set deep-merges one quote without touching sibling lines or bookies.
func (o Odds) Set(key MarketKey, line float64, bookie BookieID, e PriceEntry) {
	book, ok := o[key]
	if !ok {
		book = make(LineBook)
		o[key] = book
	}
	quotes, ok := book[line]
	if !ok {
		quotes = make(BookieQuotes)
		book[line] = quotes
	}
	quotes[bookie] = e
}

// Quotes returns the quotes on one line.
func (o Odds) Quotes(key MarketKey, line float64) (BookieQuotes, bool) {
	book, ok := o[key]
	if !ok {
		return nil, false
	}
	q, ok := book[line]
	return q, ok
}

// Lines returns the lines quoted for key in ascending order.
func (o Odds) Lines(key MarketKey) []float64 {
	book := o[key]
	lines := make([]float64, 0, len(book))
	for l := range book {
		lines = append(lines, l)
	}
	sort.Float64s(lines)
	return lines
}

// Len counts individual bookmaker quotes.
func (o Odds) Len() int {
	n := 0
	for _, book := range o {
		for _, q := range book {
			n += len(q)
		}
	}
	return n
}

// Clear drops every quote.
func (o Odds) Clear() {
	for k := range o {
		delete(o, k)
	}
}

// ExpireBefore removes quotes last updated before cutoff and returns how many.
func (o Odds) ExpireBefore(cutoff time.Time) int {
	removed := 0
	for _, book := range o {
		for _, quotes := range book {
			for id, e := range quotes {
				if e.LastUpdated.Before(cutoff) {
					delete(quotes, id)
					removed++
				}
			}
		}
	}
	return removed
}

// Clone deep-copies the map so a snapshot can outlive later mutation.
func (o Odds) Clone() Odds {
	out := make(Odds, len(o))
	for k, book := range o {
		nb := make(LineBook, len(book))
		for line, quotes := range book {
			nq := make(BookieQuotes, len(quotes))
			for id, e := range quotes {
				e.Prices = append([]float64(nil), e.Prices...)
				nq[id] = e
			}
			nb[line] = nq
		}
		out[k] = nb
	}
	return out
}
