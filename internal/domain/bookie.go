package domain

import (
	"sort"
	"strings"
)

// BookieID identifies a bookmaker as it appears on the feeds. Exchange lay
// prices live under a synthetic identity "<id> lay".
type BookieID string

// LaySuffix marks the synthetic lay-side identity of an exchange bookmaker.
const LaySuffix = " lay"

// SportteryID is the state lottery bookmaker whose prices carry a rebate.
const SportteryID BookieID = "99"

// IsLay reports whether b is a synthetic lay identity.
func (b BookieID) IsLay() bool { return strings.HasSuffix(string(b), LaySuffix) }

// Base strips the lay suffix so back and lay sides compare as one identity.
func (b BookieID) Base() BookieID { return BookieID(strings.TrimSuffix(string(b), LaySuffix)) }

// Lay returns the lay identity for b.
func (b BookieID) Lay() BookieID {
	if b.IsLay() {
		return b
	}
	return b + LaySuffix
}

// SameIdentity reports whether a and b are the same underlying bookmaker.
func SameIdentity(a, b BookieID) bool { return a.Base() == b.Base() }

// Bookie is one row of the bookmaker lookup table.
type Bookie struct {
	ID         BookieID
	Name       string
	NameCN     string
	Commission float64
	// HasLay marks exchange bookmakers that also publish lay prices.
	HasLay bool
	// NonTraditionalAH marks bookmakers whose AH lines ignore the live score.
	NonTraditionalAH bool
}

// BookieRegistry is the immutable bookmaker table handed to strategies and the
// execution messenger.
type BookieRegistry struct {
	bookies         map[BookieID]Bookie
	sportteryRebate float64
}

// NewBookieRegistry builds a registry from the given rows.
func NewBookieRegistry(bookies []Bookie, sportteryRebate float64) *BookieRegistry {
	m := make(map[BookieID]Bookie, len(bookies))
	for _, b := range bookies {
		m[b.ID] = b
	}
	return &BookieRegistry{bookies: m, sportteryRebate: sportteryRebate}
}

// DefaultBookieRegistry returns the bookmakers the execution system can bet with.
func DefaultBookieRegistry() *BookieRegistry {
	return NewBookieRegistry([]Bookie{
		{ID: "1", Name: "crown_c", NameCN: "皇冠_C", Commission: 0.0075},
		{ID: "2", Name: "sbobet", NameCN: "利记", Commission: 0.0025},
		{ID: "5", Name: "ibcbet", NameCN: "沙巴", Commission: 0.0025},
		{ID: "7", Name: "betfair", NameCN: "必发", Commission: -0.02, HasLay: true, NonTraditionalAH: true},
		{ID: "15", Name: "crown_d", NameCN: "皇冠_D"},
		{ID: "37", Name: "isn", NameCN: "智博"},
		{ID: "52", Name: "m8bet"},
		{ID: "59", Name: "tl", NameCN: "天龙"},
		{ID: "62", Name: "ga", NameCN: "星际"},
		{ID: "69", Name: "pinnacle", NameCN: "平博", Commission: 0.0025},
		{ID: SportteryID, Name: "sporttery", NameCN: "竞彩网"},
	}, 0.08)
}

// Lookup resolves id, mapping a lay identity onto its exchange row.
func (r *BookieRegistry) Lookup(id BookieID) (Bookie, bool) {
	b, ok := r.bookies[id.Base()]
	if !ok {
		return Bookie{}, false
	}
	if id.IsLay() && !b.HasLay {
		return Bookie{}, false
	}
	return b, true
}

// Known reports whether id is a bettable bookmaker (or its lay side).
func (r *BookieRegistry) Known(id BookieID) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Commission returns the commission rate for id, zero when unknown.
func (r *BookieRegistry) Commission(id BookieID) float64 {
	b, _ := r.Lookup(id)
	return b.Commission
}

// Name returns the short name for id.
func (r *BookieRegistry) Name(id BookieID) string {
	b, _ := r.Lookup(id)
	return b.Name
}

// NameCN returns the Chinese display name for id, if any.
func (r *BookieRegistry) NameCN(id BookieID) string {
	b, _ := r.Lookup(id)
	return b.NameCN
}

// HasLay reports whether id publishes lay prices.
func (r *BookieRegistry) HasLay(id BookieID) bool {
	b, _ := r.Lookup(id)
	return b.HasLay
}

// NonTraditionalAH reports whether id quotes AH lines without the live score.
func (r *BookieRegistry) NonTraditionalAH(id BookieID) bool {
	b, _ := r.Lookup(id)
	return b.NonTraditionalAH
}

// SportteryRebate is the rebate folded into sporttery effective prices.
func (r *BookieRegistry) SportteryRebate() float64 { return r.sportteryRebate }

// IDs lists every identity, including synthetic lay identities, sorted.
func (r *BookieRegistry) IDs() []BookieID {
	ids := make([]BookieID, 0, len(r.bookies)+1)
	for id, b := range r.bookies {
		ids = append(ids, id)
		if b.HasLay {
			ids = append(ids, id.Lay())
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
