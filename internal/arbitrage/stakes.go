// Package arbitrage holds the stake calculator and the back/lay price helpers
// shared by every detector.
package arbitrage

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// MinProfit is the default acceptance threshold.
const MinProfit = 0.01

// TotalStake is the notional every stake split sums to.
const TotalStake = 100.0

// Split2 is a two-way stake split.
type Split2 struct {
	Stake1 float64
	Stake2 float64
	Profit float64
}

// CalcStakes2 splits TotalStake across two opposite outcomes so both pay the
// same, and accepts the split iff it returns at least TotalStake*(1+threshold)
// once commissions are paid back on both legs. Commissions may be negative.
func CalcStakes2(price1, price2, commission1, commission2, threshold float64) (Split2, bool) {
	if !finite(price1, price2, commission1, commission2) || price1 <= 0 || price2 <= 0 {
		return Split2{}, false
	}
	stake1 := TotalStake * price2 / (price1 + price2)
	stake2 := TotalStake - stake1

	payout := (price1+commission1)*stake1 + commission2*stake2
	if !finite(payout) || payout < TotalStake*(1+threshold) {
		return Split2{}, false
	}
	return Split2{
		Stake1: Round(stake1, 1),
		Stake2: Round(stake2, 1),
		Profit: Round((payout-TotalStake)/TotalStake, 5),
	}, true
}

// SplitN is an n-way stake split.
type SplitN struct {
	Stakes []float64
	Profit float64
}

// CalcStakesN splits TotalStake across n mutually exclusive outcomes. Prices
// are scaled by (1+commission) before the arbitrage condition is checked.
func CalcStakesN(prices, commissions []float64, threshold float64) (SplitN, bool) {
	eff := make([]float64, len(prices))
	cond := 0.0
	for i, p := range prices {
		c := 0.0
		if i < len(commissions) {
			c = commissions[i]
		}
		if !finite(p, c) || p <= 0 {
			return SplitN{}, false
		}
		eff[i] = p * (1 + c)
		cond += 1.0 / eff[i]
	}
	if len(prices) == 0 || !finite(cond) || cond <= 0 || !(cond < 1-threshold) {
		return SplitN{}, false
	}
	stakes := make([]float64, len(eff))
	for i, k := range eff {
		stakes[i] = Round(TotalStake/(cond*k), 1)
	}
	return SplitN{Stakes: stakes, Profit: Round(1/cond-1, 5)}, true
}

// Convertible reports whether price can go through ConvertBackLay. Prices at
// or below 1 have no finite counterpart.
func Convertible(price float64) bool {
	return price > 1 && finite(price)
}

// ConvertBackLay turns a back price into the equivalent lay price and vice
// versa. roundUp rounds the result to two places.
func ConvertBackLay(price float64, roundUp bool) float64 {
	v := 1/(price-1) + 1
	if roundUp {
		return Round(v, 2)
	}
	return v
}

// Round rounds half away from zero on the shortest decimal form of x.
// Non-finite values come back unchanged.
func Round(x float64, places int32) float64 {
	if !finite(x) {
		return x
	}
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Quote is one bookmaker price in a candidate list.
type Quote struct {
	Bookie  domain.BookieID
	Price   float64
	Receipt string
}

// SortDesc orders quotes best price first. Equal prices keep their order.
func SortDesc(qs []Quote) {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Price > qs[j].Price })
}

// BackLayPair is an exchange's back and lay quotes on one two-way line.
// Lay prices are already converted and swapped into back-equivalent
// positions. A missing side has a nil slice.
type BackLayPair struct {
	Back        []float64
	BackReceipt string
	Lay         []float64
	LayReceipt  string
	ID          domain.BookieID
}

// Better keeps, per position, whichever of back or converted lay pays more.
// Ties go to the lay side.
func (p BackLayPair) Better() (home, away Quote) {
	switch {
	case p.Back != nil && p.Lay != nil:
		home = Quote{Bookie: p.ID.Lay(), Price: p.Lay[0], Receipt: p.LayReceipt}
		if p.Back[0] > p.Lay[0] {
			home = Quote{Bookie: p.ID.Base(), Price: p.Back[0], Receipt: p.BackReceipt}
		}
		away = Quote{Bookie: p.ID.Lay(), Price: p.Lay[1], Receipt: p.LayReceipt}
		if p.Back[1] > p.Lay[1] {
			away = Quote{Bookie: p.ID.Base(), Price: p.Back[1], Receipt: p.BackReceipt}
		}
	case p.Back != nil:
		home = Quote{Bookie: p.ID.Base(), Price: p.Back[0], Receipt: p.BackReceipt}
		away = Quote{Bookie: p.ID.Base(), Price: p.Back[1], Receipt: p.BackReceipt}
	default:
		home = Quote{Bookie: p.ID.Lay(), Price: p.Lay[0], Receipt: p.LayReceipt}
		away = Quote{Bookie: p.ID.Lay(), Price: p.Lay[1], Receipt: p.LayReceipt}
	}
	return home, away
}
