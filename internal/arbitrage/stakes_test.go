package arbitrage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

func TestCalcStakes2EvenPrices(t *testing.T) {
	got, ok := CalcStakes2(2.02, 2.02, 0, 0, 0.01)
	require.True(t, ok)
	assert.Equal(t, Split2{Stake1: 50, Stake2: 50, Profit: 0.01}, got)
}

func TestCalcStakes2BestPairing(t *testing.T) {
	got, ok := CalcStakes2(2.05, 2.00, 0, 0, 0.01)
	require.True(t, ok)
	assert.Equal(t, 49.4, got.Stake1)
	assert.Equal(t, 50.6, got.Stake2)
	assert.Equal(t, 0.01235, got.Profit)
}

func TestCalcStakes2Rejects(t *testing.T) {
	tests := []struct {
		name   string
		p1, p2 float64
		c1, c2 float64
	}{
		{name: "no edge", p1: 1.95, p2: 1.95},
		{name: "zero price", p1: 0, p2: 2.5},
		{name: "infinite price", p1: math.Inf(1), p2: 2.1},
		{name: "nan price", p1: 2.1, p2: math.NaN()},
		{name: "nan commission", p1: 2.1, p2: 2.1, c2: math.NaN()},
		{name: "converted unit lay", p1: ConvertBackLay(1.0, false), p2: 1.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ok bool
			require.NotPanics(t, func() { _, ok = CalcStakes2(tt.p1, tt.p2, tt.c1, tt.c2, 0.01) })
			assert.False(t, ok)
		})
	}
}

func TestCalcStakes2NegativeCommission(t *testing.T) {
	_, ok := CalcStakes2(2.03, 2.03, 0, 0, 0.01)
	require.True(t, ok)
	// an exchange charging 2% on one leg kills the edge
	_, ok = CalcStakes2(2.03, 2.03, 0, -0.02, 0.01)
	assert.False(t, ok)
	// a rebate on one leg creates it
	_, ok = CalcStakes2(1.99, 1.99, 0.0075, 0.0075, 0.0)
	assert.True(t, ok)
}

func TestCalcStakes2Property(t *testing.T) {
	prices := []float64{1.5, 1.8, 1.95, 2.0, 2.02, 2.1, 2.5, 3.4}
	comms := []float64{-0.02, 0, 0.0025, 0.0075}
	for _, p1 := range prices {
		for _, p2 := range prices {
			for _, c1 := range comms {
				for _, c2 := range comms {
					s1 := 100 * p2 / (p1 + p2)
					s2 := 100 - s1
					want := (p1+c1)*s1+c2*s2 >= 100*(1+0.01)

					got, ok := CalcStakes2(p1, p2, c1, c2, 0.01)
					assert.Equal(t, want, ok, "p1=%v p2=%v c1=%v c2=%v", p1, p2, c1, c2)
					if ok {
						assert.InDelta(t, 100.0, got.Stake1+got.Stake2, 0.1+1e-9)
						assert.Equal(t, got.Stake1, math.Round(got.Stake1*10)/10)
					}
				}
			}
		}
	}
}

func TestCalcStakesNThreeWay(t *testing.T) {
	got, ok := CalcStakesN([]float64{3.1, 3.1, 3.1}, nil, 0.01)
	require.True(t, ok)
	assert.Equal(t, []float64{33.3, 33.3, 33.3}, got.Stakes)
	assert.Equal(t, 0.03333, got.Profit)

	_, ok = CalcStakesN([]float64{2.9, 3.0, 3.0}, []float64{0, 0, 0}, 0.01)
	assert.False(t, ok)
	_, ok = CalcStakesN([]float64{3.1, 0, 3.1}, nil, 0.01)
	assert.False(t, ok)
	_, ok = CalcStakesN(nil, nil, 0.01)
	assert.False(t, ok)
}

func TestCalcStakesNRejectsNonFinite(t *testing.T) {
	for _, bad := range []float64{math.Inf(1), math.NaN(), ConvertBackLay(1.0, false)} {
		var ok bool
		require.NotPanics(t, func() { _, ok = CalcStakesN([]float64{3.1, bad, 3.1}, nil, 0.01) })
		assert.False(t, ok, "price %v", bad)
	}
	_, ok := CalcStakesN([]float64{3.1, 3.1, 3.1}, []float64{0, math.Inf(-1), 0}, 0.01)
	assert.False(t, ok)
}

func TestConvertBackLay(t *testing.T) {
	assert.Equal(t, 2.0, ConvertBackLay(2.0, true))
	assert.Equal(t, 3.0, ConvertBackLay(1.5, true))
	assert.Equal(t, 1.91, ConvertBackLay(2.1, true))
	assert.InDelta(t, 1.9090909, ConvertBackLay(2.1, false), 1e-6)
	// conversion is its own inverse
	assert.InDelta(t, 2.1, ConvertBackLay(ConvertBackLay(2.1, false), false), 1e-9)
}

func TestConvertible(t *testing.T) {
	assert.True(t, Convertible(1.01))
	assert.False(t, Convertible(1.0))
	assert.False(t, Convertible(0.5))
	assert.False(t, Convertible(math.Inf(1)))
	assert.False(t, Convertible(math.NaN()))
	assert.True(t, math.IsInf(ConvertBackLay(1.0, false), 1))
	assert.True(t, math.IsInf(ConvertBackLay(1.0, true), 1), "rounding leaves non-finite values alone")
}

func TestBackLayPairBetter(t *testing.T) {
	p := BackLayPair{ID: "7", Back: []float64{1.95, 2.0}, BackReceipt: "b", Lay: []float64{1.97, 1.99}, LayReceipt: "l"}
	home, away := p.Better()
	assert.Equal(t, Quote{Bookie: "7 lay", Price: 1.97, Receipt: "l"}, home)
	assert.Equal(t, Quote{Bookie: "7", Price: 2.0, Receipt: "b"}, away)

	only := BackLayPair{ID: "7", Lay: []float64{1.9, 2.1}, LayReceipt: "l"}
	home, away = only.Better()
	assert.Equal(t, domain.BookieID("7 lay"), home.Bookie)
	assert.Equal(t, domain.BookieID("7 lay"), away.Bookie)
}

func TestSortDesc(t *testing.T) {
	qs := []Quote{{Bookie: "a", Price: 1.9}, {Bookie: "b", Price: 2.1}, {Bookie: "c", Price: 1.9}}
	SortDesc(qs)
	assert.Equal(t, []domain.BookieID{"b", "a", "c"}, []domain.BookieID{qs[0].Bookie, qs[1].Bookie, qs[2].Bookie})
}
