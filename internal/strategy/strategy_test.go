package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

var (
	ftAH  = domain.MarketKey{Half: domain.HalfFT, Market: domain.MarketAH}
	ftOU  = domain.MarketKey{Half: domain.HalfFT, Market: domain.MarketOU}
	ft1x2 = domain.MarketKey{Half: domain.HalfFT, Market: domain.Market1x2}
	ftEH  = domain.MarketKey{Half: domain.HalfFT, Market: domain.MarketEH}
)

func testView(running bool, home, away int) domain.MatchView {
	return domain.MatchView{
		Info: domain.MatchInfo{
			MatchID:      "1001",
			LeagueName:   "EPL",
			HomeTeamName: "Arsenal",
			AwayTeamName: "Chelsea",
			MatchHKTime:  "2026-10-19 20:00:00",
			InRunning:    running,
			HomeScore:    home,
			AwayScore:    away,
		},
		Odds: domain.Odds{},
	}
}

func set(v domain.MatchView, key domain.MarketKey, line float64, bookie domain.BookieID, prices ...float64) {
	v.Odds.Set(key, line, bookie, domain.PriceEntry{Prices: prices, Receipt: "r" + string(bookie)})
}

func allOn(cfg Config) domain.Availability {
	return domain.NewAvailability(cfg.Registry.IDs(), true)
}

func TestDirectPairsBestPricesAcrossBookies(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(false, -1, -1)
	set(v, ftAH, -0.5, "15", 2.05, 1.90)
	set(v, ftAH, -0.5, "37", 2.00, 1.95)
	set(v, ftAH, -0.5, "52", 1.95, 2.00)

	got := NewDirect(cfg).Spot(v, allOn(cfg))
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, 0.01235, c.Profit)
	require.Len(t, c.Selections, 2)

	home, away := c.Selections[0], c.Selections[1]
	assert.Equal(t, domain.BookieID("15"), home.Bookie)
	assert.Equal(t, domain.SideHome, home.Side)
	assert.Equal(t, -0.5, home.Line)
	assert.Equal(t, 49.4, home.Stake)
	assert.Equal(t, domain.BookieID("52"), away.Bookie)
	assert.Equal(t, domain.SideAway, away.Side)
	assert.Equal(t, 0.5, away.Line)
	assert.Equal(t, 50.6, away.Stake)
}

func TestDirectRespectsAvailability(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(false, -1, -1)
	set(v, ftAH, -0.5, "15", 2.05, 1.90)
	set(v, ftAH, -0.5, "52", 1.95, 2.00)

	avail := allOn(cfg)
	avail["52"] = domain.BookieStatus{DeadBall: false, RunningBall: true}
	assert.Empty(t, NewDirect(cfg).Spot(v, avail))

	v.Info.InRunning = true
	v.Info.HomeScore, v.Info.AwayScore = 0, 0
	assert.Len(t, NewDirect(cfg).Spot(v, avail), 1)
}

func TestDirectNeverPairsSameBookie(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(false, -1, -1)
	set(v, ftOU, 2.5, "15", 2.20, 2.20)

	assert.Empty(t, NewDirect(cfg).Spot(v, allOn(cfg)))
}

func TestDirectBackVersusLay(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(false, -1, -1)
	set(v, ft1x2, domain.NoLine, "15", 2.60, 3.30, 3.00)
	// lay home at 1.5 is worth a back of "not home" at 3.0
	set(v, ft1x2, domain.NoLine, "7 lay", 1.50, 3.50, 2.80)

	got := NewDirect(cfg).Spot(v, allOn(cfg))
	require.NotEmpty(t, got)
	for _, c := range got {
		require.Len(t, c.Selections, 2)
		back, lay := c.Selections[0], c.Selections[1]
		assert.False(t, back.Lay)
		assert.True(t, lay.Lay)
		assert.Equal(t, domain.BookieID("7"), lay.Bookie)
		assert.Equal(t, back.Side, lay.Side)
	}
}

func TestDirectSkipsUnitLayPrice(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(false, -1, -1)
	set(v, ftAH, -0.5, "7 lay", 1.0, 2.10)
	set(v, ftAH, -0.5, "15", 1.95, 1.90)

	var got []domain.Candidate
	require.NotPanics(t, func() { got = NewDirect(cfg).Spot(v, allOn(cfg)) })
	assert.Empty(t, got)

	set(v, ft1x2, domain.NoLine, "15", 2.60, 3.30, 3.00)
	set(v, ft1x2, domain.NoLine, "7 lay", 1.0, 3.50, 2.80)
	require.NotPanics(t, func() { got = NewDirect(cfg).Spot(v, allOn(cfg)) })
	assert.Empty(t, got)
}

func TestPickLayDropsUnconvertiblePrices(t *testing.T) {
	q := domain.BookieQuotes{
		"7 lay":  {Prices: []float64{1.0, 2.1}},
		"12 lay": {Prices: []float64{2.0, 2.0}},
	}
	got := pickLay(q, 0, func(domain.BookieID) bool { return true })
	require.Len(t, got, 1)
	assert.Equal(t, domain.BookieID("12 lay"), got[0].Bookie)
	assert.Equal(t, 2.0, got[0].Price)
}

func TestAHvs2LevelScores(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(true, 0, 0)
	set(v, ftAH, 0.5, "15", 1.60, 2.30)
	set(v, ft1x2, domain.NoLine, "37", 1.80, 3.40, 3.00)

	got := NewAHvs2(cfg).Spot(v, allOn(cfg))
	require.Len(t, got, 1)
	sels := got[0].Selections
	require.Len(t, sels, 2)
	assert.Equal(t, domain.Selection{
		Market: domain.MarketAH, Side: domain.SideHome, Line: 0.5, Half: domain.HalfFT,
		Bookie: "15", Stake: 65.2, Price: 1.60, Receipt: "r15",
	}, sels[0])
	assert.Equal(t, domain.Market1x2, sels[1].Market)
	assert.Equal(t, domain.SideAway, sels[1].Side)
	assert.Equal(t, 34.8, sels[1].Stake)
}

func TestAHvs2SkipsExchangeHandicap(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(true, 0, 0)
	set(v, ftAH, 0.5, "7", 1.60, 2.30)
	set(v, ft1x2, domain.NoLine, "37", 1.80, 3.40, 3.00)

	assert.Empty(t, NewAHvs2(cfg).Spot(v, allOn(cfg)))
}

func TestAHvs2LeadingSide(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(true, 1, 0)
	// home +1.5 on the remaining goals loses only when away wins the match
	set(v, ftAH, 1.5, "15", 1.60, 2.30)
	set(v, ft1x2, domain.NoLine, "37", 1.10, 6.00, 3.00)

	got := NewAHvs2(cfg).Spot(v, allOn(cfg))
	require.Len(t, got, 1)
	assert.Equal(t, 1.5, got[0].Selections[0].Line)
}

func TestAHvsXvs2ThreeWay(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(true, 0, 0)
	set(v, ftAH, -0.5, "15", 2.50, 1.50)
	set(v, ft1x2, domain.NoLine, "37", 0, 3.60, 0)
	set(v, ft1x2, domain.NoLine, "52", 0, 0, 3.60)

	got := NewAHvsXvs2(cfg).Spot(v, allOn(cfg))
	require.Len(t, got, 1)
	sels := got[0].Selections
	require.Len(t, sels, 3)
	assert.Equal(t, domain.MarketAH, sels[0].Market)
	assert.Equal(t, -0.5, sels[0].Line)
	assert.Equal(t, domain.SideDraw, sels[1].Side)
	assert.Equal(t, domain.SideAway, sels[2].Side)
	assert.InDelta(t, 0.04651, got[0].Profit, 1e-5)
}

func TestAHvsXvs2LayShortcutSuppressesThreeWay(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(true, 0, 0)
	set(v, ftAH, -0.5, "15", 2.50, 1.50)
	set(v, ft1x2, domain.NoLine, "37", 0, 3.60, 0)
	set(v, ft1x2, domain.NoLine, "52", 0, 0, 3.60)
	set(v, ft1x2, domain.NoLine, "7 lay", 1.50, 0, 0)

	got := NewAHvsXvs2(cfg).Spot(v, allOn(cfg))
	require.Len(t, got, 1)
	sels := got[0].Selections
	require.Len(t, sels, 2)
	assert.Equal(t, domain.BookieID("15"), sels[0].Bookie)
	lay := sels[1]
	assert.Equal(t, domain.BookieID("7"), lay.Bookie)
	assert.True(t, lay.Lay)
	assert.Equal(t, domain.SideHome, lay.Side)
	assert.Equal(t, 1.5, lay.Price)
}

func TestEHvsEHXvsAH(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(false, -1, -1)
	set(v, ftEH, -1, "15", 3.40, 3.00, 0)
	set(v, ftEH, -1, "37", 3.00, 3.80, 0)
	set(v, ftAH, -0.5, "52", 1.80, 2.40)

	got := NewEHvsEHXvsAH(cfg).Spot(v, allOn(cfg))
	require.Len(t, got, 1)
	sels := got[0].Selections
	require.Len(t, sels, 3)
	assert.Equal(t, domain.Selection{
		Market: domain.MarketEH, Side: domain.SideHome, Line: -1, Half: domain.HalfFT,
		Bookie: "15", Stake: sels[0].Stake, Price: 3.40, Receipt: "r15",
	}, sels[0])
	assert.Equal(t, domain.SideDraw, sels[1].Side)
	assert.Equal(t, domain.BookieID("37"), sels[1].Bookie)
	assert.Equal(t, domain.SideAway, sels[2].Side)
	assert.Equal(t, 0.5, sels[2].Line)
	assert.Greater(t, got[0].Profit, 0.02)

	v.Info.InRunning = true
	v.Info.HomeScore, v.Info.AwayScore = 1, 0
	assert.Empty(t, NewEHvsEHXvsAH(cfg).Spot(v, allOn(cfg)))
}

func TestDirectCombinedSynthesisesWholeLine(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(false, -1, -1)
	set(v, ftAH, 0.25, "15", 2.10, 1.80)
	set(v, ftAH, -0.25, "37", 1.90, 2.00)
	set(v, ftAH, 0, "52", 1.90, 2.08)

	got := NewDirectCombined(cfg).Spot(v, allOn(cfg))
	require.Len(t, got, 1)
	sels := got[0].Selections
	require.Len(t, sels, 3)
	assert.Equal(t, domain.BookieID("15"), sels[0].Bookie)
	assert.Equal(t, 0.25, sels[0].Line)
	assert.Equal(t, domain.BookieID("37"), sels[1].Bookie)
	assert.Equal(t, -0.25, sels[1].Line)
	assert.Equal(t, domain.BookieID("52"), sels[2].Bookie)
	assert.Equal(t, domain.SideAway, sels[2].Side)
	assert.InDelta(t, 51.0, sels[0].Stake+sels[1].Stake, 0.02)
}

func TestCrossHandicapTotals(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(false, -1, -1)
	set(v, ftOU, 2.0, "52", 2.50, 1.40)
	set(v, ftOU, 2.5, "15", 2.00, 1.85)
	set(v, ftOU, 3.0, "37", 1.90, 1.80)

	got := NewCrossHandicap(cfg).Spot(v, allOn(cfg))
	require.Len(t, got, 1)
	sels := got[0].Selections
	require.Len(t, sels, 2)
	assert.Equal(t, domain.SideOver, sels[0].Side)
	assert.Equal(t, 2.5, sels[0].Line)
	assert.Equal(t, domain.BookieID("15"), sels[0].Bookie)
	assert.Equal(t, domain.SideUnder, sels[1].Side)
	assert.Equal(t, 3.0, sels[1].Line)
	assert.Equal(t, domain.BookieID("37"), sels[1].Bookie)
	assert.GreaterOrEqual(t, got[0].Profit, CrossThreshold)

	v.Info.InRunning = true
	assert.Empty(t, NewCrossHandicap(cfg).Spot(v, allOn(cfg)))
}

func TestCrossHandicapNeedsTwoLines(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(false, -1, -1)
	set(v, ftOU, 2.5, "15", 2.00, 1.85)

	assert.Empty(t, NewCrossHandicap(cfg).Spot(v, allOn(cfg)))
}

func TestNoStrategyPairsOneIdentity(t *testing.T) {
	cfg := DefaultConfig()
	v := testView(true, 0, 0)
	set(v, ftAH, -0.5, "7", 2.50, 1.50)
	set(v, ftAH, 0.5, "7", 1.60, 2.30)
	set(v, ft1x2, domain.NoLine, "7", 2.5, 3.60, 3.60)
	set(v, ft1x2, domain.NoLine, "7 lay", 1.50, 1.5, 1.5)

	all, err := NewDefaultRegistry(cfg).Enabled([]domain.StrategyID{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	for _, s := range all {
		for _, c := range s.Spot(v, allOn(cfg)) {
			for i := range c.Selections {
				for j := i + 1; j < len(c.Selections); j++ {
					assert.False(t, domain.SameIdentity(c.Selections[i].Bookie, c.Selections[j].Bookie),
						"%s paired %s with itself", s.Name(), c.Selections[i].Bookie)
				}
			}
		}
	}
}
