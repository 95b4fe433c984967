package goalmodel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

func TestLevelHandicapIsEvens(t *testing.T) {
	m := New(2.6, 0)
	assert.InDelta(t, 2.0, m.AHPrice(domain.SideHome, 0), 1e-9)
	assert.InDelta(t, 2.0, m.AHPrice(domain.SideAway, 0), 1e-9)
	// a quarter handed to the home side makes it shorter
	assert.Less(t, m.AHPrice(domain.SideHome, 0.25), 2.0)
	assert.Greater(t, m.AHPrice(domain.SideHome, -0.25), 2.0)
}

func TestHalfLinesHaveNoMargin(t *testing.T) {
	m := New(2.7, 0.4)
	for _, line := range []float64{0.5, 1.5, 2.5, 3.5} {
		over, under := m.OUPrice(domain.SideOver, line), m.OUPrice(domain.SideUnder, line)
		assert.InDelta(t, 1.0, 1/over+1/under, 1e-9, "line %v", line)
	}
	home, away := m.AHPrice(domain.SideHome, -0.5), m.AHPrice(domain.SideAway, 0.5)
	assert.InDelta(t, 1.0, 1/home+1/away, 1e-9)
}

func TestSupremacyFavoursHome(t *testing.T) {
	even, strong := New(2.5, 0), New(2.5, 1)
	assert.Less(t, strong.AHPrice(domain.SideHome, -0.5), even.AHPrice(domain.SideHome, -0.5))
	assert.Greater(t, strong.AHPrice(domain.SideAway, 0.5), even.AHPrice(domain.SideAway, 0.5))
	assert.InDelta(t, 1.75, strong.HomeGoals, 1e-12)
	assert.InDelta(t, 0.75, strong.AwayGoals, 1e-12)
	assert.InDelta(t, 2.5, strong.Total(), 1e-12)
	assert.InDelta(t, 1.0, strong.Supremacy(), 1e-12)
}

func TestFitTotalRoundTrip(t *testing.T) {
	for _, want := range []float64{1.2, 2.45, 3.8} {
		for _, line := range []float64{1.5, 2.25, 2.5, 3} {
			price := New(want, 0).OUPrice(domain.SideOver, line)
			got, err := FitTotal(domain.SideOver, line, price)
			require.NoError(t, err)
			assert.InDelta(t, want, got, 1e-6, "total %v line %v", want, line)

			price = New(want, 0).OUPrice(domain.SideUnder, line)
			got, err = FitTotal(domain.SideUnder, line, price)
			require.NoError(t, err)
			assert.InDelta(t, want, got, 1e-6)
		}
	}
}

func TestFitSupremacyRoundTrip(t *testing.T) {
	for _, want := range []float64{-0.8, 0, 0.35, 1.4} {
		for _, line := range []float64{-1, -0.75, -0.5, 0, 0.25} {
			price := New(2.6, want).AHPrice(domain.SideHome, line)
			got, err := FitSupremacy(2.6, domain.SideHome, line, price)
			require.NoError(t, err)
			assert.InDelta(t, want, got, 1e-6, "supremacy %v line %v", want, line)

			price = New(2.6, want).AHPrice(domain.SideAway, -line)
			got, err = FitSupremacy(2.6, domain.SideAway, -line, price)
			require.NoError(t, err)
			assert.InDelta(t, want, got, 1e-6)
		}
	}
}

func TestFitOutOfRange(t *testing.T) {
	_, err := FitTotal(domain.SideOver, 2.5, 1.0001)
	assert.True(t, errors.Is(err, ErrNoSolution))
	_, err = FitSupremacy(2.5, domain.SideHome, 0, 0.5)
	assert.True(t, errors.Is(err, ErrNoSolution))
}
