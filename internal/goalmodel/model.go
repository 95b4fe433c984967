// Package goalmodel prices handicap and total-goals lines from an independent
// Poisson scoreline model and fits the model to observed prices.
package goalmodel

import (
	"errors"
	"fmt"
	"math"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// MaxGoals is the largest per-team score modelled. The Poisson tail is folded
// into this bucket.
const MaxGoals = 10

// ErrNoSolution is returned when no model parameter reproduces a price.
var ErrNoSolution = errors.New("goalmodel: no solution in range")

// Model is a pair of expected goal counts.
type Model struct {
	HomeGoals float64
	AwayGoals float64
}

// New builds a model from total expected goals and home supremacy.
func New(total, supremacy float64) Model {
	return Model{HomeGoals: (total + supremacy) / 2, AwayGoals: (total - supremacy) / 2}
}

// Total is the expected number of goals.
func (m Model) Total() float64 { return m.HomeGoals + m.AwayGoals }

// Supremacy is the expected home margin.
func (m Model) Supremacy() float64 { return m.HomeGoals - m.AwayGoals }

type outcome struct {
	x int
	p float64
}

func pmf(lambda float64) []float64 {
	out := make([]float64, MaxGoals+1)
	sum := 0.0
	term := math.Exp(-lambda)
	for k := 0; k < MaxGoals; k++ {
		out[k] = term
		sum += term
		term *= lambda / float64(k+1)
	}
	out[MaxGoals] = math.Max(0, 1-sum)
	return out
}

// margins is the distribution of home minus away goals.
func (m Model) margins() []outcome {
	h, a := pmf(m.HomeGoals), pmf(m.AwayGoals)
	acc := make([]float64, 2*MaxGoals+1)
	for i, ph := range h {
		for j, pa := range a {
			acc[i-j+MaxGoals] += ph * pa
		}
	}
	out := make([]outcome, len(acc))
	for i, p := range acc {
		out[i] = outcome{x: i - MaxGoals, p: p}
	}
	return out
}

// totals is the distribution of the goal total.
func (m Model) totals() []outcome {
	h, a := pmf(m.HomeGoals), pmf(m.AwayGoals)
	acc := make([]float64, 2*MaxGoals+1)
	for i, ph := range h {
		for j, pa := range a {
			acc[i+j] += ph * pa
		}
	}
	out := make([]outcome, len(acc))
	for i, p := range acc {
		out[i] = outcome{x: i, p: p}
	}
	return out
}

func negate(os []outcome) []outcome {
	out := make([]outcome, len(os))
	for i, o := range os {
		out[i] = outcome{x: -o.x, p: o.p}
	}
	return out
}

// fair returns the zero-margin decimal price of a bet that wins when x+line
// is positive and is refunded when it is zero. Quarter lines settle half the
// stake on each neighbouring half line.
func fair(os []outcome, line float64) float64 {
	parts := []float64{line}
	if q := math.Abs(line * 4); math.Mod(math.Round(q), 2) == 1 {
		parts = []float64{line - 0.25, line + 0.25}
	}
	w := 1.0 / float64(len(parts))
	win, lose := 0.0, 0.0
	for _, l := range parts {
		for _, o := range os {
			r := float64(o.x) + l
			switch {
			case r > 0:
				win += w * o.p
			case r < 0:
				lose += w * o.p
			}
		}
	}
	if win == 0 {
		return math.Inf(1)
	}
	return 1 + lose/win
}

// AHPrice is the fair price of backing side at its own handicap line.
func (m Model) AHPrice(side domain.Side, line float64) float64 {
	switch side {
	case domain.SideHome:
		return fair(m.margins(), line)
	case domain.SideAway:
		return fair(negate(m.margins()), line)
	}
	return math.NaN()
}

// OUPrice is the fair price of over or under the total line.
func (m Model) OUPrice(side domain.Side, line float64) float64 {
	switch side {
	case domain.SideOver:
		return fair(m.totals(), -line)
	case domain.SideUnder:
		return fair(negate(m.totals()), line)
	}
	return math.NaN()
}

// Bounds of the fitted parameters.
const (
	minTotal = 0.01
	maxTotal = 12.0
	epsilon  = 1e-6
)

// FitTotal finds the expected total goals at which side on line is priced at
// price. The total distribution does not depend on supremacy.
func FitTotal(side domain.Side, line, price float64) (float64, error) {
	f := func(t float64) float64 { return New(t, 0).OUPrice(side, line) - price }
	t, err := bisect(f, minTotal, maxTotal)
	if err != nil {
		return 0, fmt.Errorf("fit total %s %v @ %v: %w", side, line, price, err)
	}
	return t, nil
}

// FitSupremacy finds the home supremacy at which side on line is priced at
// price, holding total fixed.
func FitSupremacy(total float64, side domain.Side, line, price float64) (float64, error) {
	f := func(s float64) float64 { return New(total, s).AHPrice(side, line) - price }
	s, err := bisect(f, -total+epsilon, total-epsilon)
	if err != nil {
		return 0, fmt.Errorf("fit supremacy %s %v @ %v: %w", side, line, price, err)
	}
	return s, nil
}

func bisect(f func(float64) float64, lo, hi float64) (float64, error) {
	flo, fhi := f(lo), f(hi)
	if math.IsNaN(flo) || math.IsNaN(fhi) {
		return 0, ErrNoSolution
	}
	if flo == 0 {
		return lo, nil
	}
	if fhi == 0 {
		return hi, nil
	}
	if (flo > 0) == (fhi > 0) {
		return 0, ErrNoSolution
	}
	for i := 0; i < 200 && hi-lo > 1e-10; i++ {
		mid := (lo + hi) / 2
		fm := f(mid)
		if fm == 0 {
			return mid, nil
		}
		if (fm > 0) == (flo > 0) {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}
