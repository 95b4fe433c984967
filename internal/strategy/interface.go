package strategy

import (
	"github.com/alanyoungcy/arbdiscovery/internal/arbitrage"
	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Strategy is one arbitrage detector. Spot is pure given its inputs and never
// pairs two legs on the same underlying bookmaker.
type Strategy interface {
	ID() domain.StrategyID
	Name() string
	Spot(view domain.MatchView, avail domain.Availability) []domain.Candidate
}

// Config holds what every detector needs.
type Config struct {
	Threshold float64
	Registry  *domain.BookieRegistry
}

// DefaultConfig uses the default bookmaker table and minimum profit.
func DefaultConfig() Config {
	return Config{Threshold: arbitrage.MinProfit, Registry: domain.DefaultBookieRegistry()}
}

func (c Config) commission(id domain.BookieID) float64 { return c.Registry.Commission(id) }
