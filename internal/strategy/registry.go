package strategy

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Info describes a registered strategy for status APIs.
type Info struct {
	ID   domain.StrategyID `json:"id"`
	Name string            `json:"name"`
}

// Registry holds the strategies that can be enabled at runtime. It is safe
// for concurrent use.
type Registry struct {
	strategies map[domain.StrategyID]Strategy
	mu         sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[domain.StrategyID]Strategy),
	}
}

// NewDefaultRegistry registers all six detectors with cfg.
func NewDefaultRegistry(cfg Config) *Registry {
	r := NewRegistry()
	for _, s := range []Strategy{
		NewDirect(cfg),
		NewDirectCombined(cfg),
		NewAHvs2(cfg),
		NewAHvsXvs2(cfg),
		NewEHvsEHXvsAH(cfg),
		NewCrossHandicap(cfg),
	} {
		r.Register(s)
	}
	return r
}

// Register adds s under its own id, replacing any previous entry.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID()] = s
}

// Get retrieves a strategy by id. It returns an error when the id is not
// registered.
func (r *Registry) Get(id domain.StrategyID) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %d: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// List returns all registered strategies ordered by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.strategies))
	for id, s := range r.strategies {
		infos = append(infos, Info{ID: id, Name: s.Name()})
	}
	slices.SortFunc(infos, func(a, b Info) int { return cmp.Compare(a.ID, b.ID) })
	return infos
}

// Enabled resolves ids to strategies in the given order.
func (r *Registry) Enabled(ids []domain.StrategyID) ([]Strategy, error) {
	out := make([]Strategy, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
