package executor

import (
	"sync"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Cooldown suppresses re-sending an opportunity whose bookmaker positions
// were already sent at the same prices for the same match state. It is safe
// for concurrent use.
type Cooldown struct {
	entries map[domain.CooldownKey]map[string]float64 // fingerprint -> price
	mu      sync.Mutex

	released       int
	releaseMissing int
}

// NewCooldown creates an empty cool-down table.
func NewCooldown() *Cooldown {
	return &Cooldown{entries: make(map[domain.CooldownKey]map[string]float64)}
}

// Key scopes o to its match state at now.
func Key(o domain.Opportunity, now time.Time) domain.CooldownKey {
	return domain.CooldownKey{
		TimeType:  TimeType(o.Match, now),
		MatchID:   o.Match.MatchID,
		HomeScore: o.Match.HomeScore,
		AwayScore: o.Match.AwayScore,
	}
}

// InCooldown reports whether every leg of o is already cooling down at an
// identical price. Otherwise the legs are recorded and false is returned.
func (c *Cooldown) InCooldown(o domain.Opportunity, now time.Time) (bool, error) {
	fps := make(map[string]float64, len(o.Selections))
	for _, s := range o.Selections {
		fp, err := Fingerprint(s)
		if err != nil {
			return false, err
		}
		fps[fp] = s.Price
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(o, now)
	entry, ok := c.entries[key]
	if !ok {
		c.entries[key] = fps
		return false, nil
	}
	if sameLegs(entry, fps) {
		return true, nil
	}
	for fp, p := range fps {
		entry[fp] = p
	}
	return false, nil
}

func sameLegs(entry, fps map[string]float64) bool {
	for fp, p := range fps {
		if q, ok := entry[fp]; !ok || q != p {
			return false
		}
	}
	return true
}

// Filter drops opportunities in cool-down. Unsendable opportunities are
// returned separately.
func (c *Cooldown) Filter(opps []domain.Opportunity, now time.Time) (keep []domain.Opportunity, unsendable []error) {
	for _, o := range opps {
		cooling, err := c.InCooldown(o, now)
		if err != nil {
			unsendable = append(unsendable, err)
			continue
		}
		if !cooling {
			keep = append(keep, o)
		}
	}
	return keep, unsendable
}

// Release lifts cool-down on the given fingerprints and returns how many
// were not cooling down.
func (c *Cooldown) Release(key domain.CooldownKey, fingerprints []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.releaseMissing += len(fingerprints)
		return len(fingerprints)
	}
	missing := 0
	for _, fp := range fingerprints {
		if _, ok := entry[fp]; !ok {
			missing++
			continue
		}
		delete(entry, fp)
		c.released++
	}
	if len(entry) == 0 {
		delete(c.entries, key)
	}
	c.releaseMissing += missing
	return missing
}

// Set seeds one entry. Used when restoring state and in tests.
func (c *Cooldown) Set(key domain.CooldownKey, prices map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := make(map[string]float64, len(prices))
	for fp, p := range prices {
		entry[fp] = p
	}
	c.entries[key] = entry
}

// Entry returns a copy of the fingerprints cooling down under key.
func (c *Cooldown) Entry(key domain.CooldownKey) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.entries[key]))
	for fp, p := range c.entries[key] {
		out[fp] = p
	}
	return out
}

// Cleanup drops entries for matches that are no longer tracked.
func (c *Cooldown) Cleanup(live func(matchID string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.entries {
		if !live(key.MatchID) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Stats returns release counters: fingerprints released and fingerprints
// that were asked to be released but were not cooling down.
func (c *Cooldown) Stats() (released, missing int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released, c.releaseMissing
}
