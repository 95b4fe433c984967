package record

import (
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// MatchFilter decides which match info records are kept.
type MatchFilter struct {
	Sports  map[domain.Sport]bool
	Horizon time.Duration
	Now     func() time.Time
}

// NewMatchFilter keeps matches of the given sports kicking off within horizon.
func NewMatchFilter(sports []string, horizon time.Duration) *MatchFilter {
	set := make(map[domain.Sport]bool, len(sports))
	for _, s := range sports {
		set[domain.Sport(s)] = true
	}
	return &MatchFilter{Sports: set, Horizon: horizon, Now: time.Now}
}

// SportSupported reports whether the match's sport is followed.
func (f *MatchFilter) SportSupported(info domain.MatchInfo) bool {
	return f.Sports[info.Sport()]
}

// WithinHorizon reports whether kickoff is before now+horizon. Unparseable
// kickoff times are rejected.
func (f *MatchFilter) WithinHorizon(info domain.MatchInfo) bool {
	kickoff, err := info.Kickoff()
	if err != nil {
		return false
	}
	return f.Now().Add(f.Horizon).After(kickoff)
}
