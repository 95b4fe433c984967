package record

import "github.com/alanyoungcy/arbdiscovery/internal/domain"

// Verdict is the tracker's decision for one record.
type Verdict int

const (
	Accept Verdict = iota
	// Stale records carry an update id at or below the last one seen.
	Stale
	// UnknownMatch records are updates for a match never announced.
	UnknownMatch
)

// UpdateTracker enforces strictly increasing VIP update ids per match.
// Not safe for concurrent use; each feed session owns one.
type UpdateTracker struct {
	last map[string]int64
}

// NewUpdateTracker returns an empty tracker.
func NewUpdateTracker() *UpdateTracker {
	return &UpdateTracker{last: make(map[string]int64)}
}

// Observe registers rec and reports whether it should be applied. Match info
// and initial odds register their match with id 0 when first seen.
func (t *UpdateTracker) Observe(rec domain.Record) Verdict {
	id := rec.Header().MatchID
	upd, ok := rec.(domain.UpdateOddsRecord)
	if !ok {
		if _, seen := t.last[id]; !seen {
			t.last[id] = 0
		}
		return Accept
	}
	last, seen := t.last[id]
	if !seen {
		return UnknownMatch
	}
	if upd.UpdateID <= last {
		return Stale
	}
	t.last[id] = upd.UpdateID
	return Accept
}

// Last returns the last accepted update id for a match.
func (t *UpdateTracker) Last(matchID string) (int64, bool) {
	v, ok := t.last[matchID]
	return v, ok
}

// Len is the number of tracked matches.
func (t *UpdateTracker) Len() int { return len(t.last) }
