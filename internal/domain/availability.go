package domain

// BookieStatus says whether a bookmaker can currently be bet with per period.
type BookieStatus struct {
	DeadBall    bool `json:"dead_ball"`
	RunningBall bool `json:"running_ball"`
}

// StatusPatch is a partial status update; nil fields are left untouched.
type StatusPatch struct {
	DeadBall    *bool
	RunningBall *bool
}

// Availability maps bookmaker identity to its betting status.
type Availability map[BookieID]BookieStatus

// NewAvailability sets every id to on for both periods.
func NewAvailability(ids []BookieID, on bool) Availability {
	a := make(Availability, len(ids))
	for _, id := range ids {
		a[id] = BookieStatus{DeadBall: on, RunningBall: on}
	}
	return a
}

// Allows reports whether id may be used in the given period. Unknown ids are
// never allowed.
func (a Availability) Allows(id BookieID, running bool) bool {
	st, ok := a[id]
	if !ok {
		return false
	}
	if running {
		return st.RunningBall
	}
	return st.DeadBall
}

// Apply merges patches per period without overwriting untouched fields.
func (a Availability) Apply(patches map[BookieID]StatusPatch) {
	for id, p := range patches {
		st := a[id]
		if p.DeadBall != nil {
			st.DeadBall = *p.DeadBall
		}
		if p.RunningBall != nil {
			st.RunningBall = *p.RunningBall
		}
		a[id] = st
	}
}

// Clone returns an independent copy for handing to another goroutine.
func (a Availability) Clone() Availability {
	out := make(Availability, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
