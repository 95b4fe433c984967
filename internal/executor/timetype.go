package executor

import (
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Time types used by the execution system to bucket matches.
const (
	TimeTypeToday   = 0
	TimeTypeRunning = 1
	TimeTypeEarly   = 2
)

// TimeType classifies a match relative to now in HK time: running, today
// (including tomorrow morning once today's noon has passed), or early.
func TimeType(m domain.OpportunityMatch, now time.Time) int {
	if m.InRunning {
		return TimeTypeRunning
	}
	kickoff, err := time.ParseInLocation(domain.HKTimeLayout, m.MatchHKTime, domain.HKZone)
	if err != nil {
		return TimeTypeEarly
	}
	now = now.In(domain.HKZone)
	today := dateOf(now)
	day := dateOf(kickoff)
	switch {
	case day.Equal(today):
		return TimeTypeToday
	case day.Equal(today.AddDate(0, 0, 1)) && kickoff.Hour() < 12 && now.Hour() >= 12 && afterNoon(now):
		return TimeTypeToday
	}
	return TimeTypeEarly
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, domain.HKZone)
}

// afterNoon is strictly past 12:00:00.
func afterNoon(t time.Time) bool {
	return t.Hour() > 12 || t.Minute() > 0 || t.Second() > 0 || t.Nanosecond() > 0
}
