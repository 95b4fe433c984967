package domain

import (
	"strings"
	"time"
)

// Sport is the coarse sport classification derived from league and team names.
type Sport string

const (
	SportFootball   Sport = "football"
	SportBasketball Sport = "basketball"
)

// HKTimeLayout is the layout of kickoff times on the VIP feed.
const HKTimeLayout = "2006-01-02 15:04:05"

// HKZone is Hong Kong time, which every feed timestamp is expressed in.
var HKZone = time.FixedZone("HKT", 8*60*60)

// NoScore is the score sentinel used before a match is running.
const NoScore = -1

// MatchInfo is the descriptive part of a match as published on the VIP feed.
type MatchInfo struct {
	MatchID          string `json:"match_id"`
	LeagueID         string `json:"league_id"`
	LeagueName       string `json:"league_name"`
	LeagueNameSimp   string `json:"league_name_simp"`
	LeagueNameTrad   string `json:"league_name_trad"`
	HomeTeamID       string `json:"home_team_id"`
	HomeTeamName     string `json:"home_team_name"`
	HomeTeamNameSimp string `json:"home_team_name_simp"`
	HomeTeamNameTrad string `json:"home_team_name_trad"`
	AwayTeamID       string `json:"away_team_id"`
	AwayTeamName     string `json:"away_team_name"`
	AwayTeamNameSimp string `json:"away_team_name_simp"`
	AwayTeamNameTrad string `json:"away_team_name_trad"`
	MatchHKTime      string `json:"match_hk_time"`
	GroupColor       string `json:"group_color"`
	InRunning        bool   `json:"is_in_running"`
	HomeScore        int    `json:"home_team_score"`
	AwayScore        int    `json:"away_team_score"`
	RunningTime      string `json:"running_time"`
	WillRun          string `json:"will_run"`
	HomeRedCards     string `json:"home_team_red_card"`
	AwayRedCards     string `json:"away_team_red_card"`
}

// GoalDiff is home minus away score. Both sentinels cancel out before kickoff.
func (m MatchInfo) GoalDiff() int { return m.HomeScore - m.AwayScore }

// Kickoff parses MatchHKTime in Hong Kong time.
func (m MatchInfo) Kickoff() (time.Time, error) {
	return time.ParseInLocation(HKTimeLayout, m.MatchHKTime, HKZone)
}

// Sport classifies the match from its league and team names.
func (m MatchInfo) Sport() Sport {
	league := strings.ToUpper(m.LeagueName)
	switch {
	case strings.HasSuffix(league, "[B]"),
		strings.HasPrefix(league, "NBA "),
		league == "WNBA", league == "NBA", league == "NCAA", league == "CBA",
		strings.HasSuffix(strings.ToUpper(m.HomeTeamName), "[B]"),
		strings.HasSuffix(strings.ToUpper(m.AwayTeamName), "[B]"):
		return SportBasketball
	}
	return SportFootball
}

// SecondHalfPast reports whether the running-time text says the second half
// has reached minute, e.g. "2h 47".
func (m MatchInfo) SecondHalfPast(minute int) bool {
	parts := strings.Fields(m.RunningTime)
	if len(parts) < 2 || parts[0] != "2h" {
		return false
	}
	n := 0
	for _, c := range parts[1] {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n >= minute
}

// MatchView is a read-only snapshot of one match handed to strategies.
type MatchView struct {
	Info MatchInfo
	Odds Odds
}

// GoalDiff is the live score differential.
func (v MatchView) GoalDiff() int { return v.Info.GoalDiff() }

// Running reports whether the match is in play.
func (v MatchView) Running() bool { return v.Info.InRunning }
