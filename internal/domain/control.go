package domain

// CooldownKey scopes cool-down fingerprints to one match state.
type CooldownKey struct {
	TimeType  int
	MatchID   string
	HomeScore int
	AwayScore int
}

// Control is an inbound instruction from the execution system that the
// orchestrator must act on.
type Control interface {
	control()
}

// AvailabilityUpdate carries merged NS toggles.
type AvailabilityUpdate struct {
	Patches map[BookieID]StatusPatch
}

// FeedSwitch moves a feed to a new endpoint.
type FeedSwitch struct {
	Feed FeedSource
	Host string
	Port int
}

// CooldownRelease lifts cool-down on specific fingerprints of one match state.
type CooldownRelease struct {
	Key          CooldownKey
	Fingerprints []string
}

// RestartMessenger asks the orchestrator to reconnect the execution channel.
type RestartMessenger struct {
	Reason string
}

func (AvailabilityUpdate) control() {}
func (FeedSwitch) control()         {}
func (CooldownRelease) control()    {}
func (RestartMessenger) control()   {}
