package feed

import (
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/record"
)

// logoutPacket is sent by the VIP server when the account is logged out.
const logoutPacket = "LOGOUT\x00"

// Processor turns one feed's packets into record batches.
type Processor interface {
	Source() domain.FeedSource
	// Snapshot handles the first packet of a session. Feeds without a
	// snapshot return false.
	Snapshot(packet []string) (domain.Batch, bool)
	Update(packet []string) (domain.Batch, error)
}

// VIPProcessor handles the VIP feed: a snapshot of match info and initial
// odds followed by incremental odds with per-match update ids. One processor
// serves one session.
type VIPProcessor struct {
	parser  *record.Parser
	tracker *record.UpdateTracker
	filter  *record.MatchFilter
	logger  *slog.Logger
}

// NewVIPProcessor creates a processor with a fresh update tracker.
func NewVIPProcessor(filter *record.MatchFilter, logger *slog.Logger) *VIPProcessor {
	return &VIPProcessor{
		parser:  record.NewParser(),
		tracker: record.NewUpdateTracker(),
		filter:  filter,
		logger:  logger,
	}
}

func (p *VIPProcessor) Source() domain.FeedSource { return domain.FeedVIP }

// Snapshot returns match info records first and initial odds after them.
func (p *VIPProcessor) Snapshot(packet []string) (domain.Batch, bool) {
	var infos, odds []domain.Record
	for _, rec := range p.records(packet) {
		switch r := rec.(type) {
		case domain.MatchInfoRecord:
			if p.keep(r) {
				infos = append(infos, r)
			}
		case domain.InitOddsRecord:
			odds = append(odds, r)
		case domain.UpdateOddsRecord:
			p.logger.Error("incremental odds in snapshot", slog.String("record", r.Raw))
		}
	}
	return domain.Batch{
		Source:   domain.FeedVIP,
		Snapshot: true,
		Records:  append(infos, odds...),
		QueuedAt: time.Now(),
	}, true
}

// Update handles a streaming packet. It returns domain.ErrLoggedOut when the
// server ends the session.
func (p *VIPProcessor) Update(packet []string) (domain.Batch, error) {
	if len(packet) == 1 && packet[0] == logoutPacket {
		return domain.Batch{}, domain.ErrLoggedOut
	}
	var out []domain.Record
	for _, rec := range p.records(packet) {
		switch r := rec.(type) {
		case domain.MatchInfoRecord:
			if p.keep(r) {
				out = append(out, r)
			}
		case domain.InitOddsRecord:
			p.logger.Error("initial odds outside snapshot", slog.String("record", r.Raw))
		case domain.UpdateOddsRecord:
			out = append(out, r)
		}
	}
	return domain.Batch{Source: domain.FeedVIP, Records: out, QueuedAt: time.Now()}, nil
}

// records parses lines and applies the update-id rule. Matches the sport or
// horizon filter drops are still registered, so their later updates pass
// through quietly instead of being reported as unknown.
func (p *VIPProcessor) records(packet []string) []domain.Record {
	out := make([]domain.Record, 0, len(packet))
	for _, line := range packet {
		rec, err := p.parser.ParseVIP(line)
		if err != nil {
			logParseError(p.logger, line, err)
			continue
		}
		switch p.tracker.Observe(rec) {
		case record.Stale:
			continue
		case record.UnknownMatch:
			p.logger.Error("odds update for unknown match", slog.String("match_id", rec.Header().MatchID))
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (p *VIPProcessor) keep(r domain.MatchInfoRecord) bool {
	if !p.filter.SportSupported(r.Info) {
		p.logger.Debug("unsupported sport", slog.String("match_id", r.Info.MatchID), slog.String("league", r.Info.LeagueName))
		return false
	}
	if !p.filter.WithinHorizon(r.Info) {
		p.logger.Debug("match outside horizon", slog.String("match_id", r.Info.MatchID), slog.String("kickoff", r.Info.MatchHKTime))
		return false
	}
	return true
}

// BetfairProcessor handles the Betfair/YY feed, which streams odds only.
type BetfairProcessor struct {
	parser *record.Parser
	logger *slog.Logger
}

// NewBetfairProcessor creates a Betfair processor.
func NewBetfairProcessor(logger *slog.Logger) *BetfairProcessor {
	return &BetfairProcessor{parser: record.NewParser(), logger: logger}
}

func (p *BetfairProcessor) Source() domain.FeedSource { return domain.FeedBetfair }

// Snapshot reports that the feed has none.
func (p *BetfairProcessor) Snapshot([]string) (domain.Batch, bool) { return domain.Batch{}, false }

// Update parses every odds line in packet.
func (p *BetfairProcessor) Update(packet []string) (domain.Batch, error) {
	out := make([]domain.Record, 0, len(packet))
	for _, line := range packet {
		rec, err := p.parser.ParseBetfair(line)
		if err != nil {
			logParseError(p.logger, line, err)
			continue
		}
		out = append(out, rec)
	}
	return domain.Batch{Source: domain.FeedBetfair, Records: out, QueuedAt: time.Now()}, nil
}

func logParseError(logger *slog.Logger, line string, err error) {
	if errors.Is(err, record.ErrNotRecord) {
		return
	}
	logger.Warn("record dropped", slog.String("record", line), slog.String("error", err.Error()))
}
