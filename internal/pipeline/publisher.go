package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Bus channel and stream names.
const (
	ChannelOpportunities = "arbd:opportunities"
	ChannelStats         = "arbd:stats"
	ChannelControls      = "arbd:controls"
	StreamOpportunities  = "arbd:opportunities"
)

// Alerter delivers operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Broadcaster pushes events to connected presentation clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// FanoutOptions lists the optional sinks of a Fanout. Nil sinks are skipped.
type FanoutOptions struct {
	Cache  domain.OpportunityCache
	Bus    domain.SignalBus
	Broker domain.OpportunityPublisher
	Alerts Alerter
	WS     Broadcaster
	// AlertProfit is the minimum profit of a new opportunity worth an alert.
	AlertProfit float64
}

// Fanout publishes discovery output to every configured sink. Sink failures
// are logged and never reach the discovery loop.
type Fanout struct {
	opts   FanoutOptions
	logger *slog.Logger
	seen   map[string]struct{}
}

// NewFanout creates a Fanout.
func NewFanout(opts FanoutOptions, logger *slog.Logger) *Fanout {
	return &Fanout{
		opts:   opts,
		logger: logger.With(slog.String("component", "fanout")),
		seen:   make(map[string]struct{}),
	}
}

// PublishOpportunities implements Presenter.
func (f *Fanout) PublishOpportunities(ctx context.Context, opps []domain.Opportunity, summaries []domain.Summary) {
	if f.opts.Cache != nil {
		if err := f.opts.Cache.SetLive(ctx, summaries); err != nil {
			f.logger.Warn("live snapshot write failed", slog.String("error", err.Error()))
		}
	}
	if f.opts.Bus != nil && len(summaries) > 0 {
		payload, err := json.Marshal(summaries)
		if err != nil {
			f.logger.Error("marshal summaries", slog.String("error", err.Error()))
		} else {
			if err := f.opts.Bus.Publish(ctx, ChannelOpportunities, payload); err != nil {
				f.logger.Warn("bus publish failed", slog.String("error", err.Error()))
			}
			if err := f.opts.Bus.StreamAppend(ctx, StreamOpportunities, payload); err != nil {
				f.logger.Warn("stream append failed", slog.String("error", err.Error()))
			}
		}
	}
	if f.opts.Broker != nil && len(opps) > 0 {
		if err := f.opts.Broker.PublishOpportunities(ctx, opps); err != nil {
			f.logger.Warn("broker publish failed", slog.String("error", err.Error()))
		}
	}
	if f.opts.WS != nil {
		f.opts.WS.Broadcast("opportunities", summaries)
	}
	f.alertNew(ctx, opps, summaries)
}

// alertNew notifies opportunities that were not live in the previous cycle.
func (f *Fanout) alertNew(ctx context.Context, opps []domain.Opportunity, summaries []domain.Summary) {
	current := make(map[string]struct{}, len(opps))
	for i, o := range opps {
		k := o.Key()
		current[k] = struct{}{}
		if _, ok := f.seen[k]; ok || f.opts.Alerts == nil || o.Profit < f.opts.AlertProfit {
			continue
		}
		s := summaries[i]
		title := fmt.Sprintf("Arb %s: %s vs %s", s.ProfitPct, s.Home, s.Away)
		if err := f.opts.Alerts.Notify(ctx, "opportunity", title, formatSummary(s)); err != nil {
			f.logger.Warn("opportunity alert failed", slog.String("error", err.Error()))
		}
	}
	f.seen = current
}

func formatSummary(s domain.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %d-%d  strategy %d\n", s.League, s.HomeScore, s.AwayScore, s.StrategyID)
	for _, sel := range s.Selections {
		fmt.Fprintf(&b, "%s %s %s @ %v stake %v (%s)\n", sel.Half, sel.Label, sel.Subtype, sel.RawOdds, sel.Stake, sel.Bookie)
	}
	b.WriteString(s.OccurredAtHK)
	return b.String()
}

// PublishStats implements Presenter.
func (f *Fanout) PublishStats(ctx context.Context, stats domain.PipelineStats) {
	if f.opts.Cache != nil {
		if err := f.opts.Cache.SetStats(ctx, stats); err != nil {
			f.logger.Warn("stats write failed", slog.String("error", err.Error()))
		}
	}
	if f.opts.Bus != nil {
		if payload, err := json.Marshal(stats); err == nil {
			if err := f.opts.Bus.Publish(ctx, ChannelStats, payload); err != nil {
				f.logger.Warn("stats publish failed", slog.String("error", err.Error()))
			}
		}
	}
	if f.opts.WS != nil {
		f.opts.WS.Broadcast("stats", stats)
	}
}

// LinkStatus implements Presenter.
func (f *Fanout) LinkStatus(ctx context.Context, link string, up bool) {
	state := "down"
	if up {
		state = "up"
	}
	if f.opts.WS != nil {
		f.opts.WS.Broadcast("links", map[string]any{"link": link, "up": up})
	}
	if f.opts.Alerts == nil {
		return
	}
	if err := f.opts.Alerts.Notify(ctx, "link", fmt.Sprintf("Link %s %s", link, state), fmt.Sprintf("%s is %s", link, state)); err != nil {
		f.logger.Warn("link alert failed", slog.String("error", err.Error()))
	}
}
