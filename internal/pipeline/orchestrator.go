package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/executor"
	"github.com/alanyoungcy/arbdiscovery/internal/feed"
	"github.com/alanyoungcy/arbdiscovery/internal/store/memory"
	"github.com/alanyoungcy/arbdiscovery/internal/strategy"
)

// FeedController is the orchestrator's handle on a running feed worker.
type FeedController interface {
	Switch(ep feed.Endpoint)
	Alive() bool
}

// Presenter receives what the discovery loop produces for outside readers.
type Presenter interface {
	PublishOpportunities(ctx context.Context, opps []domain.Opportunity, summaries []domain.Summary)
	PublishStats(ctx context.Context, stats domain.PipelineStats)
	LinkStatus(ctx context.Context, link string, up bool)
}

// OpportunitySink sees the full opportunity list of every cycle.
type OpportunitySink interface {
	Observe(ctx context.Context, opps []domain.Opportunity, now time.Time)
	Flush(ctx context.Context, now time.Time)
}

// Task is a background goroutine supervised alongside the discovery loop.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	// Fatal tasks stop the whole pipeline when they fail.
	Fatal bool
	// Source tasks produce the data queue; once every source has returned
	// the loop drains what is left and stops.
	Source bool
}

// Config tunes the discovery loop.
type Config struct {
	HeartbeatInterval time.Duration
	LivenessInterval  time.Duration
	EmptyQueueSleep   time.Duration
	ControlBudget     time.Duration
	// StatsEvery is the number of packets between stats publications.
	StatsEvery int
	// AwaitSnapshot holds strategies back until the VIP snapshot is applied.
	AwaitSnapshot bool
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		LivenessInterval:  10 * time.Second,
		EmptyQueueSleep:   20 * time.Millisecond,
		ControlBudget:     500 * time.Millisecond,
		StatsEvery:        100,
		AwaitSnapshot:     true,
	}
}

// Deps are the collaborators of the discovery loop.
type Deps struct {
	Store        *memory.MatchStore
	Runner       *strategy.Runner
	Messenger    executor.Messenger
	Cooldown     *executor.Cooldown
	Registry     *domain.BookieRegistry
	Data         <-chan domain.Batch
	Feeds        map[domain.FeedSource]FeedController
	Availability domain.Availability
	Presenter    Presenter
	History      OpportunitySink
}

// Orchestrator drives the ingest, detect, filter and dispatch cycle. The loop is
// the only writer of the match store and the availability map.
type Orchestrator struct {
	cfg      Config
	deps     Deps
	tasks    []Task
	controls chan domain.Control
	logger   *slog.Logger
	now      func() time.Time

	sourcesLeft int
	sourcesDone chan struct{}
	doneOnce    sync.Once

	mu    sync.RWMutex
	avail domain.Availability
	live  []domain.Summary
	stats domain.PipelineStats

	hadLive      bool
	lastSent     time.Time
	lastLiveness time.Time
	linkUp       map[string]bool
	packets      int64
	depthSum     int
	depthSamples int
}

// NewOrchestrator creates the discovery loop. deps.Availability is taken over by the loop.
func NewOrchestrator(cfg Config, deps Deps, logger *slog.Logger) *Orchestrator {
	if cfg.StatsEvery <= 0 {
		cfg.StatsEvery = 100
	}
	if deps.Availability == nil {
		deps.Availability = domain.Availability{}
	}
	return &Orchestrator{
		cfg:         cfg,
		deps:        deps,
		controls:    make(chan domain.Control, 64),
		logger:      logger.With(slog.String("component", "discovery")),
		now:         time.Now,
		sourcesDone: make(chan struct{}),
		avail:       deps.Availability,
		linkUp:      make(map[string]bool),
	}
}

// SetClock replaces the time source. Used by replay and tests.
func (d *Orchestrator) SetClock(now func() time.Time) { d.now = now }

// AddTask registers a background task. It must be called before Run.
func (d *Orchestrator) AddTask(t Task) {
	if t.Source {
		d.sourcesLeft++
	}
	d.tasks = append(d.tasks, t)
}

// Controls accepts control messages from sources other than the execution
// link.
func (d *Orchestrator) Controls() chan<- domain.Control { return d.controls }

// Availability returns a copy of the current bookie availability.
func (d *Orchestrator) Availability() domain.Availability {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.avail.Clone()
}

// Live returns the summaries of the last cycle's opportunities.
func (d *Orchestrator) Live() []domain.Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.Summary(nil), d.live...)
}

// Stats returns the latest ingestion counters.
func (d *Orchestrator) Stats() domain.PipelineStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

// Run starts every task and the loop, and blocks until ctx ends, a fatal
// task fails or all sources are exhausted. Still-live opportunities are
// flushed to history on the way out.
func (d *Orchestrator) Run(ctx context.Context) error {
	d.logger.Info("discovery starting", slog.Int("tasks", len(d.tasks)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var left sync.Mutex
	for _, t := range d.tasks {
		g.Go(func() error {
			err := t.Run(gctx)
			if t.Source {
				left.Lock()
				d.sourcesLeft--
				if d.sourcesLeft == 0 {
					d.doneOnce.Do(func() { close(d.sourcesDone) })
				}
				left.Unlock()
			}
			if gctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			d.logger.Error("task stopped", slog.String("task", t.Name), slog.String("error", err.Error()))
			if t.Fatal {
				return fmt.Errorf("%s: %w", t.Name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return d.loop(gctx)
	})

	err := g.Wait()

	if d.deps.History != nil {
		flushCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		d.deps.History.Flush(flushCtx, d.now())
		done()
	}
	if err != nil {
		d.logger.Error("discovery stopped with error", slog.String("error", err.Error()))
		return err
	}
	d.logger.Info("discovery stopped cleanly", slog.Int64("packets", d.packets))
	return nil
}

func (d *Orchestrator) loop(ctx context.Context) error {
	d.lastSent = d.now()
	if d.cfg.AwaitSnapshot {
		if err := d.awaitSnapshot(ctx); err != nil {
			if ctx.Err() == nil {
				d.logger.Warn("no snapshot", slog.String("error", err.Error()))
			}
			return nil
		}
		d.cycle(ctx, d.now())
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		now := d.now()
		d.checkLiveness(ctx, now)
		d.drainControls()

		batches := d.drainData()
		if len(batches) == 0 {
			d.sendOrHeartbeat(ctx, nil, now)
			select {
			case <-ctx.Done():
				return nil
			case <-d.sourcesDone:
				if len(d.deps.Data) == 0 {
					d.logger.Info("all sources finished")
					return nil
				}
			case <-time.After(d.cfg.EmptyQueueSleep):
			}
			continue
		}
		for _, b := range batches {
			d.apply(ctx, b)
		}
		d.cycle(ctx, d.now())
	}
}

// awaitSnapshot applies batches until the first snapshot has been applied.
func (d *Orchestrator) awaitSnapshot(ctx context.Context) error {
	d.logger.Info("waiting for initial snapshot")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.sourcesDone:
			if len(d.deps.Data) == 0 {
				return errors.New("sources finished before snapshot")
			}
		case b := <-d.deps.Data:
			d.apply(ctx, b)
			if b.Snapshot {
				d.logger.Info("initial snapshot applied", slog.Int("matches", d.deps.Store.Len()))
				return nil
			}
		}
	}
}

func (d *Orchestrator) drainData() []domain.Batch {
	var out []domain.Batch
	for {
		select {
		case b := <-d.deps.Data:
			out = append(out, b)
		default:
			return out
		}
	}
}

// apply folds one batch into the store and accounts it for the stats.
func (d *Orchestrator) apply(ctx context.Context, b domain.Batch) {
	n := d.deps.Store.ApplyBatch(b)
	if b.Snapshot {
		d.logger.Info("snapshot applied", slog.String("feed", string(b.Source)), slog.Int("records", n))
	}
	d.packets++
	d.depthSum += len(d.deps.Data)
	d.depthSamples++
	if d.packets%int64(d.cfg.StatsEvery) != 0 {
		return
	}
	stats := domain.PipelineStats{
		PacketCount:   d.packets,
		AvgQueueDepth: float64(d.depthSum) / float64(d.depthSamples),
		Matches:       d.deps.Store.Len(),
		UpdatedAt:     d.now(),
	}
	d.depthSum, d.depthSamples = 0, 0
	d.mu.Lock()
	stats.Opportunities = len(d.live)
	d.stats = stats
	d.mu.Unlock()
	if d.deps.Presenter != nil {
		d.deps.Presenter.PublishStats(ctx, stats)
	}
}

// cycle runs housekeeping, the strategies and dispatch after new data.
func (d *Orchestrator) cycle(ctx context.Context, now time.Time) {
	if evicted := d.deps.Store.EvictFinished(); len(evicted) > 0 {
		n := d.deps.Cooldown.Cleanup(func(id string) bool {
			_, ok := d.deps.Store.Match(id)
			return ok
		})
		d.logger.Info("finished matches evicted", slog.Int("matches", len(evicted)), slog.Int("cooldown_entries", n))
	}
	d.deps.Store.ExpireRunningPrices()

	opps, err := d.deps.Runner.Run(ctx, d.deps.Store.Views(), d.avail)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("strategy run failed", slog.String("error", err.Error()))
		}
		return
	}

	summaries := make([]domain.Summary, len(opps))
	for i, o := range opps {
		summaries[i] = o.Summarize(d.deps.Registry)
	}
	d.mu.Lock()
	d.live = summaries
	d.mu.Unlock()

	if d.deps.History != nil {
		d.deps.History.Observe(ctx, opps, now)
	}
	// one empty publication clears downstream snapshots
	if (len(opps) > 0 || d.hadLive) && d.deps.Presenter != nil {
		d.deps.Presenter.PublishOpportunities(ctx, opps, summaries)
	}
	d.hadLive = len(opps) > 0

	keep, unsendable := d.deps.Cooldown.Filter(opps, now)
	for _, err := range unsendable {
		d.logger.Error("opportunity dropped", slog.String("error", err.Error()))
	}
	d.sendOrHeartbeat(ctx, keep, now)
}

// sendOrHeartbeat sends opps, or a heartbeat when nothing was sent within the
// heartbeat interval. A failed write drops the link for a full reconnect.
func (d *Orchestrator) sendOrHeartbeat(ctx context.Context, opps []domain.Opportunity, now time.Time) {
	m := d.deps.Messenger
	if m == nil {
		return
	}
	if len(opps) > 0 {
		if err := m.Send(ctx, opps); err != nil {
			d.logger.Error("order send failed", slog.String("error", err.Error()), slog.Int("orders", len(opps)))
			m.Reconnect("send failed")
			return
		}
		d.lastSent = now
		return
	}
	if now.Sub(d.lastSent) < d.cfg.HeartbeatInterval || !m.Connected() {
		return
	}
	if err := m.Heartbeat(ctx); err != nil {
		d.logger.Error("heartbeat failed", slog.String("error", err.Error()))
		m.Reconnect("heartbeat failed")
		return
	}
	d.lastSent = now
}

// drainControls handles every queued control message.
func (d *Orchestrator) drainControls() {
	start := time.Now()
	handled := 0
	var ext <-chan domain.Control
	if d.deps.Messenger != nil {
		ext = d.deps.Messenger.Controls()
	}
	for {
		var c domain.Control
		select {
		case c = <-d.controls:
		case c = <-ext:
		default:
			if elapsed := time.Since(start); elapsed > d.cfg.ControlBudget {
				d.logger.Warn("slow control processing", slog.Duration("elapsed", elapsed), slog.Int("controls", handled))
			}
			return
		}
		d.handleControl(c)
		handled++
	}
}

func (d *Orchestrator) handleControl(c domain.Control) {
	switch c := c.(type) {
	case domain.AvailabilityUpdate:
		d.mu.Lock()
		d.avail.Apply(c.Patches)
		d.mu.Unlock()
		d.logger.Info("availability updated", slog.Int("bookies", len(c.Patches)))
	case domain.CooldownRelease:
		if missing := d.deps.Cooldown.Release(c.Key, c.Fingerprints); missing > 0 {
			d.logger.Warn("cooldown release for unknown fingerprints",
				slog.String("match_id", c.Key.MatchID),
				slog.Int("missing", missing))
		}
	case domain.FeedSwitch:
		f, ok := d.deps.Feeds[c.Feed]
		if !ok {
			d.logger.Warn("switch for feed not running", slog.String("feed", string(c.Feed)))
			return
		}
		f.Switch(feed.Endpoint{Host: c.Host, Port: c.Port})
	case domain.RestartMessenger:
		if d.deps.Messenger != nil {
			d.deps.Messenger.Reconnect(c.Reason)
		}
	default:
		d.logger.Warn("unknown control", slog.String("type", fmt.Sprintf("%T", c)))
	}
}

// checkLiveness reports link transitions. Reconnection itself is owned by
// each worker's run loop.
func (d *Orchestrator) checkLiveness(ctx context.Context, now time.Time) {
	if now.Sub(d.lastLiveness) < d.cfg.LivenessInterval {
		return
	}
	d.lastLiveness = now
	links := make(map[string]bool, len(d.deps.Feeds)+1)
	for src, f := range d.deps.Feeds {
		links["feed_"+string(src)] = f.Alive()
	}
	if d.deps.Messenger != nil {
		links["execution"] = d.deps.Messenger.Connected()
	}
	for name, up := range links {
		prev, seen := d.linkUp[name]
		d.linkUp[name] = up
		if seen && prev == up {
			continue
		}
		if !up {
			d.logger.Warn("link down", slog.String("link", name))
		}
		if d.deps.Presenter != nil && seen {
			d.deps.Presenter.LinkStatus(ctx, name, up)
		}
	}
}
