package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/executor"
	"github.com/alanyoungcy/arbdiscovery/internal/feed"
	"github.com/alanyoungcy/arbdiscovery/internal/pipeline"
	"github.com/alanyoungcy/arbdiscovery/internal/record"
	"github.com/alanyoungcy/arbdiscovery/internal/server"
	"github.com/alanyoungcy/arbdiscovery/internal/server/handler"
	"github.com/alanyoungcy/arbdiscovery/internal/server/ws"
	"github.com/alanyoungcy/arbdiscovery/internal/store/memory"
	"github.com/alanyoungcy/arbdiscovery/internal/strategy"
)

const leaderLockKey = "execution"

// DiscoverMode connects the live feeds and runs discovery until ctx ends.
func (a *App) DiscoverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting discover mode")
	return a.runDiscovery(ctx, deps, false)
}

// ReplayMode runs discovery over a recorded VIP session and returns when the
// recording is exhausted. Orders go to a mock link.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.String("path", a.cfg.Replay.Path),
		slog.Float64("speed", a.cfg.Replay.Speed),
	)
	return a.runDiscovery(ctx, deps, true)
}

func (a *App) runDiscovery(ctx context.Context, deps *Dependencies, replay bool) error {
	cfg := a.cfg
	reg := deps.Registry

	store := memory.NewMatchStore(reg, memory.Options{
		EvictionInterval:    cfg.Discovery.EvictionInterval.Duration,
		IdleTimeout:         cfg.Discovery.IdleTimeout.Duration,
		PriceTTL:            cfg.Discovery.PriceTTL.Duration,
		PriceExpiryInterval: cfg.Discovery.PriceExpiryInterval.Duration,
		FinishedMinute:      memory.DefaultOptions().FinishedMinute,
	}, a.logger)

	runner, err := a.buildRunner(reg)
	if err != nil {
		return err
	}

	var tasks []pipeline.Task
	messenger, err := a.buildMessenger(ctx, deps, replay, &tasks)
	if err != nil {
		return err
	}

	data := make(chan domain.Batch, max(cfg.Discovery.QueueSize, 1))
	feeds, feedTasks := a.buildFeeds(deps, data, replay)
	tasks = append(feedTasks, tasks...)
	tasks = append(tasks, pipeline.Task{Name: "strategy_runner", Run: runner.Start, Fatal: true})

	var hub *ws.Hub
	if cfg.Server.Enabled {
		hub = ws.NewHub(nil, a.logger, ws.Config{Mode: cfg.Mode})
		tasks = append(tasks, pipeline.Task{Name: "ws_hub", Run: hub.Run})
	}

	fanout := pipeline.FanoutOptions{
		Cache:       deps.Cache,
		Bus:         deps.Bus,
		Broker:      deps.Broker,
		AlertProfit: cfg.Notify.MinProfit,
	}
	if deps.Notifier != nil {
		fanout.Alerts = deps.Notifier
	}
	if hub != nil {
		fanout.WS = hub
	}

	var history pipeline.OpportunitySink
	if cfg.History.Enabled && deps.History != nil {
		history = pipeline.NewHistoryLogger(deps.History, reg, pipeline.HistoryConfig{
			NoRepeat:      cfg.History.NoRepeat.Duration,
			PruneInterval: cfg.History.PruneInterval.Duration,
		}, a.logger)
	}

	orch := pipeline.NewOrchestrator(pipeline.Config{
		HeartbeatInterval: cfg.Execution.HeartbeatInterval.Duration,
		LivenessInterval:  cfg.Discovery.LivenessInterval.Duration,
		EmptyQueueSleep:   cfg.Discovery.EmptyQueueSleep.Duration,
		ControlBudget:     cfg.Discovery.ControlBudget.Duration,
		StatsEvery:        pipeline.DefaultConfig().StatsEvery,
		AwaitSnapshot:     true,
	}, pipeline.Deps{
		Store:     store,
		Runner:    runner,
		Messenger: messenger,
		Cooldown:  executor.NewCooldown(),
		Registry:  reg,
		Data:      data,
		Feeds:     feeds,
		// replay has no execution server to report availability
		Availability: domain.NewAvailability(reg.IDs(), replay),
		Presenter:    pipeline.NewFanout(fanout, a.logger),
		History:      history,
	}, a.logger)

	if deps.Bus != nil {
		bridge := pipeline.NewControlBridge(deps.Bus, reg, orch.Controls(), a.logger)
		tasks = append(tasks, pipeline.Task{Name: "control_bridge", Run: bridge.Run})
	}
	if cfg.Server.Enabled {
		srv := a.newServer(deps, hub,
			orchestratorLive{orch},
			handler.NewDiscoveryHandler(store, orch, reg),
		)
		tasks = append(tasks, pipeline.Task{Name: "http_server", Run: srv.Run, Fatal: true})
	}
	for _, t := range tasks {
		orch.AddTask(t)
	}

	// The archiver outlives the orchestrator so its final run picks up the
	// history flushed on shutdown.
	g, gctx := errgroup.WithContext(ctx)
	archCtx, stopArchive := context.WithCancel(context.Background())
	defer stopArchive()
	if deps.Archiver != nil && cfg.History.ArchiveInterval.Duration > 0 {
		arch := pipeline.NewArchiver(deps.Archiver, time.Now().UTC(), a.logger)
		g.Go(func() error {
			err := arch.RunLoop(archCtx, cfg.History.ArchiveInterval.Duration)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		defer stopArchive()
		return orch.Run(gctx)
	})
	err = g.Wait()

	if !replay && cfg.History.UploadRecordings && cfg.VIP.RecordHistory && deps.Recordings != nil {
		upCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		n, upErr := deps.Recordings.Upload(upCtx, cfg.VIP.HistoryDir)
		cancel()
		if upErr != nil {
			a.logger.Error("recording upload failed", slog.String("error", upErr.Error()))
		} else {
			a.logger.Info("recordings uploaded", slog.Int("files", n))
		}
	}
	return err
}

func (a *App) buildRunner(reg *domain.BookieRegistry) (*strategy.Runner, error) {
	ids := make([]domain.StrategyID, len(a.cfg.Discovery.Strategies))
	for i, id := range a.cfg.Discovery.Strategies {
		ids[i] = domain.StrategyID(id)
	}
	registry := strategy.NewDefaultRegistry(strategy.Config{
		Threshold: a.cfg.Discovery.ProfitThreshold,
		Registry:  reg,
	})
	enabled, err := registry.Enabled(ids)
	if err != nil {
		return nil, fmt.Errorf("app: strategies: %w", err)
	}
	names := make([]string, len(enabled))
	for i, s := range enabled {
		names[i] = s.Name()
	}
	a.logger.Info("strategies enabled", slog.Any("strategies", names))

	return strategy.NewRunner(enabled, strategy.RunnerOptions{
		Parallel:     a.cfg.Discovery.Parallel,
		AsyncCross:   a.cfg.Discovery.AsyncCrossHandicap,
		DeadBallOnly: a.cfg.Discovery.DeadBallOnly,
	}, a.logger), nil
}

// buildFeeds creates the VIP worker and, outside replay, the Betfair worker
// that connects once the VIP snapshot is in.
func (a *App) buildFeeds(deps *Dependencies, out chan<- domain.Batch, replay bool) (map[domain.FeedSource]pipeline.FeedController, []pipeline.Task) {
	cfg := a.cfg
	feeds := make(map[domain.FeedSource]pipeline.FeedController)
	var tasks []pipeline.Task

	gate := feed.NewSnapshotGate()
	filter := record.NewMatchFilter(cfg.VIP.Sports, cfg.VIP.Horizon.Duration)

	vipCfg := feed.WorkerConfig{
		Endpoint:       feed.Endpoint{Host: cfg.VIP.Host, Port: cfg.VIP.Port},
		ReconnectDelay: cfg.VIP.ReconnectDelay.Duration,
	}
	sessions := feed.TCPSessions(
		feed.VIPHandshake(cfg.VIP.Username, cfg.VIP.Password),
		cfg.VIP.DialTimeout.Duration, cfg.VIP.ReadTimeout.Duration, a.logger,
	)
	if replay {
		sessions = feed.ReplaySessions(cfg.Replay.Path, cfg.Replay.Speed, deps.BlobReader)
		vipCfg.Replay = true
	} else if cfg.VIP.RecordHistory {
		vipCfg.HistoryDir = cfg.VIP.HistoryDir
	}
	vip := feed.NewWorker(vipCfg, sessions, func() feed.Processor {
		return feed.NewVIPProcessor(filter, a.logger)
	}, out, a.logger)
	vip.OpensGate(gate)
	feeds[domain.FeedVIP] = vip
	tasks = append(tasks, pipeline.Task{Name: "feed_vip", Run: vip.Run, Source: true})

	if replay || !cfg.Betfair.Enabled {
		return feeds, tasks
	}
	bf := feed.NewWorker(feed.WorkerConfig{
		Endpoint:       feed.Endpoint{Host: cfg.Betfair.Host, Port: cfg.Betfair.Port},
		ReconnectDelay: cfg.Betfair.ReconnectDelay.Duration,
	}, feed.TCPSessions(
		feed.BetfairHandshake(cfg.Betfair.APIVersion, cfg.Betfair.Username, cfg.Betfair.Password),
		cfg.Betfair.DialTimeout.Duration, cfg.Betfair.ReadTimeout.Duration, a.logger,
	), func() feed.Processor {
		return feed.NewBetfairProcessor(a.logger)
	}, out, a.logger)
	bf.WaitsFor(gate)
	feeds[domain.FeedBetfair] = bf
	tasks = append(tasks, pipeline.Task{Name: "feed_betfair", Run: bf.Run, Source: true})
	return feeds, tasks
}

// buildMessenger picks the execution link. Real orders need send_orders and,
// with leader_lock, the Redis lock; a standby process gets the mock link.
func (a *App) buildMessenger(ctx context.Context, deps *Dependencies, replay bool, tasks *[]pipeline.Task) (executor.Messenger, error) {
	cfg := a.cfg.Execution
	if replay {
		m := executor.NewMockMessenger(a.logger)
		*tasks = append(*tasks, pipeline.Task{Name: "execution", Run: m.Run})
		return m, nil
	}
	if !cfg.Enabled {
		a.logger.Warn("execution link disabled; opportunities are published only")
		return nil, nil
	}
	if !cfg.SendOrders {
		m := executor.NewMockMessenger(a.logger)
		*tasks = append(*tasks, pipeline.Task{Name: "execution", Run: m.Run})
		return m, nil
	}

	if cfg.LeaderLock && deps.Locks != nil {
		lost, release, err := deps.Locks.Hold(ctx, leaderLockKey, cfg.LeaderLockTTL.Duration)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			a.logger.Warn("another process holds the execution lock; running on the mock link")
			m := executor.NewMockMessenger(a.logger)
			*tasks = append(*tasks, pipeline.Task{Name: "execution", Run: m.Run})
			return m, nil
		case err != nil:
			return nil, fmt.Errorf("app: leader lock: %w", err)
		}
		a.onClose(release)
		*tasks = append(*tasks, pipeline.Task{Name: "leader_lock", Fatal: true, Run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return nil
			case <-lost:
				return errors.New("execution lock lost")
			}
		}})
	}

	m := executor.NewTCPMessenger(executor.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Username:       cfg.Username,
		Password:       cfg.Password,
		APIVersion:     cfg.APIVersion,
		AppVersion:     cfg.AppVersion,
		ReconnectDelay: cfg.ReconnectDelay.Duration,
	}, deps.Registry, a.logger)
	*tasks = append(*tasks, pipeline.Task{Name: "execution", Run: m.Run, Fatal: true})
	return m, nil
}

func (a *App) newServer(deps *Dependencies, hub *ws.Hub, live handler.LiveSource, discovery *handler.DiscoveryHandler) *server.Server {
	cfg := a.cfg.Server
	var stream handler.StreamReader
	if deps.Bus != nil {
		stream = deps.Bus
	}
	return server.NewServer(server.Config{
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
		APIKey:      cfg.APIKey,
		RateLimit:   cfg.RateLimit,
		Limiter:     deps.Limiter,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, a.logger, deps.Checks...),
		Opportunities: handler.NewOpportunityHandler(live, deps.History, a.logger),
		Discovery:     discovery,
		Stream:        handler.NewStreamHandler(stream, pipeline.StreamOpportunities, a.logger),
	}, hub, a.logger)
}

// ServerMode serves the API over what a discovery process publishes to Redis
// and Postgres. Websocket clients get the bus channels relayed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	hubCfg := ws.Config{Mode: a.cfg.Mode}
	if deps.Bus != nil {
		hubCfg.Relay = map[string]string{
			pipeline.ChannelOpportunities: ws.ChannelOpportunities,
			pipeline.ChannelStats:         ws.ChannelStats,
		}
	}
	hub := ws.NewHub(deps.Bus, a.logger, hubCfg)

	var live handler.LiveSource
	if deps.Cache != nil {
		live = cacheLive{deps.Cache}
	}
	// match state lives in the discovery process only
	srv := a.newServer(deps, hub, live, handler.NewDiscoveryHandler(nil, nil, deps.Registry))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := hub.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}

// orchestratorLive reads the in-process discovery state.
type orchestratorLive struct{ o *pipeline.Orchestrator }

func (l orchestratorLive) Live(context.Context) ([]domain.Summary, error) { return l.o.Live(), nil }

func (l orchestratorLive) Stats(context.Context) (domain.PipelineStats, error) {
	return l.o.Stats(), nil
}

// cacheLive reads the snapshot a discovery process keeps in Redis.
type cacheLive struct{ c domain.OpportunityCache }

func (l cacheLive) Live(ctx context.Context) ([]domain.Summary, error) { return l.c.GetLive(ctx) }

func (l cacheLive) Stats(ctx context.Context) (domain.PipelineStats, error) {
	s, err := l.c.GetStats(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PipelineStats{}, nil
	}
	return s, err
}
