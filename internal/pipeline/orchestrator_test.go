package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/executor"
	"github.com/alanyoungcy/arbdiscovery/internal/feed"
	"github.com/alanyoungcy/arbdiscovery/internal/record"
	"github.com/alanyoungcy/arbdiscovery/internal/store/memory"
	"github.com/alanyoungcy/arbdiscovery/internal/strategy"
)

const testMatch = "972960"

func matchLine() string {
	f := []string{
		testMatch, "891", "Europa Cup", "欧霸杯", "歐霸盃",
		"1348", "Wolfsburg", "沃尔夫斯堡", "沃爾夫斯堡",
		"1012", "Napoli", "那不勒斯", "拿玻里",
		"2015-04-17 03:05:00", "#6F00DD", "0", "0", "0", "", "1", "-1", "-1",
	}
	return "M" + strings.Join(f, "|")
}

func batch(t *testing.T, snapshot bool, lines ...string) domain.Batch {
	t.Helper()
	p := record.NewParser()
	b := domain.Batch{Source: domain.FeedVIP, Snapshot: snapshot}
	for _, l := range lines {
		rec, err := p.ParseVIP(l)
		require.NoError(t, err)
		b.Records = append(b.Records, rec)
	}
	return b
}

// arbSnapshot holds one AH line with a 1.2% arb between bookies 15 and 52.
func arbSnapshot(t *testing.T) domain.Batch {
	return batch(t, true,
		matchLine(),
		"O0|5|"+testMatch+"|15|a!A1|2.05|1.90|-2|0",
		"O0|5|"+testMatch+"|52|b!B1|1.95|2.00|-2|0",
	)
}

type harness struct {
	orch      *Orchestrator
	data      chan domain.Batch
	messenger *fakeMessenger
	presenter *fakePresenter
	sink      *fakeSink
	feed      *fakeFeed
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	reg := domain.DefaultBookieRegistry()
	scfg := strategy.Config{Threshold: 0.01, Registry: reg}
	h := &harness{
		data:      make(chan domain.Batch, 8),
		messenger: newFakeMessenger(),
		presenter: &fakePresenter{},
		sink:      &fakeSink{},
		feed:      &fakeFeed{alive: true},
	}
	h.orch = NewOrchestrator(cfg, Deps{
		Store:        memory.NewMatchStore(reg, memory.DefaultOptions(), discard),
		Runner:       strategy.NewRunner([]strategy.Strategy{strategy.NewDirect(scfg)}, strategy.RunnerOptions{}, discard),
		Messenger:    h.messenger,
		Cooldown:     executor.NewCooldown(),
		Registry:     reg,
		Data:         h.data,
		Feeds:        map[domain.FeedSource]FeedController{domain.FeedVIP: h.feed},
		Availability: domain.NewAvailability(reg.IDs(), true),
		Presenter:    h.presenter,
		History:      h.sink,
	}, discard)
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EmptyQueueSleep = time.Millisecond
	cfg.HeartbeatInterval = time.Hour
	return cfg
}

func (h *harness) start(t *testing.T) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestOrchestratorSendsThenCoolsDown(t *testing.T) {
	h := newHarness(t, testConfig())
	h.data <- arbSnapshot(t)
	cancel, done := h.start(t)

	require.Eventually(t, func() bool {
		sends, _, _ := h.messenger.snapshot()
		return sends == 1
	}, time.Second, time.Millisecond)

	h.messenger.mu.Lock()
	opp := h.messenger.sends[0][0]
	h.messenger.mu.Unlock()
	assert.Equal(t, domain.StrategyDirect, opp.StrategyID)
	assert.Equal(t, testMatch, opp.Match.MatchID)

	// same prices again: suppressed by cool-down
	h.data <- batch(t, false, "o1|0|5|"+testMatch+"|15|a!A1|2.05|1.90|-2|0")
	require.Eventually(t, func() bool { return h.presenter.published() >= 2 }, time.Second, time.Millisecond)
	sends, _, _ := h.messenger.snapshot()
	assert.Equal(t, 1, sends)

	// a price change lifts it
	h.data <- batch(t, false, "o2|0|5|"+testMatch+"|15|a!A1|2.06|1.90|-2|0")
	require.Eventually(t, func() bool {
		sends, _, _ := h.messenger.snapshot()
		return sends == 2
	}, time.Second, time.Millisecond)

	assert.Len(t, h.orch.Live(), 1)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, h.sink.flushed)
	assert.GreaterOrEqual(t, h.sink.observed, 3)
}

func TestOrchestratorHeartbeatWhenIdle(t *testing.T) {
	cfg := testConfig()
	cfg.AwaitSnapshot = false
	cfg.HeartbeatInterval = 2 * time.Millisecond
	h := newHarness(t, cfg)
	cancel, done := h.start(t)

	require.Eventually(t, func() bool {
		_, hb, _ := h.messenger.snapshot()
		return hb >= 2
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestOrchestratorReconnectsOnSendFailure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.messenger.failSend = true
	h.data <- arbSnapshot(t)
	h.start(t)

	require.Eventually(t, func() bool {
		_, _, rc := h.messenger.snapshot()
		return rc == 1
	}, time.Second, time.Millisecond)
	h.messenger.mu.Lock()
	assert.Equal(t, "send failed", h.messenger.reconnects[0])
	h.messenger.mu.Unlock()
}

func TestOrchestratorAppliesControls(t *testing.T) {
	cfg := testConfig()
	cfg.AwaitSnapshot = false
	h := newHarness(t, cfg)
	h.start(t)

	off := false
	h.orch.Controls() <- domain.AvailabilityUpdate{Patches: map[domain.BookieID]domain.StatusPatch{"15": {DeadBall: &off}}}
	h.messenger.controls <- domain.FeedSwitch{Feed: domain.FeedVIP, Host: "10.0.0.2", Port: 9000}
	h.messenger.controls <- domain.RestartMessenger{Reason: "operator"}

	require.Eventually(t, func() bool {
		st := h.orch.Availability()["15"]
		return !st.DeadBall && st.RunningBall
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		h.feed.mu.Lock()
		defer h.feed.mu.Unlock()
		return len(h.feed.switched) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, feed.Endpoint{Host: "10.0.0.2", Port: 9000}, h.feed.switched[0])
	require.Eventually(t, func() bool {
		_, _, rc := h.messenger.snapshot()
		return rc == 1
	}, time.Second, time.Millisecond)
}

func TestOrchestratorUnavailableBookieBlocksArb(t *testing.T) {
	h := newHarness(t, testConfig())
	h.orch.avail["52"] = domain.BookieStatus{}
	h.data <- arbSnapshot(t)
	h.start(t)

	require.Eventually(t, func() bool { return h.sink.observed > 0 }, time.Second, time.Millisecond)
	sends, _, _ := h.messenger.snapshot()
	assert.Zero(t, sends)
	assert.Empty(t, h.orch.Live())
}

func TestOrchestratorPublishesStats(t *testing.T) {
	cfg := testConfig()
	cfg.StatsEvery = 2
	h := newHarness(t, cfg)
	h.data <- arbSnapshot(t)
	h.data <- batch(t, false, "o1|0|5|"+testMatch+"|15|a!A1|2.05|1.90|-2|0")
	h.start(t)

	require.Eventually(t, func() bool { return len(h.presenter.statsCopy()) == 1 }, time.Second, time.Millisecond)
	st := h.presenter.statsCopy()[0]
	assert.Equal(t, int64(2), st.PacketCount)
	assert.Equal(t, 1, st.Matches)
	assert.Equal(t, st, h.orch.Stats())
}

func TestOrchestratorStopsWhenSourcesFinish(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg)
	h.orch.AddTask(Task{Name: "replay", Source: true, Run: func(ctx context.Context) error {
		h.data <- arbSnapshot(t)
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Run(ctx))
	sends, _, _ := h.messenger.snapshot()
	assert.Equal(t, 1, sends)
	assert.True(t, h.sink.flushed)
}

func TestOrchestratorFatalTask(t *testing.T) {
	cfg := testConfig()
	cfg.AwaitSnapshot = false
	h := newHarness(t, cfg)
	h.orch.AddTask(Task{Name: "exec", Fatal: true, Run: func(context.Context) error {
		return domain.ErrLoginFailed
	}})
	h.orch.AddTask(Task{Name: "optional", Run: func(context.Context) error {
		return errors.New("gone")
	}})

	err := h.orch.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrLoginFailed)
}

func TestOrchestratorReportsLinkChanges(t *testing.T) {
	cfg := testConfig()
	cfg.AwaitSnapshot = false
	cfg.LivenessInterval = time.Millisecond
	h := newHarness(t, cfg)
	h.start(t)

	time.Sleep(5 * time.Millisecond)
	h.feed.mu.Lock()
	h.feed.alive = false
	h.feed.mu.Unlock()

	require.Eventually(t, func() bool {
		h.presenter.mu.Lock()
		defer h.presenter.mu.Unlock()
		up, ok := h.presenter.links["feed_vip"]
		return ok && !up
	}, time.Second, time.Millisecond)
}
