package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/feed"
)

var discard = slog.New(slog.DiscardHandler)

type fakeMessenger struct {
	mu         sync.Mutex
	sends      [][]domain.Opportunity
	heartbeats int
	reconnects []string
	failSend   bool
	controls   chan domain.Control
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{controls: make(chan domain.Control, 8)}
}

func (m *fakeMessenger) Run(ctx context.Context) error { <-ctx.Done(); return nil }

func (m *fakeMessenger) Send(_ context.Context, opps []domain.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return errors.New("broken pipe")
	}
	m.sends = append(m.sends, opps)
	return nil
}

func (m *fakeMessenger) Heartbeat(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	return nil
}

func (m *fakeMessenger) Controls() <-chan domain.Control { return m.controls }

func (m *fakeMessenger) Reconnect(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects = append(m.reconnects, reason)
}

func (m *fakeMessenger) Connected() bool { return true }

func (m *fakeMessenger) snapshot() (sends, heartbeats, reconnects int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends), m.heartbeats, len(m.reconnects)
}

type fakePresenter struct {
	mu    sync.Mutex
	opps  [][]domain.Summary
	stats []domain.PipelineStats
	links map[string]bool
}

func (p *fakePresenter) PublishOpportunities(_ context.Context, _ []domain.Opportunity, s []domain.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opps = append(p.opps, s)
}

func (p *fakePresenter) PublishStats(_ context.Context, s domain.PipelineStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = append(p.stats, s)
}

func (p *fakePresenter) LinkStatus(_ context.Context, link string, up bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.links == nil {
		p.links = make(map[string]bool)
	}
	p.links[link] = up
}

func (p *fakePresenter) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.opps)
}

func (p *fakePresenter) statsCopy() []domain.PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PipelineStats(nil), p.stats...)
}

type fakeSink struct {
	mu       sync.Mutex
	observed int
	flushed  bool
}

func (s *fakeSink) Observe(context.Context, []domain.Opportunity, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed++
}

func (s *fakeSink) Flush(context.Context, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = true
}

type fakeFeed struct {
	mu       sync.Mutex
	switched []feed.Endpoint
	alive    bool
}

func (f *fakeFeed) Switch(ep feed.Endpoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switched = append(f.switched, ep)
}

func (f *fakeFeed) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

type fakeHistoryStore struct {
	mu      sync.Mutex
	inserts [][]domain.HistoryEntry
}

func (s *fakeHistoryStore) Insert(_ context.Context, e []domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts = append(s.inserts, e)
	return nil
}

func (s *fakeHistoryStore) ListRecent(context.Context, domain.ListOpts) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func (s *fakeHistoryStore) ListPersisted(context.Context, time.Time, time.Time) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func (s *fakeHistoryStore) rows() []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.HistoryEntry
	for _, batch := range s.inserts {
		out = append(out, batch...)
	}
	return out
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
	sub       chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string][][]byte{}, streams: map[string][][]byte{}, sub: make(chan []byte, 4)}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return b.sub, nil }

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}
