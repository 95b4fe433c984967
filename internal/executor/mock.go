package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// MockMessenger accepts every order without a network link and never emits
// controls. It is used when order sending is disabled.
type MockMessenger struct {
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	sent       []string
	heartbeats int
	controls   chan domain.Control
}

// NewMockMessenger creates a messenger that only logs.
func NewMockMessenger(logger *slog.Logger) *MockMessenger {
	return &MockMessenger{
		logger:   logger.With(slog.String("component", "mock_messenger")),
		now:      time.Now,
		controls: make(chan domain.Control),
	}
}

// Run blocks until ctx is done.
func (m *MockMessenger) Run(ctx context.Context) error {
	m.logger.Info("using mock execution messenger")
	<-ctx.Done()
	return nil
}

// Send records the encoded orders.
func (m *MockMessenger) Send(_ context.Context, opps []domain.Opportunity) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range opps {
		line, err := EncodeOrder(o, now)
		if err != nil {
			m.logger.Warn("unsendable opportunity dropped", slog.String("error", err.Error()))
			continue
		}
		m.sent = append(m.sent, line)
	}
	return nil
}

// Heartbeat counts heartbeats.
func (m *MockMessenger) Heartbeat(context.Context) error {
	m.mu.Lock()
	m.heartbeats++
	m.mu.Unlock()
	return nil
}

func (m *MockMessenger) Controls() <-chan domain.Control { return m.controls }
func (m *MockMessenger) Reconnect(string)                {}
func (m *MockMessenger) Connected() bool                 { return true }

// Sent returns the orders encoded so far.
func (m *MockMessenger) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

// Heartbeats returns how many heartbeats were sent.
func (m *MockMessenger) Heartbeats() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeats
}
