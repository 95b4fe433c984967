package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/protocol"
)

// Messenger is the execution channel: it sends orders and heartbeats and
// delivers inbound control messages.
type Messenger interface {
	// Run keeps the link up until ctx is done. It returns early only when
	// login is rejected.
	Run(ctx context.Context) error
	Send(ctx context.Context, opps []domain.Opportunity) error
	Heartbeat(ctx context.Context) error
	Controls() <-chan domain.Control
	// Reconnect drops the current link; Run re-establishes it after the
	// reconnect delay.
	Reconnect(reason string)
	Connected() bool
}

// Config configures the execution link.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	APIVersion     string
	AppVersion     string
	ReconnectDelay time.Duration
	LoginTimeout   time.Duration
	WriteTimeout   time.Duration
}

// ErrNotConnected is returned by sends while the link is down.
var ErrNotConnected = fmt.Errorf("%w: execution link not connected", domain.ErrConnection)

// Dialer opens the transport connection.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// TCPMessenger speaks the framed execution protocol over TCP.
type TCPMessenger struct {
	cfg      Config
	registry *domain.BookieRegistry
	logger   *slog.Logger
	dial     Dialer
	now      func() time.Time

	mu   sync.Mutex
	conn net.Conn

	controls chan domain.Control
}

// NewTCPMessenger creates a messenger that dials cfg.Host:cfg.Port.
func NewTCPMessenger(cfg Config, registry *domain.BookieRegistry, logger *slog.Logger) *TCPMessenger {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.LoginTimeout <= 0 {
		cfg.LoginTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	var d net.Dialer
	return &TCPMessenger{
		cfg:      cfg,
		registry: registry,
		logger:   logger.With(slog.String("component", "exec_messenger")),
		dial:     func(ctx context.Context, addr string) (net.Conn, error) { return d.DialContext(ctx, "tcp", addr) },
		now:      time.Now,
		controls: make(chan domain.Control, 64),
	}
}

// SetDialer replaces the transport, e.g. with net.Pipe in tests.
func (m *TCPMessenger) SetDialer(d Dialer) { m.dial = d }

// Controls implements Messenger.
func (m *TCPMessenger) Controls() <-chan domain.Control { return m.controls }

// Connected implements Messenger.
func (m *TCPMessenger) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Run implements Messenger.
func (m *TCPMessenger) Run(ctx context.Context) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	for {
		err := m.session(ctx, addr)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, domain.ErrLoginFailed) {
			m.logger.Error("execution login rejected", slog.Bool("critical", true), slog.String("error", err.Error()))
			return err
		}
		m.logger.Error("execution link lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", m.cfg.ReconnectDelay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.cfg.ReconnectDelay):
		}
	}
}

func (m *TCPMessenger) session(ctx context.Context, addr string) error {
	conn, err := m.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", domain.ErrConnection, addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	reader := protocol.NewReader(conn)
	if err := m.login(conn, reader); err != nil {
		return err
	}
	m.logger.Info("execution link up", slog.String("addr", addr))

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
	}()

	for {
		lines, err := reader.ReadLines()
		if err != nil {
			return fmt.Errorf("executor: read control: %w", err)
		}
		for _, c := range ParseControls(lines, m.registry, m.logger) {
			if rel, ok := c.(domain.CooldownRelease); ok {
				m.logger.Debug("cooldown release received",
					slog.String("match_id", rel.Key.MatchID),
					slog.Int("fingerprints", len(rel.Fingerprints)),
				)
			}
			select {
			case m.controls <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (m *TCPMessenger) login(conn net.Conn, reader *protocol.Reader) error {
	_ = conn.SetDeadline(time.Now().Add(m.cfg.LoginTimeout))
	defer conn.SetDeadline(time.Time{})

	msg := LoginMessage(m.cfg.APIVersion, m.cfg.Username, m.cfg.Password, m.cfg.AppVersion)
	if err := protocol.WriteText(conn, msg); err != nil {
		return fmt.Errorf("executor: login: %w", err)
	}
	reply, err := reader.ReadLines()
	if err != nil {
		return fmt.Errorf("executor: login reply: %w", err)
	}
	if len(reply) != 1 || !strings.EqualFold(reply[0], "true") {
		return fmt.Errorf("%w: execution reply %q", domain.ErrLoginFailed, reply)
	}
	return nil
}

// Send implements Messenger. All sendable orders go out in one frame;
// opportunities with an unsupported leg are logged and dropped.
func (m *TCPMessenger) Send(ctx context.Context, opps []domain.Opportunity) error {
	now := m.now()
	lines := make([]string, 0, len(opps))
	for _, o := range opps {
		line, err := EncodeOrder(o, now)
		if err != nil {
			m.logger.Warn("unsendable opportunity dropped", slog.String("error", err.Error()))
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil
	}
	if err := m.write(strings.Join(lines, "\n")); err != nil {
		return err
	}
	m.logger.Info("orders sent",
		slog.Int("orders", len(lines)),
		slog.Int64("delay_ms", now.Sub(opps[0].OccurredAt).Milliseconds()),
	)
	return nil
}

// Heartbeat implements Messenger.
func (m *TCPMessenger) Heartbeat(ctx context.Context) error {
	return m.write(Heartbeat)
}

func (m *TCPMessenger) write(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotConnected
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return protocol.WriteText(m.conn, text)
}

// Reconnect implements Messenger.
func (m *TCPMessenger) Reconnect(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return
	}
	m.logger.Error("dropping execution link", slog.String("reason", reason))
	m.conn.Close()
	m.conn = nil
}
