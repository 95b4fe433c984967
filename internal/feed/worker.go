package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// DefaultSwitchDelay is the pause between stopping a feed and reconnecting
// it to a new endpoint.
const DefaultSwitchDelay = 5 * time.Second

// Endpoint is a feed server address.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string { return net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) }

// SessionFactory opens a session to endpoint. The session is not yet logged in.
type SessionFactory func(ctx context.Context, ep Endpoint) (Session, error)

// TCPSessions returns a factory that dials endpoint and wraps the socket with
// the handshake built by hs.
func TCPSessions(hs Handshake, dialTimeout, readTimeout time.Duration, logger *slog.Logger) SessionFactory {
	return func(ctx context.Context, ep Endpoint) (Session, error) {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", ep.String())
		if err != nil {
			return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrConnection, ep, err)
		}
		return NewTCPSession(conn, hs, readTimeout, logger), nil
	}
}

// ReplaySessions returns a factory that ignores the endpoint and plays back
// the history at path, which may be an s3:// URL read through blobs.
func ReplaySessions(path string, speed float64, blobs domain.BlobReader) SessionFactory {
	return func(ctx context.Context, _ Endpoint) (Session, error) {
		src, err := OpenReplay(ctx, path, blobs)
		if err != nil {
			return nil, err
		}
		return NewReplaySession(src, speed), nil
	}
}

// SnapshotGate is closed once the VIP snapshot has been published. The
// Betfair feed waits on it before connecting.
type SnapshotGate struct {
	once sync.Once
	ch   chan struct{}
}

// NewSnapshotGate returns an unopened gate.
func NewSnapshotGate() *SnapshotGate { return &SnapshotGate{ch: make(chan struct{})} }

// Open releases every waiter. Safe to call more than once.
func (g *SnapshotGate) Open() { g.once.Do(func() { close(g.ch) }) }

// Opened reports whether Open has been called.
func (g *SnapshotGate) Opened() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate opens or ctx ends.
func (g *SnapshotGate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WorkerConfig configures one feed worker.
type WorkerConfig struct {
	Endpoint       Endpoint
	ReconnectDelay time.Duration
	SwitchDelay    time.Duration
	// HistoryDir enables raw packet recording when non-empty.
	HistoryDir string
	// Replay workers stop at the end of the recording instead of reconnecting.
	Replay bool
}

// Worker owns one feed connection for its whole lifetime: it logs in, decodes
// packets into batches and reconnects after connection failures. Login
// rejection and server logout are fatal.
type Worker struct {
	cfg          WorkerConfig
	source       domain.FeedSource
	sessions     SessionFactory
	newProcessor func() Processor
	out          chan<- domain.Batch
	opens        *SnapshotGate
	waitFor      *SnapshotGate
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	endpoint Endpoint
	pending  *Endpoint
	cancel   context.CancelFunc

	alive   atomic.Bool
	packets atomic.Int64
}

// NewWorker creates a worker. newProcessor is called once per session so
// per-session state such as update ids starts fresh.
func NewWorker(cfg WorkerConfig, sessions SessionFactory, newProcessor func() Processor, out chan<- domain.Batch, logger *slog.Logger) *Worker {
	if cfg.SwitchDelay == 0 {
		cfg.SwitchDelay = DefaultSwitchDelay
	}
	src := newProcessor().Source()
	return &Worker{
		cfg:          cfg,
		source:       src,
		sessions:     sessions,
		newProcessor: newProcessor,
		out:          out,
		logger:       logger.With(slog.String("component", "feed_worker"), slog.String("feed", string(src))),
		now:          time.Now,
		endpoint:     cfg.Endpoint,
	}
}

// OpensGate makes the worker open g after publishing its snapshot.
func (w *Worker) OpensGate(g *SnapshotGate) { w.opens = g }

// WaitsFor makes the worker wait for g before its first connection.
func (w *Worker) WaitsFor(g *SnapshotGate) { w.waitFor = g }

// Alive reports whether a logged-in session is currently streaming.
func (w *Worker) Alive() bool { return w.alive.Load() }

// Packets is the number of packets received since start.
func (w *Worker) Packets() int64 { return w.packets.Load() }

// Endpoint returns the endpoint the worker connects to.
func (w *Worker) Endpoint() Endpoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.endpoint
}

// Switch stops the current session and, after the switch delay, reconnects
// to ep.
func (w *Worker) Switch(ep Endpoint) {
	w.mu.Lock()
	w.pending = &ep
	cancel := w.cancel
	w.mu.Unlock()
	w.logger.Info("feed switch requested", slog.String("endpoint", ep.String()))
	if cancel != nil {
		cancel()
	}
}

// Run blocks until ctx ends, a fatal session error occurs or a replay
// finishes.
func (w *Worker) Run(ctx context.Context) error {
	if w.waitFor != nil {
		if err := w.waitFor.Wait(ctx); err != nil {
			return err
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sessCtx, cancel := context.WithCancel(ctx)
		w.mu.Lock()
		w.cancel = cancel
		ep := w.endpoint
		w.mu.Unlock()

		err := w.runSession(sessCtx, ep)
		cancel()
		w.alive.Store(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if next, ok := w.takeSwitch(); ok {
			w.logger.Info("switching feed endpoint", slog.String("from", ep.String()), slog.String("to", next.String()))
			if err := sleepCtx(ctx, w.cfg.SwitchDelay); err != nil {
				return err
			}
			w.mu.Lock()
			w.endpoint = next
			w.mu.Unlock()
			continue
		}
		switch {
		case err == nil:
			w.logger.Info("feed finished")
			return nil
		case errors.Is(err, domain.ErrLoginFailed), errors.Is(err, domain.ErrLoggedOut):
			w.logger.Error("feed stopped", slog.String("error", err.Error()), slog.Bool("critical", true))
			return err
		case errors.Is(err, domain.ErrConnection):
			w.logger.Error("feed connection lost, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("delay", w.cfg.ReconnectDelay))
		default:
			w.logger.Error("feed session failed, reconnecting", slog.String("error", err.Error()))
		}
		if err := sleepCtx(ctx, w.cfg.ReconnectDelay); err != nil {
			return err
		}
	}
}

func (w *Worker) takeSwitch() (Endpoint, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return Endpoint{}, false
	}
	ep := *w.pending
	w.pending = nil
	return ep, true
}

// runSession returns nil only when a replay reaches its end.
func (w *Worker) runSession(ctx context.Context, ep Endpoint) error {
	sess, err := w.sessions(ctx, ep)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer func() {
		if stop() {
			_ = sess.Close()
		}
	}()

	if err := sess.Login(ctx); err != nil {
		return err
	}
	w.logger.Info("feed logged in", slog.String("endpoint", ep.String()))

	var rec *Recorder
	if w.cfg.HistoryDir != "" {
		rec, err = NewRecorder(w.cfg.HistoryDir, w.source, w.now)
		if err != nil {
			w.logger.Error("history recorder disabled", slog.String("error", err.Error()))
		} else {
			defer rec.Close()
			w.logger.Info("recording feed history", slog.String("path", rec.Path()))
		}
	}

	proc := w.newProcessor()
	first := true
	for {
		packet, err := sess.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) && w.cfg.Replay {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		w.alive.Store(true)
		w.packets.Add(1)
		if rec != nil {
			if err := rec.Record(packet); err != nil {
				w.logger.Warn("history write failed", slog.String("error", err.Error()))
			}
		}

		if first {
			first = false
			if batch, ok := proc.Snapshot(packet); ok {
				if err := w.publish(ctx, batch); err != nil {
					return err
				}
				w.logger.Info("snapshot published", slog.Int("records", len(batch.Records)))
				if w.opens != nil {
					w.opens.Open()
				}
				continue
			}
		}
		batch, err := proc.Update(packet)
		if err != nil {
			return err
		}
		if len(batch.Records) == 0 {
			continue
		}
		if err := w.publish(ctx, batch); err != nil {
			return err
		}
	}
}

func (w *Worker) publish(ctx context.Context, b domain.Batch) error {
	b.QueuedAt = w.now()
	select {
	case w.out <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
