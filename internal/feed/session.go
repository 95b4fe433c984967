// Package feed connects to the market-data feeds and turns their packets
// into record batches for the discovery orchestrator.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/protocol"
)

// SlowPacket is how long one packet read may take before it is logged.
const SlowPacket = 2 * time.Second

// Session yields packets from one feed connection. A packet is the list of
// record lines in one frame.
type Session interface {
	Login(ctx context.Context) error
	Next(ctx context.Context) ([]string, error)
	Close() error
}

// Handshake is the feed-specific login exchange.
type Handshake struct {
	Send   func(w io.Writer) error
	Accept func(reply []string) bool
}

// VIPHandshake sends the raw, unframed VIP login line. The server accepts
// with a single reply whose first character is '1'.
func VIPHandshake(username, password string) Handshake {
	return Handshake{
		Send: func(w io.Writer) error {
			if _, err := io.WriteString(w, fmt.Sprintf("V021%s,%s\n", username, password)); err != nil {
				return fmt.Errorf("%w: write login: %v", domain.ErrConnection, err)
			}
			return nil
		},
		Accept: func(reply []string) bool {
			return len(reply) == 1 && strings.HasPrefix(reply[0], "1")
		},
	}
}

// BetfairHandshake sends a framed DL login and expects ["true"].
func BetfairHandshake(apiVersion, username, password string) Handshake {
	return Handshake{
		Send: func(w io.Writer) error {
			return protocol.WriteText(w, strings.Join([]string{"DL", apiVersion, username, password}, "^"))
		},
		Accept: func(reply []string) bool {
			return len(reply) == 1 && strings.EqualFold(reply[0], "true")
		},
	}
}

// TCPSession reads framed packets from a socket. Every read is bounded by
// the read timeout so a stalled link surfaces as a connection error.
type TCPSession struct {
	conn        net.Conn
	reader      *protocol.Reader
	hs          Handshake
	readTimeout time.Duration
	logger      *slog.Logger
}

// NewTCPSession wraps an established connection.
func NewTCPSession(conn net.Conn, hs Handshake, readTimeout time.Duration, logger *slog.Logger) *TCPSession {
	return &TCPSession{
		conn:        conn,
		reader:      protocol.NewReader(conn),
		hs:          hs,
		readTimeout: readTimeout,
		logger:      logger,
	}
}

// Login performs the handshake.
func (s *TCPSession) Login(ctx context.Context) error {
	if err := s.hs.Send(s.conn); err != nil {
		return err
	}
	reply, err := s.Next(ctx)
	if err != nil {
		return fmt.Errorf("feed: login reply: %w", err)
	}
	if !s.hs.Accept(reply) {
		return fmt.Errorf("%w: reply %q", domain.ErrLoginFailed, reply)
	}
	return nil
}

// Next reads one packet.
func (s *TCPSession) Next(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	start := time.Now()
	lines, err := s.reader.ReadLines()
	if err != nil {
		return nil, err
	}
	if d := time.Since(start); d > SlowPacket {
		s.logger.Warn("slow packet read", slog.Duration("elapsed", d), slog.Int("records", len(lines)))
	}
	return lines, nil
}

// Close closes the socket.
func (s *TCPSession) Close() error { return s.conn.Close() }
