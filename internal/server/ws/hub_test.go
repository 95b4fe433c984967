package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

type frame struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }
func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}
func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func startHub(t *testing.T, bus domain.SignalBus, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(bus, slog.New(slog.DiscardHandler), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.clientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestStatusThenBroadcast(t *testing.T) {
	hub, srv := startHub(t, nil, Config{Mode: "Discover"})
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	status := readFrame(t, conn)
	assert.Equal(t, ChannelStatus, status.Channel)
	assert.Contains(t, string(status.Payload), `"mode":"discover"`)

	hub.Broadcast(ChannelOpportunities, []domain.Summary{{StrategyID: 3, Home: "Arsenal"}})
	f := readFrame(t, conn)
	assert.Equal(t, ChannelOpportunities, f.Channel)
	var got []domain.Summary
	require.NoError(t, json.Unmarshal(f.Payload, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Arsenal", got[0].Home)
}

func TestProtoClient(t *testing.T) {
	hub, srv := startHub(t, nil, Config{})
	conn := dial(t, srv, "?format=proto")
	waitClients(t, hub, 1)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage() // status
	require.NoError(t, err)

	hub.Broadcast(ChannelStats, domain.PipelineStats{PacketCount: 300, AvgQueueDepth: 1.5})
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, typ)

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &st))
	assert.Equal(t, ChannelStats, st.Fields["channel"].GetStringValue())
	payload := st.Fields["payload"].GetStructValue()
	require.NotNil(t, payload)
	assert.InDelta(t, 300, payload.Fields["packet_count"].GetNumberValue(), 1e-9)
}

func TestUnsubscribe(t *testing.T) {
	hub, srv := startHub(t, nil, Config{})
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{ChannelStats}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			return !c.isSubscribed(ChannelStats)
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	hub.Broadcast(ChannelStats, domain.PipelineStats{})
	hub.Broadcast(ChannelLinks, map[string]any{"link": "execution", "up": false})
	f := readFrame(t, conn)
	assert.Equal(t, ChannelLinks, f.Channel)
}

func TestRelayFromBus(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 1)}
	hub, srv := startHub(t, bus, Config{Relay: map[string]string{"arbd:stats": ChannelStats}})
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	readFrame(t, conn)

	bus.ch <- []byte(`{"packet_count":100}`)
	f := readFrame(t, conn)
	assert.Equal(t, ChannelStats, f.Channel)
	assert.JSONEq(t, `{"packet_count":100}`, string(f.Payload))
}

func TestWildcardSubscription(t *testing.T) {
	c := &client{subs: map[string]bool{"opp*": true}}
	assert.True(t, c.isSubscribed(ChannelOpportunities))
	assert.False(t, c.isSubscribed(ChannelStats))
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(nil, slog.New(slog.DiscardHandler), Config{})
	done := make(chan struct{})
	go func() {
		for range cap(hub.broadcast) + 10 {
			hub.Broadcast(ChannelStats, 1)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked without a running hub")
	}
}

func TestEncodeFrameRejectsUnencodable(t *testing.T) {
	_, err := encodeFrame(ChannelStats, make(chan int))
	require.Error(t, err)

	f, err := encodeFrame(ChannelLinks, map[string]any{"up": true})
	require.NoError(t, err)
	assert.Equal(t, f.json, f.bytes(parseFormat("json")))
	assert.Equal(t, f.proto, f.bytes(parseFormat("proto")))
}

func TestHubShutdownDisconnectsClients(t *testing.T) {
	hub := NewHub(nil, slog.New(slog.DiscardHandler), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	readFrame(t, conn)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived), "got %v", err)
	assert.Zero(t, hub.clientCount())
}
