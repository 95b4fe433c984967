package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"link", " opportunity "}, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), "opportunity", "Arb 1.2 %", ""))
	require.NoError(t, n.Notify(context.Background(), "stats", "ignored", ""))
	require.NoError(t, n.Notify(context.Background(), "link", "Link execution down", ""))
	assert.Equal(t, []string{"Arb 1.2 %", "Link execution down"}, s.titles)
}

func TestNotifierNoFilterPassesAll(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{s}, nil, slog.New(slog.DiscardHandler))
	require.NoError(t, n.Notify(context.Background(), "anything", "x", ""))
	assert.Len(t, s.titles, 1)
}

func TestNotifierCollectsFailures(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.New(slog.DiscardHandler))

	err := n.Notify(context.Background(), "link", "t", "m")
	require.ErrorContains(t, err, "bad: boom")
	assert.Len(t, good.titles, 1)
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, b.err
}

func TestTelegramSendMarkdown(t *testing.T) {
	bot := &fakeBot{}
	s := newTelegramSender(bot, 42)
	s.interval = 0

	require.NoError(t, s.Send(context.Background(), "Arb 1.5 %: Man_Utd vs Spurs", "crown_c AH"))
	require.Len(t, bot.sent, 1)
	msg := bot.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	assert.Equal(t, "*Arb 1.5 %: Man\\_Utd vs Spurs*\ncrown\\_c AH", msg.Text)
}

func TestTelegramSpacesMessages(t *testing.T) {
	bot := &fakeBot{}
	s := newTelegramSender(bot, 1)
	s.interval = 50 * time.Millisecond

	start := time.Now()
	require.NoError(t, s.Send(context.Background(), "a", ""))
	require.NoError(t, s.Send(context.Background(), "b", ""))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.interval = time.Hour
	require.ErrorIs(t, s.Send(ctx, "c", ""), context.Canceled)
	assert.Len(t, bot.sent, 2)
}

func TestTelegramSendError(t *testing.T) {
	s := newTelegramSender(&fakeBot{err: errors.New("Too Many Requests")}, 1)
	s.interval = 0
	require.ErrorContains(t, s.Send(context.Background(), "a", "b"), "telegram")
}

func TestDiscordSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "Link execution down", "since 10:00"))
	assert.Equal(t, "**Link execution down**\nsince 10:00", got["content"])
}

func TestDiscordTruncatesAndReportsStatus(t *testing.T) {
	var length int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		length = len([]rune(body["content"]))
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", strings.Repeat("x", 3000))
	require.ErrorContains(t, err, "429")
	assert.Equal(t, discordMaxContent, length)
}
