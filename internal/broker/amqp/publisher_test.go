package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	declared []string
	sent     []published
	failNext bool
	closed   bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.failNext {
		c.failNext = false
		return errors.New("channel closed")
	}
	c.sent = append(c.sent, published{exchange, key, msg})
	return nil
}

func (c *fakeChannel) Close() error { c.closed = true; return nil }

func newTestPublisher(cfg Config) (*Publisher, *[]*fakeChannel) {
	p := NewPublisher(cfg, slog.New(slog.DiscardHandler))
	var chans []*fakeChannel
	p.dial = func(string) (channel, func() error, error) {
		ch := &fakeChannel{}
		chans = append(chans, ch)
		return ch, func() error { return nil }, nil
	}
	return p, &chans
}

func TestPublishRoutesByStrategy(t *testing.T) {
	p, chans := newTestPublisher(Config{Persistent: true})
	opps := []domain.Opportunity{
		{StrategyID: 1, Profit: 0.012},
		{StrategyID: 6, Profit: 0.02},
	}
	require.NoError(t, p.PublishOpportunities(context.Background(), opps))

	require.Len(t, *chans, 1)
	ch := (*chans)[0]
	assert.Equal(t, []string{"arbd.opportunities:topic"}, ch.declared)
	require.Len(t, ch.sent, 2)
	assert.Equal(t, "strategy.1", ch.sent[0].key)
	assert.Equal(t, "strategy.6", ch.sent[1].key)
	assert.Equal(t, DefaultExchange, ch.sent[1].exchange)
	assert.Equal(t, amqp.Persistent, ch.sent[0].msg.DeliveryMode)

	var got domain.Opportunity
	require.NoError(t, json.Unmarshal(ch.sent[1].msg.Body, &got))
	assert.InDelta(t, 0.02, got.Profit, 1e-9)
}

func TestPublishEmptyDoesNotDial(t *testing.T) {
	p, chans := newTestPublisher(Config{})
	require.NoError(t, p.PublishOpportunities(context.Background(), nil))
	assert.Empty(t, *chans)
}

func TestPublishFailureRedials(t *testing.T) {
	p, chans := newTestPublisher(Config{Exchange: "custom"})
	opp := []domain.Opportunity{{StrategyID: 2}}
	require.NoError(t, p.PublishOpportunities(context.Background(), opp))

	(*chans)[0].failNext = true
	require.Error(t, p.PublishOpportunities(context.Background(), opp))
	assert.True(t, (*chans)[0].closed)

	require.NoError(t, p.PublishOpportunities(context.Background(), opp))
	require.Len(t, *chans, 2)
	assert.Equal(t, []string{"custom:topic"}, (*chans)[1].declared)
	assert.Len(t, (*chans)[1].sent, 1)
	require.NoError(t, p.Close())
}

func TestPublishDialError(t *testing.T) {
	p := NewPublisher(Config{}, slog.New(slog.DiscardHandler))
	p.dial = func(string) (channel, func() error, error) { return nil, nil, errors.New("refused") }
	err := p.PublishOpportunities(context.Background(), []domain.Opportunity{{StrategyID: 1}})
	require.ErrorContains(t, err, "dial")
}
