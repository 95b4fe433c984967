// Package amqp publishes opportunity events to a RabbitMQ topic exchange so
// downstream consumers can subscribe per strategy.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// DefaultExchange is the topic exchange opportunities are published to.
const DefaultExchange = "arbd.opportunities"

// Config holds the broker connection settings.
type Config struct {
	URL      string
	Exchange string
	// Persistent marks messages as delivery mode 2.
	Persistent bool
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, func() error, error)

// Publisher implements domain.OpportunityPublisher. The connection is opened
// lazily and reopened after a failed publish.
type Publisher struct {
	cfg    Config
	dial   dialFunc
	logger *slog.Logger

	mu        sync.Mutex
	ch        channel
	closeConn func() error
}

func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	return &Publisher{
		cfg:    cfg,
		dial:   dialAMQP,
		logger: logger.With(slog.String("component", "amqp_publisher")),
	}
}

func dialAMQP(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// RoutingKey is strategy.{id}.
func RoutingKey(id domain.StrategyID) string {
	return fmt.Sprintf("strategy.%d", id)
}

// PublishOpportunities sends one message per opportunity. It stops at the
// first failure and drops the connection so the next call redials.
func (p *Publisher) PublishOpportunities(ctx context.Context, opps []domain.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	mode := amqp.Transient
	if p.cfg.Persistent {
		mode = amqp.Persistent
	}
	for _, o := range opps {
		body, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("amqp: marshal opportunity: %w", err)
		}
		err = ch.PublishWithContext(ctx, p.cfg.Exchange, RoutingKey(o.StrategyID), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: mode,
			Timestamp:    time.Now(),
			Body:         body,
		})
		if err != nil {
			p.resetLocked()
			return fmt.Errorf("amqp: publish: %w", err)
		}
	}
	return nil
}

func (p *Publisher) channelLocked() (channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, closeConn, err := p.dial(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	if err := ch.ExchangeDeclare(
		p.cfg.Exchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		ch.Close()
		closeConn()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", p.cfg.Exchange, err)
	}
	p.logger.Info("broker connected", slog.String("exchange", p.cfg.Exchange))
	p.ch, p.closeConn = ch, closeConn
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch == nil {
		return
	}
	p.ch.Close()
	p.closeConn()
	p.ch, p.closeConn = nil, nil
	p.logger.Warn("broker connection dropped")
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	p.ch.Close()
	err := p.closeConn()
	p.ch, p.closeConn = nil, nil
	return err
}
