package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/arbdiscovery/internal/blob/s3"
	"github.com/alanyoungcy/arbdiscovery/internal/broker/amqp"
	"github.com/alanyoungcy/arbdiscovery/internal/cache/redis"
	"github.com/alanyoungcy/arbdiscovery/internal/config"
	"github.com/alanyoungcy/arbdiscovery/internal/domain"
	"github.com/alanyoungcy/arbdiscovery/internal/notify"
	"github.com/alanyoungcy/arbdiscovery/internal/server/handler"
	"github.com/alanyoungcy/arbdiscovery/internal/store/postgres"
)

// Dependencies bundles the external services every mode may use. Fields stay
// nil when the matching section is disabled, so callers check before use.
type Dependencies struct {
	Registry *domain.BookieRegistry

	// Postgres
	History domain.HistoryStore

	// Redis
	Cache   domain.OpportunityCache
	Bus     domain.SignalBus
	Limiter domain.RateLimiter
	Locks   *redis.LockManager

	// Object storage
	BlobReader domain.BlobReader
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver
	Recordings *s3blob.RecordingUploader

	Broker   domain.OpportunityPublisher
	Notifier *notify.Notifier

	// Checks probe every connected service for /api/health.
	Checks []handler.Check
}

// Wire connects the services enabled in cfg and returns them together with a
// cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Registry: domain.DefaultBookieRegistry()}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.History = postgres.NewOpportunityStore(pg.Pool())
		deps.Checks = append(deps.Checks, handler.Check{Name: "postgres", Ping: pg.Ping})
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Cache = redis.NewOpportunityCache(rc, cfg.Redis.LiveTTL.Duration)
		deps.Bus = redis.NewSignalBus(rc, cfg.Redis.StreamMaxLen)
		deps.Limiter = redis.NewRateLimiter(rc)
		deps.Locks = redis.NewLockManager(rc, logger)
		deps.Checks = append(deps.Checks, handler.Check{Name: "redis", Ping: rc.Ping})
	}

	// --- S3 ---
	if cfg.S3.Enabled {
		bucket, err := s3blob.Open(ctx, s3blob.Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}

		deps.BlobReader = bucket
		deps.BlobWriter = bucket
		deps.Recordings = s3blob.NewRecordingUploader(bucket, bucket, logger)
		if deps.History != nil {
			deps.Archiver = s3blob.NewHistoryArchiver(deps.History, bucket)
		}
		deps.Checks = append(deps.Checks, handler.Check{Name: "s3", Ping: bucket.Health})
	}

	// --- RabbitMQ ---
	if cfg.AMQP.Enabled {
		pub := amqp.NewPublisher(amqp.Config{
			URL:        cfg.AMQP.URL,
			Exchange:   cfg.AMQP.Exchange,
			Persistent: cfg.AMQP.Persistent,
		}, logger)
		closers = append(closers, func() { _ = pub.Close() })
		deps.Broker = pub
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			return fail("telegram", err)
		}
		senders = append(senders, tg)
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
		names := make([]string, len(senders))
		for i, s := range senders {
			names[i] = s.Name()
		}
		logger.Info("alerts enabled", slog.String("senders", strings.Join(names, ",")))
	}

	return deps, cleanup, nil
}
