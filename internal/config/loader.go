package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load decodes the TOML file at path over Defaults, loads .env if present
// and applies ARBD_* environment overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose ARBD_* variable is set and
// non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "ARBD_MODE")
	setStr(&cfg.LogLevel, "ARBD_LOG_LEVEL")

	// ── Feeds ──
	setFeed(&cfg.VIP, "ARBD_VIP")
	setStringSlice(&cfg.VIP.Sports, "ARBD_VIP_SPORTS")
	setDuration(&cfg.VIP.Horizon, "ARBD_VIP_HORIZON")
	setBool(&cfg.VIP.RecordHistory, "ARBD_VIP_RECORD_HISTORY")
	setStr(&cfg.VIP.HistoryDir, "ARBD_VIP_HISTORY_DIR")
	setFeed(&cfg.Betfair, "ARBD_BETFAIR")

	// ── Execution ──
	setBool(&cfg.Execution.Enabled, "ARBD_EXECUTION_ENABLED")
	setBool(&cfg.Execution.SendOrders, "ARBD_EXECUTION_SEND_ORDERS")
	setStr(&cfg.Execution.Host, "ARBD_EXECUTION_HOST")
	setInt(&cfg.Execution.Port, "ARBD_EXECUTION_PORT")
	setStr(&cfg.Execution.Username, "ARBD_EXECUTION_USERNAME")
	setStr(&cfg.Execution.Password, "ARBD_EXECUTION_PASSWORD")
	setStr(&cfg.Execution.APIVersion, "ARBD_EXECUTION_API_VERSION")
	setStr(&cfg.Execution.AppVersion, "ARBD_EXECUTION_APP_VERSION")
	setDuration(&cfg.Execution.HeartbeatInterval, "ARBD_EXECUTION_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Execution.ReconnectDelay, "ARBD_EXECUTION_RECONNECT_DELAY")
	setBool(&cfg.Execution.LeaderLock, "ARBD_EXECUTION_LEADER_LOCK")

	// ── Discovery ──
	setFloat64(&cfg.Discovery.ProfitThreshold, "ARBD_DISCOVERY_PROFIT_THRESHOLD")
	setIntSlice(&cfg.Discovery.Strategies, "ARBD_DISCOVERY_STRATEGIES")
	setBool(&cfg.Discovery.Parallel, "ARBD_DISCOVERY_PARALLEL")
	setBool(&cfg.Discovery.AsyncCrossHandicap, "ARBD_DISCOVERY_ASYNC_CROSS_HANDICAP")
	setBool(&cfg.Discovery.DeadBallOnly, "ARBD_DISCOVERY_DEAD_BALL_ONLY")
	setDuration(&cfg.Discovery.EmptyQueueSleep, "ARBD_DISCOVERY_EMPTY_QUEUE_SLEEP")

	// ── Replay / history ──
	setStr(&cfg.Replay.Path, "ARBD_REPLAY_PATH")
	setFloat64(&cfg.Replay.Speed, "ARBD_REPLAY_SPEED")
	setBool(&cfg.History.Enabled, "ARBD_HISTORY_ENABLED")
	setDuration(&cfg.History.ArchiveInterval, "ARBD_HISTORY_ARCHIVE_INTERVAL")

	// ── Credentials ──
	setStr(&cfg.Credentials.SealedPath, "ARBD_CREDENTIALS_SEALED_PATH")
	setStr(&cfg.Credentials.Passphrase, "ARBD_CREDENTIALS_PASSPHRASE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBD_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBD_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "ARBD_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "ARBD_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBD_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBD_S3_FORCE_PATH_STYLE")

	// ── AMQP ──
	setBool(&cfg.AMQP.Enabled, "ARBD_AMQP_ENABLED")
	setStr(&cfg.AMQP.URL, "ARBD_AMQP_URL")
	setStr(&cfg.AMQP.Exchange, "ARBD_AMQP_EXCHANGE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBD_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ARBD_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBD_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "ARBD_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBD_NOTIFY_TELEGRAM_TOKEN")
	setInt64(&cfg.Notify.TelegramChatID, "ARBD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBD_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinProfit, "ARBD_NOTIFY_MIN_PROFIT")

	// ── Profiling ──
	setBool(&cfg.Profiling.Enabled, "ARBD_PROFILING_ENABLED")
	setStr(&cfg.Profiling.ServerAddress, "ARBD_PROFILING_SERVER_ADDRESS")
}

// setFeed applies the connection overrides shared by both feeds.
func setFeed(f *FeedConfig, prefix string) {
	setBool(&f.Enabled, prefix+"_ENABLED")
	setStr(&f.Host, prefix+"_HOST")
	setInt(&f.Port, prefix+"_PORT")
	setStr(&f.Username, prefix+"_USERNAME")
	setStr(&f.Password, prefix+"_PASSWORD")
	setStr(&f.APIVersion, prefix+"_API_VERSION")
	setDuration(&f.ReconnectDelay, prefix+"_RECONNECT_DELAY")
	setDuration(&f.ReadTimeout, prefix+"_READ_TIMEOUT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setIntSlice(dst *[]int, key string) {
	var parts []string
	setStringSlice(&parts, key)
	if len(parts) == 0 {
		return
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return
		}
		out = append(out, n)
	}
	*dst = out
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
