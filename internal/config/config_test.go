package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdiscovery/internal/crypto"
)

func validDiscover() Config {
	cfg := Defaults()
	cfg.VIP.Host = "vip.local"
	cfg.VIP.Username = "u"
	return cfg
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "discover", cfg.Mode)
	assert.Equal(t, 15*time.Second, cfg.VIP.ReconnectDelay.Duration)
	assert.Equal(t, 30*time.Second, cfg.VIP.ReadTimeout.Duration)
	assert.Equal(t, 7*24*time.Hour, cfg.VIP.Horizon.Duration)
	assert.Equal(t, []string{"football"}, cfg.VIP.Sports)
	assert.Equal(t, 5*time.Second, cfg.Betfair.ReconnectDelay.Duration)
	assert.Equal(t, "0.15.12", cfg.Execution.AppVersion)
	assert.Equal(t, 10*time.Second, cfg.Execution.HeartbeatInterval.Duration)
	assert.InDelta(t, 0.01, cfg.Discovery.ProfitThreshold, 1e-12)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, cfg.Discovery.Strategies)
	assert.Equal(t, 20*time.Millisecond, cfg.Discovery.EmptyQueueSleep.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.ControlBudget.Duration)
	assert.Equal(t, 6*time.Hour, cfg.History.NoRepeat.Duration)
	assert.Equal(t, 8*time.Hour, cfg.History.PruneInterval.Duration)
}

func TestLoadDecodesOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "replay"

[vip]
host = "10.0.0.5"
port = 7001
username = "vip"
horizon = "48h"
sports = ["football", "basketball"]

[discovery]
strategies = [1, 6]
parallel = true

[replay]
path = "history/vip/2026-10-19 080000.txt"
speed = 4.0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "replay", cfg.Mode)
	assert.Equal(t, 7001, cfg.VIP.Port)
	assert.Equal(t, 48*time.Hour, cfg.VIP.Horizon.Duration)
	assert.Equal(t, []string{"football", "basketball"}, cfg.VIP.Sports)
	assert.Equal(t, []int{1, 6}, cfg.Discovery.Strategies)
	assert.True(t, cfg.Discovery.Parallel)
	assert.InDelta(t, 4.0, cfg.Replay.Speed, 1e-12)
	// untouched defaults survive
	assert.Equal(t, 30*time.Second, cfg.VIP.ReadTimeout.Duration)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBD_MODE", "server")
	t.Setenv("ARBD_VIP_HOST", "feed.example")
	t.Setenv("ARBD_VIP_READ_TIMEOUT", "45s")
	t.Setenv("ARBD_BETFAIR_ENABLED", "true")
	t.Setenv("ARBD_DISCOVERY_STRATEGIES", "2, 3")
	t.Setenv("ARBD_DISCOVERY_PROFIT_THRESHOLD", "0.015")
	t.Setenv("ARBD_NOTIFY_TELEGRAM_CHAT_ID", "-1001234")
	t.Setenv("ARBD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ARBD_SERVER_PORT", "not-a-number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)
	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "feed.example", cfg.VIP.Host)
	assert.Equal(t, 45*time.Second, cfg.VIP.ReadTimeout.Duration)
	assert.True(t, cfg.Betfair.Enabled)
	assert.Equal(t, []int{2, 3}, cfg.Discovery.Strategies)
	assert.InDelta(t, 0.015, cfg.Discovery.ProfitThreshold, 1e-12)
	assert.Equal(t, int64(-1001234), cfg.Notify.TelegramChatID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestInvalidIntSliceKeepsDefault(t *testing.T) {
	t.Setenv("ARBD_DISCOVERY_STRATEGIES", "1,x")
	cfg := Defaults()
	applyEnvOverrides(&cfg)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, cfg.Discovery.Strategies)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"vip host", func(c *Config) { c.VIP.Host = "" }, "vip: host"},
		{"vip disabled", func(c *Config) { c.VIP.Enabled = false }, "vip: must be enabled"},
		{"betfair checked when enabled", func(c *Config) { c.Betfair.Enabled = true }, "betfair: host"},
		{"execution host", func(c *Config) { c.Execution.SendOrders = true }, "execution: host"},
		{"leader lock needs redis", func(c *Config) {
			c.Execution.SendOrders = true
			c.Execution.Host = "x"
			c.Execution.Username = "e"
			c.Execution.LeaderLock = true
		}, "leader_lock requires redis"},
		{"strategy id", func(c *Config) { c.Discovery.Strategies = []int{7} }, "unknown strategy id 7"},
		{"replay path", func(c *Config) { c.Mode = "replay" }, "replay: path"},
		{"s3 replay", func(c *Config) { c.Replay.Path = "s3://b/k" }, "requires s3"},
		{"passphrase", func(c *Config) { c.Credentials.SealedPath = "creds" }, "passphrase is required"},
		{"sealed skips usernames", func(c *Config) {
			c.Credentials.SealedPath = "creds"
			c.Credentials.Passphrase = "p"
			c.VIP.Username = ""
		}, ""},
		{"server needs a store", func(c *Config) { c.Mode = "server" }, "server mode needs"},
		{"telegram chat", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram_chat_id"},
		{"postgres pool", func(c *Config) {
			c.Postgres.Enabled = true
			c.Postgres.PoolMinConns = 20
		}, "pool_min_conns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDiscover()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "vip: host")
	assert.Contains(t, err.Error(), "server: port")
}

func TestRedactedConfig(t *testing.T) {
	cfg := validDiscover()
	cfg.VIP.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Postgres.DSN = "postgres://u:p@h/db"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.VIP.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, "***", red.Postgres.DSN)
	assert.Empty(t, red.Execution.Password)
	assert.Equal(t, "hunter2", cfg.VIP.Password)

	red.VIP.Sports[0] = "tennis"
	assert.Equal(t, "football", cfg.VIP.Sports[0])
}

func TestResolveCredentials(t *testing.T) {
	sealer, err := crypto.NewSealer("pass")
	require.NoError(t, err)
	blob, err := sealer.SealCredentials(crypto.Credentials{
		VIP:       crypto.Login{Username: "sealed-vip", Password: "pv"},
		Execution: crypto.Login{Username: "sealed-exec", Password: "pe"},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "creds.sealed")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	cfg := validDiscover()
	cfg.Betfair.Username, cfg.Betfair.Password = "plain-bf", "pb"
	cfg.Credentials = CredentialsConfig{SealedPath: path, Passphrase: "pass"}
	require.NoError(t, ResolveCredentials(&cfg))
	assert.Equal(t, "sealed-vip", cfg.VIP.Username)
	assert.Equal(t, "pv", cfg.VIP.Password)
	assert.Equal(t, "sealed-exec", cfg.Execution.Username)
	assert.Equal(t, "plain-bf", cfg.Betfair.Username)

	cfg.Credentials.Passphrase = "wrong"
	require.Error(t, ResolveCredentials(&cfg))
}

func TestResolveCredentialsNoop(t *testing.T) {
	cfg := validDiscover()
	require.NoError(t, ResolveCredentials(&cfg))
	assert.Equal(t, "u", cfg.VIP.Username)
}
