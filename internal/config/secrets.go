package config

import (
	"fmt"

	"github.com/alanyoungcy/arbdiscovery/internal/crypto"
)

// ResolveCredentials replaces the feed and execution logins with the ones
// in the sealed credentials file, when one is configured. Empty sealed
// logins leave the plaintext values alone.
func ResolveCredentials(cfg *Config) error {
	if cfg.Credentials.SealedPath == "" {
		return nil
	}
	sealer, err := crypto.NewSealer(cfg.Credentials.Passphrase)
	if err != nil {
		return fmt.Errorf("config: credentials: %w", err)
	}
	creds, err := sealer.LoadCredentials(cfg.Credentials.SealedPath)
	if err != nil {
		return fmt.Errorf("config: credentials: %w", err)
	}
	applyLogin(&cfg.VIP.Username, &cfg.VIP.Password, creds.VIP)
	applyLogin(&cfg.Betfair.Username, &cfg.Betfair.Password, creds.Betfair)
	applyLogin(&cfg.Execution.Username, &cfg.Execution.Password, creds.Execution)
	return nil
}

func applyLogin(user, pass *string, l crypto.Login) {
	if l.Username == "" {
		return
	}
	*user, *pass = l.Username, l.Password
}

// RedactedConfig returns a copy of cfg with secrets replaced by "***", for
// logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.VIP.Password)
	redact(&out.Betfair.Password)
	redact(&out.Execution.Password)
	redact(&out.Credentials.Passphrase)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.AMQP.URL)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Slices are copied so the redacted copy cannot alias the original.
	out.VIP.Sports = append([]string(nil), cfg.VIP.Sports...)
	out.Discovery.Strategies = append([]int(nil), cfg.Discovery.Strategies...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)

	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
