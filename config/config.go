package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

type Config struct {
	Env            string `env:"ENVIRONMENT" envDefault:"development"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"0"`

	Poller struct {
		Interval          time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
		PeriodicPacing    time.Duration `env:"PERIODIC_FEED_PACING" envDefault:"2s"`
		ManualPacing      time.Duration `env:"MANUAL_FEED_PACING" envDefault:"1s"`
		MaxRotatedEntries int           `env:"MAX_ROTATED_ENTRIES" envDefault:"0"`
	}
	Fetch struct {
		Timeout   time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
		UserAgent string        `env:"FETCH_USER_AGENT" envDefault:"feedwatch/1.0"`
	}
	Delivery struct {
		DescriptionMaxLen int `env:"DESCRIPTION_MAX_LEN" envDefault:"300"`
	}
	State struct {
		Backend string `env:"STATE_BACKEND" envDefault:"sqlite"`
		Path    string `env:"STATE_PATH" envDefault:"feedwatch.sqlite"`
	}
	Log LogConfig
	Discord struct {
		Token   string `env:"DISCORD_BOT_TOKEN"`
		GuildID string `env:"DISCORD_GUILD_ID"`
	}
	Telegram struct {
		Token string `env:"TELEGRAM_BOT_TOKEN"`
	}
	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	log   *zap.Logger
	creds map[string]string
}

type LogConfig struct {
	File      string `env:"LOG_FILE"`
	MaxSizeMB int    `env:"LOG_MAX_SIZE_MB" envDefault:"64"`
}

// ParseLog reads only the logging variables, for building the logger before
// the rest of the config.
func ParseLog() (LogConfig, error) {
	var cfg LogConfig
	err := env.Parse(&cfg)
	return cfg, err
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) (*Config, error) {
	cfg := &Config{log: log}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.ServerPort > 0 {
		creds, err := cfg.parseCreds()
		if err != nil {
			if cfg.Env == "development" {
				cfg.log.Sugar().Infof("%s (credentials will be set to default in development env)", err)
				creds = map[string]string{"admin": "password"}
			} else {
				return nil, err
			}
		}
		cfg.creds = creds
	}

	return cfg, nil
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

func (cfg *Config) IsProduction() bool {
	return cfg.Env == "production"
}

func (cfg *Config) validate() error {
	switch cfg.State.Backend {
	case BackendSQLite, BackendJSON:
	default:
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendJSON, cfg.State.Backend)
	}
	if cfg.Poller.Interval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if cfg.Poller.MaxRotatedEntries < 0 {
		return errors.New("MAX_ROTATED_ENTRIES must not be negative")
	}
	if cfg.Delivery.DescriptionMaxLen <= 0 {
		return errors.New("DESCRIPTION_MAX_LEN must be positive")
	}
	return nil
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated when SERVER_PORT is set")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
