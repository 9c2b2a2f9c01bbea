package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/remindbot.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// PollInterval bounds delivery granularity: a reminder fires on the
	// first tick at or after its scheduled instant.
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"1m"`

	// RegistrationTTL is the idle window for the recipient-selection step.
	RegistrationTTL time.Duration `envconfig:"REGISTRATION_TTL" default:"60s"`

	// UTCOffsetHours is the fixed local-time offset (no DST). The bot was
	// built for JST, UTC+9.
	UTCOffsetHours int `envconfig:"UTC_OFFSET_HOURS" default:"9"`

	// SendRatePerSec caps outbound messages to stay under platform limits.
	SendRatePerSec int `envconfig:"SEND_RATE_PER_SEC" default:"25"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
