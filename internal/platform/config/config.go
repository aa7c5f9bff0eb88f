package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	WebhookSecret      string `env:"TWITCH_WEBHOOK_SECRET"`
	SessionSecret      string `env:"SESSION_SECRET"`

	GoogleCredentialsPath  string `env:"GOOGLE_CREDENTIALS_PATH"`
	ReferenceSpreadsheetID string `env:"REFERENCE_SPREADSHEET_ID"`

	// DomainName is the public base URL Twitch delivers webhooks to,
	// e.g. https://www.giftsubtracker.com
	DomainName string `env:"DOMAIN_NAME"`
}

// CallbackURL is the fixed webhook callback registered with Twitch. The same
// path serves the OAuth redirect (GET) and EventSub deliveries (POST).
func (c *Config) CallbackURL() string {
	return c.DomainName + "/webhook"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"TWITCH_CLIENT_ID":         cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET":     cfg.TwitchClientSecret,
		"TWITCH_WEBHOOK_SECRET":    cfg.WebhookSecret,
		"SESSION_SECRET":           cfg.SessionSecret,
		"GOOGLE_CREDENTIALS_PATH":  cfg.GoogleCredentialsPath,
		"REFERENCE_SPREADSHEET_ID": cfg.ReferenceSpreadsheetID,
		"DOMAIN_NAME":              cfg.DomainName,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.WebhookSecret) < 10 || len(cfg.WebhookSecret) > 100 {
		return errors.New("TWITCH_WEBHOOK_SECRET must be between 10 and 100 characters")
	}

	return nil
}
