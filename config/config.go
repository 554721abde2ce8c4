package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr           string        `mapstructure:"http_addr"`
	PostgresURL        string        `mapstructure:"postgres_url"`
	RedisAddr          string        `mapstructure:"redis_addr"`
	StripeSecretKey    string        `mapstructure:"stripe_secret_key"`
	StripeWebhookKey   string        `mapstructure:"stripe_webhook_secret"`
	ResendAPIKey       string        `mapstructure:"resend_api_key"`
	EmailFrom          string        `mapstructure:"email_from"`
	PublicBaseURL      string        `mapstructure:"public_base_url"`
	QRSigningSecret    string        `mapstructure:"qr_signing_secret"`
	AdminToken         string        `mapstructure:"admin_token"`
	StaffToken         string        `mapstructure:"staff_token"`
	ReservationTTL     time.Duration `mapstructure:"reservation_ttl"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	JaegerEndpoint     string        `mapstructure:"jaeger_endpoint"`
	EmailRatePerSecond int64         `mapstructure:"email_rate_per_second"`
}

var defaults = map[string]any{
	"http_addr":             ":8080",
	"postgres_url":          "",
	"redis_addr":            "",
	"stripe_secret_key":     "",
	"stripe_webhook_secret": "",
	"resend_api_key":        "",
	"email_from":            "LiveTix <tickets@livetix.local>",
	"public_base_url":       "http://localhost:8080",
	"qr_signing_secret":     "",
	"admin_token":           "",
	"staff_token":           "",
	"reservation_ttl":       "30m",
	"sweep_interval":        "30s",
	"jaeger_endpoint":       "",
	"email_rate_per_second": 10,
}

const maxReservationTTL = 24 * time.Hour

var required = []string{
	"postgres_url",
	"redis_addr",
	"qr_signing_secret",
	"admin_token",
	"staff_token",
}

// Load reads the configuration from the environment. Variables from envFile
// are loaded first and never override ones already set; a missing file is
// not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("could not load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var missing []string
	for _, key := range required {
		if v.GetString(key) == "" {
			missing = append(missing, strings.ToUpper(key))
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("could not decode config: %w", err)
	}

	// checkout sessions can't stay open longer than a day
	if cfg.ReservationTTL <= 0 || cfg.ReservationTTL > maxReservationTTL {
		return Config{}, fmt.Errorf("RESERVATION_TTL must be between 0 and %s, got %s", maxReservationTTL, cfg.ReservationTTL)
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if cfg.EmailRatePerSecond <= 0 {
		return Config{}, fmt.Errorf("EMAIL_RATE_PER_SECOND must be positive")
	}

	return cfg, nil
}
