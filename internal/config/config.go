// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DB_DSN"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	PGMaxConns             int32         `env:"PG_MAX_CONNS" envDefault:"10"`
	PGConnectRetries       int           `env:"PG_CONNECT_RETRIES" envDefault:"3"`
	PGConnectRetryInterval time.Duration `env:"PG_CONNECT_RETRY_INTERVAL" envDefault:"2s"`

	MaxBillIDRetries   int `env:"MAX_BILL_ID_RETRIES" envDefault:"3"`
	BillIDRetryDelayMS int `env:"BILL_ID_RETRY_DELAY_MS" envDefault:"50"`
	SessionExpiryHours int `env:"SESSION_EXPIRY_HOURS" envDefault:"8"`

	// PaymentConfirmationKey may be empty; confirmation then fails closed.
	PaymentConfirmationKey string `env:"PAYMENT_CONF_KEY"`
	AdminAPIKey            string `env:"ADMIN_API_KEY"`

	CatalogueCacheTTL time.Duration `env:"CATALOGUE_CACHE_TTL" envDefault:"1m"`

	RateLimitPerMinute           int `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	RateLimitBurst               int `env:"RATE_LIMIT_BURST" envDefault:"30"`
	RestaurantRateLimitPerMinute int `env:"RESTAURANT_RATE_LIMIT_PER_MIN" envDefault:"600"`
	RestaurantRateLimitBurst     int `env:"RESTAURANT_RATE_LIMIT_BURST" envDefault:"120"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

// Load reads .env from the working directory when present, then parses the
// environment. Variables already set in the process win over .env entries.
func Load() (Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()
	return Parse()
}

func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DB_DSN is required when STORE_DRIVER=%s", ErrInvalidConfig, DriverPostgres)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidConfig, c.StoreDriver)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown LOG_FORMAT %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.MaxBillIDRetries <= 0 {
		return fmt.Errorf("%w: MAX_BILL_ID_RETRIES must be positive", ErrInvalidConfig)
	}
	if c.BillIDRetryDelayMS < 0 {
		return fmt.Errorf("%w: BILL_ID_RETRY_DELAY_MS must not be negative", ErrInvalidConfig)
	}
	if c.SessionExpiryHours <= 0 {
		return fmt.Errorf("%w: SESSION_EXPIRY_HOURS must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) BillIDRetryDelay() time.Duration {
	return time.Duration(c.BillIDRetryDelayMS) * time.Millisecond
}

func (c Config) SessionExpiry() time.Duration {
	return time.Duration(c.SessionExpiryHours) * time.Hour
}
