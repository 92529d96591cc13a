// Package config loads process configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Store drivers.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

type Config struct {
	HTTPAddr   string `envconfig:"HTTP_ADDR" default:":8080"`
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"http://localhost:5173"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"mysql"`
	DSN         string `envconfig:"DB_DSN_PRIMARY"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	PaymentGateway   string `envconfig:"PAYMENT_GATEWAY" default:"sandbox"`
	PaymentKeyID     string `envconfig:"PAYMENT_KEY_ID"`
	PaymentKeySecret string `envconfig:"PAYMENT_KEY_SECRET"`
	PaymentBaseURL   string `envconfig:"PAYMENT_BASE_URL"`

	Currency          string `envconfig:"CURRENCY" default:"INR"`
	OrderNumberPrefix string `envconfig:"ORDER_NUMBER_PREFIX" default:"ORD"`
	OrderNumberWidth  int    `envconfig:"ORDER_NUMBER_WIDTH" default:"6"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`

	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"0"`
	PendingTimeout    time.Duration `envconfig:"PENDING_TIMEOUT" default:"24h"`

	CallbackRate  float64 `envconfig:"CALLBACK_RATE" default:"20"`
	CallbackBurst int     `envconfig:"CALLBACK_BURST" default:"40"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// LoadDotEnv copies .env into the process environment when the file exists.
// Variables already set are not overridden.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not read .env file; relying on process environment")
	}
}

// Load reads .env when present and then the environment.
func Load() (*Config, error) {
	LoadDotEnv()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules envconfig cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET must not be empty")
	}
	switch c.StoreDriver {
	case DriverMySQL:
		if c.DSN == "" {
			return errors.New("config: DB_DSN_PRIMARY is required for the mysql store")
		}
	case DriverMemory:
	default:
		return errors.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.OrderNumberWidth < 1 || c.OrderNumberWidth > 18 {
		return errors.Errorf("config: ORDER_NUMBER_WIDTH must be between 1 and 18, got %d", c.OrderNumberWidth)
	}
	if len(c.Currency) != 3 {
		return errors.Errorf("config: CURRENCY must be an ISO 4217 code, got %q", c.Currency)
	}
	if c.CallbackRate <= 0 || c.CallbackBurst <= 0 {
		return errors.New("config: CALLBACK_RATE and CALLBACK_BURST must be positive")
	}
	if c.PaymentKeySecret == "" {
		log.Warn("PAYMENT_KEY_SECRET is not set; every payment callback will fail verification")
	}
	c.Currency = strings.ToUpper(c.Currency)
	return nil
}

// CallbackLimit is the payment callback rate limit.
func (c *Config) CallbackLimit() (rate.Limit, int) {
	return rate.Limit(c.CallbackRate), c.CallbackBurst
}

// Brokers drops blank entries from KAFKA_BROKERS.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// SetupLogging configures the standard logrus logger.
func SetupLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "config: LOG_LEVEL")
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return errors.Errorf("config: unknown LOG_FORMAT %q", format)
	}
	return nil
}
