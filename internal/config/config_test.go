package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, "ORD", cfg.OrderNumberPrefix)
	assert.Equal(t, 6, cfg.OrderNumberWidth)
	assert.Equal(t, 24*time.Hour, cfg.PendingTimeout)
	assert.Zero(t, cfg.ReconcileInterval)
	assert.Equal(t, "sandbox", cfg.PaymentGateway)
	assert.Empty(t, cfg.Brokers())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("DB_DSN_PRIMARY", "app:pw@tcp(db:3306)/orders?parseTime=true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	t.Setenv("RECONCILE_INTERVAL", "15m")
	t.Setenv("CURRENCY", "usd")
	t.Setenv("CALLBACK_RATE", "2.5")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers())
	assert.Equal(t, 15*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, "USD", cfg.Currency)
	limit, burst := cfg.CallbackLimit()
	assert.InDelta(t, 2.5, float64(limit), 1e-9)
	assert.Equal(t, 40, burst)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": "", "STORE_DRIVER": "memory"}},
		{"mysql without dsn", map[string]string{"JWT_SECRET": "x", "STORE_DRIVER": "mysql", "DB_DSN_PRIMARY": ""}},
		{"unknown driver", map[string]string{"JWT_SECRET": "x", "STORE_DRIVER": "mongo"}},
		{"bad width", map[string]string{"JWT_SECRET": "x", "STORE_DRIVER": "memory", "ORDER_NUMBER_WIDTH": "0"}},
		{"bad duration", map[string]string{"JWT_SECRET": "x", "STORE_DRIVER": "memory", "PENDING_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSetupLogging(t *testing.T) {
	defer log.SetFormatter(&log.TextFormatter{})
	defer log.SetLevel(log.InfoLevel)

	require.NoError(t, SetupLogging("debug", "json"))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	assert.Error(t, SetupLogging("loud", "text"))
	assert.Error(t, SetupLogging("info", "xml"))
}
