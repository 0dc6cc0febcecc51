package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Daraja: DarajaConfig{
			BaseURL:        "https://sandbox.safaricom.co.ke",
			ConsumerKey:    "key",
			ConsumerSecret: "secret",
			ShortCode:      "174379",
			Passkey:        "passkey",
			CallbackURL:    "https://gateway.example.com/callbacks/mpesa",
			Timezone:       "Africa/Nairobi",
			Timeout:        30 * time.Second,
		},
		Worker: WorkerConfig{
			BatchSize: 10,
			LockTTL:   30 * time.Second,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_InvalidReadTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadTimeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read_timeout")
}

func TestConfig_Validate_InvalidWriteTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.WriteTimeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "write_timeout")
}

func TestConfig_Validate_MissingDatabaseHost(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestConfig_Validate_InvalidRedisPort(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Port = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis.port")
}

func TestConfig_Validate_MissingDarajaCredentials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing base url", func(c *Config) { c.Daraja.BaseURL = "" }, "daraja.base_url"},
		{"missing consumer key", func(c *Config) { c.Daraja.ConsumerKey = "" }, "daraja.consumer_key"},
		{"missing consumer secret", func(c *Config) { c.Daraja.ConsumerSecret = "" }, "daraja.consumer_secret"},
		{"missing short code", func(c *Config) { c.Daraja.ShortCode = "" }, "daraja.short_code"},
		{"missing passkey", func(c *Config) { c.Daraja.Passkey = "" }, "daraja.passkey"},
		{"missing callback url", func(c *Config) { c.Daraja.CallbackURL = "" }, "daraja.callback_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_Validate_InvalidDarajaTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Daraja.Timeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "daraja.timeout")
}

func TestConfig_Validate_InvalidWorkerLockTTL(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.LockTTL = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker.lock_ttl")
}

func TestConfig_Validate_InvalidWorkerBatchSize(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.BatchSize = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker.batch_size")
}

func TestConfig_Validate_ShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "too-short"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestConfig_Validate_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "production")

	cfg := validConfig()
	cfg.Database.Password = ""
	cfg.Auth.JWTSecret = ""
	cfg.Webhook.SigningSecret = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password")
	assert.Contains(t, err.Error(), "auth.jwt_secret")
	assert.Contains(t, err.Error(), "webhook.signing_secret")
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "database.host")
	assert.Contains(t, errStr, "redis.port")
	assert.Contains(t, errStr, "daraja.consumer_key")
	assert.Contains(t, errStr, "worker.batch_size")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app_user",
		Password: "secret",
		Database: "mpesa_gateway",
		SSLMode:  "require",
	}

	dsn := cfg.DatabaseDSN()
	assert.Equal(t, "host=db.example.com port=5432 user=app_user password=secret dbname=mpesa_gateway sslmode=require", dsn)
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6380}
	assert.Equal(t, "redis.example.com:6380", cfg.RedisAddr())
}

func TestDarajaConfig_Fields(t *testing.T) {
	cfg := DarajaConfig{
		BaseURL:                 "https://api.safaricom.co.ke",
		ConsumerKey:             "ck",
		ConsumerSecret:          "cs",
		ShortCode:               "600999",
		Passkey:                 "pk",
		CallbackURL:             "https://example.com/callbacks/mpesa",
		Timezone:                "Africa/Nairobi",
		Timeout:                 30 * time.Second,
		CircuitBreakerThreshold: 10,
		CircuitBreakerTimeout:   30 * time.Second,
	}

	assert.Equal(t, "https://api.safaricom.co.ke", cfg.BaseURL)
	assert.Equal(t, "600999", cfg.ShortCode)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 10, cfg.CircuitBreakerThreshold)
}

func TestWorkerConfig_Fields(t *testing.T) {
	cfg := WorkerConfig{
		BatchSize:          20,
		BlockDuration:      5 * time.Second,
		OutboxPollInterval: 10 * time.Second,
		ConsumerGroup:      "my-dispatchers",
		LockTTL:            time.Minute,
		IdempotencyTTL:     48 * time.Hour,
	}

	assert.Equal(t, int64(20), cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.BlockDuration)
	assert.Equal(t, 10*time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, "my-dispatchers", cfg.ConsumerGroup)
	assert.Equal(t, time.Minute, cfg.LockTTL)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
}
