package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overrideKeys = []string{
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "DATABASE_URL", "RABBITMQ_URL",
	"REDIS_URL", "RESEND_API_KEY", "MAIL_FROM_ADDRESS", "ALERT_ENDPOINT_URL",
	"ALERT_SERVICE_KEY", "APP_PUBLIC_URL", "LOG_LEVEL", "LOG_FORMAT",
}

// clearOverrides blanks every override so the yaml values are observed.
func clearOverrides(t *testing.T) {
	t.Helper()
	for _, k := range overrideKeys {
		t.Setenv(k, "")
	}
}

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Name: "jobpost-payments-api", PublicURL: "https://groundupcareers.com"},
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "payments_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "notifications_exchange"},
			Queue:    QueueConfig{Name: "notifications_queue"},
		},
		Redis:  RedisConfig{URL: "redis://localhost:6379/0"},
		Stripe: StripeConfig{SecretKey: "sk_test_x", WebhookSecret: "whsec_x"},
		Mail:   MailConfig{FromAddress: "billing@groundupcareers.com"},
		Outbox: OutboxConfig{MaxAttempts: 5, RelayInterval: time.Minute},
		Staging: StagingConfig{
			SweepInterval: 15 * time.Minute,
			StaleAfter:    24 * time.Hour,
		},
		Worker: WorkerConfig{
			Concurrency:     4,
			JobTimeout:      30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

func TestLoad(t *testing.T) {
	clearOverrides(t)

	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, int64(65536), cfg.Server.MaxBodyBytes)
			assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Server.TrustedProxies)
			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, 5432, cfg.Database.Port)
			assert.Equal(t, "payments_db", cfg.Database.Database)
			assert.Equal(t, "notifications_exchange", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, "notifications_queue", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, "jobpost-payments-api", cfg.App.Name)
			assert.Equal(t, "https://groundupcareers.com", cfg.App.PublicURL)
			assert.Equal(t, 72*time.Hour, cfg.Redis.EventTTL)
			assert.Equal(t, "sk_test_from_yaml", cfg.Stripe.SecretKey)
			assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
			assert.Equal(t, 24*time.Hour, cfg.Staging.StaleAfter)
			assert.Equal(t, 8, cfg.Worker.PrefetchCount)
			assert.Empty(t, cfg.Mail.ResendAPIKey)
		})
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearOverrides(t)
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_from_env")
	t.Setenv("STRIPE_WEBHOOK_SECRET", " whsec_from_env ")
	t.Setenv("RESEND_API_KEY", "re_123")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sk_test_from_env", cfg.Stripe.SecretKey)
	assert.Equal(t, "whsec_from_env", cfg.Stripe.WebhookSecret)
	assert.Equal(t, "re_123", cfg.Mail.ResendAPIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "localhost", cfg.Database.Host, "fields without an env value keep the yaml value")
}

func TestLoadFromEnv(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":       "postgres://u:p@db:5432/payments",
		"RABBITMQ_URL":       "amqp://guest:guest@mq:5672/",
		"REDIS_URL":          "redis://cache:6379/1",
		"ALERT_ENDPOINT_URL": "https://alerts.internal/send",
		"ALERT_SERVICE_KEY":  "svc-key",
		"APP_PUBLIC_URL":     "https://staging.groundupcareers.com",
		"MAIL_FROM_ADDRESS":  "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := validConfig()
	cfg.loadFromEnv(lookup)

	assert.Equal(t, "postgres://u:p@db:5432/payments", cfg.Database.URL)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.RabbitMQ.URL)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, "https://alerts.internal/send", cfg.Alerts.EndpointURL)
	assert.Equal(t, "svc-key", cfg.Alerts.ServiceKey)
	assert.Equal(t, "https://staging.groundupcareers.com", cfg.App.PublicURL)
	assert.Equal(t, "billing@groundupcareers.com", cfg.Mail.FromAddress, "empty env value does not override")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "database url replaces host fields",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{URL: "postgres://u:p@db/payments"}
			},
			wantErr: false,
		},
		{
			name: "rabbitmq url replaces host fields",
			mutate: func(c *Config) {
				c.RabbitMQ.URL = "amqp://guest:guest@mq:5672/"
				c.RabbitMQ.Host = ""
				c.RabbitMQ.Port = 0
			},
			wantErr: false,
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "invalid database port",
			mutate:    func(c *Config) { c.Database.Port = 0 },
			wantErr:   true,
			errString: "invalid database port",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "relative public url",
			mutate:    func(c *Config) { c.App.PublicURL = "dashboard" },
			wantErr:   true,
			errString: "invalid app public_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing resend key is fine", mutate: func(c *Config) { c.Mail.ResendAPIKey = "" }},
		{name: "server port too low", mutate: func(c *Config) { c.Server.Port = 0 }, errString: "invalid server port"},
		{name: "server port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, errString: "invalid server port"},
		{name: "missing stripe secret", mutate: func(c *Config) { c.Stripe.SecretKey = "" }, errString: "STRIPE_SECRET_KEY"},
		{name: "missing webhook secret", mutate: func(c *Config) { c.Stripe.WebhookSecret = "" }, errString: "STRIPE_WEBHOOK_SECRET"},
		{name: "missing redis url", mutate: func(c *Config) { c.Redis.URL = "" }, errString: "REDIS_URL"},
		{name: "negative burst", mutate: func(c *Config) { c.RateLimit.Burst = -1 }, errString: "must not be negative"},
		{name: "shared check still runs", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "stripe not needed", mutate: func(c *Config) { c.Stripe = StripeConfig{} }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, errString: "worker concurrency"},
		{name: "zero job timeout", mutate: func(c *Config) { c.Worker.JobTimeout = 0 }, errString: "worker job_timeout"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Worker.ShutdownTimeout = 0 }, errString: "worker shutdown_timeout"},
		{name: "zero max attempts", mutate: func(c *Config) { c.Outbox.MaxAttempts = 0 }, errString: "outbox max_attempts"},
		{name: "zero sweep interval", mutate: func(c *Config) { c.Staging.SweepInterval = 0 }, errString: "sweep_interval"},
		{name: "missing from address", mutate: func(c *Config) { c.Mail.FromAddress = "" }, errString: "from_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	clearOverrides(t)

	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestPortConstants(t *testing.T) {
	t.Run("port constants are correct", func(t *testing.T) {
		assert.Equal(t, 1, MinPort)
		assert.Equal(t, 65535, MaxPort)
	})

	t.Run("validatePort bounds", func(t *testing.T) {
		for _, port := range []int{1, 80, 443, 8080, 65535} {
			assert.NoError(t, validatePort("server", port))
		}
		for _, port := range []int{0, -1, 65536, 70000} {
			assert.Error(t, validatePort("server", port), "port %d should be invalid", port)
		}
	})
}
