package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Mail      MailConfig      `yaml:"mail"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Staging   StagingConfig   `yaml:"staging"`
	Worker    WorkerConfig    `yaml:"worker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	// PublicURL is the browser-facing base URL used in dashboard links.
	PublicURL string `yaml:"public_url"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty trusts none.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// DatabaseConfig holds PostgreSQL connection configuration. URL, when set,
// replaces the discrete host fields.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	URL        string           `yaml:"url"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// RedisConfig holds the webhook event store connection.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	EventTTL time.Duration `yaml:"event_ttl"`
}

// StripeConfig holds payment processor credentials.
type StripeConfig struct {
	SecretKey     string        `yaml:"secret_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

// MailConfig holds the email provider settings. An empty ResendAPIKey
// selects the log-only mailer.
type MailConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"`
	FromAddress  string `yaml:"from_address"`
}

// AlertsConfig holds the internal alert endpoint.
type AlertsConfig struct {
	EndpointURL string        `yaml:"endpoint_url"`
	ServiceKey  string        `yaml:"service_key"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RateLimitConfig bounds requests to the public payment endpoint.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// OutboxConfig tunes notification dispatch.
type OutboxConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	RelayInterval time.Duration `yaml:"relay_interval"`
	RelayAfter    time.Duration `yaml:"relay_after"`
	ClaimTimeout  time.Duration `yaml:"claim_timeout"`
	BatchSize     int           `yaml:"batch_size"`
}

// StagingConfig drives the unpaid job post sweep.
type StagingConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	PrefetchCount   int           `yaml:"prefetch_count"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// Load reads and parses the configuration file, then applies environment
// overrides for secrets and endpoints.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.loadFromEnv(os.LookupEnv)

	return &config, nil
}

// loadFromEnv overrides fields from the environment. Only non-empty values
// override.
func (c *Config) loadFromEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	set(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	set(&c.Database.URL, "DATABASE_URL")
	set(&c.RabbitMQ.URL, "RABBITMQ_URL")
	set(&c.Redis.URL, "REDIS_URL")
	set(&c.Mail.ResendAPIKey, "RESEND_API_KEY")
	set(&c.Mail.FromAddress, "MAIL_FROM_ADDRESS")
	set(&c.Alerts.EndpointURL, "ALERT_ENDPOINT_URL")
	set(&c.Alerts.ServiceKey, "ALERT_SERVICE_KEY")
	set(&c.App.PublicURL, "APP_PUBLIC_URL")
	set(&c.Logging.Level, "LOG_LEVEL")
	set(&c.Logging.Format, "LOG_FORMAT")
}

// Validate checks the settings both binaries share.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if err := validatePort("database", c.Database.Port); err != nil {
			return err
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.RabbitMQ.URL == "" {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if err := validatePort("rabbitmq", c.RabbitMQ.Port); err != nil {
			return err
		}
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.App.PublicURL != "" {
		if _, err := url.ParseRequestURI(c.App.PublicURL); err != nil {
			return fmt.Errorf("invalid app public_url: %w", err)
		}
	}

	return nil
}

// ValidateAPIConfig checks the shared settings plus what the HTTP service needs.
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := validatePort("server", c.Server.Port); err != nil {
		return err
	}

	var missing []string
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "stripe secret_key (STRIPE_SECRET_KEY)")
	}
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "stripe webhook_secret (STRIPE_WEBHOOK_SECRET)")
	}
	if c.Redis.URL == "" {
		missing = append(missing, "redis url (REDIS_URL)")
	}
	if len(missing) > 0 {
		return errors.New("missing required settings: " + strings.Join(missing, ", "))
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit rps and burst must not be negative")
	}

	return nil
}

// ValidateWorkerConfig checks the shared settings plus what the worker needs.
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox max_attempts must be greater than 0")
	}

	if c.Outbox.RelayInterval <= 0 || c.Staging.SweepInterval <= 0 {
		return fmt.Errorf("outbox relay_interval and staging sweep_interval must be greater than 0")
	}

	if c.Mail.FromAddress == "" {
		return fmt.Errorf("mail from_address is required")
	}

	return nil
}

func validatePort(name string, port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid %s port: %d (must be between %d and %d)", name, port, MinPort, MaxPort)
	}
	return nil
}
