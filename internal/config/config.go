package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/ratelimit"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Queue drivers
const (
	QueueDriverAsynq    = "asynq"
	QueueDriverRabbitMQ = "rabbitmq"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Billing   domain.Pricing  `yaml:"billing"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Backend   BackendConfig   `yaml:"backend"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds SQL connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // postgres or sqlite3
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	Path            string        `yaml:"path"` // sqlite3 only
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string              `yaml:"host"`
	Port       int                 `yaml:"port"`
	User       string              `yaml:"user"`
	Password   string              `yaml:"password"`
	VHost      string              `yaml:"vhost"`
	Exchange   ExchangeConfig      `yaml:"exchange"`
	Queue      RabbitMQQueueConfig `yaml:"queue"`
	RoutingKey string              `yaml:"routing_key"`
	Connection ConnectionConfig    `yaml:"connection"`
	Publish    PublishConfig       `yaml:"publish"`
	Consumer   ConsumerConfig      `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// RabbitMQQueueConfig holds RabbitMQ queue configuration
type RabbitMQQueueConfig struct {
	Name       string `yaml:"name"`
	RetryName  string `yaml:"retry_name"`
	FailedName string `yaml:"failed_name"`
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

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	Tag           string `yaml:"tag"`
}

// RedisConfig holds the Redis connection used by the asynq driver
type RedisConfig struct {
	URL string `yaml:"url"`
}

// QueueConfig selects the transport and its delivery policy
type QueueConfig struct {
	Driver         string        `yaml:"driver"` // asynq or rabbitmq
	Name           string        `yaml:"name"`
	Attempts       int           `yaml:"attempts"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int                              `yaml:"concurrency"`
	JobTimeout        time.Duration                    `yaml:"job_timeout"`
	Timeouts          map[domain.JobType]time.Duration `yaml:"timeouts"`
	HeartbeatInterval time.Duration                    `yaml:"heartbeat_interval"`
	StaleAfter        time.Duration                    `yaml:"stale_after"`
	RequeueInterval   time.Duration                    `yaml:"requeue_interval"`
	ShutdownTimeout   time.Duration                    `yaml:"shutdown_timeout"`
	ArtifactDir       string                           `yaml:"artifact_dir"`
}

// RateLimitConfig holds per job type creation limits
type RateLimitConfig struct {
	Cleanup time.Duration                      `yaml:"cleanup"`
	Limits  map[domain.JobType]ratelimit.Limit `yaml:"limits"`
}

// EndpointConfig describes one HTTP collaborator
type EndpointConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// BackendConfig holds the external services used by job handlers
type BackendConfig struct {
	Generation EndpointConfig `yaml:"generation"`
	Renderer   EndpointConfig `yaml:"renderer"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills every unset field with its default
func (c *Config) ApplyDefaults() {
	setDuration(&c.Server.ReadTimeout, 15*time.Second)
	setDuration(&c.Server.WriteTimeout, 30*time.Second)
	setDuration(&c.Server.IdleTimeout, 60*time.Second)
	setDuration(&c.Server.ShutdownTimeout, 30*time.Second)

	setString(&c.Database.Driver, "postgres")
	setString(&c.Database.SSLMode, "disable")

	setString(&c.Queue.Driver, QueueDriverAsynq)
	setString(&c.Queue.Name, "jobs")
	setInt(&c.Queue.Attempts, domain.DefaultMaxRetries)
	setDuration(&c.Queue.BackoffInitial, time.Second)
	setDuration(&c.Queue.BackoffMax, time.Minute)

	setInt(&c.Worker.Concurrency, 4)
	setDuration(&c.Worker.JobTimeout, 2*time.Minute)
	setDuration(&c.Worker.HeartbeatInterval, 30*time.Second)
	setDuration(&c.Worker.StaleAfter, 5*time.Minute)
	setDuration(&c.Worker.RequeueInterval, time.Minute)
	setDuration(&c.Worker.ShutdownTimeout, 30*time.Second)
	setString(&c.Worker.ArtifactDir, "data/artifacts")

	setString(&c.RabbitMQ.Exchange.Type, "direct")
	setInt(&c.RabbitMQ.Consumer.PrefetchCount, c.Worker.Concurrency)

	if c.Billing == nil {
		c.Billing = domain.DefaultPricing()
	}

	setDuration(&c.RateLimit.Cleanup, time.Minute)
	if c.RateLimit.Limits == nil {
		c.RateLimit.Limits = map[domain.JobType]ratelimit.Limit{
			domain.JobTypeAnalyze:        {Max: 5, Window: time.Minute},
			domain.JobTypeGenerateResume: {Max: 5, Window: time.Minute},
			domain.JobTypeGeneratePDF:    {Max: 5, Window: time.Minute},
		}
	}

	setDuration(&c.Backend.Generation.Timeout, 2*time.Minute)
	setDuration(&c.Backend.Renderer.Timeout, 3*time.Minute)

	setString(&c.Logging.Level, "info")
	setString(&c.Logging.Format, "json")
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if err := c.Billing.Validate(); err != nil {
		return fmt.Errorf("invalid billing config: %w", err)
	}

	for t, limit := range c.RateLimit.Limits {
		if !t.Valid() {
			return fmt.Errorf("unknown job type in ratelimit: %q", t)
		}
		if limit.Max < 0 || limit.Window < 0 {
			return fmt.Errorf("ratelimit for %s must not be negative", t)
		}
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if err := c.Billing.Validate(); err != nil {
		return fmt.Errorf("invalid billing config: %w", err)
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	for t, d := range c.Worker.Timeouts {
		if !t.Valid() {
			return fmt.Errorf("unknown job type in worker timeouts: %q", t)
		}
		if d <= 0 {
			return fmt.Errorf("worker timeout for %s must be greater than 0", t)
		}
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.StaleAfter <= c.Worker.HeartbeatInterval {
		return fmt.Errorf("worker stale_after must be longer than heartbeat_interval")
	}

	if c.Worker.RequeueInterval <= 0 {
		return fmt.Errorf("worker requeue_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.ArtifactDir == "" {
		return fmt.Errorf("worker artifact_dir is required")
	}

	if c.Backend.Generation.URL == "" {
		return fmt.Errorf("backend generation url is required")
	}

	if c.Backend.Renderer.URL == "" {
		return fmt.Errorf("backend renderer url is required")
	}

	return nil
}

// ValidateDatabaseConfig checks only the database section, for tools that
// need nothing else
func (c *Config) ValidateDatabaseConfig() error {
	return c.validateDatabase()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Attempts <= 0 {
		return fmt.Errorf("queue attempts must be greater than 0")
	}

	switch c.Queue.Driver {
	case QueueDriverAsynq:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis url is required for the asynq queue driver")
		}
	case QueueDriverRabbitMQ:
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
		if c.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
	default:
		return fmt.Errorf("unsupported queue driver: %q", c.Queue.Driver)
	}
	return nil
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}
