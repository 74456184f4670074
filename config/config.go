package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/clinicaonline/turnos-api/internal/email"
	"github.com/clinicaonline/turnos-api/internal/repository/postgres"
	"github.com/clinicaonline/turnos-api/internal/service/schedule"
	"github.com/clinicaonline/turnos-api/pkg/auth"
	"github.com/clinicaonline/turnos-api/pkg/messaging/redis"
	"github.com/clinicaonline/turnos-api/pkg/worker"
)

// EnvPrefix prefixes every environment override, e.g. CLINICA_DATABASE_HOST
const EnvPrefix = "CLINICA"

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" envconfig:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" envconfig:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" envconfig:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" envconfig:"max_body_bytes"`
	// CatalogTTL bounds both the in-memory specialty cache and the public Cache-Control max-age
	CatalogTTL      time.Duration `mapstructure:"catalog_ttl" envconfig:"catalog_ttl"`
	HSTS            bool          `mapstructure:"hsts"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode" envconfig:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"conn_max_lifetime"`
}

type JWTConfig struct {
	Secret        string        `mapstructure:"secret"`
	RefreshSecret string        `mapstructure:"refresh_secret" envconfig:"refresh_secret"`
	Issuer        string        `mapstructure:"issuer"`
	AccessExpiry  time.Duration `mapstructure:"access_expiry" envconfig:"access_expiry"`
	RefreshExpiry time.Duration `mapstructure:"refresh_expiry" envconfig:"refresh_expiry"`
}

type AuthConfig struct {
	BcryptCost      int           `mapstructure:"bcrypt_cost" envconfig:"bcrypt_cost"`
	VerificationTTL time.Duration `mapstructure:"verification_ttl" envconfig:"verification_ttl"`
	// RequireEmailVerification blocks login until the email is confirmed
	RequireEmailVerification bool `mapstructure:"require_email_verification" envconfig:"require_email_verification"`
}

type RedisConfig struct {
	URL           string        `mapstructure:"url"`
	MaxRetries    int           `mapstructure:"max_retries" envconfig:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" envconfig:"retry_backoff"`
	PoolSize      int           `mapstructure:"pool_size" envconfig:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns" envconfig:"min_idle_conns"`
	// ConsumerGroup is shared by every cmd/worker reading the event stream
	ConsumerGroup string        `mapstructure:"consumer_group" envconfig:"consumer_group"`
	ClaimIdle     time.Duration `mapstructure:"claim_idle" envconfig:"claim_idle"`
	MaxDeliveries int64         `mapstructure:"max_deliveries" envconfig:"max_deliveries"`
	StreamMaxLen  int64         `mapstructure:"stream_max_len" envconfig:"stream_max_len"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size" envconfig:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval" envconfig:"poll_interval"`
	RetryAttempts   int           `mapstructure:"retry_attempts" envconfig:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" envconfig:"retry_delay"`
	MaxRetryDelay   time.Duration `mapstructure:"max_retry_delay" envconfig:"max_retry_delay"`
	RetentionDays   int           `mapstructure:"retention_days" envconfig:"retention_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"cleanup_interval"`
	// Embedded runs a processor inside cmd/api too. SKIP LOCKED lets it share the table with cmd/worker.
	Embedded        bool          `mapstructure:"embedded"`
}

type WorkerConfig struct {
	// HealthPort serves /health and /metrics of cmd/worker
	HealthPort int `mapstructure:"health_port" envconfig:"health_port"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" envconfig:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" envconfig:"allowed_origins"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// BaseURL is where links in emails point to
	BaseURL string `mapstructure:"base_url" envconfig:"base_url"`
}

type BookingConfig struct {
	SlotMinutes int    `mapstructure:"slot_minutes" envconfig:"slot_minutes"`
	HorizonDays int    `mapstructure:"horizon_days" envconfig:"horizon_days"`
	Timezone    string `mapstructure:"timezone"`
	// OpeningHours maps a weekday (0 = Sunday) to "HH:MM-HH:MM". Missing days are closed.
	OpeningHours map[int]string `mapstructure:"opening_hours" envconfig:"opening_hours"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" envconfig:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Log       LogConfig       `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.catalog_ttl", 5*time.Minute)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("jwt.issuer", "turnos-api")
	v.SetDefault("jwt.access_expiry", 15*time.Minute)
	v.SetDefault("jwt.refresh_expiry", 7*24*time.Hour)

	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.verification_ttl", 48*time.Hour)
	v.SetDefault("auth.require_email_verification", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.consumer_group", "notificaciones")
	v.SetDefault("redis.claim_idle", time.Minute)
	v.SetDefault("redis.max_deliveries", 5)
	v.SetDefault("redis.stream_max_len", 100000)

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.retry_attempts", 5)
	v.SetDefault("outbox.retry_delay", 10*time.Second)
	v.SetDefault("outbox.max_retry_delay", 30*time.Minute)
	v.SetDefault("outbox.retention_days", 14)
	v.SetDefault("outbox.cleanup_interval", time.Hour)
	v.SetDefault("outbox.embedded", true)

	v.SetDefault("worker.health_port", 8081)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:4200"})

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "Clínica Online <no-reply@clinicaonline.com>")

	v.SetDefault("booking.slot_minutes", 30)
	v.SetDefault("booking.horizon_days", 15)
	v.SetDefault("booking.timezone", "America/Argentina/Buenos_Aires")

	v.SetDefault("log.level", "info")
}

// Load reads config.yaml (or CONFIG_FILE) and applies CLINICA_* environment overrides
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")           // current directory
		v.AddConfigPath("./config")    // config subdirectory
		v.AddConfigPath("/app/config") // container config directory
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Booking.OpeningHours) == 0 {
		cfg.Booking.OpeningHours = DefaultOpeningHours()
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultOpeningHours is Monday to Friday 08:00-19:00 and Saturday 08:00-14:00
func DefaultOpeningHours() map[int]string {
	return map[int]string{
		1: "08:00-19:00",
		2: "08:00-19:00",
		3: "08:00-19:00",
		4: "08:00-19:00",
		5: "08:00-19:00",
		6: "08:00-14:00",
	}
}

func (c *Config) Validate() error {
	var problems []string
	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required")
	}
	if c.JWT.RefreshSecret == "" {
		problems = append(problems, "jwt.refresh_secret is required")
	}
	if c.JWT.Secret != "" && c.JWT.Secret == c.JWT.RefreshSecret {
		problems = append(problems, "jwt.refresh_secret must differ from jwt.secret")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 || c.Outbox.RetryAttempts <= 0 || c.Outbox.RetryDelay <= 0 {
		problems = append(problems, "outbox batch_size, poll_interval, retry_attempts and retry_delay must be positive")
	}
	if c.Booking.SlotMinutes <= 0 || c.Booking.HorizonDays <= 0 {
		problems = append(problems, "booking slot_minutes and horizon_days must be positive")
	}
	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("booking.timezone: %v", err))
	}
	if _, err := schedule.ParseOpeningHours(c.Booking.OpeningHours); err != nil {
		problems = append(problems, fmt.Sprintf("booking.opening_hours: %v", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *DatabaseConfig) ToPostgresConfig() postgres.Config {
	return postgres.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Name:            c.Name,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

func (c *JWTConfig) ToAuthConfig() auth.Config {
	return auth.Config{
		Secret:        c.Secret,
		RefreshSecret: c.RefreshSecret,
		Issuer:        c.Issuer,
		AccessExpiry:  c.AccessExpiry,
		RefreshExpiry: c.RefreshExpiry,
	}
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		MaxRetryDelay: c.MaxRetryDelay,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

// ToConsumerConfig leaves Consumer empty so each process names itself after host and pid
func (c *RedisConfig) ToConsumerConfig() redis.ConsumerConfig {
	return redis.ConsumerConfig{
		Group:         c.ConsumerGroup,
		ClaimIdle:     c.ClaimIdle,
		MaxDeliveries: c.MaxDeliveries,
		MaxLen:        c.StreamMaxLen,
	}
}

// ToScheduleConfig resolves the booking rules. Validate must have passed.
func (c *BookingConfig) ToScheduleConfig() (schedule.Config, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return schedule.Config{}, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	hours, err := schedule.ParseOpeningHours(c.OpeningHours)
	if err != nil {
		return schedule.Config{}, err
	}
	return schedule.Config{
		SlotDuration: time.Duration(c.SlotMinutes) * time.Minute,
		HorizonDays:  c.HorizonDays,
		Location:     loc,
		OpeningHours: hours,
	}, nil
}

// ToMailerConfig renders dates in the clinic timezone
func (c *Config) ToMailerConfig() email.Config {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return email.Config{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		BaseURL:  c.SMTP.BaseURL,
		Location: loc,
	}
}
