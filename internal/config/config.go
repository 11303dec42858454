package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/messaging/redis"
	"github.com/jwalitptl/appointment-engine/pkg/worker"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Security   SecurityConfig   `mapstructure:"security"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Mail       MailConfig       `mapstructure:"mail"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig selects the appointment store. Driver is "postgres" or
// "memory"; the connection fields only matter for postgres.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Retention     time.Duration `mapstructure:"retention"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// SchedulingConfig holds the working day every doctor shares and the
// single location used to compose dates with times.
type SchedulingConfig struct {
	WorkStart              string        `mapstructure:"work_start"`
	WorkEnd                string        `mapstructure:"work_end"`
	SlotMinutes            int           `mapstructure:"slot_minutes"`
	DefaultDurationMinutes int           `mapstructure:"default_duration_minutes"`
	Timezone               string        `mapstructure:"timezone"`
	ResolveTimeout         time.Duration `mapstructure:"resolve_timeout"`
	BreakerMaxFailures     int           `mapstructure:"breaker_max_failures"`
	BreakerTimeout         time.Duration `mapstructure:"breaker_timeout"`
	TransitionAttempts     int           `mapstructure:"transition_attempts"`
}

type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// PatientAddress is a template such as "patient-%d@example.com" used
	// until a directory service supplies real addresses.
	PatientAddress string `mapstructure:"patient_address"`
	DoctorAddress  string `mapstructure:"doctor_address"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Secrets are read from the environment only, never from config.yml.
type Secrets struct {
	JWTSecret    string `envconfig:"JWT_SECRET"`
	DBPassword   string `envconfig:"DB_PASSWORD"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
}

const envPrefix = "APPT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.request_timeout", "30s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "appointments")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("jwt.issuer", "appointment-engine")
	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "5s")
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", "1s")
	v.SetDefault("outbox.retention", "168h")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("security.allowed_origins", []string{"*"})
	v.SetDefault("security.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"})

	v.SetDefault("scheduling.work_start", "08:00")
	v.SetDefault("scheduling.work_end", "17:00")
	v.SetDefault("scheduling.slot_minutes", 30)
	v.SetDefault("scheduling.default_duration_minutes", model.DefaultDurationMinutes)
	v.SetDefault("scheduling.timezone", "UTC")
	v.SetDefault("scheduling.resolve_timeout", "3s")
	v.SetDefault("scheduling.breaker_max_failures", 5)
	v.SetDefault("scheduling.breaker_timeout", "30s")
	v.SetDefault("scheduling.transition_attempts", 3)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 1025)
	v.SetDefault("mail.from", "no-reply@clinic.local")
	v.SetDefault("mail.patient_address", "patient-%d@clinic.local")
	v.SetDefault("mail.doctor_address", "doctor-%d@clinic.local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// LoadConfig reads config.yml from the usual locations, overlays APPT_*
// environment variables and finally the secrets. A missing config file is
// not an error; the defaults describe a working local setup.
func LoadConfig() (*Config, error) {
	// .env is optional in every environment
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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

	var secrets Secrets
	if err := envconfig.Process(envPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	cfg.applySecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Defaults returns the built-in configuration without reading files or
// the environment.
func Defaults() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal defaults: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s Secrets) {
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	if s.SMTPPassword != "" {
		c.Mail.Password = s.SMTPPassword
	}
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (set %s_JWT_SECRET)", envPrefix)
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if _, err := c.Scheduling.WorkingHours(); err != nil {
		return err
	}
	if _, err := c.Scheduling.Location(); err != nil {
		return err
	}
	return nil
}

// WorkingHours converts the configured day into the slot grid definition.
func (s SchedulingConfig) WorkingHours() (model.WorkingHours, error) {
	start, err := model.ParseTimeOfDay(s.WorkStart)
	if err != nil {
		return model.WorkingHours{}, fmt.Errorf("scheduling.work_start: %w", err)
	}
	end, err := model.ParseTimeOfDay(s.WorkEnd)
	if err != nil {
		return model.WorkingHours{}, fmt.Errorf("scheduling.work_end: %w", err)
	}
	wh := model.WorkingHours{
		Start:       start,
		End:         end,
		Granularity: time.Duration(s.SlotMinutes) * time.Minute,
	}
	if err := wh.Validate(); err != nil {
		return model.WorkingHours{}, fmt.Errorf("scheduling: %w", err)
	}
	return wh, nil
}

func (s SchedulingConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduling.timezone: %w", err)
	}
	return loc, nil
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
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
