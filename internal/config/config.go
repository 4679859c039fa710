package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	ReminderEveryCycle = "every_cycle"
	ReminderOnce       = "once"
)

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"url"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

type TelegramConfig struct {
	Token         string `yaml:"token"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type RedisConfig struct {
	URL        string        `yaml:"url"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type EmailConfig struct {
	SMTPHost        string `yaml:"smtp_host"`
	SMTPPort        int    `yaml:"smtp_port"`
	SMTPUser        string `yaml:"smtp_user"`
	SMTPPassword    string `yaml:"smtp_password"`
	FromEmail       string `yaml:"from_email"`
	OverdueDigestTo string `yaml:"overdue_digest_to"`
}

type FilesConfig struct {
	RootDir string `yaml:"root_dir"`
	MaxSize int64  `yaml:"max_size"`
	FontDir string `yaml:"font_dir"`
}

type SchedulerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`
	Lookahead      time.Duration `yaml:"lookahead"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	ReminderPolicy string        `yaml:"reminder_policy"`
}

type NotifyConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Server              ServerConfig    `yaml:"server"`
	Database            DatabaseConfig  `yaml:"database"`
	Telegram            TelegramConfig  `yaml:"telegram"`
	Redis               RedisConfig     `yaml:"redis"`
	NATS                NATSConfig      `yaml:"nats"`
	Email               EmailConfig     `yaml:"email"`
	Files               FilesConfig     `yaml:"files"`
	Scheduler           SchedulerConfig `yaml:"scheduler"`
	Notify              NotifyConfig    `yaml:"notify"`
	Auth                AuthConfig      `yaml:"auth"`
	TimezoneOffsetHours int             `yaml:"timezone_offset_hours"`
}

// ConfigError points at the first invalid setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: 15 * time.Second},
		Database: DatabaseConfig{Driver: DriverPostgres, QueryTimeout: 5 * time.Second, MaxOpenConns: 10},
		Redis:    RedisConfig{SessionTTL: 24 * time.Hour},
		NATS:     NATSConfig{SubjectPrefix: "taskbot.tasks"},
		Email:    EmailConfig{SMTPPort: 587},
		Files:    FilesConfig{RootDir: "./files", MaxSize: 100 << 20},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			Interval:       30 * time.Minute,
			Lookahead:      2 * time.Hour,
			RetryBackoff:   60 * time.Second,
			ReminderPolicy: ReminderEveryCycle,
		},
		Notify:              NotifyConfig{Timeout: 10 * time.Second, MaxRetries: 2},
		Auth:                AuthConfig{TokenTTL: 24 * time.Hour},
		TimezoneOffsetHours: 5,
	}
}

// Load reads the YAML file over the defaults, applies environment overrides
// and validates the result. A missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Database.Driver, "TASKBOT_STORAGE")
	setString(&cfg.Database.DSN, "TASKBOT_DB_DSN")
	setString(&cfg.Telegram.Token, "BOT_TOKEN")
	setString(&cfg.Telegram.WebhookURL, "TASKBOT_WEBHOOK_URL")
	setString(&cfg.Telegram.WebhookSecret, "TASKBOT_WEBHOOK_SECRET")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Auth.JWTSecret, "TASKBOT_JWT_SECRET")
	setString(&cfg.Email.SMTPPassword, "TASKBOT_SMTP_PASSWORD")
	setInt(&cfg.Server.Port, "TASKBOT_PORT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return &ConfigError{Field: "database.url", Reason: "required for the postgres driver"}
		}
	case DriverMemory:
	default:
		return &ConfigError{Field: "database.driver", Reason: fmt.Sprintf("unknown driver %q", c.Database.Driver)}
	}
	if c.Database.QueryTimeout <= 0 {
		return &ConfigError{Field: "database.query_timeout", Reason: "must be positive"}
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if c.Notify.Timeout <= 0 {
		return &ConfigError{Field: "notify.timeout", Reason: "must be positive"}
	}
	if c.Notify.MaxRetries < 0 {
		return &ConfigError{Field: "notify.max_retries", Reason: "must not be negative"}
	}
	if c.Files.MaxSize <= 0 {
		return &ConfigError{Field: "files.max_size", Reason: "must be positive"}
	}
	if c.TimezoneOffsetHours < -12 || c.TimezoneOffsetHours > 14 {
		return &ConfigError{Field: "timezone_offset_hours", Reason: "out of range"}
	}
	return nil
}

func (s SchedulerConfig) Validate() error {
	if s.Interval <= 0 {
		return &ConfigError{Field: "scheduler.interval", Reason: "must be positive"}
	}
	if s.Lookahead <= 0 {
		return &ConfigError{Field: "scheduler.lookahead", Reason: "must be positive"}
	}
	if s.RetryBackoff <= 0 {
		return &ConfigError{Field: "scheduler.retry_backoff", Reason: "must be positive"}
	}
	if s.ReminderPolicy != ReminderEveryCycle && s.ReminderPolicy != ReminderOnce {
		return &ConfigError{Field: "scheduler.reminder_policy", Reason: fmt.Sprintf("unknown policy %q", s.ReminderPolicy)}
	}
	return nil
}

// Location is the fixed zone used for deadline presets and message formatting.
func (c *Config) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.TimezoneOffsetHours), c.TimezoneOffsetHours*3600)
}
