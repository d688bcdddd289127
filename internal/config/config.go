// Package config loads application configuration from a YAML file with
// environment variable overrides. Secrets live in env vars (or a local
// .env); config.yaml carries the structural settings.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	SES       SESConfig       `yaml:"ses"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Mailbox   MailboxConfig   `yaml:"mailbox"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional Redis connection for distributed locks.
// When Addr is empty the scheduler falls back to PG advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SESConfig holds AWS SES credentials for the mail transport.
type SESConfig struct {
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	Region         string `yaml:"region"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SchedulerConfig holds the campaign scheduler loop settings.
type SchedulerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	ClaimTTLMinutes     int `yaml:"claim_ttl_minutes"`
	BatchLimit          int `yaml:"batch_limit"`
}

// PollInterval returns the scheduler tick period as a duration.
func (c SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ClaimTTL returns how long a sending claim is considered live before a
// stuck campaign becomes eligible for re-claim.
func (c SchedulerConfig) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLMinutes) * time.Minute
}

// MailboxConfig holds the mailbox sync worker settings.
type MailboxConfig struct {
	PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
	FetchLimit          int  `yaml:"fetch_limit"`
	UseTLS              bool `yaml:"use_tls"`
}

// PollInterval returns the sync tick period as a duration.
func (c MailboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// LoggingConfig holds log level and redaction settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Scheduler.PollIntervalSeconds == 0 {
		cfg.Scheduler.PollIntervalSeconds = 60
	}
	if cfg.Scheduler.ClaimTTLMinutes == 0 {
		cfg.Scheduler.ClaimTTLMinutes = 30
	}
	if cfg.Scheduler.BatchLimit == 0 {
		cfg.Scheduler.BatchLimit = 10
	}
	if cfg.Mailbox.PollIntervalSeconds == 0 {
		cfg.Mailbox.PollIntervalSeconds = 60
	}
	if cfg.Mailbox.FetchLimit == 0 {
		cfg.Mailbox.FetchLimit = 100
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file first (if present), so secrets can live in .env
// locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}

	return cfg, nil
}
