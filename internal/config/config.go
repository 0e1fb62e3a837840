package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"habit-updater/internal/scheduler"
	"habit-updater/pkg/config"
	"habit-updater/pkg/otel"
)

const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

type SchedulerConfig struct {
	RunAt        string `yaml:"run_at"`
	Timezone     string `yaml:"timezone"`
	RunOnStartup bool   `yaml:"run_on_startup"`
}

type LedgerConfig struct {
	Backend  string `yaml:"backend"`
	RedisKey string `yaml:"redis_key"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type Config struct {
	DB        config.DBConfig     `yaml:"db"`
	Redis     config.RedisConfig  `yaml:"redis"`
	MQ        config.MQConfig     `yaml:"mq"`
	Server    config.ServerConfig `yaml:"server"`
	Scheduler SchedulerConfig     `yaml:"scheduler"`
	Ledger    LedgerConfig        `yaml:"ledger"`
	Outbox    OutboxConfig        `yaml:"outbox"`
	Otel      otel.Config         `yaml:"otel"`
}

func Load() *Config {
	// 使用统一配置中心
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfg, err := LoadFrom(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom reads base.yaml plus the env overlay from dir, applies
// environment overrides and validates the result.
func LoadFrom(env, dir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := config.Decode(cfgMap, cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideServerFromEnv(&cfg.Server)
	overrideFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: config.ServerConfig{Port: "8080"},
		Scheduler: SchedulerConfig{
			RunAt:        "00:05",
			Timezone:     "Local",
			RunOnStartup: true,
		},
		Ledger: LedgerConfig{
			Backend:  LedgerPostgres,
			RedisKey: "habit-updater:last_run_date",
		},
		Outbox: OutboxConfig{
			Interval:   2 * time.Second,
			BatchSize:  100,
			MaxRetries: 5,
		},
		Otel: otel.Config{
			ServiceName: "habit-updater",
			SampleRatio: 1.0,
		},
	}
}

func overrideFromEnv(cfg *Config) {
	if runAt := os.Getenv("UPDATER_RUN_AT"); runAt != "" {
		cfg.Scheduler.RunAt = runAt
	}
	if tz := os.Getenv("UPDATER_TIMEZONE"); tz != "" {
		cfg.Scheduler.Timezone = tz
	}
	if v := os.Getenv("UPDATER_RUN_ON_STARTUP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.RunOnStartup = b
		}
	}
	if backend := os.Getenv("LEDGER_BACKEND"); backend != "" {
		cfg.Ledger.Backend = backend
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Otel.Endpoint = endpoint
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Otel.Enabled = b
		}
	}
}

func (c *Config) Validate() error {
	if _, err := c.RunAt(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Ledger.Backend {
	case LedgerPostgres:
	case LedgerRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("ledger backend %q requires redis.addr", c.Ledger.Backend)
		}
		if c.Ledger.RedisKey == "" {
			return fmt.Errorf("ledger backend %q requires ledger.redis_key", c.Ledger.Backend)
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be positive, got %d", c.Outbox.BatchSize)
	}
	if c.Outbox.Interval <= 0 {
		return fmt.Errorf("outbox.interval must be positive, got %s", c.Outbox.Interval)
	}
	return nil
}

func (c *Config) RunAt() (scheduler.TimeOfDay, error) {
	return scheduler.ParseTimeOfDay(c.Scheduler.RunAt)
}

// Location resolves the scheduler timezone. Empty means the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}
