package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	sharedConfig "github.com/bookwise-inc/bookwise/internal/shared/config"
)

type Config struct {
	Server   sharedConfig.ServerConfig   `mapstructure:"server"`
	Database sharedConfig.DatabaseConfig `mapstructure:"database"`
	Logger   sharedConfig.LoggerConfig   `mapstructure:"logger"`
	Redis    sharedConfig.RedisConfig    `mapstructure:"redis"`
	Email    sharedConfig.EmailConfig    `mapstructure:"email"`
	Auth     sharedConfig.AuthConfig     `mapstructure:"auth"`
	Stripe   sharedConfig.StripeConfig   `mapstructure:"stripe"`
	Billing  sharedConfig.BillingConfig  `mapstructure:"billing"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configs/config.yaml (or configFile when given), overlays
// BOOKWISE_* environment variables and validates the billing policy.
// A missing config file is not an error; defaults and env still apply.
func Load(env, configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("BOOKWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg.Billing); err != nil {
		return nil, fmt.Errorf("invalid billing config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &cfg
	appConfigMu.Unlock()

	return &cfg, nil
}

// Get returns the configuration from the last successful Load.
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.webhook_rate_per_minute", 600)
	v.SetDefault("server.admin_rate_per_minute", 30)

	// Database
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "bookwise_dev")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 60)

	// Logger
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.source_all_levels", false)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Email
	v.SetDefault("email.smtp_host", "localhost")
	v.SetDefault("email.smtp_port", 1025)
	v.SetDefault("email.from_address", "billing@bookwise.local")
	v.SetDefault("email.from_name", "Bookwise Billing")
	v.SetDefault("email.max_attempts", 3)

	// Auth
	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("auth.admin_token_exp_days", 30)

	// Stripe
	v.SetDefault("stripe.success_url", "http://localhost:8080/billing/success")
	v.SetDefault("stripe.cancel_url", "http://localhost:8080/billing/cancel")

	// Billing
	v.SetDefault("billing.timezone", "UTC")
	v.SetDefault("billing.validation_interval_minutes", 6*60)
	v.SetDefault("billing.renewal_interval_minutes", 12*60)
	v.SetDefault("billing.job_timeout_minutes", 30)
	v.SetDefault("billing.retry_days", []int{1, 3, 7})
	v.SetDefault("billing.grace_days", 10)
	v.SetDefault("billing.lookahead_days", 7)
	v.SetDefault("billing.reminder_lead_days", []int{7, 3, 1})
	v.SetDefault("billing.charge_lifetime_hours", 72)
	v.SetDefault("billing.gateway_timeout_seconds", 10)
	v.SetDefault("billing.workers", 1)
	v.SetDefault("billing.distributed_lock", false)
	v.SetDefault("billing.lock_ttl_seconds", 60)
	v.SetDefault("billing.idempotency_ttl_hours", 72)
	v.SetDefault("billing.notification_queue_size", 256)
	v.SetDefault("billing.gateway", "mock")
	v.SetDefault("billing.idempotency_store", "redis")
	v.SetDefault("billing.breaker_failures", 5)
	v.SetDefault("billing.breaker_open_seconds", 30)
}
