package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	BaseURL      string `mapstructure:"base_url"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`

	// Per client IP, enforced only when Redis is available. 0 disables.
	WebhookRatePerMinute int `mapstructure:"webhook_rate_per_minute"`
	AdminRatePerMinute   int `mapstructure:"admin_rate_per_minute"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Driver is mysql or sqlite. For sqlite Database is the file path.
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level           string `mapstructure:"level"`
	Format          string `mapstructure:"format"`
	OutputPath      string `mapstructure:"output_path"`
	SourceAllLevels bool   `mapstructure:"source_all_levels"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type EmailConfig struct {
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
	FromAddress  string `mapstructure:"from_address"`
	FromName     string `mapstructure:"from_name"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
}

type AuthConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	AdminTokenExpDays int    `mapstructure:"admin_token_exp_days"`
}

type StripeConfig struct {
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

// BillingConfig holds the lifecycle policy and the scheduler cadence.
// Durations are plain hours/days so they map cleanly from env vars.
type BillingConfig struct {
	Timezone              string `mapstructure:"timezone" validate:"required"`
	ValidationIntervalMin int    `mapstructure:"validation_interval_minutes" validate:"min=1"`
	RenewalIntervalMin    int    `mapstructure:"renewal_interval_minutes" validate:"min=1"`
	JobTimeoutMin         int    `mapstructure:"job_timeout_minutes" validate:"min=1"`
	RetryDays             []int  `mapstructure:"retry_days" validate:"min=1,dive,min=1"`
	GraceDays             int    `mapstructure:"grace_days" validate:"min=1"`
	LookaheadDays         int    `mapstructure:"lookahead_days" validate:"min=1"`
	ReminderLeadDays      []int  `mapstructure:"reminder_lead_days" validate:"min=1,dive,min=1"`
	ChargeLifetimeHours   int    `mapstructure:"charge_lifetime_hours" validate:"min=1"`
	GatewayTimeoutSec     int    `mapstructure:"gateway_timeout_seconds" validate:"min=1"`
	Workers               int    `mapstructure:"workers" validate:"min=1,max=64"`
	DistributedLock       bool   `mapstructure:"distributed_lock"`
	LockTTLSec            int    `mapstructure:"lock_ttl_seconds" validate:"min=1"`
	IdempotencyTTLHours   int    `mapstructure:"idempotency_ttl_hours" validate:"min=1"`
	NotificationQueueSize int    `mapstructure:"notification_queue_size" validate:"min=1"`
	Gateway               string `mapstructure:"gateway" validate:"oneof=mock stripe"`
	IdempotencyStore      string `mapstructure:"idempotency_store" validate:"oneof=redis memory"`
	BreakerFailures       int    `mapstructure:"breaker_failures" validate:"min=1"`
	BreakerOpenSec        int    `mapstructure:"breaker_open_seconds" validate:"min=1"`
}

func (b *BillingConfig) ValidationInterval() time.Duration {
	return time.Duration(b.ValidationIntervalMin) * time.Minute
}

func (b *BillingConfig) RenewalInterval() time.Duration {
	return time.Duration(b.RenewalIntervalMin) * time.Minute
}

func (b *BillingConfig) JobTimeout() time.Duration {
	return time.Duration(b.JobTimeoutMin) * time.Minute
}

func (b *BillingConfig) GatewayTimeout() time.Duration {
	return time.Duration(b.GatewayTimeoutSec) * time.Second
}

func (b *BillingConfig) ChargeLifetime() time.Duration {
	return time.Duration(b.ChargeLifetimeHours) * time.Hour
}

func (b *BillingConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLSec) * time.Second
}

func (b *BillingConfig) BreakerOpen() time.Duration {
	return time.Duration(b.BreakerOpenSec) * time.Second
}

func (b *BillingConfig) IdempotencyTTL() time.Duration {
	return time.Duration(b.IdempotencyTTLHours) * time.Hour
}
