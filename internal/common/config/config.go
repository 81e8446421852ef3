// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig                 `mapstructure:"app"`
	Logging      LoggingConfig             `mapstructure:"logging"`
	Database     DatabaseConfig            `mapstructure:"database"`
	AWS          AWSConfig                 `mapstructure:"aws"`
	Channels     ChannelsConfig            `mapstructure:"channels"`
	Feeds        FeedsConfig               `mapstructure:"feeds"`
	Detectors    map[string]DetectorConfig `mapstructure:"detectors"`
	Orchestrator OrchestratorConfig        `mapstructure:"orchestrator"`
	Server       ServerConfig              `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AWSConfig holds the region shared by SES and SNS plus the ops alert topic.
type AWSConfig struct {
	Region string `mapstructure:"region"`
	SNS    struct {
		AlertTopicARN string `mapstructure:"alert_topic_arn"`
	} `mapstructure:"sns"`
}

// --- Delivery Channels ---

type ChannelsConfig struct {
	Email    EmailChannelConfig    `mapstructure:"email"`
	WhatsApp WhatsAppChannelConfig `mapstructure:"whatsapp"`
	SMS      SMSChannelConfig      `mapstructure:"sms"`
}

type EmailChannelConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
}

type WhatsAppChannelConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	BaseURL     string            `mapstructure:"base_url"`
	AccountSID  string            `mapstructure:"account_sid"`
	AuthToken   string            `mapstructure:"auth_token"`
	From        string            `mapstructure:"from"`
	Mode        string            `mapstructure:"mode"` // "template" or "freeform"
	ContentSIDs map[string]string `mapstructure:"content_sids"`
	CountryCode string            `mapstructure:"country_code"`
	MaxRetries  int               `mapstructure:"max_retries"`
}

type SMSChannelConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SenderID string `mapstructure:"sender_id"`
}

// --- Upstream Feeds ---

type FeedsConfig struct {
	BaseURL    string            `mapstructure:"base_url"`
	APIKey     string            `mapstructure:"api_key"`
	Timeout    int               `mapstructure:"timeout"` // milliseconds
	MaxRetries int               `mapstructure:"max_retries"`
	Paths      map[string]string `mapstructure:"paths"`
}

// DetectorConfig holds per-detector settings. Window fields apply to the
// daily digest detectors only.
type DetectorConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	WindowHour    int  `mapstructure:"window_hour"`
	WindowMinute  int  `mapstructure:"window_minute"`
	WindowMinutes int  `mapstructure:"window_minutes"`
	LookaheadDays int  `mapstructure:"lookahead_days"`
	ReminderHours int  `mapstructure:"reminder_hours"`
}

type OrchestratorConfig struct {
	FallbackEmail      string `mapstructure:"fallback_email"`
	Timezone           string `mapstructure:"timezone"`
	Schedule           string `mapstructure:"schedule"`
	CleanupSchedule    string `mapstructure:"cleanup_schedule"`
	DetectTimeout      int    `mapstructure:"detect_timeout"` // milliseconds
	SendTimeout        int    `mapstructure:"send_timeout"`   // milliseconds
	AlertTimeout       int    `mapstructure:"alert_timeout"`  // milliseconds
	LockTTL            int    `mapstructure:"lock_ttl"`       // milliseconds
	StateRetentionDays int    `mapstructure:"state_retention_days"`
	AlertOnQuietRuns   bool   `mapstructure:"alert_on_quiet_runs"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the orchestrator timezone, falling back to UTC.
func (o OrchestratorConfig) Location() *time.Location {
	if o.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
