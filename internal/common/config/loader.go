// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Detector names as they appear under the `detectors` config section.
const (
	DetectorWaitlistCapacity = "waitlist_capacity"
	DetectorBirthday         = "birthday"
	DetectorMembershipExpiry = "membership_expiry"
	DetectorNewLead          = "new_lead"
	DetectorNewMembership    = "new_membership"
	DetectorTrial            = "trial"
)

// AllDetectors lists detectors in their default execution order.
var AllDetectors = []string{
	DetectorWaitlistCapacity,
	DetectorNewLead,
	DetectorNewMembership,
	DetectorTrial,
	DetectorBirthday,
	DetectorMembershipExpiry,
}

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional per-environment overlay

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)
	setDetectorDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// unset variables expand to "" so required-field validation catches them
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// setDetectorDefaults registers per-key detector defaults so a block that sets
// only some keys keeps the rest, and an explicit 0 or false is not overwritten.
func setDetectorDefaults(v *viper.Viper) {
	d := defaultDetector()
	for _, name := range AllDetectors {
		prefix := "detectors." + name + "."
		v.SetDefault(prefix+"enabled", d.Enabled)
		v.SetDefault(prefix+"window_hour", d.WindowHour)
		v.SetDefault(prefix+"window_minute", d.WindowMinute)
		v.SetDefault(prefix+"window_minutes", d.WindowMinutes)
		v.SetDefault(prefix+"lookahead_days", d.LookaheadDays)
		v.SetDefault(prefix+"reminder_hours", d.ReminderHours)
	}
}

func defaultDetector() DetectorConfig {
	return DetectorConfig{
		Enabled:       true,
		WindowHour:    9,
		WindowMinutes: 15,
		LookaheadDays: 3,
		ReminderHours: 24,
	}
}

// overrideEmptyConfig fills secrets that are commonly provided only via env.
func overrideEmptyConfig(cfg *Config) {
	overrides := []struct {
		target *string
		env    string
	}{
		{&cfg.Database.Postgres.User, "DB_USER"},
		{&cfg.Database.Postgres.Password, "DB_PASSWORD"},
		{&cfg.Feeds.APIKey, "FEEDS_API_KEY"},
		{&cfg.Channels.WhatsApp.AccountSID, "WHATSAPP_ACCOUNT_SID"},
		{&cfg.Channels.WhatsApp.AuthToken, "WHATSAPP_AUTH_TOKEN"},
		{&cfg.Orchestrator.FallbackEmail, "NOTIFIER_FALLBACK_EMAIL"},
	}
	for _, o := range overrides {
		if *o.target == "" {
			if val := os.Getenv(o.env); val != "" {
				*o.target = val
			}
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "studio-notifier"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Channels.WhatsApp.Mode == "" {
		cfg.Channels.WhatsApp.Mode = "freeform"
	}
	if cfg.Channels.WhatsApp.BaseURL == "" {
		cfg.Channels.WhatsApp.BaseURL = "https://api.twilio.com/2010-04-01"
	}
	if cfg.Channels.WhatsApp.CountryCode == "" {
		cfg.Channels.WhatsApp.CountryCode = "972"
	}
	if cfg.Channels.WhatsApp.MaxRetries == 0 {
		cfg.Channels.WhatsApp.MaxRetries = 2
	}

	if cfg.Feeds.Timeout == 0 {
		cfg.Feeds.Timeout = 15000
	}
	if cfg.Feeds.Paths == nil {
		cfg.Feeds.Paths = map[string]string{}
	}
	defaultPaths := map[string]string{
		"waitlist":    "/waitlist",
		"schedule":    "/schedule",
		"leads":       "/leads",
		"users":       "/users",
		"memberships": "/memberships",
		"trials":      "/trials",
	}
	for name, path := range defaultPaths {
		if cfg.Feeds.Paths[name] == "" {
			cfg.Feeds.Paths[name] = path
		}
	}

	if cfg.Detectors == nil {
		cfg.Detectors = map[string]DetectorConfig{}
	}
	for _, name := range AllDetectors {
		d, exists := cfg.Detectors[name]
		if !exists {
			d = defaultDetector()
		}
		if d.WindowMinutes == 0 {
			d.WindowMinutes = 15
		}
		if d.LookaheadDays == 0 {
			d.LookaheadDays = 3
		}
		if d.ReminderHours == 0 {
			d.ReminderHours = 24
		}
		cfg.Detectors[name] = d
	}

	if cfg.Orchestrator.Timezone == "" {
		cfg.Orchestrator.Timezone = "Asia/Jerusalem"
	}
	if cfg.Orchestrator.Schedule == "" {
		cfg.Orchestrator.Schedule = "*/5 * * * *"
	}
	if cfg.Orchestrator.CleanupSchedule == "" {
		cfg.Orchestrator.CleanupSchedule = "30 3 * * *"
	}
	if cfg.Orchestrator.DetectTimeout == 0 {
		cfg.Orchestrator.DetectTimeout = 60000
	}
	if cfg.Orchestrator.SendTimeout == 0 {
		cfg.Orchestrator.SendTimeout = 20000
	}
	if cfg.Orchestrator.AlertTimeout == 0 {
		cfg.Orchestrator.AlertTimeout = 10000
	}
	if cfg.Orchestrator.LockTTL == 0 {
		cfg.Orchestrator.LockTTL = 10 * 60 * 1000
	}
	if cfg.Orchestrator.StateRetentionDays == 0 {
		cfg.Orchestrator.StateRetentionDays = 14
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if cfg.Feeds.BaseURL == "" {
		return fmt.Errorf("feeds.base_url is required")
	}
	if mode := cfg.Channels.WhatsApp.Mode; mode != "template" && mode != "freeform" {
		return fmt.Errorf("channels.whatsapp.mode must be 'template' or 'freeform', got %q", mode)
	}
	if _, err := time.LoadLocation(cfg.Orchestrator.Timezone); err != nil {
		return fmt.Errorf("orchestrator.timezone is invalid: %w", err)
	}
	for name, d := range cfg.Detectors {
		if d.WindowHour < 0 || d.WindowHour > 23 || d.WindowMinute < 0 || d.WindowMinute > 59 {
			return fmt.Errorf("detectors.%s window must be a valid time of day", name)
		}
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetDetectorConfig retrieves detector configuration with fallback to defaults
func GetDetectorConfig(cfg *Config, name string) DetectorConfig {
	if d, exists := cfg.Detectors[name]; exists {
		return d
	}
	return defaultDetector()
}

// IsDetectorEnabled checks if a specific detector is enabled
func IsDetectorEnabled(cfg *Config, name string) bool {
	if d, exists := cfg.Detectors[name]; exists {
		return d.Enabled
	}
	return true
}
