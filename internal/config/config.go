package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Default notification window, overridable through the environment
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
)

// Config holds the application configuration.
// Environment variables are read with the STUDYLOG_ prefix, e.g. STUDYLOG_DB_DRIVER.
type Config struct {
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`

	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite3"`
	DBPath      string `envconfig:"DB_PATH" default:"data/studylog.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	SchedulerEnabled      bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
	NotificationStartHour int           `envconfig:"NOTIFICATION_START_HOUR" default:"8"`
	NotificationEndHour   int           `envconfig:"NOTIFICATION_END_HOUR" default:"22"`
	DueCheckInterval      time.Duration `envconfig:"DUE_CHECK_INTERVAL" default:"1h"`

	AdminUserIDs []int64 `envconfig:"ADMIN_USER_IDS"`
	Timezone     string  `envconfig:"TIMEZONE" default:"UTC"`
	LogLevel     string  `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty    bool    `envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads an optional .env file and then the process environment
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// A missing .env is fine; values then come from the environment only.
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// FromEnv builds the configuration from STUDYLOG_* environment variables
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("STUDYLOG", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveDefaults validates the configuration and normalizes derived values
func (c *Config) ResolveDefaults() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case "", "sqlite":
		c.DBDriver = DriverSQLite
	case DriverSQLite:
	case "postgresql", "pq":
		c.DBDriver = DriverPostgres
	case DriverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	if c.DBDriver == DriverPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres driver")
	}
	if c.DBDriver == DriverSQLite && c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required for the sqlite3 driver")
	}

	if !validHour(c.NotificationStartHour) || !validHour(c.NotificationEndHour) {
		return fmt.Errorf("notification hours must be within 0-23, got %d-%d",
			c.NotificationStartHour, c.NotificationEndHour)
	}
	if c.NotificationStartHour > c.NotificationEndHour {
		return fmt.Errorf("notification start hour %d is after end hour %d",
			c.NotificationStartHour, c.NotificationEndHour)
	}
	if c.DueCheckInterval <= 0 {
		return fmt.Errorf("DUE_CHECK_INTERVAL must be positive, got %s", c.DueCheckInterval)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured time zone used to display dates
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DataSourceName returns the DSN passed to the database driver
func (c *Config) DataSourceName() string {
	if c.DBDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", c.DBPath)
}

// IsAdmin reports whether the Telegram user may run admin commands
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// NewForTesting returns a configuration backed by an in-memory SQLite database
func NewForTesting() *Config {
	return &Config{
		DBDriver:              DriverSQLite,
		DBPath:                ":memory:",
		SchedulerEnabled:      false,
		NotificationStartHour: DefaultNotificationStartHour,
		NotificationEndHour:   DefaultNotificationEndHour,
		DueCheckInterval:      time.Hour,
		Timezone:              "UTC",
		LogLevel:              "debug",
	}
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}

// String hides the bot token and the database URL
func (c *Config) String() string {
	return fmt.Sprintf("Config{driver=%s path=%s scheduler=%t notify=%d-%d tz=%s}",
		c.DBDriver, c.DBPath, c.SchedulerEnabled, c.NotificationStartHour, c.NotificationEndHour, c.Timezone)
}
