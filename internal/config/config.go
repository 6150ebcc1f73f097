// Package config provides configuration loading and validation from environment variables,
// plus the path-addressed settings store read by the admin services.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the process-level settings.
type Config struct {
	LogLevel      string // debug, info, warn, error
	LogFormat     string // json or text
	ListenAddr    string // Ops listener address (e.g., ":8080")
	DatabasePath  string // SQLite database path
	SettingsFile  string // Optional YAML file read into the settings Store
	ActionsFile   string // Optional YAML permission registry for api tokens
	AdminURL      string // Absolute admin URL used in password reset links
	SweepSchedule string // cron spec for the expired-token sweeper

	SMTPHost     string // Empty disables SMTP; emails are logged instead
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailReplyTo  string
}

// Load parses configuration from environment variables.
// All configuration options have sensible defaults for ease of deployment.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		DatabasePath:  getenv("DATABASE_PATH", "/data/admin.db"),
		SettingsFile:  os.Getenv("SETTINGS_FILE"),
		ActionsFile:   os.Getenv("ACTIONS_FILE"),
		AdminURL:      getenv("ADMIN_URL", "http://localhost:1337/admin"),
		SweepSchedule: getenv("SWEEP_SCHEDULE", "@every 1h"),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		MailFrom:      getenv("MAIL_FROM", "no-reply@localhost"),
		MailReplyTo:   os.Getenv("MAIL_REPLY_TO"),
	}

	portStr := getenv("SMTP_PORT", "587")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT %q: %w", portStr, err)
	}
	cfg.SMTPPort = port

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text (got %q)", c.LogFormat)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTP_PORT out of range: %d", c.SMTPPort)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
