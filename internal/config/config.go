// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Store    StoreConfig
	Remote   RemoteConfig
	Auth     AuthConfig
	Server   ServerConfig
	Reminder ReminderConfig
	Search   SearchConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StoreConfig holds on-disk layout configuration.
type StoreConfig struct {
	// DataPath is the directory holding shelflife.db, search.bleve and reminders/.
	DataPath string
}

// DatabasePath is the SQLite file inside DataPath.
func (s StoreConfig) DatabasePath() string { return filepath.Join(s.DataPath, "shelflife.db") }

// SearchIndexPath is the bleve index directory inside DataPath.
func (s StoreConfig) SearchIndexPath() string { return filepath.Join(s.DataPath, "search.bleve") }

// RemindersPath is the badger directory inside DataPath.
func (s StoreConfig) RemindersPath() string { return filepath.Join(s.DataPath, "reminders") }

// RemoteConfig holds the system-of-record client configuration.
type RemoteConfig struct {
	BaseURL     string        // Empty disables mirroring
	Timeout     time.Duration // Per-request timeout (default: 15s)
	RPS         float64       // Outbound requests per second per user (default: 5)
	Burst       int           // Rate limiter burst (default: 10)
	MaxInFlight int64         // Concurrent mirror lanes (default: 8)
}

// Enabled reports whether a remote is configured.
func (r RemoteConfig) Enabled() bool { return r.BaseURL != "" }

// AuthConfig holds the bearer credentials issued by the external session layer.
type AuthConfig struct {
	Token  string // Bearer token sent to the remote
	UserID string // Used when the token carries no subject
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	CORSOrigins  []string      // Allowed origins (default: *)
	RPS          float64       // Requests per second per client IP, 0 disables (default: 20)
	Burst        int           // Per-client burst (default: 40)
}

// ReminderConfig holds expiry reminder configuration.
type ReminderConfig struct {
	Enabled      bool
	LeadTime     time.Duration // How long before expiry to remind (default: 168h)
	PollInterval time.Duration // How often due reminders are checked (default: 1m)
}

// SearchConfig holds product search configuration.
type SearchConfig struct {
	Enabled bool
}

// LoadConfig loads configuration from os.Args, the environment and .env.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("shelflife", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for the local store, search index and reminders")

	remoteURL := fs.String("remote-url", "", "Base URL of the remote system of record")
	remoteTimeout := fs.String("remote-timeout", "", "Remote request timeout (default: 15s)")
	remoteRPS := fs.String("remote-rps", "", "Outbound requests per second (default: 5)")
	remoteBurst := fs.String("remote-burst", "", "Outbound burst (default: 10)")
	remoteInFlight := fs.String("remote-max-in-flight", "", "Concurrent mirror lanes (default: 8)")

	authToken := fs.String("auth-token", "", "Bearer token for the remote")
	authUserID := fs.String("user-id", "", "User id when the token carries none")

	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed origins (default: *)")
	serverRPS := fs.String("rate-limit-rps", "", "Requests per second per client, 0 disables (default: 20)")
	serverBurst := fs.String("rate-limit-burst", "", "Per-client request burst (default: 40)")

	reminderEnabled := fs.String("reminders-enabled", "", "Enable expiry reminders (default: true)")
	reminderLead := fs.String("reminder-lead-time", "", "Remind this long before expiry (default: 168h)")
	reminderPoll := fs.String("reminder-poll-interval", "", "Due reminder poll interval (default: 1m)")

	searchEnabled := fs.String("search-enabled", "", "Enable the product search index (default: true)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Remote: RemoteConfig{
			BaseURL:     strings.TrimRight(getConfigValue(*remoteURL, "REMOTE_URL", ""), "/"),
			RPS:         getFloatConfigValue(*remoteRPS, "REMOTE_RPS", 5),
			Burst:       getIntConfigValue(*remoteBurst, "REMOTE_BURST", 10),
			MaxInFlight: int64(getIntConfigValue(*remoteInFlight, "REMOTE_MAX_IN_FLIGHT", 8)),
		},
		Auth: AuthConfig{
			Token:  getConfigValue(*authToken, "AUTH_TOKEN", ""),
			UserID: getConfigValue(*authUserID, "USER_ID", ""),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
			RPS:         getFloatConfigValue(*serverRPS, "SERVER_RATE_LIMIT_RPS", 20),
			Burst:       getIntConfigValue(*serverBurst, "SERVER_RATE_LIMIT_BURST", 40),
		},
		Reminder: ReminderConfig{
			Enabled: getBoolConfigValue(*reminderEnabled, "REMINDERS_ENABLED", true),
		},
		Search: SearchConfig{
			Enabled: getBoolConfigValue(*searchEnabled, "SEARCH_ENABLED", true),
		},
	}

	durations := []struct {
		name   string
		flag   string
		envKey string
		def    string
		dst    *time.Duration
	}{
		{"remote timeout", *remoteTimeout, "REMOTE_TIMEOUT", "15s", &cfg.Remote.Timeout},
		{"read timeout", *readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{"write timeout", *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", &cfg.Server.WriteTimeout},
		{"idle timeout", *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{"reminder lead time", *reminderLead, "REMINDER_LEAD_TIME", "168h", &cfg.Reminder.LeadTime},
		{"reminder poll interval", *reminderPoll, "REMINDER_POLL_INTERVAL", "1m", &cfg.Reminder.PollInterval},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flag, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Store.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.Remote.BaseURL != "" {
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid remote url: %q", c.Remote.BaseURL)
		}
	}
	if c.Remote.RPS <= 0 {
		return fmt.Errorf("remote rps must be positive, got %v", c.Remote.RPS)
	}
	if c.Remote.Burst < 1 {
		return fmt.Errorf("remote burst must be at least 1, got %d", c.Remote.Burst)
	}
	if c.Remote.MaxInFlight < 1 {
		return fmt.Errorf("remote max in flight must be at least 1, got %d", c.Remote.MaxInFlight)
	}

	if c.Server.RPS < 0 {
		return fmt.Errorf("rate limit rps cannot be negative, got %v", c.Server.RPS)
	}

	if c.Reminder.Enabled && c.Reminder.PollInterval <= 0 {
		return errors.New("reminder poll interval must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults to ~/Shelflife/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Shelflife", "data")

	expanded, err := expandPath(c.Store.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Store.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Variables already set to a non-empty value win over the file.
func loadEnvFile(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fmt.Errorf("invalid format in %s: %w", path, err)
	}

	for key, value := range values {
		if os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}
	return nil
}
