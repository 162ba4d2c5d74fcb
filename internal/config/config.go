// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	AllowedOrigins []string
	SessionTTL     time.Duration
	SweepInterval  time.Duration
	ChatAPI        ChatAPIConfig
	Widget         WidgetConfig
	Admin          AdminConfig
	Timeout        TimeoutConfig
}

// ChatAPIConfig locates the remote chat API.
type ChatAPIConfig struct {
	URL      string
	ChatPath string
	Timeout  time.Duration
}

// WidgetConfig paces the popup and the conversation.
type WidgetConfig struct {
	PopupDelay  time.Duration
	TypingDelay time.Duration
	ReplyDelay  time.Duration
}

// AdminConfig holds the admin panel login.
type AdminConfig struct {
	Email    string
	Password string
	TokenTTL time.Duration
}

// TimeoutConfig holds server-side timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Shutdown    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/roofchat.db"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),
		SweepInterval:  getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		ChatAPI: ChatAPIConfig{
			URL:      strings.TrimRight(getEnv("CHAT_API_URL", "http://localhost:3001"), "/"),
			ChatPath: getEnv("CHAT_API_CHAT_PATH", "/chat"),
			Timeout:  getEnvDuration("CHAT_API_TIMEOUT", 10*time.Second),
		},
		Widget: WidgetConfig{
			PopupDelay:  getEnvDuration("POPUP_DELAY", 3*time.Second),
			TypingDelay: getEnvDuration("TYPING_DELAY", 400*time.Millisecond),
			ReplyDelay:  getEnvDuration("REPLY_DELAY", 2*time.Second),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", "glick@example.com"),
			Password: getEnv("ADMIN_PASSWORD", "example12345"),
			TokenTTL: getEnvDuration("TOKEN_TTL", time.Hour),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	u, err := url.Parse(c.ChatAPI.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("CHAT_API_URL must be an absolute http(s) URL, got %q", c.ChatAPI.URL)
	}
	if c.ChatAPI.Timeout <= 0 {
		return fmt.Errorf("CHAT_API_TIMEOUT must be > 0")
	}
	if c.Admin.Email == "" || c.Admin.Password == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD cannot be empty")
	}
	if c.Admin.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be > 0")
	}
	if c.SessionTTL <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_TTL and SWEEP_INTERVAL must be > 0")
	}
	if c.Widget.PopupDelay < 0 || c.Widget.TypingDelay < 0 || c.Widget.ReplyDelay < 0 {
		return fmt.Errorf("widget delays cannot be negative")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// WidgetOrigin is the origin widget WebSockets must come from.
func (c *Config) WidgetOrigin() string {
	if c.FrontendURL == "" {
		return "*"
	}
	u, err := url.Parse(c.FrontendURL)
	if err != nil || u.Host == "" {
		return "*"
	}
	return u.Scheme + "://" + u.Host
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvDuration accepts Go durations ("3s") or bare milliseconds ("3000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
