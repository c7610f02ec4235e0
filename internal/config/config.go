package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults mirror the deployed product limits.
const (
	DefaultDailyMessageLimit = 2   // messages per user per owner per day (shared mode)
	DefaultActiveStartHour   = 9   // 09:00
	DefaultActiveEndHour     = 23  // window closes at 23:50
	DefaultActiveEndMinute   = 50
	DefaultTrialDays         = 120 // 4 months
	DefaultRetentionDays     = 72
)

// Categories an owner can pick during onboarding.
var Categories = []string{"Tech", "Education", "E-commerce", "Other"}

// Config carries all runtime configuration, sourced from environment
// variables with development defaults.
type Config struct {
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BotToken    string
	BotUsername string
	AdminIDs    []int64

	AdminAPIToken string
	JWTSecret     string
	Port          int

	DailyMessageLimit int
	ActiveStartHour   int
	ActiveEndHour     int
	ActiveEndMinute   int
	TrialDays         int
	RetentionDays     int

	// Location is the single fixed time zone in which the active-hours
	// window is evaluated, independent of any caller's locale.
	Location *time.Location

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	TelegramAPIBase string
	RequestTimeout  time.Duration
}

// Load reads configuration from the environment. DATABASE_URL and BOT_TOKEN
// are required; everything else falls back to development defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getenvInt("REDIS_DB", 0),
		BotToken:          os.Getenv("BOT_TOKEN"),
		BotUsername:       getenv("BOT_USERNAME", "connectsprobot"),
		AdminAPIToken:     os.Getenv("ADMIN_API_TOKEN"),
		JWTSecret:         getenv("JWT_SECRET", "dev-secret-do-not-use"),
		Port:              getenvInt("PORT", 8080),
		DailyMessageLimit: getenvInt("DAILY_MESSAGE_LIMIT", DefaultDailyMessageLimit),
		ActiveStartHour:   getenvInt("ACTIVE_START_HOUR", DefaultActiveStartHour),
		ActiveEndHour:     getenvInt("ACTIVE_END_HOUR", DefaultActiveEndHour),
		ActiveEndMinute:   getenvInt("ACTIVE_END_MINUTE", DefaultActiveEndMinute),
		TrialDays:         getenvInt("TRIAL_DAYS", DefaultTrialDays),
		RetentionDays:     getenvInt("MESSAGE_RETENTION_DAYS", DefaultRetentionDays),
		MinioEndpoint:     getenv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:    getenv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:    getenv("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:       os.Getenv("MINIO_USE_SSL") == "true",
		MinioBucket:       getenv("MINIO_BUCKET", "connectsprobot-logos"),
		TelegramAPIBase:   getenv("TELEGRAM_API_BASE", "https://api.telegram.org"),
		RequestTimeout:    time.Duration(getenvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable is required")
	}

	ids, err := parseAdminIDs(getenv("ADMIN_IDS", ""))
	if err != nil {
		return nil, err
	}
	cfg.AdminIDs = ids

	// Active hours are evaluated in one deployment-wide zone, UTC unless
	// overridden, so the front door and admin tooling never disagree.
	loc, err := time.LoadLocation(getenv("ACTIVE_HOURS_TZ", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACTIVE_HOURS_TZ: %w", err)
	}
	cfg.Location = loc

	return cfg, nil
}

// IsAdmin reports whether the given telegram id is a configured admin.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// Retention returns the message retention window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func parseAdminIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_IDS entry %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
