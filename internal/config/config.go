// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database drivers understood by the repository layer.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Classifier modes. Unified is the single-call default; hybrid keeps the
// legacy dual-call path.
const (
	ClassifierUnified = "unified"
	ClassifierHybrid  = "hybrid"
)

// Config holds all runtime settings.
type Config struct {
	AppEnv   string
	LogLevel string

	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	DBDriver    string
	DatabaseURL string
	DBSchema    string
	SQLitePath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	GeminiAPIKeys  []string
	GeminiModel    string
	GeminiTimeout  time.Duration
	GeminiCooldown time.Duration

	ClassifierMode string
	SectionTimeout time.Duration
	DedupTTL       time.Duration

	TelegramBotToken string
	TelegramBotID    string

	MessengerPageToken   string
	MessengerAppSecret   string
	MessengerVerifyToken string

	WhatsAppEnabled   bool
	WhatsAppStorePath string
	WhatsAppLogLevel  string
}

// Load reads configuration from environment variables and validates the
// combinations that cannot work.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   getEnv("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "salesbot"),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBSchema:    getEnv("DB_SCHEMA", "public"),
		SQLitePath:  getEnv("SQLITE_PATH", "data/salesbot.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		RedisTLS:      getBool("REDIS_TLS", false),

		GeminiAPIKeys:  splitList(getEnv("GEMINI_API_KEYS", "")),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTimeout:  getDuration("GEMINI_TIMEOUT", 20*time.Second),
		GeminiCooldown: getDuration("GEMINI_COOLDOWN", 2*time.Minute),

		ClassifierMode: strings.ToLower(getEnv("CLASSIFIER_MODE", ClassifierUnified)),
		SectionTimeout: getDuration("SECTION_TIMEOUT", 5*time.Minute),
		DedupTTL:       getDuration("DEDUP_TTL", 60*time.Second),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramBotID:    getEnv("TELEGRAM_BOT_ID", ""),

		MessengerPageToken:   getEnv("MESSENGER_PAGE_TOKEN", ""),
		MessengerAppSecret:   getEnv("MESSENGER_APP_SECRET", ""),
		MessengerVerifyToken: getEnv("MESSENGER_VERIFY_TOKEN", ""),

		WhatsAppEnabled:   getBool("WHATSAPP_ENABLED", false),
		WhatsAppStorePath: getEnv("WHATSAPP_STORE_PATH", "data/whatsapp.db"),
		WhatsAppLogLevel:  getEnv("WHATSAPP_LOG_LEVEL", "WARN"),
	}

	switch cfg.DBDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DB_DRIVER is %s", DriverPostgres)
		}
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required when DB_DRIVER is %s", DriverSQLite)
		}
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}

	if cfg.ClassifierMode != ClassifierUnified && cfg.ClassifierMode != ClassifierHybrid {
		return nil, fmt.Errorf("unknown CLASSIFIER_MODE %q", cfg.ClassifierMode)
	}
	if len(cfg.GeminiAPIKeys) == 0 {
		return nil, fmt.Errorf("GEMINI_API_KEYS must list at least one key")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getBool(key string, fallback bool) bool {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
