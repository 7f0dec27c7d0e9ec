package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Timezone string
	Location *time.Location

	StoreDriver      string
	SQLitePath       string
	DatabaseURL      string
	DatasetPath      string
	DatasetImport    bool
	SnapshotEnabled  bool
	SnapshotInterval time.Duration

	TomorrowBeforeHour int
	TomorrowLimit      int
	RefreshInterval    time.Duration

	RedisEnabled     bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	CacheTTL         time.Duration
	CacheWarmOnStart bool
	LocalCacheSize   int

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string

	CORSAllowedOrigins []string
}

// LoadDotenv reads .env and then .env.local, the latter overriding. Missing
// files are ignored.
func LoadDotenv(dir string) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	_ = godotenv.Overload(filepath.Join(dir, ".env.local"))
}

func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		Timezone: getEnv("TIMEZONE", "Europe/Paris"),

		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:       getEnv("SQLITE_DATABASE", "data/ferrovia.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatasetPath:      getEnv("DATASET_PATH", ""),
		DatasetImport:    getBoolEnv("DATASET_IMPORT", false),
		SnapshotEnabled:  getBoolEnv("SNAPSHOT_ENABLED", false),
		SnapshotInterval: getDurationEnv("SNAPSHOT_INTERVAL", 15*time.Minute),

		TomorrowBeforeHour: getIntEnv("LOOKAHEAD_TOMORROW_BEFORE_HOUR", 7),
		TomorrowLimit:      getIntEnv("LOOKAHEAD_TOMORROW_LIMIT", 20),
		RefreshInterval:    getDurationEnv("REFRESH_INTERVAL", 60*time.Second),

		RedisEnabled:     getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getIntEnv("REDIS_DB", 0),
		CacheTTL:         getDurationEnv("CACHE_TTL", 6*time.Hour),
		CacheWarmOnStart: getBoolEnv("CACHE_WARM_ON_START", true),
		LocalCacheSize:   getIntEnv("LOCAL_CACHE_SIZE", 4096),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),

		CORSAllowedOrigins: getCSVEnv("CORS_ALLOWED_ORIGINS"),
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_DATABASE is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
		if c.DatasetPath == "" {
			return fmt.Errorf("DATASET_PATH is required for the memory driver")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: must be sqlite, postgres or memory", c.StoreDriver)
	}

	if c.DatasetImport && c.DatasetPath == "" {
		return fmt.Errorf("DATASET_IMPORT requires DATASET_PATH")
	}
	if c.TomorrowBeforeHour < 0 || c.TomorrowBeforeHour > 24 {
		return fmt.Errorf("LOOKAHEAD_TOMORROW_BEFORE_HOUR must be between 0 and 24, got %d", c.TomorrowBeforeHour)
	}
	if c.TomorrowLimit < 0 {
		return fmt.Errorf("LOOKAHEAD_TOMORROW_LIMIT must not be negative, got %d", c.TomorrowLimit)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
