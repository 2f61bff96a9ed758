package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP server
	Port string

	// Logging
	LogLevel  string
	LogFormat string

	// Remote finance API
	APIBaseURL string
	APITimeout time.Duration

	// Persisted client state
	StorageBackend string
	SQLiteDBPath   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	StorageMaxKeys int

	// Cache store
	CacheTTL         time.Duration
	CacheStoreExpiry time.Duration
	CacheNamespace   string
	CleanupInterval  time.Duration

	// Session
	AuthTokenTTL time.Duration

	// Category refresh retries
	EmptyRetryDelay   time.Duration
	FailureRetryDelay time.Duration

	// Background refresh while serving; zero disables
	RefreshInterval         time.Duration
	CategoryRefreshInterval time.Duration
	RefreshTimeout          time.Duration

	// Toast publishing (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export (optional)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Inbound rate limiting
	RateLimitPerMinute int
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080/api/v1"),
		APITimeout: getEnvDuration("API_TIMEOUT", 15*time.Second),

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/finsession.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		StorageMaxKeys: getEnvInt("STORAGE_MAX_KEYS", 1024),

		CacheTTL:         getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheStoreExpiry: getEnvDuration("CACHE_STORE_EXPIRY", 24*time.Hour),
		CacheNamespace:   getEnv("CACHE_NAMESPACE", "cache_"),
		CleanupInterval:  getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),

		AuthTokenTTL: getEnvDuration("AUTH_TOKEN_TTL", 7*24*time.Hour),

		EmptyRetryDelay:   getEnvDuration("CATEGORIES_EMPTY_RETRY_DELAY", time.Second),
		FailureRetryDelay: getEnvDuration("CATEGORIES_FAILURE_RETRY_DELAY", 2*time.Second),

		RefreshInterval:         getEnvDuration("REFRESH_INTERVAL", 0),
		CategoryRefreshInterval: getEnvDuration("CATEGORY_REFRESH_INTERVAL", 24*time.Hour),
		RefreshTimeout:          getEnvDuration("REFRESH_TIMEOUT", 30*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finsession"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "toasts"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid API base URL '%s': must be an absolute URL", c.APIBaseURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	}

	validBackends := []string{"memory", "sqlite", "redis"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.StorageBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.StorageBackend, validBackends))
	}

	switch c.StorageBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "redis":
		if c.RedisAddr == "" {
			errors = append(errors, "Redis address cannot be empty when using redis backend")
		}
		if c.RedisDB < 0 {
			errors = append(errors, fmt.Sprintf("invalid redis db %d: must not be negative", c.RedisDB))
		}
	case "memory":
		if c.StorageMaxKeys < 1 {
			errors = append(errors, fmt.Sprintf("invalid storage max keys %d: must be at least 1", c.StorageMaxKeys))
		}
	}

	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}
	if c.CacheStoreExpiry < c.CacheTTL {
		errors = append(errors, fmt.Sprintf("invalid cache store expiry %v: must be at least the cache TTL %v", c.CacheStoreExpiry, c.CacheTTL))
	}
	if c.CacheNamespace == "" {
		errors = append(errors, "cache namespace cannot be empty")
	}
	if c.CleanupInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cleanup interval %v: must be at least 1 second", c.CleanupInterval))
	}
	if c.AuthTokenTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid auth token TTL %v: must be positive", c.AuthTokenTTL))
	}
	if c.EmptyRetryDelay < 0 || c.FailureRetryDelay < 0 {
		errors = append(errors, "category retry delays must not be negative")
	}
	if c.RefreshInterval < 0 || c.CategoryRefreshInterval < 0 {
		errors = append(errors, "background refresh intervals must not be negative")
	}
	if c.RefreshTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid refresh timeout %v: must be positive", c.RefreshTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
		}
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
