// Package config provides centralized default values for the media kit builder
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		// godotenv.Load never overrides variables already present in the environment
		if err := godotenv.Load(); err != nil {
			return
		}
		log.Println("Loaded configuration overrides from .env file")
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvSecret(key string) string {
	val := os.Getenv(key)
	if val != "" {
		log.Printf("Config override: %s=******", key)
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	log.Printf("Config override: %s=%v", key, out)
	return out
}

var (
	// Server Configuration
	Port                    string
	ServerReadTimeout       time.Duration
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	AllowedOrigins          []string

	// Database
	DBDriver           string
	DBDataSource       string
	TursoDatabaseURL   string
	TursoAuthToken     string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	SlowQueryThreshold time.Duration

	// Auth
	JWTSecret          string
	EditorPasswordHash string
	TokenTTL           time.Duration

	// Editing sessions
	MaxOpenSessions   int
	EventLoopBuffer   int
	SyncDebounce      time.Duration
	SyncLockGrace     time.Duration
	PreviewEditing    bool
	BulkHistoryLimit  int
	AutosaveInterval  time.Duration
	PreviewContainer  string
	TemplateDirectory string
	CatalogPath       string
	TemplateReloadLag time.Duration

	// SSE Configuration
	MaxSSEConnections           int
	SSEHeartbeatIntervalSeconds int
	SSEClientBuffer             int

	// Logging
	LogDirectory  string
	LogToFile     bool
	LogLevel      string
	LogJSONFormat bool
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerReadHeaderTimeout = getEnvDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 0)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{
		"http://localhost:3000",
		"http://localhost:8888",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8888",
		"http://[::1]:3000",
		"http://[::1]:8888",
	})

	// Database
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBDataSource = getEnvString("DB_DSN", "file:mediakit.db?_foreign_keys=on&_busy_timeout=5000")
	TursoDatabaseURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoAuthToken = getEnvSecret("TURSO_AUTH_TOKEN")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 500*time.Millisecond)

	// Auth
	JWTSecret = getEnvSecret("JWT_SECRET")
	EditorPasswordHash = getEnvSecret("EDITOR_PASSWORD_HASH")
	TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)

	// Editing sessions
	MaxOpenSessions = getEnvInt("MAX_OPEN_SESSIONS", 50)
	EventLoopBuffer = getEnvInt("EVENT_LOOP_BUFFER", 256)
	SyncDebounce = getEnvDuration("SYNC_DEBOUNCE", 300*time.Millisecond)
	SyncLockGrace = getEnvDuration("SYNC_LOCK_GRACE", 100*time.Millisecond)
	PreviewEditing = getEnvBool("PREVIEW_EDITING", false)
	BulkHistoryLimit = getEnvInt("BULK_HISTORY_LIMIT", 10)
	AutosaveInterval = getEnvDuration("AUTOSAVE_INTERVAL", 30*time.Second)
	PreviewContainer = getEnvString("PREVIEW_CONTAINER_ID", "media-kit-preview")
	TemplateDirectory = getEnvString("TEMPLATE_DIRECTORY", "")
	CatalogPath = getEnvString("COMPONENT_CATALOG", "components.toml")
	TemplateReloadLag = getEnvDuration("TEMPLATE_RELOAD_LAG", 250*time.Millisecond)

	// SSE Configuration
	MaxSSEConnections = getEnvInt("MAX_SSE_CONNECTIONS", 1000)
	SSEHeartbeatIntervalSeconds = getEnvInt("SSE_HEARTBEAT_INTERVAL_SECONDS", 30)
	SSEClientBuffer = getEnvInt("SSE_CLIENT_BUFFER", 64)

	// Logging
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
	LogToFile = getEnvBool("LOG_TO_FILE", true)
	LogLevel = getEnvString("LOG_LEVEL", "INFO")
	LogJSONFormat = getEnvBool("LOG_JSON", true)
}
