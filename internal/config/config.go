package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	DatabaseURL string // PostgreSQL; when empty, SQLite is used
	SQLitePath  string
	RedisURL    string

	MediaStoreURL  string // external media storage collaborator
	IdentitySecret string // HMAC secret for externally issued identity tokens

	// Routing core tunables
	RingTimeout    time.Duration // unanswered invites auto-resolve after this
	SendQueueSize  int           // per-connection outbound queue bound
	RoomMaxMembers int           // live subscriber bound per room
	MaxUploadBytes int64
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getEnv("SQLITE_PATH", "./data/caretalk.db"),
		RedisURL:       os.Getenv("REDIS_URL"),
		MediaStoreURL:  os.Getenv("MEDIA_STORE_URL"),
		IdentitySecret: getEnv("IDENTITY_SECRET", "dev-only-secret"),
		RingTimeout:    getDuration("RING_TIMEOUT", 45*time.Second),
		SendQueueSize:  getInt("SEND_QUEUE_SIZE", 64),
		RoomMaxMembers: getInt("ROOM_MAX_MEMBERS", 2),
		MaxUploadBytes: getInt64("MAX_UPLOAD_BYTES", 32<<20),
	}

	// In production, require the external collaborators to be configured
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if os.Getenv("IDENTITY_SECRET") == "" {
			panic("IDENTITY_SECRET is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
