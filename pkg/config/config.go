package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the bridge.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database (credential persistence). Optional: when URL is empty the
	// bridge falls back to an in-memory credential store.
	Database DatabaseConfig

	// Redis (cross-process rate limiting). Optional.
	Redis RedisConfig

	// Upstream broker API
	Dhan DhanConfig

	// Scan engine defaults and cache policy
	Scan ScanConfig

	// Order placement guardrails
	Trade TradeConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DhanConfig holds Dhan API configuration.
type DhanConfig struct {
	ClientID     string
	APISecret    string
	AccessToken  string
	RefreshToken string
	BaseURL      string
	ScripMaster  string // scrip-master-detailed CSV URL
	QuoteKey     string // exchange segment namespace for quote requests
	BatchSize    int    // max security ids per quote request
	BatchPause   time.Duration
}

// ScanConfig holds scan engine defaults and cache TTLs.
type ScanConfig struct {
	DatasetTTL       time.Duration // scrip master refresh interval
	CacheTTL         time.Duration // scan response cache
	DefaultLimit     int
	DefaultWindow    int
	BullishThreshold float64 // pct change above which a stock is bullish
	BearishThreshold float64 // pct change below which a stock is bearish
	ReferenceMode    string  // "prev_close" or "open"
	Timezone         string  // exchange local time, for staleness checks
}

// TradeConfig holds order placement guardrails.
type TradeConfig struct {
	Capital         float64
	MaxRiskPerTrade float64
}

// Load reads configuration from environment variables, optionally seeded
// from a .env file.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8085"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Dhan: DhanConfig{
			ClientID:     getEnv("DHAN_CLIENT_ID", ""),
			APISecret:    getEnv("DHAN_API_SECRET", ""),
			AccessToken:  getEnv("DHAN_ACCESS_TOKEN", ""),
			RefreshToken: getEnv("DHAN_REFRESH_TOKEN", ""),
			BaseURL:      getEnv("DHAN_BASE_URL", "https://api.dhan.co"),
			ScripMaster:  getEnv("DHAN_SCRIP_MASTER_URL", "https://images.dhan.co/api-data/api-scrip-master-detailed.csv"),
			QuoteKey:     getEnv("DHAN_QUOTE_KEY", "NSE_EQ"),
			BatchSize:    getEnvAsInt("DHAN_QUOTE_BATCH_SIZE", 100),
			BatchPause:   getEnvAsDuration("DHAN_QUOTE_BATCH_PAUSE", "250ms"),
		},

		Scan: ScanConfig{
			DatasetTTL:       getEnvAsDuration("SCAN_DATASET_TTL", "6h"),
			CacheTTL:         getEnvAsDuration("SCAN_CACHE_TTL", "25s"),
			DefaultLimit:     getEnvAsInt("SCAN_DEFAULT_LIMIT", 10),
			DefaultWindow:    getEnvAsInt("SCAN_DEFAULT_WINDOW", 200),
			BullishThreshold: getEnvAsFloat("SCAN_BULLISH_THRESHOLD", 1.5),
			BearishThreshold: getEnvAsFloat("SCAN_BEARISH_THRESHOLD", -1.5),
			ReferenceMode:    getEnv("SCAN_REFERENCE_MODE", "prev_close"),
			Timezone:         getEnv("SCAN_TIMEZONE", "Asia/Kolkata"),
		},

		Trade: TradeConfig{
			Capital:         getEnvAsFloat("CAPITAL", 100000),
			MaxRiskPerTrade: getEnvAsFloat("MAX_RISK_PER_TRADE", 0.02),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants. Dhan credentials are allowed to
// be absent here; the quote gateway reports an auth error at call time.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Dhan.BatchSize <= 0 {
		return fmt.Errorf("DHAN_QUOTE_BATCH_SIZE must be positive")
	}

	if c.Scan.ReferenceMode != "prev_close" && c.Scan.ReferenceMode != "open" {
		return fmt.Errorf("SCAN_REFERENCE_MODE must be prev_close or open")
	}

	if c.Scan.BullishThreshold <= c.Scan.BearishThreshold {
		return fmt.Errorf("SCAN_BULLISH_THRESHOLD must exceed SCAN_BEARISH_THRESHOLD")
	}

	return nil
}

// loadEnvFile tries to load .env from a few likely locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
