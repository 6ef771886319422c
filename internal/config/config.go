package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	RabbitMQ RabbitMQConfig
	Storage  StorageConfig
	Policy   Policy
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	LogLevel       string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// RabbitMQConfig holds the event broker configuration. An empty URL
// disables publishing.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver         string // "postgres" or "memory"
	MigrationsPath string
	RunMigrations  bool
}

// Load loads configuration from a .env file, the environment and an
// optional policy file named by POLICY_FILE.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	policy := DefaultPolicy()
	if path := os.Getenv("POLICY_FILE"); path != "" {
		var err error
		if policy, err = LoadPolicy(path); err != nil {
			return nil, err
		}
	}
	applyPolicyEnv(&policy)

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 20),
			RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 40),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "autorent"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "autorent-settlement"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "autorent.events"),
		},
		Storage: StorageConfig{
			Driver:         getEnv("STORAGE_DRIVER", "postgres"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),
			RunMigrations:  getBoolEnv("RUN_MIGRATIONS", true),
		},
		Policy: policy,
	}, nil
}

// applyPolicyEnv lets deployment secrets and a few operational knobs
// override the policy file.
func applyPolicyEnv(p *Policy) {
	p.Pricing.PriceLockSecret = getEnv("PRICE_LOCK_SECRET", p.Pricing.PriceLockSecret)
	p.Pricing.PriceLockTTL = getDurationEnv("PRICE_LOCK_TTL", p.Pricing.PriceLockTTL)
	p.Booking.PlatformWalletID = getEnv("PLATFORM_WALLET_ID", p.Booking.PlatformWalletID)
	p.Booking.HoldWindow = getDurationEnv("BOOKING_HOLD_WINDOW", p.Booking.HoldWindow)
	p.Booking.InspectionGrace = getDurationEnv("INSPECTION_GRACE", p.Booking.InspectionGrace)
	p.Sweep.Interval = getDurationEnv("SWEEP_INTERVAL", p.Sweep.Interval)
	p.FGO.Currency = getEnv("FGO_CURRENCY", p.FGO.Currency)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
