package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	LogLevel  string
	LogFormat string

	// Primary datasource: invoices + line items.
	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// Secondary datasource: read-only ingestion event store.
	EventDBType     string
	EventDBHost     string
	EventDBPort     string
	EventDBName     string
	EventDBUser     string
	EventDBPassword string
	EventDBSSLMode  string

	// Upstream services.
	RatePlanBaseURL     string
	SubscriptionBaseURL string
	NotifierBaseURL     string
	HTTPTimeout         time.Duration
	MaxResponseBytes    int64

	// Service credential signing.
	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	// Billing-period monitor.
	MonitorInterval time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "metering"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "metering"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		EventDBType:     getenv("EVENT_DATABASE_TYPE", getenv("DATABASE_TYPE", "postgres")),
		EventDBHost:     getenv("EVENT_DATABASE_HOST", getenv("DATABASE_HOST", "localhost")),
		EventDBPort:     getenv("EVENT_DATABASE_PORT", getenv("DATABASE_PORT", "5432")),
		EventDBName:     getenv("EVENT_DATABASE_NAME", "data_ingestion"),
		EventDBUser:     getenv("EVENT_DATABASE_USER", getenv("DATABASE_USER", "postgres")),
		EventDBPassword: getenv("EVENT_DATABASE_PASSWORD", getenv("DATABASE_PASSWORD", "postgres")),
		EventDBSSLMode:  getenv("EVENT_DATABASE_SSLMODE", "disable"),

		RatePlanBaseURL:     getenv("RATEPLAN_BASE_URL", "http://localhost:8081"),
		SubscriptionBaseURL: getenv("SUBSCRIPTION_BASE_URL", "http://localhost:8084"),
		NotifierBaseURL:     getenv("NOTIFIER_BASE_URL", "http://localhost:8095"),
		HTTPTimeout:         getenvDuration("HTTP_TIMEOUT", 10*time.Second),
		MaxResponseBytes:    int64(getenvInt("HTTP_MAX_RESPONSE_BYTES", 4<<20)),

		JWTSecret: strings.TrimSpace(getenv("JWT_SECRET", "change-me-please-change-me-32-bytes-min")),
		JWTIssuer: getenv("JWT_ISSUER", "metering"),
		JWTTTL:    getenvDuration("JWT_TTL", 2*time.Hour),

		MonitorInterval: getenvDuration("MONITOR_INTERVAL", 10*time.Minute),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
