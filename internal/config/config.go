package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Rabbit     RabbitConfig
	Commission CommissionConfig
	Reconcile  ReconcileConfig
}

type AppConfig struct {
	Env       string
	LogLevel  string
	AdminAddr string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RabbitConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Queue    string
	Prefetch int
	Workers  int

	NotifyExchange   string
	NotifyRoutingKey string
}

type CommissionConfig struct {
	BaseRate   decimal.Decimal
	FloorRate  decimal.Decimal
	MaxLevels  int
	PrimePrice decimal.Decimal
	Currency   string
}

type ReconcileConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		App: AppConfig{
			Env:       getenv("APP_ENV", "development"),
			LogLevel:  getenv("LOG_LEVEL", "info"),
			AdminAddr: getenv("ADMIN_ADDR", ":9090"),
		},
		Database: DatabaseConfig{
			Host:     getenv("DB_HOST", "localhost"),
			Port:     intFromEnv("DB_PORT", 5432),
			User:     getenv("DB_USER", "postgres"),
			Password: getenv("DB_PASSWORD", "postgres"),
			DBName:   getenv("DB_NAME", "referral_db"),
			SSLMode:  getenv("DB_SSLMODE", "disable"),
		},
		Rabbit: RabbitConfig{
			Host:             getenv("RABBITMQ_HOST", "localhost"),
			Port:             intFromEnv("RABBITMQ_PORT", 5672),
			User:             getenv("RABBITMQ_USER", "guest"),
			Password:         getenv("RABBITMQ_PASSWORD", "guest"),
			VHost:            getenv("RABBITMQ_VHOST", "/"),
			Queue:            getenv("RABBITMQ_QUEUE", "commerce_events"),
			Prefetch:         intFromEnv("RABBITMQ_PREFETCH", 20),
			Workers:          clamp(intFromEnv("RABBITMQ_WORKERS", 4), 1, 10),
			NotifyExchange:   getenv("RABBITMQ_NOTIFY_EXCHANGE", "notifications"),
			NotifyRoutingKey: getenv("RABBITMQ_NOTIFY_ROUTING_KEY", "user.notification"),
		},
		Commission: CommissionConfig{
			BaseRate:   decimalFromEnv("COMMISSION_BASE_RATE", decimal.NewFromInt(10)),
			FloorRate:  decimalFromEnv("COMMISSION_FLOOR_RATE", decimal.NewFromInt(1)),
			MaxLevels:  intFromEnv("COMMISSION_MAX_LEVELS", 16),
			PrimePrice: decimalFromEnv("PRIME_PRICE", decimal.RequireFromString("999.00")),
			Currency:   getenv("CURRENCY", "INR"),
		},
		Reconcile: ReconcileConfig{
			Interval:  time.Duration(intFromEnv("RECONCILE_INTERVAL_SECONDS", 300)) * time.Second,
			BatchSize: intFromEnv("RECONCILE_BATCH_SIZE", 500),
		},
	}
}

// URL returns the AMQP connection string.
func (c RabbitConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func getenv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return def
}

func intFromEnv(key string, def int) int {
	val := getenv(key, "")
	if val == "" {
		return def
	}

	if parsed, err := strconv.Atoi(val); err == nil {
		return parsed
	}

	return def
}

func decimalFromEnv(key string, def decimal.Decimal) decimal.Decimal {
	val := getenv(key, "")
	if val == "" {
		return def
	}

	if parsed, err := decimal.NewFromString(val); err == nil {
		return parsed
	}

	return def
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
