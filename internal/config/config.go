package config

import (
	"errors"
	"fmt"
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
	HTTPAddr    string

	OTLPEndpoint string

	Currency string
	Razorpay RazorpayConfig

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
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
}

// RazorpayConfig carries processor credentials. KeyID is the only value
// that may leave the server.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	APIBase       string
	Timeout       time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type RateLimitConfig struct {
	Enabled          bool
	CreateOrderRate  float64
	CreateOrderBurst int
	VerifyRate       float64
	VerifyBurst      int
}

var ErrMissingRequired = errors.New("missing_required_config")

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "sitecraft"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		Currency:     strings.ToUpper(strings.TrimSpace(getenv("PAYMENT_CURRENCY", "INR"))),
		Razorpay: RazorpayConfig{
			KeyID:         strings.TrimSpace(os.Getenv("RAZORPAY_KEY_ID")),
			KeySecret:     strings.TrimSpace(os.Getenv("RAZORPAY_KEY_SECRET")),
			WebhookSecret: strings.TrimSpace(os.Getenv("RAZORPAY_WEBHOOK_SECRET")),
			APIBase:       strings.TrimRight(getenv("RAZORPAY_API_BASE", "https://api.razorpay.com"), "/"),
			Timeout:       time.Duration(getenvInt64("RAZORPAY_TIMEOUT_MS", 10000)) * time.Millisecond,
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "sitecraft"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Kafka: KafkaConfig{
			Brokers: parseList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "payments.transitions"),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getenvBool("RATE_LIMIT_ENABLED", true),
			CreateOrderRate:  getenvFloat("RATE_LIMIT_CREATE_ORDER_RATE", 0.2),
			CreateOrderBurst: int(getenvInt64("RATE_LIMIT_CREATE_ORDER_BURST", 5)),
			VerifyRate:       getenvFloat("RATE_LIMIT_VERIFY_RATE", 0.5),
			VerifyBurst:      int(getenvInt64("RATE_LIMIT_VERIFY_BURST", 10)),
		},
	}
}

// Validate reports every missing processor credential at once.
func (c Config) Validate() error {
	var missing []string
	if c.Razorpay.KeyID == "" {
		missing = append(missing, "RAZORPAY_KEY_ID")
	}
	if c.Razorpay.KeySecret == "" {
		missing = append(missing, "RAZORPAY_KEY_SECRET")
	}
	if c.Razorpay.WebhookSecret == "" {
		missing = append(missing, "RAZORPAY_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	if c.Currency == "" {
		return fmt.Errorf("%w: PAYMENT_CURRENCY", ErrMissingRequired)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
