package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultDBPath    = "./fabmarket.db"
	defaultPort      = "8080"
	defaultUploadDir = "./uploads"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Port   string
	DBPath string

	AdminEmail    string
	AdminPassword string
	AdminName     string

	TokenSecret string
	TokenTTL    time.Duration

	UploadDir     string
	PublicBaseURL string
	ModelURLTTL   time.Duration

	GeometryServiceURL string

	PaymentBaseURL   string
	PaymentKeyID     string
	PaymentKeySecret string
	Currency         string

	KafkaBrokers []string
	KafkaTopic   string

	// DefaultRoyaltyPercent applies when a seller uploads a product without
	// choosing a royalty.
	DefaultRoyaltyPercent float64

	// StatusForwardOnly controls the order status transition policy: when
	// true, statuses only move forward through the fulfillment stages; when
	// false, admins may set any status directly.
	StatusForwardOnly bool

	// PendingOrderTTL is how long an order may wait for payment verification
	// before the sweeper marks it expired.
	PendingOrderTTL time.Duration
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// Best-effort: load local dev environment variables.
	// We don't fail if the file is missing; production should use real env injection.
	_ = loadDotEnv(".env")

	cfg := Config{
		Port:                  getEnv("PORT", defaultPort),
		DBPath:                getEnv("DB_PATH", defaultDBPath),
		AdminEmail:            os.Getenv("ADMIN_EMAIL"),
		AdminPassword:         os.Getenv("ADMIN_PASSWORD"),
		AdminName:             getEnv("ADMIN_NAME", "Administrator"),
		TokenSecret:           os.Getenv("TOKEN_SECRET"),
		TokenTTL:              getDuration("TOKEN_TTL", 24*time.Hour),
		UploadDir:             getEnv("UPLOAD_DIR", defaultUploadDir),
		PublicBaseURL:         getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		ModelURLTTL:           getDuration("MODEL_URL_TTL", time.Hour),
		GeometryServiceURL:    os.Getenv("GEOMETRY_SERVICE_URL"),
		PaymentBaseURL:        getEnv("PAYMENT_BASE_URL", "https://api.razorpay.com"),
		PaymentKeyID:          os.Getenv("PAYMENT_KEY_ID"),
		PaymentKeySecret:      os.Getenv("PAYMENT_KEY_SECRET"),
		Currency:              getEnv("CURRENCY", "INR"),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "fabmarket.notifications"),
		DefaultRoyaltyPercent: getFloat("DEFAULT_ROYALTY_PERCENT", 10),
		StatusForwardOnly:     getBool("STATUS_FORWARD_ONLY", true),
		PendingOrderTTL:       getDuration("PENDING_ORDER_TTL", 30*time.Minute),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		slog.Warn("ADMIN_EMAIL/ADMIN_PASSWORD not set; no admin user will be ensured at startup")
	}
	if cfg.TokenSecret == "" {
		slog.Warn("TOKEN_SECRET is not set; issued tokens will not survive restarts")
	}
	if cfg.PaymentKeySecret == "" {
		slog.Warn("PAYMENT_KEY_SECRET is not set; payment verification will fail")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration in environment, using fallback", "key", key, "value", raw)
		return fallback
	}
	return d
}

func getFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid number in environment, using fallback", "key", key, "value", raw)
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid boolean in environment, using fallback", "key", key, "value", raw)
		return fallback
	}
	return v
}
