package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port         string
	DatabaseURL  string
	StoreDriver  string
	Environment  string
	LogLevel     string
	PublicOrigin string

	AuthJWTSecret string
	AuthJWKSURL   string
	AuthIssuer    string
	AuthAudience  string
	AuthDisabled  bool

	RoleCacheTTL time.Duration

	RateLimitPerMinute       int
	RateLimitBurst           int
	PublicRateLimitPerMinute int
	PublicRateLimitBurst     int
	TrustedProxies           []string

	ActivationValidity time.Duration
	ExpireInterval     time.Duration
	ExpireBatchSize    int

	NATSURL            string
	NATSSubjectPrefix  string
	OutboxPollInterval time.Duration

	PlansFile    string
	OTLPEndpoint string
}

// Load reads the process environment. A .env file in the working directory
// (or the path in ENV_FILE) is applied first without overriding variables
// that are already set.
func Load() Config {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:         port,
		DatabaseURL:  os.Getenv("DB_DSN"),
		StoreDriver:  readString("STORE_DRIVER", DriverPostgres),
		Environment:  readString("APP_ENV", "development"),
		LogLevel:     readString("LOG_LEVEL", "info"),
		PublicOrigin: strings.TrimRight(readString("PUBLIC_ORIGIN", "http://localhost:8080"), "/"),

		AuthJWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		AuthJWKSURL:   os.Getenv("AUTH_JWKS_URL"),
		AuthIssuer:    os.Getenv("AUTH_ISSUER"),
		AuthAudience:  os.Getenv("AUTH_AUDIENCE"),
		AuthDisabled:  readBool("AUTH_DISABLED", false),

		RoleCacheTTL: readDurationSeconds("ROLE_CACHE_TTL_SECONDS", 30),

		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		PublicRateLimitPerMinute: readInt("PUBLIC_RATE_LIMIT_PER_MIN", 60),
		PublicRateLimitBurst:     readInt("PUBLIC_RATE_LIMIT_BURST", 20),
		TrustedProxies:           readList("TRUSTED_PROXIES"),

		ActivationValidity: time.Duration(readInt("ACTIVATION_VALIDITY_DAYS", 0)) * 24 * time.Hour,
		ExpireInterval:     readDurationSeconds("EXPIRE_SCAN_INTERVAL_SECONDS", 300),
		ExpireBatchSize:    readInt("EXPIRE_BATCH_SIZE", 100),

		NATSURL:            os.Getenv("NATS_URL"),
		NATSSubjectPrefix:  readString("NATS_SUBJECT_PREFIX", "upets.events"),
		OutboxPollInterval: readDurationSeconds("OUTBOX_POLL_INTERVAL_SECONDS", 5),

		PlansFile:    os.Getenv("PLANS_FILE"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func (c Config) Production() bool {
	return c.Environment == "production"
}

func readString(key, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	return raw
}

// readList splits a comma-separated value and drops empty entries.
func readList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
