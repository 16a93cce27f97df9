package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Anthropometrics policies accepted in ANTHROPOMETRICS_POLICY.
const (
	PolicyFallback = "fallback" // fill missing height/weight from the profile, then 170 cm / 70 kg
	PolicyRequire  = "require"  // reject a save without height and weight
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // zerolog level name

	StoreDriver   string // mongo | mysql | postgres | memory
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string // postgres connection string
	DBUser        string // mysql username
	DBPass        string // mysql password (optional)
	DBHost        string
	DBPort        string
	DBName        string

	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	AnthropometricsPolicy string
	AMQPURL               string        // empty disables event publishing
	StatsTTL              time.Duration // lifetime of the cached stats projection
}

// RequireAnthropometrics reports whether saves must carry height and weight.
func (c Config) RequireAnthropometrics() bool { return c.AnthropometricsPolicy == PolicyRequire }

// Load reads configuration from the environment.  Every missing or invalid
// variable is reported in the returned error.
func Load() (Config, error) {
	var errs []error
	must := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}
	intVar := func(key string, def int) int {
		s := os.Getenv(key)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid int for %s: %q", key, s))
		}
		return n
	}

	cfg := Config{
		Env:      getenv("APP_ENV", "dev"),
		Port:     getenv("APP_PORT", "8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		StoreDriver:   strings.ToLower(getenv("STORE_DRIVER", DriverMongo)),
		MongoDatabase: getenv("MONGODB_DATABASE", "egfr"),
		DBPass:        os.Getenv("DB_PASS"),

		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   intVar("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: intVar("REFRESH_TOKEN_TTL_DAYS", 30),
		BcryptCost:     intVar("BCRYPT_COST", 12),

		AnthropometricsPolicy: strings.ToLower(getenv("ANTHROPOMETRICS_POLICY", PolicyFallback)),
		AMQPURL:               firstEnv("AMQP_URL", "RABBITMQ_URL"),
		StatsTTL:              envDur("STATS_TTL", 10*time.Minute),
	}

	switch cfg.StoreDriver {
	case DriverMongo:
		cfg.MongoURI = getenv("MONGODB_URI", "mongodb://localhost:27017")
	case DriverMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = getenv("DB_PORT", "3306")
		cfg.DBName = must("DB_NAME")
	case DriverPostgres:
		cfg.DatabaseURL = must("DATABASE_URL")
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver))
	}

	switch cfg.AnthropometricsPolicy {
	case PolicyFallback, PolicyRequire:
	default:
		errs = append(errs, fmt.Errorf("unknown ANTHROPOMETRICS_POLICY %q", cfg.AnthropometricsPolicy))
	}
	if cfg.AccessTTLMin <= 0 || cfg.RefreshTTLDays <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
