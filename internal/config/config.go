package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort    string
	ApiEnabled string

	// PricingWorkerInterval is how often the scheduler triggers the adaptive
	// pricing cycle across communities. Per-action gating by update interval
	// happens inside the engine.
	PricingWorkerInterval time.Duration
	// PricingZeroUsageRatio stands in for the usage ratio when a community's
	// average hourly demand is zero.
	PricingZeroUsageRatio float64

	RetentionInterval       time.Duration
	PriceHistoryHorizonDays int

	// RateLimit allows this many action attempts per account+action within
	// RateWindow. Zero disables the limiter.
	RateLimit  int64
	RateWindow time.Duration

	// AgentCapabilities are the platform capabilities granted to the hosting
	// agent; actions requiring more are denied at the authorize step.
	AgentCapabilities []string
	// SystemOwners are account ids that can never be targeted by actions.
	SystemOwners []string
}

// New loads and validates configuration from environment variables.
// HTTP API and NATS are optional: when disabled or unconfigured, the
// corresponding servers simply don't start.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:  os.Getenv("TOKENOMY_POSTGRES_USER"),
		DBPass:  os.Getenv("TOKENOMY_POSTGRES_PASSWORD"),
		DBHost:  os.Getenv("TOKENOMY_POSTGRES_HOST"),
		DBPort:  os.Getenv("TOKENOMY_POSTGRES_PORT"),
		DBName:  os.Getenv("TOKENOMY_POSTGRES_DB"),
		SSLMode: os.Getenv("TOKENOMY_POSTGRES_SSLMODE"),

		RedisHost: os.Getenv("TOKENOMY_REDIS_HOST"),
		RedisPort: os.Getenv("TOKENOMY_REDIS_PORT"),

		NatsHost: os.Getenv("TOKENOMY_NATS_HOST"),
		NatsPort: os.Getenv("TOKENOMY_NATS_PORT"),

		ApiPort:    os.Getenv("TOKENOMY_API_PORT"),
		ApiEnabled: os.Getenv("TOKENOMY_API_ENABLED"),

		PricingWorkerInterval: getEnvDuration("TOKENOMY_PRICING_WORKER_INTERVAL", 5*time.Minute),
		PricingZeroUsageRatio: getEnvFloat("TOKENOMY_PRICING_ZERO_USAGE_RATIO", 50),

		RetentionInterval:       getEnvDuration("TOKENOMY_RETENTION_INTERVAL", time.Hour),
		PriceHistoryHorizonDays: getEnvInt("TOKENOMY_PRICE_HISTORY_HORIZON_DAYS", 90),

		RateLimit:  int64(getEnvInt("TOKENOMY_RATE_LIMIT", 10)),
		RateWindow: getEnvDuration("TOKENOMY_RATE_WINDOW", time.Minute),

		AgentCapabilities: getEnvList("TOKENOMY_AGENT_CAPABILITIES",
			[]string{"manage_nicknames", "moderate_members", "move_members", "manage_roles"}),
		SystemOwners: getEnvList("TOKENOMY_SYSTEM_OWNERS", nil),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: TOKENOMY_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis (pricing gate + rate limiter)
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: TOKENOMY_REDIS_HOST/PORT")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// NatsAddr returns the NATS URL, or "" when NATS is not configured.
func (c *Config) NatsAddr() string {
	if c.NatsHost == "" || c.NatsPort == "" {
		return ""
	}
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled, or an error
// telling the caller to skip starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("TOKENOMY_API_PORT is required when TOKENOMY_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (TOKENOMY_API_ENABLED != true)")
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
