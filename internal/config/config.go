package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rl1809/stock-deduct/internal/core/service"
)

const (
	ServiceName    = "stock-deduct"
	ServiceVersion = "0.1.0"
)

type Config struct {
	HTTPAddr  string
	GRPCAddr  string
	RedisAddr string
	MySQLDSN  string

	Strategy    service.Strategy
	ProductCode string
	Keys        service.Keys

	LeaseTTL      time.Duration
	RenewInterval time.Duration
	Retry         service.RetryPolicy

	// InitialStock seeds the counter or row at startup; nil leaves it alone.
	InitialStock *int64

	LogLevel    string
	TraceStdout bool
}

// Load reads the configuration from the environment. Unset variables take the
// defaults below; malformed ones are an error.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:    getenv("GRPC_ADDR", ":50051"),
		RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
		MySQLDSN:    getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/stockdeduct?parseTime=true"),
		ProductCode: getenv("PRODUCT_CODE", "1001"),
		Keys: service.Keys{
			Lock:  getenv("LOCK_KEY", "lock"),
			Stock: getenv("STOCK_KEY", "stock"),
		},
		LogLevel: getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.Strategy, err = service.ParseStrategy(getenv("STRATEGY", string(service.StrategyLease))); err != nil {
		return nil, fmt.Errorf("STRATEGY: %w", err)
	}
	if cfg.LeaseTTL, err = durationEnv("LEASE_TTL", service.DefaultLeaseTTL); err != nil {
		return nil, err
	}
	if cfg.LeaseTTL <= 0 {
		return nil, fmt.Errorf("LEASE_TTL must be positive, got %s", cfg.LeaseTTL)
	}
	if cfg.RenewInterval, err = durationEnv("LEASE_RENEW_INTERVAL", cfg.LeaseTTL/3); err != nil {
		return nil, err
	}
	if cfg.RenewInterval >= cfg.LeaseTTL {
		return nil, fmt.Errorf("LEASE_RENEW_INTERVAL %s must be shorter than LEASE_TTL %s", cfg.RenewInterval, cfg.LeaseTTL)
	}

	cfg.Retry = service.DefaultRetryPolicy()
	if cfg.Retry.BaseDelay, err = durationEnv("RETRY_BASE_DELAY", cfg.Retry.BaseDelay); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxDelay, err = durationEnv("RETRY_MAX_DELAY", cfg.Retry.MaxDelay); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxAttempts, err = intEnv("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("INITIAL_STOCK"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("INITIAL_STOCK must be a non-negative integer, got %q", v)
		}
		cfg.InitialStock = &n
	}

	if cfg.TraceStdout, err = boolEnv("TRACE_STDOUT", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PolicyOptions maps the configuration onto strategy options.
func (c *Config) PolicyOptions() service.Options {
	return service.Options{
		Keys:          c.Keys,
		LeaseTTL:      c.LeaseTTL,
		RenewInterval: c.RenewInterval,
		Retry:         c.Retry,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration, got %q", key, v)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}
