package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "Brokerline"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultChallengeTTL    = 2 * time.Minute
	defaultPINLockout      = 15 * time.Minute
	defaultPINMaxAttempts  = 5
	defaultLoginRatePerMin = 5
	devJWTSecret           = "dev-access-secret"
	devRefreshSecret       = "dev-refresh-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string
	Env             string
	Port            string
	LogLevel        string
	DatabaseURL     string
	RedisURL        string
	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ChallengeTTL    time.Duration
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
	PINMaxAttempts  int
	PINLockout      time.Duration
	LoginRatePerMin int
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:       getEnv("APP_NAME", defaultAppName),
		Env:           strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:          getEnv("PORT", defaultPort),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RefreshSecret: os.Getenv("REFRESH_SECRET"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", defaultAccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", defaultRefreshTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.ChallengeTTL, err = durationEnv("CHALLENGE_TTL", defaultChallengeTTL); err != nil {
		return Config{}, err
	}
	if cfg.PINLockout, err = durationEnv("PIN_LOCKOUT", defaultPINLockout); err != nil {
		return Config{}, err
	}
	if cfg.PINMaxAttempts, err = intEnv("PIN_MAX_ATTEMPTS", defaultPINMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.LoginRatePerMin, err = intEnv("LOGIN_RATE_PER_MIN", defaultLoginRatePerMin); err != nil {
		return Config{}, err
	}

	if cfg.IsDev() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = devRefreshSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set")
	}
	if cfg.JWTSecret == cfg.RefreshSecret {
		return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must differ")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the environment allows running without postgres and redis.
func (c Config) IsDev() bool {
	switch c.Env {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads KEY_SECONDS as an integer number of seconds, then KEY as a Go duration.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}
