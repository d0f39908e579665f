package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Addr           string
	DB             DB
	JWTSecret      string
	TokenTTL       time.Duration
	BcryptCost     int
	CORSOrigins    []string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration
	RateLimits     RateLimits

	// TrustProxy makes rate limiting key on X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool

	// Version is stamped by the binary, not read from the environment.
	Version string
}

type DB struct {
	Driver          string
	Path            string
	URL             string
	AutoMigrate     bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RateLimits struct {
	AuthPerMinute  int
	WritePerMinute int
	VotePerMinute  int
}

func Load() Config {
	addr := envString("PRESSBUTTON_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	cfg := Config{
		Addr: addr,
		DB: DB{
			Driver:          strings.ToLower(envString("PRESSBUTTON_DB_DRIVER", DriverSQLite)),
			Path:            envString("PRESSBUTTON_DB_PATH", "pressbutton.db"),
			URL:             envString("PRESSBUTTON_DATABASE_URL", os.Getenv("DATABASE_URL")),
			AutoMigrate:     envBool("PRESSBUTTON_DB_AUTO_MIGRATE", true),
			MaxOpenConns:    envInt("PRESSBUTTON_DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("PRESSBUTTON_DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: envDuration("PRESSBUTTON_DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: envDuration("PRESSBUTTON_DB_CONN_MAX_IDLE_TIME", time.Minute),
		},
		JWTSecret:      envString("PRESSBUTTON_JWT_SECRET", "dev-jwt-secret"),
		TokenTTL:       envDuration("PRESSBUTTON_TOKEN_TTL", 24*time.Hour),
		BcryptCost:     envInt("PRESSBUTTON_BCRYPT_COST", 10),
		CORSOrigins:    envList("PRESSBUTTON_CORS_ORIGINS", []string{"*"}),
		LogLevel:       strings.ToLower(envString("PRESSBUTTON_LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(envString("PRESSBUTTON_LOG_FORMAT", "text")),
		RequestTimeout: envDuration("PRESSBUTTON_REQUEST_TIMEOUT", 15*time.Second),
		TrustProxy:     envBool("PRESSBUTTON_TRUST_PROXY", false),
		RateLimits: RateLimits{
			AuthPerMinute:  envInt("PRESSBUTTON_RL_AUTH_PER_MIN", 10),
			WritePerMinute: envInt("PRESSBUTTON_RL_WRITE_PER_MIN", 30),
			VotePerMinute:  envInt("PRESSBUTTON_RL_VOTE_PER_MIN", 120),
		},
		Version: "dev",
	}

	return cfg
}

func (c Config) Validate() error {
	var errs []error
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			errs = append(errs, errors.New("PRESSBUTTON_DB_PATH is required for sqlite"))
		}
	case DriverPostgres:
		if c.DB.URL == "" {
			errs = append(errs, errors.New("PRESSBUTTON_DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.DB.Driver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("PRESSBUTTON_JWT_SECRET must not be empty"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("PRESSBUTTON_TOKEN_TTL must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("PRESSBUTTON_BCRYPT_COST %d out of range 4-31", c.BcryptCost))
	}
	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
