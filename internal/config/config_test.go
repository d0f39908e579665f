package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PRESSBUTTON_ADDR", "")
	t.Setenv("PORT", "")
	t.Setenv("PRESSBUTTON_DB_DRIVER", "")
	t.Setenv("PRESSBUTTON_TRUST_PROXY", "")

	cfg := Load()
	if cfg.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Addr)
	}
	if cfg.DB.Driver != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %q", cfg.DB.Driver)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl %v", cfg.TokenTTL)
	}
	if cfg.TrustProxy {
		t.Fatalf("expected forwarding headers to be untrusted by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PRESSBUTTON_ADDR", "")
	t.Setenv("PORT", "9090")
	t.Setenv("PRESSBUTTON_DB_DRIVER", "Postgres")
	t.Setenv("PRESSBUTTON_DATABASE_URL", "postgres://localhost/pressbutton")
	t.Setenv("PRESSBUTTON_DB_AUTO_MIGRATE", "false")
	t.Setenv("PRESSBUTTON_TOKEN_TTL", "2h")
	t.Setenv("PRESSBUTTON_RL_VOTE_PER_MIN", "7")
	t.Setenv("PRESSBUTTON_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("PRESSBUTTON_BCRYPT_COST", "not-a-number")
	t.Setenv("PRESSBUTTON_TRUST_PROXY", "true")

	cfg := Load()
	if cfg.Addr != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.Addr)
	}
	if cfg.DB.Driver != DriverPostgres || cfg.DB.AutoMigrate {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.TokenTTL != 2*time.Hour {
		t.Fatalf("expected 2h, got %v", cfg.TokenTTL)
	}
	if cfg.RateLimits.VotePerMinute != 7 {
		t.Fatalf("expected 7, got %d", cfg.RateLimits.VotePerMinute)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.CORSOrigins)
	}
	if cfg.BcryptCost != 10 {
		t.Fatalf("expected fallback bcrypt cost, got %d", cfg.BcryptCost)
	}
	if !cfg.TrustProxy {
		t.Fatalf("expected trust proxy override")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.DB.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown driver error")
	}

	cfg.DB.Driver = DriverPostgres
	cfg.DB.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing url error")
	}

	cfg.DB.URL = "postgres://x"
	cfg.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected empty secret error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PRESSBUTTON_TEST_DOTENV=from-file\nPRESSBUTTON_TEST_DOTENV_KEEP=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("PRESSBUTTON_TEST_DOTENV_KEEP", "from-env")
	t.Cleanup(func() { os.Unsetenv("PRESSBUTTON_TEST_DOTENV") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("PRESSBUTTON_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("PRESSBUTTON_TEST_DOTENV_KEEP"); got != "from-env" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
}
