package config

import (
	"testing"
	"time"
)

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:    AppConfig{Env: "production", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "civicreport", SSLMode: ""},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
		Ledger: LedgerConfig{Endpoint: "https://ledger.example", APIKey: "k"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "civicreport", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_LedgerEndpointRequiresKey(t *testing.T) {
	c := Config{
		App:    AppConfig{Env: "local", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "civicreport"},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Ledger: LedgerConfig{Endpoint: "https://ledger.example"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for ledger endpoint without api key")
	}
}

func TestValidate_ProductionRequiresLedger(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "civicreport", SSLMode: "require"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without LEDGER_ENDPOINT")
	}
}

func TestValidate_AppliesAnchoringDefaults(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "civicreport"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Ledger.Timeout != 10*time.Second {
		t.Fatalf("expected default ledger timeout, got %v", c.Ledger.Timeout)
	}
	if c.Ledger.MaxRetries != 3 {
		t.Fatalf("expected default retry budget, got %d", c.Ledger.MaxRetries)
	}
	if c.Anchor.Workers != 4 {
		t.Fatalf("expected default worker cap, got %d", c.Anchor.Workers)
	}
	if c.RateLimit.ReportsPerMinute != 5 {
		t.Fatalf("expected default report rate, got %d", c.RateLimit.ReportsPerMinute)
	}
}
