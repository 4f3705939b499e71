package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:      AppConfig{Env: "local", Port: 8080},
		Auth:     AuthConfig{JWTSecret: "secret"},
		Provider: ProviderConfig{BaseURL: "https://api.example.com/v1", SubscriberToken: "tok"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_AppliesCallDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Calls.PollInterval != 2*time.Second {
		t.Fatalf("expected 2s poll interval default, got %v", c.Calls.PollInterval)
	}
	if c.Calls.EndConfirmTimeout != 30*time.Second {
		t.Fatalf("expected 30s end confirm default, got %v", c.Calls.EndConfirmTimeout)
	}
	if c.Calls.PollFailureThreshold != 3 {
		t.Fatalf("expected failure threshold 3, got %d", c.Calls.PollFailureThreshold)
	}
	if c.Provider.Timeout != 10*time.Second {
		t.Fatalf("expected 10s provider timeout default, got %v", c.Provider.Timeout)
	}
}

func TestValidate_ProductionRequiresIssuerAudience(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without JWT_ISSUER/JWT_AUDIENCE")
	}
}

func TestValidate_RejectsBadProviderURL(t *testing.T) {
	c := validConfig()
	c.Provider.BaseURL = "not a url"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for invalid PROVIDER_API_URL")
	}
}

func TestHTTPAddrAndRedisAddr(t *testing.T) {
	c := validConfig()
	if c.HTTPAddr() != ":8080" {
		t.Fatalf("unexpected http addr %q", c.HTTPAddr())
	}
	if c.RedisAddr() != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", c.RedisAddr())
	}
}
