package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	c := Config{
		App:  AppConfig{Env: "local", Port: 8000},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
	c.applyDefaults()
	return c
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.HasPrefix(err.Error(), "config errors:") {
		t.Fatalf("expected aggregated errors, got %v", err)
	}
}

func TestApplyDefaults_LocalUsesMemoryStore(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.Store != "memory" {
		t.Fatalf("expected memory store default, got %q", c.DB.Store)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Calls.InboundPolicy != InboundPolicyReject {
		t.Fatalf("expected reject policy default, got %q", c.Calls.InboundPolicy)
	}
	if c.Agent.GreetingMessage == "" || c.Agent.MaxToolRounds != 5 {
		t.Fatalf("expected agent defaults, got %+v", c.Agent)
	}
	if c.Calls.EndCallGrace != 500*time.Millisecond {
		t.Fatalf("expected 500ms grace, got %s", c.Calls.EndCallGrace)
	}
}

func TestValidate_ProductionRequiresPostgresAndRedis(t *testing.T) {
	c := Config{
		App:  AppConfig{Env: "production", Port: 8000},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
	c.applyDefaults()
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected production validation error")
	}
	for _, want := range []string{"BANK_STORE", "REDIS_HOST", "JWT_ISSUER", "OPENAI_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}
}

func TestValidate_RejectsUnknownInboundPolicy(t *testing.T) {
	c := validLocal()
	c.Calls.InboundPolicy = "merge"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown inbound policy")
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("INBOUND_POLICY", "fifo")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("LLM_TEMPERATURE", "0")

	c, err := Load()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.HTTPAddr() != ":9000" {
		t.Fatalf("unexpected addr %q", c.HTTPAddr())
	}
	if c.Calls.InboundPolicy != InboundPolicyFIFO {
		t.Fatalf("expected fifo, got %q", c.Calls.InboundPolicy)
	}
	if len(c.Calls.AllowedOrigins) != 2 || c.Calls.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", c.Calls.AllowedOrigins)
	}
	if c.RedisAddr() != "" {
		t.Fatalf("expected redis disabled, got %q", c.RedisAddr())
	}
}

func TestLoadClient_Defaults(t *testing.T) {
	t.Setenv("VOICE_SERVER_URL", "")
	c, err := LoadClient()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.VADThreshold != 40 || c.VADSilence != time.Second || c.VADMinSpeech != 800*time.Millisecond || c.VADMinBlobBytes != 3000 {
		t.Fatalf("unexpected vad defaults: %+v", c)
	}
}

func TestLoadClient_RejectsHTTPURL(t *testing.T) {
	t.Setenv("VOICE_SERVER_URL", "http://localhost:8000/ws/call")
	if _, err := LoadClient(); err == nil {
		t.Fatalf("expected error for non-websocket url")
	}
}
