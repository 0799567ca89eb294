package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", c.Addr)
	}
	if c.MaxMessageLength != 10000 {
		t.Errorf("max message length = %d, want 10000", c.MaxMessageLength)
	}
	if !c.EnableRegistration {
		t.Error("expected registration enabled by default")
	}
	if c.SessionExpiry != 24*30*time.Hour {
		t.Errorf("session expiry = %v", c.SessionExpiry)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EMBER_ADDR", ":9999")
	t.Setenv("EMBER_DEMO_MODE", "true")
	t.Setenv("EMBER_MAX_MESSAGE_LENGTH", "500")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Addr != ":9999" {
		t.Errorf("addr = %q, want :9999", c.Addr)
	}
	if !c.DemoMode {
		t.Error("expected demo mode enabled")
	}
	if c.MaxMessageLength != 500 {
		t.Errorf("max message length = %d, want 500", c.MaxMessageLength)
	}
}

func TestValidateRejectsEmptyAddr(t *testing.T) {
	c := &Config{Addr: "", MaxMessageLength: 10, ReconnectReplayCap: 10}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for empty addr")
	}
}
