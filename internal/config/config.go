// Package config loads Ember's runtime configuration from environment
// variables (with sane defaults merged in first), using koanf's
// confmap and env providers.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds Ember's runtime configuration.
type Config struct {
	Addr                string        // listen address, e.g. ":8080"
	DataDir             string        // directory holding the sqlite database
	SessionExpiry       time.Duration // session token lifetime
	MaxMessageLength    int           // max length in bytes of a message's sanitized HTML
	EnableRegistration  bool          // whether new users can self-register
	DemoMode            bool          // loaded from EMBER_DEMO_MODE; no other code reads it
	RateLimitMessages   int           // token bucket size for message sends
	RateLimitPer        time.Duration // token bucket refill window
	ReconnectReplayCap  int           // validated as positive; reconnect replay uses the registry's fixed cap of 100, not this value
	TypingExpiry        time.Duration // how long a typing indicator stays live
	PresenceExpiry      time.Duration // how long presence stays "online" without a heartbeat
	PresenceSweepPeriod time.Duration // background sweeper tick interval
}

const envPrefix = "EMBER_"

// Load reads configuration from the process environment, falling back
// to documented defaults for anything unset.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"addr":                  ":8080",
		"data_dir":              defaultDataDir(),
		"session_expiry_hours":  24 * 30,
		"max_message_length":    10000,
		"enable_registration":   true,
		"demo_mode":             false,
		"rate_limit_messages":   10,
		"rate_limit_per_secs":   10,
		"reconnect_replay_cap":  100,
		"typing_expiry_secs":    10,
		"presence_expiry_secs":  60,
		"presence_sweep_period": 30,
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	c := &Config{
		Addr:                k.String("addr"),
		DataDir:             k.String("data_dir"),
		SessionExpiry:       time.Duration(k.Int64("session_expiry_hours")) * time.Hour,
		MaxMessageLength:    k.Int("max_message_length"),
		EnableRegistration:  k.Bool("enable_registration"),
		DemoMode:            k.Bool("demo_mode"),
		RateLimitMessages:   k.Int("rate_limit_messages"),
		RateLimitPer:        time.Duration(k.Int64("rate_limit_per_secs")) * time.Second,
		ReconnectReplayCap:  k.Int("reconnect_replay_cap"),
		TypingExpiry:        time.Duration(k.Int64("typing_expiry_secs")) * time.Second,
		PresenceExpiry:      time.Duration(k.Int64("presence_expiry_secs")) * time.Second,
		PresenceSweepPeriod: time.Duration(k.Int64("presence_sweep_period")) * time.Second,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr is required")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("config: max_message_length must be positive")
	}
	if c.ReconnectReplayCap <= 0 {
		return fmt.Errorf("config: reconnect_replay_cap must be positive")
	}
	return nil
}

func defaultDataDir() string {
	return filepath.Join(".", "data")
}

// DBPath returns the path to the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "ember.db")
}
