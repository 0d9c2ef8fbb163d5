package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("server address = %s, want :8080", cfg.Server.Address)
	}
	if cfg.Signaling.Backend != "memory" {
		t.Errorf("signaling backend = %s, want memory", cfg.Signaling.Backend)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  address: ":9999"
signaling:
  backend: relay
  relay_url: "ws://relay.internal:8081/ws"
call:
  negotiation_timeout: 10s
tipping:
  max_amount: 50000
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("server address = %s, want :9999", cfg.Server.Address)
	}
	if cfg.Signaling.Backend != "relay" || cfg.Signaling.RelayURL != "ws://relay.internal:8081/ws" {
		t.Errorf("signaling = %+v", cfg.Signaling)
	}
	if cfg.Call.NegotiationTimeout != 10*time.Second {
		t.Errorf("negotiation timeout = %s, want 10s", cfg.Call.NegotiationTimeout)
	}
	if cfg.Tipping.MaxAmount != 50000 {
		t.Errorf("tipping max = %d, want 50000", cfg.Tipping.MaxAmount)
	}
	// Untouched sections keep their defaults.
	if !cfg.Media.AllowAudio {
		t.Error("media.allow_audio default lost")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PEERLINE_SERVER_ADDRESS", ":7777")
	t.Setenv("PEERLINE_LOG_LEVEL", "debug")
	t.Setenv("PEERLINE_SIGNALING_BACKEND", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":7777" {
		t.Errorf("server address = %s, want :7777", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s, want debug", cfg.Logging.Level)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"unknown signaling backend", func(c *Config) { c.Signaling.Backend = "carrier-pigeon" }},
		{"relay backend without url", func(c *Config) {
			c.Signaling.Backend = "relay"
			c.Signaling.RelayURL = ""
		}},
		{"redis backend without redis", func(c *Config) {
			c.Signaling.Backend = "redis"
			c.Redis.Enabled = false
		}},
		{"negative negotiation timeout", func(c *Config) { c.Call.NegotiationTimeout = -time.Second }},
		{"half-open port range", func(c *Config) { c.WebRTC.PortRange.Min = 10000 }},
		{"inverted port range", func(c *Config) {
			c.WebRTC.PortRange.Min = 20000
			c.WebRTC.PortRange.Max = 10000
		}},
		{"negative tip cap", func(c *Config) { c.Tipping.MaxAmount = -1 }},
		{"empty jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"redis enabled without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"backup without directory", func(c *Config) {
			c.Backup.Enabled = true
			c.Backup.Directory = ""
		}},
		{"rate limiting without rates", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.RequestsPerSecond = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
