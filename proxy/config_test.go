package proxy

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 10*time.Minute {
		t.Errorf("expected Timeout=10m, got %v", cfg.Timeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     Config{Transport: "inmemory", CID: "client-1"},
			wantErr: false,
		},
		{
			name:    "missing transport",
			cfg:     Config{CID: "client-1"},
			wantErr: true,
		},
		{
			name:    "missing cid",
			cfg:     Config{Transport: "inmemory"},
			wantErr: true,
		},
		{
			name:    "negative timeout",
			cfg:     Config{Transport: "rpc", CID: "c", Timeout: -1 * time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("FEDKIT_TRANSPORT", "rpc")
	t.Setenv("FEDKIT_CID", "edge-7")
	t.Setenv("FEDKIT_ADDRESS", "ws://localhost:8089/fedkit")
	t.Setenv("FEDKIT_TIMEOUT", "45s")

	cfg := FromEnv()

	if cfg.Transport != "rpc" {
		t.Errorf("expected Transport=rpc, got %q", cfg.Transport)
	}
	if cfg.CID != "edge-7" {
		t.Errorf("expected CID=edge-7, got %q", cfg.CID)
	}
	if cfg.Address != "ws://localhost:8089/fedkit" {
		t.Errorf("unexpected Address %q", cfg.Address)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("expected Timeout=45s, got %v", cfg.Timeout)
	}
}

func TestConfig_LoadFromEnv_BadTimeoutKeepsDefault(t *testing.T) {
	t.Setenv("FEDKIT_TIMEOUT", "soon")

	cfg := FromEnv()

	if cfg.Timeout != 10*time.Minute {
		t.Errorf("expected default timeout, got %v", cfg.Timeout)
	}
}

func TestConfig_WithOption(t *testing.T) {
	base := Config{Options: map[string]any{"a": "1"}}
	next := base.WithOption("b", "2")

	if _, ok := base.Options["b"]; ok {
		t.Error("WithOption modified the original options")
	}
	if next.Options["a"] != "1" || next.Options["b"] != "2" {
		t.Errorf("unexpected options %v", next.Options)
	}
}

func TestConfig_GetDurationOption(t *testing.T) {
	cfg := Config{Options: map[string]any{
		"typed":  3 * time.Second,
		"string": "250ms",
		"bad":    "later",
	}}

	if got := cfg.GetDurationOption("typed", 0); got != 3*time.Second {
		t.Errorf("typed = %v", got)
	}
	if got := cfg.GetDurationOption("string", 0); got != 250*time.Millisecond {
		t.Errorf("string = %v", got)
	}
	if got := cfg.GetDurationOption("bad", time.Second); got != time.Second {
		t.Errorf("bad = %v", got)
	}
	if got := (Config{}).GetDurationOption("missing", time.Minute); got != time.Minute {
		t.Errorf("missing = %v", got)
	}
}
