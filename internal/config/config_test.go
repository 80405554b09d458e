package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.ServiceFeePercent != 0.15 {
		t.Errorf("ServiceFeePercent = %v, want 0.15", cfg.ServiceFeePercent)
	}
	if cfg.ServiceFeeFloor != 0.00001 {
		t.Errorf("ServiceFeeFloor = %v, want 0.00001", cfg.ServiceFeeFloor)
	}
	if cfg.MetadataFee != 0.0000005 {
		t.Errorf("MetadataFee = %v, want 0.0000005", cfg.MetadataFee)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.GatewayURL == "" || cfg.DatabasePath == "" {
		t.Error("gateway url / database path defaults missing")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PERMADRIVE_GATEWAY_URL", "https://other.gateway")
	t.Setenv("PERMADRIVE_POLL_INTERVAL", "5s")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GatewayURL != "https://other.gateway" {
		t.Errorf("GatewayURL = %q, env override ignored", cfg.GatewayURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permadrive.yaml")
	content := "gateway_url: https://file.gateway\nservice_fee_percent: 0.2\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.GatewayURL != "https://file.gateway" {
		t.Errorf("GatewayURL = %q", cfg.GatewayURL)
	}
	if cfg.ServiceFeePercent != 0.2 {
		t.Errorf("ServiceFeePercent = %v, want 0.2", cfg.ServiceFeePercent)
	}
}

func TestLoad_FeePercentOutOfRange(t *testing.T) {
	t.Setenv("PERMADRIVE_SERVICE_FEE_PERCENT", "1.5")

	if _, err := Load(""); err == nil {
		t.Error("Load() accepted a fee percent above 1")
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() of an explicit missing file succeeded")
	}
}

func TestNewLogger_Prefix(t *testing.T) {
	cfg := &Config{}
	logger := cfg.NewLogger("poller")
	if got := logger.Prefix(); got != "[poller] " {
		t.Errorf("prefix = %q, want \"[poller] \"", got)
	}
}
