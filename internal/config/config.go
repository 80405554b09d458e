// Package config loads engine configuration through viper and constructs
// component loggers. Defaults mirror the pricing constants baked into the
// upload pipeline's fee model; every one of them can be overridden by the
// config file or a PERMADRIVE_ environment variable.
package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Application identity attached to every published transaction.
const (
	AppName    = "PermaDrive"
	AppVersion = "0.1.0"
)

// Config is the engine configuration for one sync folder.
type Config struct {
	// GatewayURL is the base URL of the ledger gateway.
	GatewayURL string

	// DatabasePath is the SQLite state store location.
	DatabasePath string

	// FeeRecipient receives the service fee on data uploads.
	FeeRecipient string

	// ServiceFeePercent is the service fee applied to the data price.
	ServiceFeePercent float64

	// ServiceFeeFloor is the minimum service fee in the pricing unit.
	ServiceFeeFloor float64

	// MetadataFee is the flat price of one metadata-only transaction.
	MetadataFee float64

	// PollInterval is how often the confirmation poller sweeps the queue.
	PollInterval time.Duration

	// DownloadInterval is how often the downloader sweeps the ledger.
	DownloadInterval time.Duration

	// DebounceInterval is how long the watcher waits before classifying
	// a changed path, batching rapid writes together.
	DebounceInterval time.Duration

	// LogFile, when set, routes daemon logs through rotation instead of
	// stderr.
	LogFile string
}

// Load reads configuration from the given file (optional), the default
// config directory, and PERMADRIVE_ environment variables.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("permadrive")
	v.SetConfigType("yaml")

	v.SetDefault("gateway_url", "https://gateway.permadrive.net")
	v.SetDefault("database_path", defaultDatabasePath())
	v.SetDefault("fee_recipient", "permadrive-fee-wallet")
	v.SetDefault("service_fee_percent", 0.15)
	v.SetDefault("service_fee_floor", 0.00001)
	v.SetDefault("metadata_fee", 0.0000005)
	v.SetDefault("poll_interval", "30s")
	v.SetDefault("download_interval", "60s")
	v.SetDefault("debounce_interval", "2s")
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("PERMADRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "permadrive"))
		}
		v.AddConfigPath(".")
		// A missing config file is fine; defaults and env cover everything.
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{
		GatewayURL:        v.GetString("gateway_url"),
		DatabasePath:      v.GetString("database_path"),
		FeeRecipient:      v.GetString("fee_recipient"),
		ServiceFeePercent: v.GetFloat64("service_fee_percent"),
		ServiceFeeFloor:   v.GetFloat64("service_fee_floor"),
		MetadataFee:       v.GetFloat64("metadata_fee"),
		PollInterval:      v.GetDuration("poll_interval"),
		DownloadInterval:  v.GetDuration("download_interval"),
		DebounceInterval:  v.GetDuration("debounce_interval"),
		LogFile:           v.GetString("log_file"),
	}

	if cfg.ServiceFeePercent < 0 || cfg.ServiceFeePercent > 1 {
		return nil, fmt.Errorf("service_fee_percent %.2f out of range [0,1]", cfg.ServiceFeePercent)
	}
	return cfg, nil
}

// NewLogger constructs a component logger with a "[component] " prefix.
// When LogFile is configured, output goes through a rotating file;
// otherwise it goes to stderr.
func (c *Config) NewLogger(component string) *log.Logger {
	var out io.Writer = os.Stderr
	if c.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return log.New(out, "["+component+"] ", log.LstdFlags)
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".permadrive/permadrive.db"
	}
	return filepath.Join(dir, "permadrive", "permadrive.db")
}
