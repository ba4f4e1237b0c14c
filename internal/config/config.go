// Package config loads server configuration from environment variables and
// an optional config file.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Packs
	RootDir string `mapstructure:"root_dir"`

	// Manifest cache
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheSlidingTTL time.Duration `mapstructure:"cache_sliding_ttl"`

	// Worker pools
	HashWorkers    int `mapstructure:"hash_workers"`
	ExtractWorkers int `mapstructure:"extract_workers"`

	// HTTP timeouts
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from the environment (prefix MPU_) and an
// optional config file, applying defaults for anything unset.
func Load(file string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("root_dir", "./packs")
	v.SetDefault("cache_ttl", 30*time.Minute)
	v.SetDefault("cache_sliding_ttl", 10*time.Minute)
	v.SetDefault("hash_workers", defaultHashWorkers())
	v.SetDefault("extract_workers", defaultExtractWorkers())
	v.SetDefault("read_timeout", 30*time.Second)
	v.SetDefault("write_timeout", 5*time.Minute)
	v.SetDefault("shutdown_timeout", 15*time.Second)

	v.SetEnvPrefix("MPU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.RootDir == "" {
		return nil, fmt.Errorf("root_dir must not be empty")
	}
	if cfg.HashWorkers < 1 {
		cfg.HashWorkers = defaultHashWorkers()
	}
	if cfg.ExtractWorkers < 1 {
		cfg.ExtractWorkers = defaultExtractWorkers()
	}
	return cfg, nil
}

func defaultHashWorkers() int {
	return clamp(2*runtime.GOMAXPROCS(0), 2, 32)
}

func defaultExtractWorkers() int {
	return clamp(runtime.GOMAXPROCS(0)/2, 1, 8)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
