package main

import (
	"github.com/spf13/cobra"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/config"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/logging"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:           "modpackupdater",
		Short:         "Modpack distribution server and import tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (optional; env vars with prefix MPU_ apply either way)")
	rootCmd.AddCommand(serveCmd, importCmd)
}

// loadConfig loads configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return nil, err
	}
	return cfg, nil
}
