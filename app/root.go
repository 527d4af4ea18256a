// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/monolith-auth/monolith-auth/internal/config"
	"github.com/monolith-auth/monolith-auth/internal/logger"
)

var (
	configPath string // directory holding main.toml

	rootCmd = &cobra.Command{
		Use:   "monolith-auth",
		Short: "monolith-auth is a web application delegating login to an OpenID Connect provider",
		Long: `monolith-auth is a web application delegating login to an OpenID Connect provider.
It runs the authorization-code flow, keeps server side sessions and stores
the profile of every user that logged in.`,
		Args:          cobra.OnlyValidArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./etc/", "directory of the main.toml configuration file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and initialises the logger from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.ReadConfig(configPath)
	if err != nil {
		return config.Config{}, err
	}

	if err := logger.Init(cfg.Log); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}
