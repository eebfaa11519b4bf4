package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vitals-app/vitals/internal/config"
	"github.com/vitals-app/vitals/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print every configuration value after defaults, the config file, and
VITALS_* environment variables have been applied.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		fmt.Printf("%s %s\n\n", ui.Title("Config file:"),
			filepath.Join(config.ConfigDir(), "config.yaml"))
		fmt.Println(cfg.Describe())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
