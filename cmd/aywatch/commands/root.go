package commands

import (
	"aywatch/internal/components/telemetry"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	config     Config
)

var rootCmd = &cobra.Command{
	Use:          "aywatch",
	Short:        "aywatch watches coins.ay.by catalogue pages and announces new lots on Telegram.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(debug)
		var err error
		config, err = loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "The config file, a <name>.local.json5 next to it overrides it.")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log debug reports.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
