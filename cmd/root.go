// Package cmd implements the goclaw CLI: a cobra root command wiring the
// gateway, an interactive chat shortcut, and cron job management on top of
// the same configuration file (§2, §6).
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

var (
	cfgPath string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "goclaw",
	Short: "A personal agent gateway: one workspace, one agent, many channels",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "path to JSON5 config file")
	rootCmd.AddCommand(versionCmd, gatewayCmd, chatCmd, cronCmd)

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
}

func defaultConfigPath() string {
	return config.ExpandHome("~/.nanobot/config.json5")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("goclaw dev")
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
