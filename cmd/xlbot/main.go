// Command xlbot runs the MyXL Telegram bot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/xlbot/core/buildinfo"
	corecmd "github.com/m3rciful/xlbot/core/cmd"
	coredatabase "github.com/m3rciful/xlbot/core/database"
	"github.com/m3rciful/xlbot/core/logger"
	"github.com/m3rciful/xlbot/internal/app"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "xlbot",
	Short:         "Telegram bot for MyXL accounts",
	Version:       buildinfo.String(),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := options().ResolveConfigPath()
		if err != nil {
			return err
		}
		cfg, err := app.LoadConfig(path)
		if err != nil {
			return err
		}
		if !cfg.Database.Enabled() {
			return fmt.Errorf("database.host is not configured")
		}
		if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
			return err
		}
		defer logger.Shutdown()
		return coredatabase.RunMigrations(cfg.Database)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "xlbot", buildinfo.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
	rootCmd.AddCommand(runCmd, migrateCmd, versionCmd)
}

func options() corecmd.Options {
	return corecmd.Options{
		ConfigPath:        configPath,
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: app.Bootstrap,
	}
}

func runBot() error {
	return corecmd.Run(options())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
