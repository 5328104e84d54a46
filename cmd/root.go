// Package cmd provides the command-line interface for the dataflow migrator.
//
// This package implements a cobra-based CLI with commands for:
//   - migrate: Retarget every dataflow of a workspace to another lakehouse
//   - serve: Run migrations through a REST API
//   - runs: Inspect and rotate the run ledger
//   - version: Display version and build information
//
// The CLI supports configuration via:
//   - Command-line flags
//   - Configuration files (YAML format)
//   - Environment variables prefixed with DFM_ (e.g. DFM_AUTH_CLIENT_SECRET)
//
// Configuration File Locations:
//   - Specified via --config flag
//   - $HOME/.dataflowmigrator.yaml (default)
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"evalgo.org/dataflowmigrator/internal/config"
	"evalgo.org/dataflowmigrator/internal/helpers"
)

var (
	// cfgFile holds the path to the configuration file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "dataflowmigrator",
		Short: "Dataflow migrator - retarget dataflow destinations between lakehouses",
		Long: `Dataflow migrator rewrites the destination of every dataflow in a workspace.

For each dataflow of the target workspace the migrator:
  - Replaces the source workspace id with the target workspace id
  - Replaces the source lakehouse id with the target lakehouse id
  - Appends "Destination set to <workspace>" to the description

Runs are idempotent; dataflows that no longer reference the source are left
untouched. Every run is recorded in a local ledger.

Use "dataflowmigrator migrate --help" to get started.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(cmd.ErrOrStderr())
		},
	}
)

// Execute executes the root command and returns any error that occurs.
// This is the main entry point for the CLI application.
func Execute() error {
	return rootCmd.Execute()
}

// init initializes the command-line interface.
// It sets up configuration initialization and persistent flags.
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dataflowmigrator.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging including HTTP traffic")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text or json)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	config.SetDefaults(viper.GetViper())
}

// initConfig reads in config file and environment variables if set.
// This function is called during cobra initialization before command execution.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dataflowmigrator")
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		logrus.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	} else if cfgFile != "" {
		cobra.CheckErr(fmt.Errorf("failed to read config file %s: %w", cfgFile, err))
	}
}

// setupLogging configures the standard logrus logger from the log flags
func setupLogging(out io.Writer) error {
	logrus.SetOutput(out)

	switch strings.ToLower(viper.GetString("log.format")) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", viper.GetString("log.format"))
	}

	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	if viper.GetBool("debug") {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	helpers.DebugMode = viper.GetBool("debug")

	return nil
}
