package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marmistrz/wasi-common/internal/config"
	"github.com/marmistrz/wasi-common/internal/logger"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	cfgState      config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sandboxhostctl",
	Short: "Drive a sandbox.Context by hand for manual testing",
	Long: `sandboxhostctl boots a sandbox.Context from flags or a
YAML config file, installs the configured preopens, and runs a small
fixed demonstration sequence against them. It exists to exercise the
syscall host from a shell; a real embedder drives sandbox.Context
programmatically instead.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		logger.Init(cfgState.Logging.Format, cfgState.Logging.Severity)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file")
	bindErr = config.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("reading config file: %w", err)
			return
		}
	}

	loaded, err := config.Load()
	if err != nil {
		configFileErr = fmt.Errorf("loading config: %w", err)
		return
	}
	cfgState = loaded
}
