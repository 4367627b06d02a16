package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type (
	app struct {
		rootCmd    *cobra.Command
		rootConfig *rootConfiguration
	}

	rootConfiguration struct {
		// The cryptowheels home directory
		HomeDir string
		// Configuration file URL. If it's relative, then it's relative from the HomeDir.
		CfgFile string
		// Logger configuration file URL, optional.
		LogCfgFile string
	}
)

const (
	// The prefix for configuration keys inside environment.
	envPrefix = "CW"
	// The default name for config file.
	defaultConfigFile = "config.props"
	// The default home directory.
	defaultHomeDirName = ".cryptowheels"
)

// New creates a new cryptowheels application
func New() *app {
	rootCmd, rootConfig := newRootCmd()
	return &app{rootCmd: rootCmd, rootConfig: rootConfig}
}

// Execute adds all child commands and runs the application
func (a *app) Execute(ctx context.Context) {
	a.rootCmd.AddCommand(newMarketCmd(ctx, a.rootConfig))
	cobra.CheckErr(a.rootCmd.Execute())
}

func newRootCmd() (*cobra.Command, *rootConfiguration) {
	config := &rootConfiguration{}
	var rootCmd = &cobra.Command{
		Use:   "cryptowheels",
		Short: "The cryptowheels marketplace CLI",
		Long:  `Commands for running the CryptoWheels NFT marketplace service.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// If subcommand does not define PersistentPreRunE, the one from root cmd is used.
			return initializeConfig(cmd, config)
		},
	}
	rootCmd.PersistentFlags().StringVar(&config.HomeDir, "home", defaultHomeDir(), "set the CW_HOME for this invocation")
	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file location (default is $CW_HOME/"+defaultConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&config.LogCfgFile, "logger-config", "", "logger config file location, optional")
	return rootCmd, config
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(cmd *cobra.Command, rootConfig *rootConfiguration) error {
	v := viper.New()

	if rootConfig.CfgFile == "" {
		rootConfig.CfgFile = defaultConfigFile
	}
	if !filepath.IsAbs(rootConfig.CfgFile) {
		rootConfig.CfgFile = filepath.Join(rootConfig.HomeDir, rootConfig.CfgFile)
	}
	if fileExists(rootConfig.CfgFile) {
		v.SetConfigFile(rootConfig.CfgFile)
	}

	// Attempt to read the config file, gracefully ignoring errors
	// caused by a config file not being found. Return an error
	// if we cannot parse the config file.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	return bindFlags(cmd, v)
}

// Bind each cobra flag to its associated viper configuration (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindFlagErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their equivalent
		// keys with underscores, e.g. --server-addr to CW_SERVER_ADDR
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				bindFlagErr = fmt.Errorf("could not bind env to cobra flag: %w", err)
				return
			}
		}

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				bindFlagErr = fmt.Errorf("could not set value to cobra flag: %w", err)
				return
			}
		}
	})
	return bindFlagErr
}

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultHomeDirName
	}
	return filepath.Join(home, defaultHomeDirName)
}

func fileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
