package main

import (
	"errors"
	"os"
	"strings"

	"github.com/loykin/taskbridge/cmd/taskbridge/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigPath = "./taskbridge.yaml"

// v carries flag and TASKBRIDGE_* overrides for every command.
var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:           "taskbridge",
	Short:         "Bridge HTTP, key-value and task display surfaces for an embedded app",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	v.SetDefault("config", defaultConfigPath)

	rootCmd.PersistentFlags().String("config", v.GetString("config"), "path to a config yaml")
	rootCmd.PersistentFlags().String("relay", "", "relay base URL for client commands (overrides relay.url)")
	rootCmd.PersistentFlags().String("db", "", "sqlite file for the key-value store (overrides store.sqlite.path)")
	rootCmd.PersistentFlags().String("log-level", "", "error, warn, info or debug")

	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("relay.url", rootCmd.PersistentFlags().Lookup("relay"))
	_ = v.BindPFlag("store.sqlite.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(kvCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(widgetCmd)
}

// loadConfig reads the config file, layers flag and environment overrides on
// top and installs the configured logger. A missing file at the default path
// is not an error.
func loadConfig(vp *viper.Viper) (*config.ConfigDoc, error) {
	var doc config.ConfigDoc
	path := strings.TrimSpace(vp.GetString("config"))
	if path != "" {
		if err := doc.Load(path); err != nil {
			if !(errors.Is(err, os.ErrNotExist) && path == defaultConfigPath) {
				return nil, err
			}
		}
	}
	doc.ApplyOverrides(vp)
	if err := doc.SetupLogging(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
