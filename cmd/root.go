package cmd

import (
	"fmt"
	"os"

	"github.com/bigjimnolan/protectmotion/controller"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	logLevel   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "protectmotion",
	Short: "Motion notifications for UniFi Protect cameras",
	Long: `Polls a UniFi Protect controller for motion events, optionally confirms them
with object detection, and reports them over MQTT, Hubitat and a small web UI.`,
	SilenceUsage: true,
	RunE:         runService,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $"+controller.ConfigFileEnv+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: info, debug or trace")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
}

// loadConfig reads the config and applies the --log-level override.
func loadConfig() (*controller.ProtectMotionConfig, error) {
	config, err := controller.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	controller.SetLogLevel(config.LogLevel)
	return config, nil
}
