package cmd

import (
	"github.com/bigjimnolan/protectmotion/controller"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the motion service (default)",
	RunE:  runService,
}

func runService(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		log.Fatal().Msgf("Config could not be loaded: %v", err)
	}
	if err := controller.StartHere(cmd.Context(), config); err != nil {
		log.Fatal().Msgf("protectmotion failed to start: %v", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
