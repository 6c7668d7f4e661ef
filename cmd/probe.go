package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bigjimnolan/protectmotion/controller"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Detect the controller dialect and print the derived URLs",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		style, err := controller.Probe(cmd.Context(), config)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(style)
		}
		dialect := "unified"
		if style.IsLegacy {
			dialect = "legacy"
		}
		fmt.Printf("Dialect:  %s\n", dialect)
		fmt.Printf("Base URL: %s\n", style.BaseURL)
		fmt.Printf("Auth URL: %s\n", style.AuthURL)
		fmt.Printf("API URL:  %s\n", style.APIURL)
		fmt.Printf("Login:    %s\n", style.LoginURL())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
