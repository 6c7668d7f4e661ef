package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bigjimnolan/protectmotion/controller"
	"github.com/spf13/cobra"
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Log in and list cameras with their streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		_, cameras, err := controller.Connect(cmd.Context(), config)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cameras)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tMODEL\tIP\tSTREAMS")
		fmt.Fprintln(w, "--\t----\t-----\t--\t-------")
		for _, cam := range cameras {
			streams := make([]string, 0, len(cam.Streams))
			for _, s := range cam.Streams {
				streams = append(streams, fmt.Sprintf("%s %dx%d@%d", s.Alias, s.Width, s.Height, s.FPS))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", cam.ID, cam.Name, cam.Model, cam.IPAddress, strings.Join(streams, ", "))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(camerasCmd)
}
