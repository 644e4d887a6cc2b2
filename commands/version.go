package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cfg "github.com/maastricht-university/speaker-timeline/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		d := cfg.Default()
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", d.Pipeline.Name, d.Pipeline.Version)
	},
}
