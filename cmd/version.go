package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/version"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version and check for updates",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("tbd %s\n", versionString)

		if skip, _ := cmd.Flags().GetBool("no-check"); skip {
			return nil
		}
		result := version.CachedCheck(versionString)
		if result.Error != nil {
			return nil
		}
		if result.HasUpdate {
			output.Info("Update available: %s", result.LatestVersion)
			if cmdLine := version.UpdateCommand(result.LatestVersion); cmdLine != "" {
				output.Info("  %s", cmdLine)
			}
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("no-check", false, "Skip the update check")
	rootCmd.AddCommand(versionCmd)
}
