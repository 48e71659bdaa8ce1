package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/store"
	"github.com/vm799/trust-by-design-sub003/internal/syncconfig"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize the device evidence store",
	Long:    `Creates the local .tbd directory and SQLite database.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()

		if _, err := os.Stat(filepath.Join(baseDir, ".tbd")); err == nil {
			output.Warning(".tbd/ already exists")
			return nil
		}

		st, err := store.Initialize(baseDir)
		if err != nil {
			output.Error("failed to initialize store: %v", err)
			return err
		}
		defer st.Close()

		fmt.Println("INITIALIZED .tbd/")

		if ws, _ := cmd.Flags().GetString("workspace"); ws != "" {
			cfg, err := syncconfig.LoadConfig()
			if err != nil {
				output.Error("load config: %v", err)
				return err
			}
			cfg.Workspace = ws
			if err := syncconfig.SaveConfig(cfg); err != nil {
				output.Error("save config: %v", err)
				return err
			}
			fmt.Printf("Workspace: %s\n", ws)
		}

		return nil
	},
}

func init() {
	initCmd.Flags().String("workspace", "", "Set the default workspace")
	rootCmd.AddCommand(initCmd)
}
