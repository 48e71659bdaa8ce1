package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/syncconfig"
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Manage the active workspace",
	GroupID: "system",
}

var workspaceSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Set the default workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := syncconfig.LoadConfig()
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}
		cfg.Workspace = args[0]
		if err := syncconfig.SaveConfig(cfg); err != nil {
			output.Error("save config: %v", err)
			return err
		}
		output.Success("Workspace set to %s", args[0])
		return nil
	},
}

var workspaceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := syncconfig.GetWorkspace()
		if ws == "" {
			fmt.Println("No workspace selected")
			return nil
		}
		fmt.Println(ws)
		return nil
	},
}

var workspaceIsolationCmd = &cobra.Command{
	Use:   "isolation <on|off>",
	Short: "Toggle strict workspace isolation",
	Long: `With isolation on, records with a missing workspace id are never adopted
into the active workspace during pull; they stay local-only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var on bool
		switch args[0] {
		case "on":
			on = true
		case "off":
			on = false
		default:
			output.Error("expected on or off")
			return fmt.Errorf("invalid isolation value %q", args[0])
		}

		st, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer st.Close()

		if err := st.SetWorkspaceIsolation(on); err != nil {
			output.Error("set isolation: %v", err)
			return err
		}
		output.Success("Workspace isolation %s", args[0])
		return nil
	},
}

func init() {
	workspaceCmd.AddCommand(workspaceSetCmd)
	workspaceCmd.AddCommand(workspaceShowCmd)
	workspaceCmd.AddCommand(workspaceIsolationCmd)
	rootCmd.AddCommand(workspaceCmd)
}
