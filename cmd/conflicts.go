package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/output"
)

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	Short:   "Review and resolve sync conflicts",
	GroupID: "sync",
}

var conflictsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List unresolved conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := currentWorkspace(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		st, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer st.Close()

		conflicts, err := st.UnresolvedConflicts(ws)
		if err != nil {
			output.Error("list conflicts: %v", err)
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(conflicts)
		}
		if len(conflicts) == 0 {
			fmt.Println("No unresolved conflicts")
			return nil
		}
		for i := range conflicts {
			fmt.Println(output.FormatConflict(&conflicts[i]))
		}
		return nil
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <id> <local|remote>",
	Short: "Resolve a conflict by keeping one side",
	Long: `Resolve a conflict with an explicit choice. Keeping local re-pushes the
local version to the server; keeping remote overwrites the local record
with the server's version. There is no automatic merge.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			output.Error("conflict id must be a number")
			return fmt.Errorf("invalid conflict id %q", args[0])
		}
		resolution := models.Resolution(args[1])
		if resolution != models.ResolutionLocal && resolution != models.ResolutionRemote {
			output.Error("resolution must be local or remote")
			return fmt.Errorf("invalid resolution %q", args[1])
		}

		st, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer st.Close()

		engine, err := buildEngine(st)
		if err != nil {
			return err
		}
		if err := engine.Resolve(id, resolution); err != nil {
			output.Error("resolve conflict: %v", err)
			return err
		}
		output.Success("Resolved #%d keeping %s", id, resolution)
		if resolution == models.ResolutionLocal {
			output.Info("Local version queued for push; run: tbd sync")
		}
		return nil
	},
}

func init() {
	conflictsListCmd.Flags().String("workspace", "", "Workspace override")
	conflictsListCmd.Flags().Bool("json", false, "JSON output")

	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}
