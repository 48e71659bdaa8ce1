package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/quota"
	"github.com/vm799/trust-by-design-sub003/internal/syncconfig"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show workspace, queue and quota state",
	GroupID: "sync",
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

		engine, err := buildEngine(st)
		if err != nil {
			return err
		}
		counts, err := engine.QueueCounts(ws)
		if err != nil {
			output.Error("queue counts: %v", err)
			return err
		}
		cursor, err := st.SyncCursor(ws)
		if err != nil {
			output.Error("sync cursor: %v", err)
			return err
		}

		kindCounts := map[string]int64{}
		for _, kind := range models.Kinds {
			repo, err := st.Repo(kind)
			if err != nil {
				continue
			}
			n, err := repo.Count(ws)
			if err != nil {
				continue
			}
			kindCounts[string(kind)] = n
		}

		ceiling := syncconfig.GetQuotaCeiling()
		dbSize := int64(0)
		if info, err := os.Stat(st.Path()); err == nil {
			dbSize = info.Size()
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(map[string]any{
				"workspace":    ws,
				"counts":       kindCounts,
				"queue":        counts,
				"cursor":       cursor,
				"db_bytes":     dbSize,
				"quota_bytes":  ceiling,
				"authenticate": syncconfig.IsAuthenticated(),
			})
		}

		fmt.Printf("Workspace: %s\n", ws)
		if syncconfig.IsAuthenticated() {
			fmt.Printf("Server: %s\n", syncconfig.GetServerURL())
		} else {
			output.Warning("Not logged in; mutations stay local")
		}

		fmt.Print(output.SectionHeader("Records"))
		for _, kind := range models.Kinds {
			if n := kindCounts[string(kind)]; n > 0 {
				fmt.Printf("  %s: %d\n", kind, n)
			}
		}

		fmt.Print(output.SectionHeader("Sync"))
		fmt.Printf("  Pending: %d  Failed: %d\n", counts.Pending, counts.Failed)
		if cursor != nil {
			fmt.Printf("  Cursor: %s (next pull incremental)\n", cursor.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Println("  Cursor: none (next pull full)")
		}
		if counts.Failed > 0 {
			output.Warning("  Run: tbd sync retry")
		}

		fmt.Print(output.SectionHeader("Storage"))
		fmt.Printf("  Store: %s", output.FormatBytes(dbSize))
		if ceiling > 0 {
			fmt.Printf(" of %s ceiling", output.FormatBytes(ceiling))
			if dbSize > ceiling {
				fmt.Println()
				output.Warning("  Over quota; rescue snapshots will truncate %s tier first", quota.TierTransient)
				return nil
			}
		}
		fmt.Println()
		return nil
	},
}

func init() {
	statusCmd.Flags().String("workspace", "", "Workspace override")
	statusCmd.Flags().Bool("json", false, "JSON output")
	rootCmd.AddCommand(statusCmd)
}
