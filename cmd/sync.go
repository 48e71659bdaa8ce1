package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/cache"
	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/store"
	"github.com/vm799/trust-by-design-sub003/internal/sync"
	"github.com/vm799/trust-by-design-sub003/internal/syncconfig"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Push queued mutations and pull canonical records",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !syncconfig.IsAuthenticated() {
			output.Error("not logged in (run: tbd auth login)")
			return fmt.Errorf("not authenticated")
		}
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
			output.Error("%v", err)
			return err
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		result, err := engine.Sync(ctx, ws)
		if err != nil {
			output.Error("sync: %v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(result)
		}
		printSyncResult(result)
		refreshPullCache(ctx, st, ws)
		return nil
	},
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue failed actions and sync",
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

		n, err := st.RetryFailedActions(ws)
		if err != nil {
			output.Error("requeue failed actions: %v", err)
			return err
		}
		if n == 0 {
			fmt.Println("No failed actions")
			return nil
		}
		output.Info("Requeued %d failed action(s)", n)

		engine, err := buildEngine(st)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		result, err := engine.Sync(ctx, ws)
		if err != nil {
			output.Error("sync: %v", err)
			return err
		}
		printSyncResult(result)
		return nil
	},
}

var syncQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the outbox queue",
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

		due, err := st.DueActions(ws, time.Now().Add(24*time.Hour))
		if err != nil {
			output.Error("read outbox: %v", err)
			return err
		}
		failed, err := st.FailedActions(ws)
		if err != nil {
			output.Error("read outbox: %v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(map[string]any{"pending": due, "failed": failed})
		}
		if len(due) == 0 && len(failed) == 0 {
			fmt.Println("Outbox empty")
			return nil
		}
		for _, a := range due {
			line := fmt.Sprintf("#%d  %s %s/%s", a.Seq, a.Kind, a.EntityKind, a.EntityID)
			if a.RetryCount > 0 {
				line += fmt.Sprintf("  (retry %d: %s)", a.RetryCount, a.LastError)
			}
			fmt.Println(line)
		}
		for _, a := range failed {
			output.Warning("#%d  %s %s/%s  FAILED: %s", a.Seq, a.Kind, a.EntityKind, a.EntityID, a.LastError)
		}
		return nil
	},
}

func printSyncResult(result *sync.Result) {
	if result.Throttled {
		output.Info("Throttled; showing previous result")
	} else if result.Shared {
		output.Info("Joined in-flight sync")
	}
	mode := "incremental"
	if result.FullPull {
		mode = "full"
	}
	output.Success("Synced %s: pushed %d, pulled %d (%s)", result.WorkspaceID, result.Pushed, result.Pulled, mode)
	if result.PushFailures > 0 {
		output.Warning("%d push failure(s); run: tbd sync retry", result.PushFailures)
	}
	if result.Conflicts > 0 {
		output.Warning("%d conflict(s) need resolution; run: tbd conflicts list", result.Conflicts)
	}
	if result.Reenqueued > 0 {
		output.Info("Re-enqueued %d orphaned record(s)", result.Reenqueued)
	}
}

// refreshPullCache mirrors the freshly pulled records into Redis so status
// surfaces can read them without touching SQLite. Best effort; skipped when
// no cache is configured.
func refreshPullCache(ctx context.Context, st *store.Store, workspaceID string) {
	redisURL := syncconfig.GetRedisURL()
	if redisURL == "" {
		return
	}
	c, err := cache.New(redisURL)
	if err != nil {
		return
	}
	defer c.Close()
	for _, kind := range models.Kinds {
		repo, err := st.Repo(kind)
		if err != nil {
			continue
		}
		records, err := repo.GetByWorkspace(workspaceID)
		if err != nil {
			continue
		}
		_ = c.SavePullList(ctx, workspaceID, string(kind), records, 15*time.Minute)
	}
}

func init() {
	syncCmd.Flags().Duration("timeout", 2*time.Minute, "Overall sync deadline")

	for _, c := range []*cobra.Command{syncCmd, syncRetryCmd, syncQueueCmd} {
		c.Flags().String("workspace", "", "Workspace override")
		c.Flags().Bool("json", false, "JSON output")
	}
	syncCmd.AddCommand(syncRetryCmd)
	syncCmd.AddCommand(syncQueueCmd)
	rootCmd.AddCommand(syncCmd)
}
