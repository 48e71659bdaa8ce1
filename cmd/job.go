package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/dateparse"
	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/store"
	"github.com/vm799/trust-by-design-sub003/internal/syncconfig"
)

var jobCmd = &cobra.Command{
	Use:     "job",
	Short:   "Manage field jobs",
	GroupID: "core",
}

var jobCreateCmd = &cobra.Command{
	Use:     "create [title]",
	Aliases: []string{"add", "new"},
	Short:   "Create a new job",
	Args:    cobra.ExactArgs(1),
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
			output.Error("%v", err)
			return err
		}

		id, err := store.NewID("job")
		if err != nil {
			output.Error("generate id: %v", err)
			return err
		}

		clientID, _ := cmd.Flags().GetString("client")
		techID, _ := cmd.Flags().GetString("technician")
		scheduled, _ := cmd.Flags().GetString("scheduled")
		if scheduled != "" {
			scheduled, err = dateparse.ParseDate(scheduled)
			if err != nil {
				output.Error("%v", err)
				return err
			}
		}

		job := models.Job{
			ID:           id,
			WorkspaceID:  ws,
			Title:        args[0],
			Status:       models.JobScheduled,
			ClientID:     clientID,
			TechnicianID: techID,
			ScheduledFor: scheduled,
			UpdatedAt:    time.Now().UTC(),
		}
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		if _, err := engine.CreateLocal(ws, models.KindJob, id, data); err != nil {
			output.Error("create job: %v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(job)
		}
		output.Success("Created %s: %s", id, job.Title)
		autoSyncAfterMutation(st, ws)
		return nil
	},
}

var jobListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List jobs in the workspace",
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

		repo, err := st.Repo(models.KindJob)
		if err != nil {
			return err
		}
		records, err := repo.GetByWorkspace(ws)
		if err != nil {
			output.Error("list jobs: %v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(records)
		}
		if len(records) == 0 {
			fmt.Println("No jobs")
			return nil
		}
		statusFilter, _ := cmd.Flags().GetString("status")
		for _, rec := range records {
			var job models.Job
			if err := json.Unmarshal(rec.Data, &job); err != nil {
				continue
			}
			if statusFilter != "" && string(job.Status) != statusFilter {
				continue
			}
			fmt.Println(output.FormatJobShort(&job, rec.SyncStatus))
		}
		return nil
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a job with its evidence summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer st.Close()

		rec, job, err := loadJob(st, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(rec)
		}
		fmt.Println(output.FormatJobLong(job, rec.SyncStatus))
		if job.Notes != "" {
			if rendered := output.RenderNotes(job.Notes); rendered != "" {
				fmt.Println(rendered)
			}
		}
		return nil
	},
}

var jobStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Mark a job in progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionJob(cmd, args[0], models.JobInProgress)
	},
}

var jobCompleteCmd = &cobra.Command{
	Use:     "complete <id>",
	Aliases: []string{"done"},
	Short:   "Mark a job complete",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionJob(cmd, args[0], models.JobComplete)
	},
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionJob(cmd, args[0], models.JobCancelled)
	},
}

var jobNoteCmd = &cobra.Command{
	Use:   "note <id> <text>",
	Short: "Append a note to a job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateJob(cmd, args[0], func(job *models.Job) {
			if job.Notes == "" {
				job.Notes = args[1]
			} else {
				job.Notes += "\n" + args[1]
			}
		})
	},
}

var jobSignCmd = &cobra.Command{
	Use:   "sign <id>",
	Short: "Record a captured signature on a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateJob(cmd, args[0], func(job *models.Job) {
			job.HasSignature = true
		})
	},
}

var jobDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a job",
	Args:    cobra.ExactArgs(1),
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
		if err := engine.DeleteLocal(ws, models.KindJob, args[0]); err != nil {
			output.Error("delete job: %v", err)
			return err
		}
		output.Success("Deleted %s", args[0])
		autoSyncAfterMutation(st, ws)
		return nil
	},
}

// loadJob reads one job record and decodes its domain document.
func loadJob(st *store.Store, id string) (*models.Record, *models.Job, error) {
	repo, err := st.Repo(models.KindJob)
	if err != nil {
		return nil, nil, err
	}
	rec, err := repo.Get(id)
	if err != nil {
		return nil, nil, err
	}
	var job models.Job
	if err := json.Unmarshal(rec.Data, &job); err != nil {
		return nil, nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return rec, &job, nil
}

func transitionJob(cmd *cobra.Command, id string, to models.JobStatus) error {
	return mutateJob(cmd, id, func(job *models.Job) {
		job.Status = to
	})
}

// mutateJob applies an in-place edit and pushes the full snapshot through
// the optimistic update path.
func mutateJob(cmd *cobra.Command, id string, edit func(*models.Job)) error {
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

	_, job, err := loadJob(st, id)
	if err != nil {
		output.Error("%v", err)
		return err
	}
	edit(job)
	job.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	engine, err := buildEngine(st)
	if err != nil {
		return err
	}
	if _, err := engine.UpdateLocal(ws, models.KindJob, id, data); err != nil {
		output.Error("update job: %v", err)
		return err
	}
	output.Success("%s %s", id, output.FormatJobStatus(job.Status))
	autoSyncAfterMutation(st, ws)
	return nil
}

// autoSyncAfterMutation runs a best-effort sync when auto-sync is on and
// credentials exist. Failures degrade to the outbox retry path silently.
func autoSyncAfterMutation(st *store.Store, workspaceID string) {
	if !syncconfig.GetAutoSyncEnabled() || !syncconfig.IsAuthenticated() {
		return
	}
	engine, err := buildEngine(st)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), syncconfig.GetAutoSyncDebounce()+15*time.Second)
	defer cancel()
	_, _ = engine.Sync(ctx, workspaceID)
}

func init() {
	jobCreateCmd.Flags().String("client", "", "Client id")
	jobCreateCmd.Flags().String("technician", "", "Technician id")
	jobCreateCmd.Flags().String("scheduled", "", "Scheduled date (YYYY-MM-DD, +7d, tomorrow, friday, ...)")
	jobListCmd.Flags().String("status", "", "Filter by job status")

	for _, c := range []*cobra.Command{jobCreateCmd, jobListCmd, jobShowCmd, jobStartCmd, jobCompleteCmd, jobCancelCmd, jobNoteCmd, jobSignCmd, jobDeleteCmd} {
		c.Flags().String("workspace", "", "Workspace override")
		c.Flags().Bool("json", false, "JSON output")
		jobCmd.AddCommand(c)
	}
	rootCmd.AddCommand(jobCmd)
}
