package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/store"
)

var draftCmd = &cobra.Command{
	Use:     "draft",
	Short:   "Manage in-progress form drafts",
	GroupID: "core",
}

var draftSaveCmd = &cobra.Command{
	Use:   "save <job-id>",
	Short: "Save a form draft for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := currentWorkspace(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		body, _ := cmd.Flags().GetString("body")
		if body == "" {
			output.Error("a draft body is required (--body)")
			return fmt.Errorf("body required")
		}
		if !json.Valid([]byte(body)) {
			output.Error("draft body must be valid JSON")
			return fmt.Errorf("invalid draft body")
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

		// One draft per job: reuse an existing draft id when present
		existing, err := draftForJob(st, ws, args[0])
		if err != nil {
			return err
		}

		draft := models.FormDraft{
			WorkspaceID: ws,
			JobID:       args[0],
			Body:        json.RawMessage(body),
			UpdatedAt:   time.Now().UTC(),
		}
		if existing != nil {
			draft.ID = existing.ID
			data, err := json.Marshal(draft)
			if err != nil {
				return fmt.Errorf("marshal draft: %w", err)
			}
			if _, err := engine.UpdateLocal(ws, models.KindFormDraft, draft.ID, data); err != nil {
				output.Error("save draft: %v", err)
				return err
			}
		} else {
			id, err := store.NewID("draft")
			if err != nil {
				return err
			}
			draft.ID = id
			data, err := json.Marshal(draft)
			if err != nil {
				return fmt.Errorf("marshal draft: %w", err)
			}
			if _, err := engine.CreateLocal(ws, models.KindFormDraft, id, data); err != nil {
				output.Error("save draft: %v", err)
				return err
			}
		}
		output.Success("Saved draft %s for %s", draft.ID, args[0])
		return nil
	},
}

var draftListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List drafts in the workspace",
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

		repo, err := st.Repo(models.KindFormDraft)
		if err != nil {
			return err
		}
		records, err := repo.GetByWorkspace(ws)
		if err != nil {
			output.Error("list drafts: %v", err)
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(records)
		}
		if len(records) == 0 {
			fmt.Println("No drafts")
			return nil
		}
		for _, rec := range records {
			var d models.FormDraft
			if err := json.Unmarshal(rec.Data, &d); err != nil {
				continue
			}
			fmt.Printf("%s  job=%s  %s  %s\n", d.ID, d.JobID,
				output.FormatBytes(int64(len(d.Body))), output.FormatTimeAgo(d.UpdatedAt))
		}
		return nil
	},
}

var draftDiscardCmd = &cobra.Command{
	Use:     "discard <id>",
	Aliases: []string{"rm"},
	Short:   "Discard a draft",
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
		if err := engine.DeleteLocal(ws, models.KindFormDraft, args[0]); err != nil {
			output.Error("discard draft: %v", err)
			return err
		}
		output.Success("Discarded %s", args[0])
		return nil
	},
}

// draftForJob returns the workspace's existing draft for a job, if any.
func draftForJob(st *store.Store, workspaceID, jobID string) (*models.FormDraft, error) {
	repo, err := st.Repo(models.KindFormDraft)
	if err != nil {
		return nil, err
	}
	records, err := repo.GetByWorkspace(workspaceID)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		var d models.FormDraft
		if err := json.Unmarshal(rec.Data, &d); err != nil {
			continue
		}
		if d.JobID == jobID {
			return &d, nil
		}
	}
	return nil, nil
}

func init() {
	draftSaveCmd.Flags().String("body", "", "Draft body as JSON")

	for _, c := range []*cobra.Command{draftSaveCmd, draftListCmd, draftDiscardCmd} {
		c.Flags().String("workspace", "", "Workspace override")
		c.Flags().Bool("json", false, "JSON output")
		draftCmd.AddCommand(c)
	}
	rootCmd.AddCommand(draftCmd)
}
