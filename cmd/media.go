package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/store"
)

var mediaCmd = &cobra.Command{
	Use:     "media",
	Short:   "Manage evidence media references",
	GroupID: "core",
}

var mediaAttachCmd = &cobra.Command{
	Use:   "attach <job-id> <file>",
	Short: "Attach a photo or signature capture to a job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := currentWorkspace(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		mediaType, _ := cmd.Flags().GetString("type")
		if mediaType != "photo" && mediaType != "signature" {
			output.Error("media type must be photo or signature")
			return fmt.Errorf("invalid media type %q", mediaType)
		}

		content, err := os.ReadFile(args[1])
		if err != nil {
			output.Error("read media file: %v", err)
			return err
		}
		hash := sha256.Sum256(content)

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

		id, err := store.NewID("media")
		if err != nil {
			return err
		}
		att := models.MediaAttachment{
			ID:          id,
			WorkspaceID: ws,
			JobID:       args[0],
			MediaType:   mediaType,
			SizeBytes:   int64(len(content)),
			ContentHash: hex.EncodeToString(hash[:]),
			UpdatedAt:   time.Now().UTC(),
		}
		data, err := json.Marshal(att)
		if err != nil {
			return fmt.Errorf("marshal attachment: %w", err)
		}
		if _, err := engine.CreateLocal(ws, models.KindMedia, id, data); err != nil {
			output.Error("attach media: %v", err)
			return err
		}

		// Photos also land on the job's photo collection; signatures flip
		// the presence flag.
		if mediaType == "photo" {
			err = mutateJob(cmd, args[0], func(job *models.Job) {
				job.PhotoIDs = append(job.PhotoIDs, id)
			})
		} else {
			err = mutateJob(cmd, args[0], func(job *models.Job) {
				job.HasSignature = true
			})
		}
		if err != nil {
			return err
		}

		output.Success("Attached %s (%s, %s)", id, mediaType, output.FormatBytes(att.SizeBytes))
		return nil
	},
}

var mediaListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List media references in the workspace",
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

		repo, err := st.Repo(models.KindMedia)
		if err != nil {
			return err
		}
		records, err := repo.GetByWorkspace(ws)
		if err != nil {
			output.Error("list media: %v", err)
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(records)
		}
		if len(records) == 0 {
			fmt.Println("No media")
			return nil
		}
		for _, rec := range records {
			var m models.MediaAttachment
			if err := json.Unmarshal(rec.Data, &m); err != nil {
				continue
			}
			fmt.Printf("%s  job=%s  %s  %s  %s\n", m.ID, m.JobID, m.MediaType,
				output.FormatBytes(m.SizeBytes), output.SyncBadge(rec.SyncStatus))
		}
		return nil
	},
}

func init() {
	mediaAttachCmd.Flags().String("type", "photo", "Media type: photo or signature")

	for _, c := range []*cobra.Command{mediaAttachCmd, mediaListCmd} {
		c.Flags().String("workspace", "", "Workspace override")
		c.Flags().Bool("json", false, "JSON output")
		mediaCmd.AddCommand(c)
	}
	rootCmd.AddCommand(mediaCmd)
}
