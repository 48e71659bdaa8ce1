package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/output"
	"github.com/vm799/trust-by-design-sub003/internal/quota"
	"github.com/vm799/trust-by-design-sub003/internal/seal"
	"github.com/vm799/trust-by-design-sub003/internal/store"
	"github.com/vm799/trust-by-design-sub003/internal/syncconfig"
)

var rescueCmd = &cobra.Command{
	Use:     "rescue",
	Short:   "Snapshot workspace data under the storage quota",
	GroupID: "system",
	Long: `Writes a single-document snapshot of the workspace into the store's
rescue slot. When the snapshot would exceed the quota ceiling, data is
dropped a tier at a time: drafts first, then already-synced copies and
media references, keeping unsynced records for as long as they alone fit.

With --passphrase the snapshot is sealed with AES-256-GCM under an
Argon2id-derived key before it is written.`,
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

		items, err := buildRescueItems(st, ws)
		if err != nil {
			output.Error("collect snapshot: %v", err)
			return err
		}

		passphrase, _ := cmd.Flags().GetString("passphrase")

		guard := quota.New(int(syncconfig.GetQuotaCeiling()))
		warnings, err := guard.Persist(items, func(kept []quota.Item) error {
			snapshot, err := json.Marshal(kept)
			if err != nil {
				return err
			}
			if passphrase != "" {
				if snapshot, err = seal.Seal(passphrase, snapshot); err != nil {
					return err
				}
			}
			return st.SaveRescueSnapshot(ws, snapshot)
		})
		if err != nil {
			output.Error("save snapshot: %v", err)
			return err
		}

		for _, w := range warnings {
			output.Warning("Dropped %d %s item(s): %s", w.Dropped, w.Tier, w.Reason)
		}
		kept := len(items)
		for _, w := range warnings {
			kept -= w.Dropped
		}
		output.Success("Rescue snapshot saved: %d of %d item(s)", kept, len(items))
		return nil
	},
}

var rescueShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored rescue snapshot",
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

		snapshot, err := st.RescueSnapshot(ws)
		if err != nil {
			output.Error("read snapshot: %v", err)
			return err
		}
		if snapshot == nil {
			fmt.Println("No rescue snapshot")
			return nil
		}

		if seal.IsSealed(snapshot) {
			passphrase, _ := cmd.Flags().GetString("passphrase")
			if passphrase == "" {
				err := fmt.Errorf("snapshot is sealed (rerun with --passphrase)")
				output.Error("%v", err)
				return err
			}
			if snapshot, err = seal.Open(passphrase, snapshot); err != nil {
				output.Error("%v", err)
				return err
			}
		}

		var items []quota.Item
		if err := json.Unmarshal(snapshot, &items); err != nil {
			output.Error("snapshot unreadable: %v", err)
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(items)
		}
		fmt.Printf("%d item(s), %s serialized\n", len(items),
			output.FormatBytes(int64(quota.EstimateSize(items))))
		for _, item := range items {
			fmt.Printf("  %s  [%s]  %s\n", item.Key, item.Tier, output.FormatBytes(int64(len(item.Data))))
		}
		return nil
	},
}

// buildRescueItems flattens the workspace into tiered quota items. Drafts
// are transient; synced copies and media references are queued; everything
// not yet acknowledged by the server is critical.
func buildRescueItems(st *store.Store, workspaceID string) ([]quota.Item, error) {
	var critical, queued, transient []quota.Item

	for _, kind := range models.Kinds {
		repo, err := st.Repo(kind)
		if err != nil {
			return nil, err
		}
		records, err := repo.GetByWorkspace(workspaceID)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return nil, err
			}
			item := quota.Item{Key: string(kind) + "/" + rec.ID, Data: data}
			switch {
			case kind == models.KindFormDraft:
				item.Tier = quota.TierTransient
				transient = append(transient, item)
			case kind == models.KindMedia && rec.SyncStatus == models.SyncSynced:
				item.Tier = quota.TierQueued
				queued = append(queued, item)
			case rec.SyncStatus == models.SyncSynced:
				item.Tier = quota.TierQueued
				queued = append(queued, item)
			default:
				item.Tier = quota.TierCritical
				critical = append(critical, item)
			}
		}
	}

	// Critical first so tail-shedding within the last surviving tier drops
	// the most recently appended items
	items := append(critical, queued...)
	return append(items, transient...), nil
}

func init() {
	for _, c := range []*cobra.Command{rescueCmd, rescueShowCmd} {
		c.Flags().String("workspace", "", "Workspace override")
		c.Flags().Bool("json", false, "JSON output")
		c.Flags().String("passphrase", "", "Seal the snapshot with a passphrase")
	}
	rescueCmd.AddCommand(rescueShowCmd)
	rootCmd.AddCommand(rescueCmd)
}
