package cmd

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/quota"
	"github.com/vm799/trust-by-design-sub003/internal/store"
)

func seedRecord(t *testing.T, st *store.Store, kind models.Kind, id, ws string, status models.SyncStatus) {
	t.Helper()
	repo, err := st.Repo(kind)
	if err != nil {
		t.Fatalf("repo %s: %v", kind, err)
	}
	err = repo.Upsert(models.Record{
		ID:          id,
		WorkspaceID: ws,
		Kind:        kind,
		UpdatedAt:   time.Now().UTC(),
		SyncStatus:  status,
		Data:        json.RawMessage(`{"id":"` + id + `"}`),
	})
	if err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
}

func TestBuildRescueItemsTiering(t *testing.T) {
	st, err := store.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	seedRecord(t, st, models.KindJob, "job-1", "ws-1", models.SyncPendingAck)
	seedRecord(t, st, models.KindJob, "job-2", "ws-1", models.SyncSynced)
	seedRecord(t, st, models.KindFormDraft, "draft-1", "ws-1", models.SyncLocalOnly)
	seedRecord(t, st, models.KindMedia, "media-1", "ws-1", models.SyncSynced)
	seedRecord(t, st, models.KindJob, "job-other", "ws-2", models.SyncPendingAck)

	items, err := buildRescueItems(st, "ws-1")
	if err != nil {
		t.Fatalf("buildRescueItems: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("items: got %d, want 4 (ws-2 excluded)", len(items))
	}

	tiers := map[string]quota.Tier{}
	for _, item := range items {
		tiers[item.Key] = item.Tier
	}
	cases := []struct {
		key  string
		want quota.Tier
	}{
		{"jobs/job-1", quota.TierCritical},
		{"jobs/job-2", quota.TierQueued},
		{"form_drafts/draft-1", quota.TierTransient},
		{"media_attachments/media-1", quota.TierQueued},
	}
	for _, tc := range cases {
		got, ok := tiers[tc.key]
		if !ok {
			t.Errorf("missing item %s", tc.key)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: tier %s, want %s", tc.key, got, tc.want)
		}
	}

	// Critical items sort ahead of queued and transient so tail-shedding
	// hits the least important data first
	if items[0].Tier != quota.TierCritical {
		t.Errorf("first item tier: got %s, want critical", items[0].Tier)
	}
	if items[len(items)-1].Tier != quota.TierTransient {
		t.Errorf("last item tier: got %s, want transient", items[len(items)-1].Tier)
	}
}

func TestRescueSnapshotFitsUnderCeiling(t *testing.T) {
	st, err := store.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	seedRecord(t, st, models.KindJob, "job-1", "ws-1", models.SyncPendingAck)
	seedRecord(t, st, models.KindFormDraft, "draft-1", "ws-1", models.SyncLocalOnly)
	seedRecord(t, st, models.KindFormDraft, "draft-2", "ws-1", models.SyncLocalOnly)

	items, err := buildRescueItems(st, "ws-1")
	if err != nil {
		t.Fatalf("buildRescueItems: %v", err)
	}

	// Ceiling big enough for the critical job alone
	ceiling := quota.EstimateSize(items[:1]) + 10
	guard := quota.New(ceiling)
	warnings, err := guard.Persist(items, func(kept []quota.Item) error {
		snapshot, err := json.Marshal(kept)
		if err != nil {
			return err
		}
		return st.SaveRescueSnapshot("ws-1", snapshot)
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected truncation warnings")
	}

	snapshot, err := st.RescueSnapshot("ws-1")
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var kept []quota.Item
	if err := json.Unmarshal(snapshot, &kept); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if quota.EstimateSize(kept) > ceiling {
		t.Errorf("snapshot over ceiling: %d > %d", quota.EstimateSize(kept), ceiling)
	}
	for _, item := range kept {
		if item.Tier == quota.TierTransient {
			t.Errorf("transient item %s survived ahead of critical data", item.Key)
		}
	}
}

func TestDraftForJob(t *testing.T) {
	st, err := store.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	repo, err := st.Repo(models.KindFormDraft)
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	draft := models.FormDraft{
		ID:          "draft-1",
		WorkspaceID: "ws-1",
		JobID:       "job-1",
		Body:        json.RawMessage(`{"step":2}`),
		UpdatedAt:   time.Now().UTC(),
	}
	data, _ := json.Marshal(draft)
	if err := repo.Upsert(models.Record{
		ID: "draft-1", WorkspaceID: "ws-1", Kind: models.KindFormDraft,
		UpdatedAt: draft.UpdatedAt, SyncStatus: models.SyncPendingAck, Data: data,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	found, err := draftForJob(st, "ws-1", "job-1")
	if err != nil {
		t.Fatalf("draftForJob: %v", err)
	}
	if found == nil || found.ID != "draft-1" {
		t.Fatalf("got %+v, want draft-1", found)
	}

	missing, err := draftForJob(st, "ws-1", "job-2")
	if err != nil {
		t.Fatalf("draftForJob: %v", err)
	}
	if missing != nil {
		t.Errorf("expected no draft for job-2, got %+v", missing)
	}
}
