package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/models"
)

func enqueueTest(t *testing.T, s *Store, workspaceID, entityID string, kind models.ActionKind) int64 {
	t.Helper()
	seq, err := s.Enqueue(models.Action{
		WorkspaceID: workspaceID,
		Kind:        kind,
		EntityKind:  models.KindJob,
		EntityID:    entityID,
		Payload:     json.RawMessage(`{"id":"` + entityID + `"}`),
	})
	if err != nil {
		t.Fatalf("enqueue %s: %v", entityID, err)
	}
	return seq
}

func TestOutboxFIFOOrder(t *testing.T) {
	s := testStore(t)

	enqueueTest(t, s, "ws-1", "job-1", models.ActionCreate)
	enqueueTest(t, s, "ws-1", "job-1", models.ActionUpdate)
	enqueueTest(t, s, "ws-1", "job-2", models.ActionCreate)

	due, err := s.DueActions("ws-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("due actions: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("due: got %d, want 3", len(due))
	}
	wantOrder := []struct {
		id   string
		kind models.ActionKind
	}{
		{"job-1", models.ActionCreate},
		{"job-1", models.ActionUpdate},
		{"job-2", models.ActionCreate},
	}
	for i, want := range wantOrder {
		if due[i].EntityID != want.id || due[i].Kind != want.kind {
			t.Errorf("position %d: got %s/%s, want %s/%s",
				i, due[i].EntityID, due[i].Kind, want.id, want.kind)
		}
	}
}

func TestOutboxScopedByWorkspace(t *testing.T) {
	s := testStore(t)
	enqueueTest(t, s, "ws-1", "job-1", models.ActionCreate)
	enqueueTest(t, s, "ws-2", "job-2", models.ActionCreate)

	due, err := s.DueActions("ws-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("due actions: %v", err)
	}
	if len(due) != 1 || due[0].EntityID != "job-1" {
		t.Errorf("ws-1 due: got %+v", due)
	}
}

func TestAckRemovesAction(t *testing.T) {
	s := testStore(t)
	seq := enqueueTest(t, s, "ws-1", "job-1", models.ActionCreate)

	if err := s.AckAction(seq); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if pending, _ := s.CountPending("ws-1"); pending != 0 {
		t.Errorf("pending after ack: got %d, want 0", pending)
	}
}

func TestRetryScheduleHidesAction(t *testing.T) {
	s := testStore(t)
	seq := enqueueTest(t, s, "ws-1", "job-1", models.ActionCreate)

	next := time.Now().UTC().Add(time.Minute)
	if err := s.RecordAttemptFailure(seq, "connection refused", next, false); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	// Not due now, due after the backoff window
	due, _ := s.DueActions("ws-1", time.Now().UTC())
	if len(due) != 0 {
		t.Errorf("action due before its retry time: %+v", due)
	}
	due, _ = s.DueActions("ws-1", time.Now().UTC().Add(2*time.Minute))
	if len(due) != 1 {
		t.Fatalf("action missing after retry time")
	}
	if due[0].RetryCount != 1 || due[0].LastError != "connection refused" {
		t.Errorf("retry bookkeeping: %+v", due[0])
	}
}

func TestMaxedOutActionMovesToFailed(t *testing.T) {
	s := testStore(t)
	seq := enqueueTest(t, s, "ws-1", "job-1", models.ActionCreate)

	if err := s.RecordAttemptFailure(seq, "server unavailable", time.Now().UTC(), true); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	if due, _ := s.DueActions("ws-1", time.Now().UTC().Add(time.Hour)); len(due) != 0 {
		t.Error("failed action still returned as due")
	}
	failed, err := s.FailedActions("ws-1")
	if err != nil {
		t.Fatalf("failed actions: %v", err)
	}
	if len(failed) != 1 || !failed[0].Failed {
		t.Fatalf("failed list: %+v", failed)
	}

	// Explicit retry puts it back in the queue with a clean slate
	n, err := s.RetryFailedActions("ws-1")
	if err != nil || n != 1 {
		t.Fatalf("retry failed: n=%d err=%v", n, err)
	}
	due, _ := s.DueActions("ws-1", time.Now().UTC())
	if len(due) != 1 || due[0].RetryCount != 0 {
		t.Errorf("after retry: %+v", due)
	}
}

func TestAdoptCanonicalID(t *testing.T) {
	s := testStore(t)
	repo, _ := s.Repo(models.KindJob)
	if err := repo.Upsert(testRecord("tmp-1", "ws-1", models.KindJob, models.SyncPendingAck)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	enqueueTest(t, s, "ws-1", "tmp-1", models.ActionUpdate)

	if err := s.AdoptCanonicalID(models.KindJob, "tmp-1", "job-9f2"); err != nil {
		t.Fatalf("adopt: %v", err)
	}

	if _, err := repo.Get("tmp-1"); err == nil {
		t.Error("old id still present")
	}
	if _, err := repo.Get("job-9f2"); err != nil {
		t.Errorf("canonical id missing: %v", err)
	}
	due, _ := s.DueActions("ws-1", time.Now().UTC())
	if len(due) != 1 || due[0].EntityID != "job-9f2" {
		t.Errorf("outbox not rewritten: %+v", due)
	}
}

func TestAdoptCanonicalIDNoopWhenEqual(t *testing.T) {
	s := testStore(t)
	if err := s.AdoptCanonicalID(models.KindJob, "job-1", "job-1"); err != nil {
		t.Fatalf("adopt same id: %v", err)
	}
}
