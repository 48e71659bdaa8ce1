package conflict

import (
	"encoding/json"
	"testing"

	"github.com/vm799/trust-by-design-sub003/internal/models"
)

func jobRecord(t *testing.T, id string, job models.Job) models.Record {
	t.Helper()
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return models.Record{
		ID:          id,
		WorkspaceID: "ws-1",
		Kind:        models.KindJob,
		Data:        data,
	}
}

func TestDetect_IdenticalRecords(t *testing.T) {
	job := models.Job{ID: "J1", Status: models.JobComplete, TechnicianID: "t-1"}
	local := jobRecord(t, "J1", job)
	remote := jobRecord(t, "J1", job)

	c, err := Detect(local, remote, DefaultTracked())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if c != nil {
		t.Fatalf("identical records produced conflict: %+v", c)
	}
}

func TestDetect_StatusDiffers(t *testing.T) {
	local := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobComplete})
	remote := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobInProgress})

	c, err := Detect(local, remote, DefaultTracked())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if c == nil {
		t.Fatal("expected conflict, got nil")
	}
	if len(c.Fields) != 1 || c.Fields[0] != "status" {
		t.Errorf("fields: got %v, want [status]", c.Fields)
	}
	if c.Resolved {
		t.Error("new conflict should start unresolved")
	}
	if c.Resolution != nil {
		t.Errorf("new conflict resolution: got %v, want nil", *c.Resolution)
	}
}

func TestDetect_MultipleTrackedFields(t *testing.T) {
	local := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobComplete, TechnicianID: "t-1", HasSignature: true})
	remote := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobInProgress, TechnicianID: "t-2", HasSignature: true})

	c, err := Detect(local, remote, DefaultTracked())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if c == nil {
		t.Fatal("expected conflict, got nil")
	}
	want := map[string]bool{"status": true, "technician_id": true}
	if len(c.Fields) != len(want) {
		t.Fatalf("fields: got %v, want exactly status and technician_id", c.Fields)
	}
	for _, f := range c.Fields {
		if !want[f] {
			t.Errorf("unexpected conflicting field %q", f)
		}
	}
}

func TestDetect_UntrackedFieldIgnored(t *testing.T) {
	local := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobComplete, Notes: "local note"})
	remote := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobComplete, Notes: "remote note"})

	c, err := Detect(local, remote, DefaultTracked())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if c != nil {
		t.Fatalf("untracked field raised conflict: %v", c.Fields)
	}
}

func TestDetect_PhotoSetComparedByIdentity(t *testing.T) {
	// Same photo ids in a different order: substantively equal
	local := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobComplete, PhotoIDs: []string{"p1", "p2"}})
	remote := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobComplete, PhotoIDs: []string{"p2", "p1"}})

	c, err := Detect(local, remote, DefaultTracked())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if c != nil {
		t.Fatalf("reordered photo set raised conflict: %v", c.Fields)
	}
}

func TestDetect_PhotoCountDiffers(t *testing.T) {
	local := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobComplete, PhotoIDs: []string{"p1"}})
	remote := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobComplete, PhotoIDs: []string{"p1", "p2"}})

	c, err := Detect(local, remote, DefaultTracked())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if c == nil {
		t.Fatal("expected conflict for differing photo count")
	}
	if len(c.Fields) != 1 || c.Fields[0] != "photo_ids" {
		t.Errorf("fields: got %v, want [photo_ids]", c.Fields)
	}
}

func TestDetect_IDMismatch(t *testing.T) {
	local := jobRecord(t, "J1", models.Job{ID: "J1"})
	remote := jobRecord(t, "J2", models.Job{ID: "J2"})

	if _, err := Detect(local, remote, DefaultTracked()); err == nil {
		t.Fatal("expected error for mismatched ids")
	}
}

func TestDetect_CorruptedLocalDataTreatedAsEmpty(t *testing.T) {
	local := models.Record{ID: "J1", Kind: models.KindJob, Data: json.RawMessage(`{not json`)}
	remote := jobRecord(t, "J1", models.Job{ID: "J1", Status: models.JobInProgress})

	c, err := Detect(local, remote, DefaultTracked())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if c == nil {
		t.Fatal("expected conflict: empty local fields differ from remote status")
	}
}
