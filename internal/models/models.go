package models

import (
	"encoding/json"
	"time"
)

// Kind identifies an entity table. One SQLite table exists per kind.
type Kind string

const (
	KindJob        Kind = "jobs"
	KindClient     Kind = "clients"
	KindTechnician Kind = "technicians"
	KindFormDraft  Kind = "form_drafts"
	KindMedia      Kind = "media_attachments"
)

// Kinds lists every syncable entity kind in schema order.
var Kinds = []Kind{KindJob, KindClient, KindTechnician, KindFormDraft, KindMedia}

// ValidKind reports whether k names a known entity table.
func ValidKind(k Kind) bool {
	switch k {
	case KindJob, KindClient, KindTechnician, KindFormDraft, KindMedia:
		return true
	}
	return false
}

// SyncStatus tracks where a record sits in the push lifecycle.
type SyncStatus string

const (
	SyncLocalOnly  SyncStatus = "local_only"  // never enqueued for push
	SyncPendingAck SyncStatus = "pending_ack" // enqueued, awaiting server ack
	SyncSynced     SyncStatus = "synced"      // acknowledged by the server
	SyncFailed     SyncStatus = "failed"      // push exhausted its retries
)

// Record is the storage envelope for one entity. Domain fields live in Data
// as a field-named JSON document; compatibility is semantic, not byte-level.
type Record struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	Kind        Kind            `json:"kind"`
	UpdatedAt   time.Time       `json:"updated_at"`
	SyncStatus  SyncStatus      `json:"sync_status"`
	Data        json.RawMessage `json:"data"`
}

// Fields unmarshals the domain document into a generic map. Corrupted data
// yields an empty map rather than an error; callers treat it as absent.
func (r Record) Fields() map[string]any {
	fields := map[string]any{}
	if len(r.Data) > 0 {
		_ = json.Unmarshal(r.Data, &fields)
	}
	return fields
}

// JobStatus represents the dispatch state of a job.
type JobStatus string

const (
	JobScheduled  JobStatus = "Scheduled"
	JobInProgress JobStatus = "In Progress"
	JobComplete   JobStatus = "Complete"
	JobCancelled  JobStatus = "Cancelled"
)

// Job is the primary evidence-bearing entity: one visit to one site.
type Job struct {
	ID           string    `json:"id"`
	WorkspaceID  string    `json:"workspace_id"`
	Title        string    `json:"title"`
	Status       JobStatus `json:"status"`
	ClientID     string    `json:"client_id,omitempty"`
	TechnicianID string    `json:"technician_id,omitempty"`
	PhotoIDs     []string  `json:"photo_ids,omitempty"`
	HasSignature bool      `json:"has_signature"`
	Notes        string    `json:"notes,omitempty"`
	ScheduledFor string    `json:"scheduled_for,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Client is a customer the work is billed to.
type Client struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Technician is a field worker who captures evidence on site.
type Technician struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FormDraft is an in-progress form, the most transient data tier.
type FormDraft struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	JobID       string          `json:"job_id"`
	Body        json.RawMessage `json:"body,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MediaAttachment references captured evidence (photo, signature image).
type MediaAttachment struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	JobID       string    `json:"job_id"`
	MediaType   string    `json:"media_type"` // photo, signature
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActionKind is the mutation verb carried by an outbox action.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// Action is one not-yet-acknowledged mutation in the outbox. Seq is the
// creation sequence (SQLite rowid) and fixes FIFO push order per workspace.
type Action struct {
	Seq           int64           `json:"seq"`
	WorkspaceID   string          `json:"workspace_id"`
	Kind          ActionKind      `json:"kind"`
	EntityKind    Kind            `json:"entity_kind"`
	EntityID      string          `json:"entity_id"`
	Payload       json.RawMessage `json:"payload"`
	RetryCount    int             `json:"retry_count"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	Failed        bool            `json:"failed"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Resolution is the explicit human choice that settles a conflict.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionRemote Resolution = "remote"
)

// Conflict describes which tracked fields differ between the local and
// remote versions of one entity. Conflicts start unresolved and are never
// merged automatically.
type Conflict struct {
	ID          int64           `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	EntityKind  Kind            `json:"entity_kind"`
	EntityID    string          `json:"entity_id"`
	LocalData   json.RawMessage `json:"local_data"`
	RemoteData  json.RawMessage `json:"remote_data"`
	Fields      []string        `json:"fields"`
	DetectedAt  time.Time       `json:"detected_at"`
	Resolved    bool            `json:"resolved"`
	Resolution  *Resolution     `json:"resolution,omitempty"`
}
