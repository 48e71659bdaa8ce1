// Package conflict compares the local and remote versions of one entity and
// reports which materially significant fields differ. Volatile bookkeeping
// fields (timestamps, sync status) never raise conflicts, and nothing here
// merges anything: resolution is always an explicit human choice.
package conflict

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/models"
)

// Tracked is the per-kind set of fields whose divergence is worth surfacing.
// It is configuration, not a constant: the material set differs by domain.
type Tracked map[models.Kind][]string

// DefaultTracked covers the fields the dashboard surfaces to operators.
func DefaultTracked() Tracked {
	return Tracked{
		models.KindJob:        {"status", "technician_id", "has_signature", "photo_ids"},
		models.KindClient:     {"name", "email", "phone", "address"},
		models.KindTechnician: {"name", "email", "active"},
		models.KindFormDraft:  {"body"},
		models.KindMedia:      {"media_type", "content_hash"},
	}
}

// Detect compares two versions of the same entity. It returns nil when no
// tracked field differs, else an unresolved Conflict listing every differing
// tracked field. Local and remote must carry the same entity id.
func Detect(local, remote models.Record, tracked Tracked) (*models.Conflict, error) {
	if local.ID != remote.ID {
		return nil, fmt.Errorf("detect conflicts: id mismatch %q vs %q", local.ID, remote.ID)
	}
	fields := tracked[local.Kind]
	if len(fields) == 0 {
		return nil, nil
	}

	localFields := local.Fields()
	remoteFields := remote.Fields()

	var differing []string
	for _, field := range fields {
		if !fieldEqual(localFields[field], remoteFields[field]) {
			differing = append(differing, field)
		}
	}
	if len(differing) == 0 {
		return nil, nil
	}

	return &models.Conflict{
		WorkspaceID: local.WorkspaceID,
		EntityKind:  local.Kind,
		EntityID:    local.ID,
		LocalData:   local.Data,
		RemoteData:  remote.Data,
		Fields:      differing,
		DetectedAt:  time.Now().UTC(),
		Resolved:    false,
		Resolution:  nil,
	}, nil
}

// fieldEqual compares one tracked field value. Collections compare by
// element count and id membership, not byte-for-byte: remote-rendered copies
// of the same attachment set may differ superficially while being
// substantively equal.
func fieldEqual(local, remote any) bool {
	localList, localIsList := asList(local)
	remoteList, remoteIsList := asList(remote)
	if localIsList || remoteIsList {
		return listEqual(localList, remoteList)
	}

	// Scalars compare by canonical JSON so 1 and 1.0 agree and nested
	// objects compare structurally.
	lb, _ := json.Marshal(local)
	rb, _ := json.Marshal(remote)
	return string(lb) == string(rb)
}

func asList(v any) ([]any, bool) {
	list, ok := v.([]any)
	return list, ok
}

func listEqual(local, remote []any) bool {
	if len(local) != len(remote) {
		return false
	}
	seen := make(map[string]int, len(local))
	for _, item := range local {
		seen[identityOf(item)]++
	}
	for _, item := range remote {
		key := identityOf(item)
		seen[key]--
		if seen[key] < 0 {
			return false
		}
	}
	return true
}

// identityOf reduces a collection element to its identity: a scalar's
// canonical form, or an object's id field when it has one.
func identityOf(v any) string {
	if obj, ok := v.(map[string]any); ok {
		if id, ok := obj["id"].(string); ok && id != "" {
			return "id:" + id
		}
	}
	b, _ := json.Marshal(v)
	return string(b)
}
