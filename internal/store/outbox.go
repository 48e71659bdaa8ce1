package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/models"
)

// Enqueue appends one action to the outbox and returns its creation sequence.
// The payload is a full snapshot of the entity at mutation time.
func (s *Store) Enqueue(action models.Action) (int64, error) {
	payload := action.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	var seq int64
	err := s.withWriteLock(func() error {
		res, err := s.conn.Exec(`
			INSERT INTO outbox (workspace_id, action_kind, entity_kind, entity_id, payload, next_attempt_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
			action.WorkspaceID, string(action.Kind), string(action.EntityKind),
			action.EntityID, string(payload))
		if err != nil {
			return fmt.Errorf("enqueue action: %w", err)
		}
		seq, err = res.LastInsertId()
		return err
	})
	return seq, err
}

// DueActions returns non-failed actions for one workspace whose next attempt
// time has passed, in strict enqueue (FIFO) order.
func (s *Store) DueActions(workspaceID string, now time.Time) ([]models.Action, error) {
	rows, err := s.conn.Query(`
		SELECT rowid, workspace_id, action_kind, entity_kind, entity_id, payload,
		       retry_count, next_attempt_at, failed, last_error, created_at
		FROM outbox
		WHERE workspace_id = ? AND failed = 0 AND next_attempt_at <= ?
		ORDER BY rowid ASC`,
		workspaceID, now.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("query due actions: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

// FailedActions returns actions that exhausted their retries.
func (s *Store) FailedActions(workspaceID string) ([]models.Action, error) {
	rows, err := s.conn.Query(`
		SELECT rowid, workspace_id, action_kind, entity_kind, entity_id, payload,
		       retry_count, next_attempt_at, failed, last_error, created_at
		FROM outbox
		WHERE workspace_id = ? AND failed = 1
		ORDER BY rowid ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query failed actions: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

// AckAction removes an acknowledged action from the outbox.
func (s *Store) AckAction(seq int64) error {
	return s.withWriteLock(func() error {
		_, err := s.conn.Exec(`DELETE FROM outbox WHERE rowid = ?`, seq)
		if err != nil {
			return fmt.Errorf("ack action %d: %w", seq, err)
		}
		return nil
	})
}

// RecordAttemptFailure bumps the retry count and schedules the next attempt.
// Once maxed out the action is flagged failed and no longer retried.
func (s *Store) RecordAttemptFailure(seq int64, attemptErr string, nextAttempt time.Time, maxedOut bool) error {
	failed := 0
	if maxedOut {
		failed = 1
	}
	return s.withWriteLock(func() error {
		_, err := s.conn.Exec(`
			UPDATE outbox
			SET retry_count = retry_count + 1, next_attempt_at = ?, failed = ?, last_error = ?
			WHERE rowid = ?`,
			nextAttempt.UTC().Format(timeFormat), failed, attemptErr, seq)
		if err != nil {
			return fmt.Errorf("record failure for action %d: %w", seq, err)
		}
		return nil
	})
}

// RetryFailedActions clears the failed flag so exhausted actions are pushed
// again on the next sync.
func (s *Store) RetryFailedActions(workspaceID string) (int64, error) {
	var affected int64
	err := s.withWriteLock(func() error {
		res, err := s.conn.Exec(`
			UPDATE outbox
			SET failed = 0, retry_count = 0, next_attempt_at = CURRENT_TIMESTAMP, last_error = ''
			WHERE workspace_id = ? AND failed = 1`, workspaceID)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

// AdoptCanonicalID rewrites an entity id across the entity table and any
// outbox actions still referencing it, after a CREATE ack assigned the
// server's canonical id.
func (s *Store) AdoptCanonicalID(kind models.Kind, localID, canonicalID string) error {
	if !models.ValidKind(kind) {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	if localID == canonicalID {
		return nil
	}
	return s.withWriteLock(func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin adopt tx: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(fmt.Sprintf(`UPDATE %s SET id = ? WHERE id = ?`, kind),
			canonicalID, localID); err != nil {
			return fmt.Errorf("adopt id on %s: %w", kind, err)
		}
		if _, err := tx.Exec(`UPDATE outbox SET entity_id = ? WHERE entity_kind = ? AND entity_id = ?`,
			canonicalID, string(kind), localID); err != nil {
			return fmt.Errorf("adopt id on outbox: %w", err)
		}
		return tx.Commit()
	})
}

// CountPending returns the number of unfailed outbox actions for a workspace.
func (s *Store) CountPending(workspaceID string) (int64, error) {
	var count int64
	err := s.conn.QueryRow(
		`SELECT COUNT(*) FROM outbox WHERE workspace_id = ? AND failed = 0`,
		workspaceID).Scan(&count)
	return count, err
}

// CountFailed returns the number of exhausted outbox actions for a workspace.
func (s *Store) CountFailed(workspaceID string) (int64, error) {
	var count int64
	err := s.conn.QueryRow(
		`SELECT COUNT(*) FROM outbox WHERE workspace_id = ? AND failed = 1`,
		workspaceID).Scan(&count)
	return count, err
}

func scanActions(rows *sql.Rows) ([]models.Action, error) {
	var actions []models.Action
	for rows.Next() {
		var (
			a                         models.Action
			kind, entityKind, payload string
			nextAt, createdAt         string
			failed                    int
		)
		if err := rows.Scan(&a.Seq, &a.WorkspaceID, &kind, &entityKind, &a.EntityID,
			&payload, &a.RetryCount, &nextAt, &failed, &a.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		a.Kind = models.ActionKind(kind)
		a.EntityKind = models.Kind(entityKind)
		a.Payload = json.RawMessage(payload)
		a.Failed = failed != 0
		if t, err := parseTimestamp(nextAt); err == nil {
			a.NextAttemptAt = t
		}
		if t, err := parseTimestamp(createdAt); err == nil {
			a.CreatedAt = t
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
