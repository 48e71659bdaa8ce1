package serverdb

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

const (
	apiKeyPrefix = "tbk_live_"
	keyLength    = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// APIKey represents a stored API key (without the plaintext secret).
type APIKey struct {
	ID          string
	WorkspaceID string
	KeyPrefix   string
	Name        string
	RevokedAt   *time.Time
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// GenerateAPIKey creates a key granting access to one workspace. The
// plaintext is returned once and only its hash is stored.
func (db *ServerDB) GenerateAPIKey(workspaceID, name string) (string, *APIKey, error) {
	if _, err := db.GetWorkspace(workspaceID); err != nil {
		return "", nil, fmt.Errorf("workspace %s: %w", workspaceID, err)
	}

	id, err := generateID("ak-")
	if err != nil {
		return "", nil, fmt.Errorf("generate api key id: %w", err)
	}

	secret := make([]byte, keyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := apiKeyPrefix + string(secret)
	prefix := string(secret[:8])
	hash := sha256.Sum256([]byte(plaintext))
	keyHash := hex.EncodeToString(hash[:])

	now := time.Now().UTC()
	if _, err := db.conn.Exec(
		`INSERT INTO api_keys (id, workspace_id, key_hash, key_prefix, name, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, workspaceID, keyHash, prefix, name, now); err != nil {
		return "", nil, fmt.Errorf("insert api key: %w", err)
	}

	return plaintext, &APIKey{
		ID:          id,
		WorkspaceID: workspaceID,
		KeyPrefix:   prefix,
		Name:        name,
		CreatedAt:   now,
	}, nil
}

// VerifyAPIKey resolves a plaintext bearer token to its stored key.
// Unknown or revoked keys return nil, nil.
func (db *ServerDB) VerifyAPIKey(plaintext string) (*APIKey, error) {
	hash := sha256.Sum256([]byte(plaintext))
	keyHash := hex.EncodeToString(hash[:])

	var (
		ak        APIKey
		revokedAt sql.NullTime
	)
	err := db.conn.QueryRow(`
		SELECT id, workspace_id, key_prefix, name, revoked_at, created_at
		FROM api_keys WHERE key_hash = ?`, keyHash).
		Scan(&ak.ID, &ak.WorkspaceID, &ak.KeyPrefix, &ak.Name, &revokedAt, &ak.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query api key: %w", err)
	}
	if revokedAt.Valid {
		return nil, nil
	}

	if _, err := db.conn.Exec(
		`UPDATE api_keys SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?`, ak.ID); err != nil {
		slog.Warn("update api key last_used_at", "err", err)
	}
	return &ak, nil
}

// RevokeAPIKey disables a key without deleting its audit trail.
func (db *ServerDB) RevokeAPIKey(id string) error {
	res, err := db.conn.Exec(
		`UPDATE api_keys SET revoked_at = CURRENT_TIMESTAMP WHERE id = ? AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
