package reset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vm799/trust-by-design-sub003/internal/cache"
	"github.com/vm799/trust-by-design-sub003/internal/store"
)

// --- store connections ---

type storeConnLayer struct {
	st *store.Store
}

// StoreConns closes the local database connection. It must run before the
// layer that deletes the database file.
func StoreConns(st *store.Store) Layer {
	return &storeConnLayer{st: st}
}

func (l *storeConnLayer) Name() string { return "store-connections" }

func (l *storeConnLayer) Clear(ctx context.Context) error {
	return l.st.Close()
}

// ClearWorkspace keeps the connection open: a workspace-scoped reset purges
// rows through it in a later layer.
func (l *storeConnLayer) ClearWorkspace(ctx context.Context, workspaceID string) error {
	return nil
}

func (l *storeConnLayer) Remaining(ctx context.Context) (int64, error) {
	return 0, nil
}

// --- structured store ---

type storeFileLayer struct {
	st *store.Store
}

// StoreFiles removes the structured store. A full reset deletes the
// database file and its WAL sidecars; a workspace reset purges that
// workspace's rows, cursor included, in one transaction.
func StoreFiles(st *store.Store) Layer {
	return &storeFileLayer{st: st}
}

func (l *storeFileLayer) Name() string { return "structured-store" }

func (l *storeFileLayer) Clear(ctx context.Context) error {
	path := l.st.Path()
	for _, f := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

func (l *storeFileLayer) ClearWorkspace(ctx context.Context, workspaceID string) error {
	return l.st.PurgeWorkspace(workspaceID)
}

func (l *storeFileLayer) Remaining(ctx context.Context) (int64, error) {
	var count int64
	path := l.st.Path()
	for _, f := range []string{path, path + "-wal", path + "-shm"} {
		if _, err := os.Stat(f); err == nil {
			count++
		}
	}
	return count, nil
}

// --- auth credentials ---

type authLayer struct {
	path string
}

// AuthCredentials invalidates the device auth session by removing the
// credentials file. Credentials are device-wide, so a workspace reset
// leaves them alone.
func AuthCredentials(path string) Layer {
	return &authLayer{path: path}
}

func (l *authLayer) Name() string { return "auth-session" }

func (l *authLayer) Clear(ctx context.Context) error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

func (l *authLayer) ClearWorkspace(ctx context.Context, workspaceID string) error {
	return nil
}

func (l *authLayer) Remaining(ctx context.Context) (int64, error) {
	if _, err := os.Stat(l.path); err == nil {
		return 1, nil
	}
	return 0, nil
}

// --- redis cache ---

type cacheLayer struct {
	c *cache.Cache
}

// EphemeralCache flushes the application's Redis keyspace.
func EphemeralCache(c *cache.Cache) Layer {
	return &cacheLayer{c: c}
}

func (l *cacheLayer) Name() string { return "ephemeral-cache" }

func (l *cacheLayer) Clear(ctx context.Context) error {
	_, err := l.c.Flush(ctx)
	return err
}

func (l *cacheLayer) ClearWorkspace(ctx context.Context, workspaceID string) error {
	_, err := l.c.FlushWorkspace(ctx, workspaceID)
	return err
}

func (l *cacheLayer) Remaining(ctx context.Context) (int64, error) {
	n, err := l.c.CountAppKeys(ctx)
	return int64(n), err
}

// --- flat key-value file ---

type flatKVLayer struct {
	name string
	path string
}

// FlatKV clears a flat JSON key-value file (device state, feature flags).
// Workspace-scoped reset removes only keys embedding the workspace id.
func FlatKV(path string) Layer {
	return &flatKVLayer{name: "flat-kv", path: path}
}

// CookieJar clears the persisted cookie jar. It shares the flat kv file
// shape: cookie name to serialized value.
func CookieJar(path string) Layer {
	return &flatKVLayer{name: "cookie-jar", path: path}
}

func (l *flatKVLayer) Name() string { return l.name }

func (l *flatKVLayer) Clear(ctx context.Context) error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", l.name, err)
	}
	return nil
}

func (l *flatKVLayer) ClearWorkspace(ctx context.Context, workspaceID string) error {
	kv, err := loadKVFile(l.path)
	if err != nil {
		return err
	}
	if len(kv) == 0 {
		return nil
	}
	changed := false
	for key := range kv {
		if strings.Contains(key, workspaceID) {
			delete(kv, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return writeKVFile(l.path, kv)
}

func (l *flatKVLayer) Remaining(ctx context.Context) (int64, error) {
	kv, err := loadKVFile(l.path)
	if err != nil {
		return 0, err
	}
	return int64(len(kv)), nil
}

// --- session storage ---

type sessionLayer struct {
	dir string
}

// SessionStorage clears the per-session scratch directory. Session files
// are named after the workspace they belong to, which is what scopes the
// workspace variant.
func SessionStorage(dir string) Layer {
	return &sessionLayer{dir: dir}
}

func (l *sessionLayer) Name() string { return "session-storage" }

func (l *sessionLayer) Clear(ctx context.Context) error {
	if err := os.RemoveAll(l.dir); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

func (l *sessionLayer) ClearWorkspace(ctx context.Context, workspaceID string) error {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session dir: %w", err)
	}
	for _, entry := range entries {
		if !strings.Contains(entry.Name(), workspaceID) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(l.dir, entry.Name())); err != nil {
			return fmt.Errorf("remove session %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (l *sessionLayer) Remaining(ctx context.Context) (int64, error) {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}
