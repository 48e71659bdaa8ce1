package syncconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockFileName = "config.lock"
	lockTimeout  = 500 * time.Millisecond
	lockBackoff  = 5 * time.Millisecond
)

// withConfigLock serializes config writers across processes with an OS file
// lock. The lock is released when the process exits, crashes included.
func withConfigLock(dir string, fn func() error) error {
	lockPath := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open config lock: %w", err)
	}
	defer f.Close()

	deadline := time.Now().Add(lockTimeout)
	for {
		if err := tryLock(f); err == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("config lock timeout after %v: another tbd process is writing", lockTimeout)
		}
		time.Sleep(lockBackoff)
	}
	defer unlock(f)

	return fn()
}
