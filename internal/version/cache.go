package version

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// cacheTTL bounds how long a completed check suppresses GitHub calls.
const cacheTTL = 6 * time.Hour

// CacheEntry is the persisted result of the last update check.
type CacheEntry struct {
	LatestVersion  string    `json:"latest_version"`
	CurrentVersion string    `json:"current_version"`
	CheckedAt      time.Time `json:"checked_at"`
	HasUpdate      bool      `json:"has_update"`
}

func cachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cache", "tbd", "version-check.json")
}

// IsCacheValid reports whether the entry can answer for currentVersion. A
// binary upgrade or downgrade invalidates the cache immediately.
func IsCacheValid(entry *CacheEntry, currentVersion string) bool {
	if entry == nil {
		return false
	}
	if entry.CurrentVersion != currentVersion {
		return false
	}
	return time.Since(entry.CheckedAt) < cacheTTL
}

// LoadCache reads the persisted check result.
func LoadCache() (*CacheEntry, error) {
	path := cachePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// SaveCache persists a check result, creating the cache directory if needed.
func SaveCache(entry *CacheEntry) error {
	path := cachePath()
	if path == "" {
		return os.ErrNotExist
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CachedCheck answers from the cache when possible and falls back to a live
// check, persisting successful results.
func CachedCheck(currentVersion string) CheckResult {
	if cached, err := LoadCache(); err == nil && IsCacheValid(cached, currentVersion) {
		return CheckResult{
			CurrentVersion: currentVersion,
			LatestVersion:  cached.LatestVersion,
			HasUpdate:      cached.HasUpdate,
		}
	}

	result := Check(currentVersion)
	if result.Error == nil && !IsDevelopmentVersion(currentVersion) {
		_ = SaveCache(&CacheEntry{
			LatestVersion:  result.LatestVersion,
			CurrentVersion: currentVersion,
			CheckedAt:      time.Now(),
			HasUpdate:      result.HasUpdate,
		})
	}
	return result
}
