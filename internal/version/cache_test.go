package version

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return dir
}

func TestIsCacheValid(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name           string
		entry          *CacheEntry
		currentVersion string
		want           bool
	}{
		{"nil entry", nil, "v1.0.0", false},
		{
			"same version, recent",
			&CacheEntry{LatestVersion: "v1.1.0", CurrentVersion: "v1.0.0", CheckedAt: now, HasUpdate: true},
			"v1.0.0", true,
		},
		{
			"expired",
			&CacheEntry{LatestVersion: "v1.1.0", CurrentVersion: "v1.0.0", CheckedAt: now.Add(-7 * time.Hour), HasUpdate: true},
			"v1.0.0", false,
		},
		{
			"version mismatch after upgrade",
			&CacheEntry{LatestVersion: "v1.1.0", CurrentVersion: "v1.0.0", CheckedAt: now, HasUpdate: true},
			"v1.1.0", false,
		},
		{
			"just under TTL",
			&CacheEntry{LatestVersion: "v1.1.0", CurrentVersion: "v1.0.0", CheckedAt: now.Add(-6*time.Hour + time.Minute), HasUpdate: true},
			"v1.0.0", true,
		},
		{
			"no update available",
			&CacheEntry{LatestVersion: "v1.0.0", CurrentVersion: "v1.0.0", CheckedAt: now, HasUpdate: false},
			"v1.0.0", true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCacheValid(tt.entry, tt.currentVersion); got != tt.want {
				t.Errorf("IsCacheValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSaveAndLoadCache(t *testing.T) {
	setHome(t)

	entry := &CacheEntry{
		LatestVersion:  "v1.2.3",
		CurrentVersion: "v1.0.0",
		CheckedAt:      time.Now().Round(time.Second),
		HasUpdate:      true,
	}
	if err := SaveCache(entry); err != nil {
		t.Fatalf("SaveCache() error = %v", err)
	}

	loaded, err := LoadCache()
	if err != nil {
		t.Fatalf("LoadCache() error = %v", err)
	}
	if loaded.LatestVersion != entry.LatestVersion ||
		loaded.CurrentVersion != entry.CurrentVersion ||
		loaded.HasUpdate != entry.HasUpdate ||
		!loaded.CheckedAt.Equal(entry.CheckedAt) {
		t.Errorf("round trip mismatch: saved=%+v, loaded=%+v", entry, loaded)
	}
}

func TestLoadCacheErrors(t *testing.T) {
	setHome(t)

	t.Run("nonexistent file", func(t *testing.T) {
		if _, err := LoadCache(); err == nil {
			t.Error("LoadCache() should fail for a missing file")
		}
	})

	t.Run("corrupted file", func(t *testing.T) {
		path := cachePath()
		os.MkdirAll(filepath.Dir(path), 0755)
		if err := os.WriteFile(path, []byte(`{invalid json}`), 0644); err != nil {
			t.Fatalf("write corrupted cache: %v", err)
		}
		if _, err := LoadCache(); err == nil {
			t.Error("LoadCache() should fail for corrupted JSON")
		}
	})
}

func TestCachedCheckPrefersValidCache(t *testing.T) {
	setHome(t)

	if err := SaveCache(&CacheEntry{
		LatestVersion:  "v1.5.0",
		CurrentVersion: "v1.0.0",
		CheckedAt:      time.Now(),
		HasUpdate:      true,
	}); err != nil {
		t.Fatalf("SaveCache() error = %v", err)
	}

	result := CachedCheck("v1.0.0")
	if result.Error != nil {
		t.Fatalf("CachedCheck error: %v", result.Error)
	}
	if !result.HasUpdate || result.LatestVersion != "v1.5.0" {
		t.Errorf("cache not used: %+v", result)
	}
}

func TestCachedCheckDevelopmentSkipsNetwork(t *testing.T) {
	setHome(t)

	result := CachedCheck("devel")
	if result.HasUpdate || result.Error != nil {
		t.Errorf("development version should short-circuit: %+v", result)
	}
	if _, err := LoadCache(); err == nil {
		t.Error("development check should not persist a cache entry")
	}
}
