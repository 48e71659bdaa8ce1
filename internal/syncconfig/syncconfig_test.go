package syncconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points the package at a temp config dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TBD_CONFIG_DIR", dir)
	return dir
}

func TestConfigRoundTrip(t *testing.T) {
	dir := isolate(t)

	ceiling := int64(1024)
	cfg := &Config{
		Workspace: "ws-1",
		Sync:      SyncConfig{URL: "https://sync.example.com"},
		Quota:     QuotaConfig{CeilingBytes: &ceiling},
	}
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded.Workspace != "ws-1" || loaded.Sync.URL != "https://sync.example.com" {
		t.Errorf("loaded: %+v", loaded)
	}
	if loaded.Quota.CeilingBytes == nil || *loaded.Quota.CeilingBytes != 1024 {
		t.Errorf("quota ceiling: %v", loaded.Quota.CeilingBytes)
	}

	// No stray temp files left behind by the atomic write
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	isolate(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load missing config: %v", err)
	}
	if cfg.Workspace != "" {
		t.Errorf("missing config should be empty, got %+v", cfg)
	}
}

func TestAuthRoundTripAndPermissions(t *testing.T) {
	isolate(t)

	if err := SaveAuth(&AuthCredentials{
		APIKey:   "tbk_secret",
		DeviceID: "dev-1",
	}); err != nil {
		t.Fatalf("save auth: %v", err)
	}

	creds, err := LoadAuth()
	if err != nil {
		t.Fatalf("load auth: %v", err)
	}
	if creds == nil || creds.APIKey != "tbk_secret" {
		t.Fatalf("creds: %+v", creds)
	}

	path, _ := AuthPath()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat auth: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("auth.json permissions: got %o, want 0600", perm)
	}

	if err := ClearAuth(); err != nil {
		t.Fatalf("clear auth: %v", err)
	}
	creds, err = LoadAuth()
	if err != nil || creds != nil {
		t.Errorf("after clear: got %+v %v, want nil nil", creds, err)
	}
	// Clearing twice is fine
	if err := ClearAuth(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}

func TestServerURLPriority(t *testing.T) {
	isolate(t)

	if got := GetServerURL(); got != defaultServerURL {
		t.Errorf("default url: got %q", got)
	}

	SaveConfig(&Config{Sync: SyncConfig{URL: "https://from-config"}})
	if got := GetServerURL(); got != "https://from-config" {
		t.Errorf("config url: got %q", got)
	}

	SaveAuth(&AuthCredentials{APIKey: "k", ServerURL: "https://from-auth"})
	if got := GetServerURL(); got != "https://from-auth" {
		t.Errorf("auth url should win over config: got %q", got)
	}

	t.Setenv("TBD_SYNC_URL", "https://from-env")
	if got := GetServerURL(); got != "https://from-env" {
		t.Errorf("env url should win: got %q", got)
	}
}

func TestAPIKeyPriority(t *testing.T) {
	isolate(t)

	if GetAPIKey() != "" || IsAuthenticated() {
		t.Error("fresh dir should be unauthenticated")
	}
	SaveAuth(&AuthCredentials{APIKey: "from-file"})
	if got := GetAPIKey(); got != "from-file" {
		t.Errorf("file key: got %q", got)
	}
	t.Setenv("TBD_AUTH_KEY", "from-env")
	if got := GetAPIKey(); got != "from-env" {
		t.Errorf("env key should win: got %q", got)
	}
}

func TestQuotaCeiling(t *testing.T) {
	isolate(t)

	if got := GetQuotaCeiling(); got != defaultQuotaCeiling {
		t.Errorf("default ceiling: got %d", got)
	}

	ceiling := int64(0) // zero = unlimited, still a valid configured value
	SaveConfig(&Config{Quota: QuotaConfig{CeilingBytes: &ceiling}})
	if got := GetQuotaCeiling(); got != 0 {
		t.Errorf("configured zero ceiling: got %d", got)
	}

	t.Setenv("TBD_QUOTA_CEILING", "2048")
	if got := GetQuotaCeiling(); got != 2048 {
		t.Errorf("env ceiling: got %d", got)
	}

	t.Setenv("TBD_QUOTA_CEILING", "not-a-number")
	if got := GetQuotaCeiling(); got != 0 {
		t.Errorf("invalid env should fall through to config: got %d", got)
	}
}

func TestDeviceIDStableOnceSaved(t *testing.T) {
	isolate(t)

	id, err := GetDeviceID()
	if err != nil {
		t.Fatalf("device id: %v", err)
	}
	if len(id) != 32 {
		t.Errorf("device id shape: %q", id)
	}

	SaveAuth(&AuthCredentials{APIKey: "k", DeviceID: id})
	again, err := GetDeviceID()
	if err != nil {
		t.Fatalf("device id again: %v", err)
	}
	if again != id {
		t.Errorf("device id changed: %q then %q", id, again)
	}
}

func TestAutoSyncSettings(t *testing.T) {
	isolate(t)

	if !GetAutoSyncEnabled() || !GetAutoSyncOnStart() {
		t.Error("auto-sync should default on")
	}
	if got := GetAutoSyncDebounce(); got != 3*time.Second {
		t.Errorf("default debounce: %v", got)
	}
	if got := GetAutoSyncInterval(); got != 5*time.Minute {
		t.Errorf("default interval: %v", got)
	}

	off := false
	SaveConfig(&Config{Sync: SyncConfig{Auto: AutoSyncConfig{
		Enabled:  &off,
		Debounce: "10s",
		Interval: "1m",
	}}})
	if GetAutoSyncEnabled() {
		t.Error("config should disable auto-sync")
	}
	if got := GetAutoSyncDebounce(); got != 10*time.Second {
		t.Errorf("config debounce: %v", got)
	}
	if got := GetAutoSyncInterval(); got != time.Minute {
		t.Errorf("config interval: %v", got)
	}

	t.Setenv("TBD_SYNC_AUTO", "true")
	if !GetAutoSyncEnabled() {
		t.Error("env should win over config")
	}
}

func TestCorruptConfigIsAnError(t *testing.T) {
	dir := isolate(t)
	os.WriteFile(filepath.Join(dir, "config.json"), []byte("{broken"), 0644)
	if _, err := LoadConfig(); err == nil {
		t.Error("corrupt config.json should error, not silently reset")
	}
}

func TestResetPlanePaths(t *testing.T) {
	dir := isolate(t)

	for name, fn := range map[string]func() (string, error){
		"auth.json":    AuthPath,
		"state.json":   StatePath,
		"sessions":     SessionDir,
		"cookies.json": CookieJarPath,
	} {
		path, err := fn()
		if err != nil {
			t.Fatalf("%s path: %v", name, err)
		}
		if path != filepath.Join(dir, name) {
			t.Errorf("%s path: got %q", name, path)
		}
	}
}

func TestConfigFileIsValidJSON(t *testing.T) {
	dir := isolate(t)
	SaveConfig(&Config{Workspace: "ws-1"})

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("config.json not valid JSON: %v", err)
	}
}
