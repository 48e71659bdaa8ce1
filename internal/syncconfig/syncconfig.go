// Package syncconfig holds device-level configuration and credentials under
// ~/.config/tbd: config.json for tunables, auth.json (0600) for the API key
// and device identity. Environment variables override the files.
package syncconfig

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AutoSyncConfig holds auto-sync settings.
type AutoSyncConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`  // nil = default true
	OnStart  *bool  `json:"on_start,omitempty"` // nil = default true
	Debounce string `json:"debounce,omitempty"` // duration string, default "3s"
	Interval string `json:"interval,omitempty"` // duration string, default "5m"
}

// SyncConfig holds sync-related settings.
type SyncConfig struct {
	URL  string         `json:"url"`
	Auto AutoSyncConfig `json:"auto"`
}

// QuotaConfig holds the local storage quota settings.
type QuotaConfig struct {
	// CeilingBytes bounds batched persistence; nil = default 50 MiB,
	// zero = unlimited.
	CeilingBytes *int64 `json:"ceiling_bytes,omitempty"`
}

// Config is the device config stored at ~/.config/tbd/config.json.
type Config struct {
	Workspace string      `json:"workspace,omitempty"`
	Sync      SyncConfig  `json:"sync"`
	Quota     QuotaConfig `json:"quota"`
	RedisURL  string      `json:"redis_url,omitempty"`
}

// AuthCredentials stores authentication state at ~/.config/tbd/auth.json.
type AuthCredentials struct {
	APIKey    string `json:"api_key"`
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	ServerURL string `json:"server_url,omitempty"`
	DeviceID  string `json:"device_id"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

const (
	defaultServerURL    = "http://localhost:8080"
	defaultQuotaCeiling = int64(50 << 20)
)

// ConfigDir returns ~/.config/tbd, creating it if necessary. TBD_CONFIG_DIR
// overrides the location.
func ConfigDir() (string, error) {
	if dir := os.Getenv("TBD_CONFIG_DIR"); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create config dir: %w", err)
		}
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "tbd")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// AuthPath returns the credentials file path.
func AuthPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "auth.json"), nil
}

// StatePath returns the flat key-value state file path.
func StatePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.json"), nil
}

// SessionDir returns the session-scoped scratch directory path.
func SessionDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

// CookieJarPath returns the persisted cookie jar path.
func CookieJarPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cookies.json"), nil
}

// LoadConfig reads the device config. A missing file is an empty config.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the device config atomically, holding the config lock
// so concurrent writers cannot interleave.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return withConfigLock(dir, func() error {
		return writeFileAtomic(filepath.Join(dir, "config.json"), data, 0644)
	})
}

// LoadAuth reads the credentials. A missing file returns nil, nil.
func LoadAuth() (*AuthCredentials, error) {
	path, err := AuthPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse auth.json: %w", err)
	}
	return &creds, nil
}

// SaveAuth writes the credentials atomically with 0600 permissions.
func SaveAuth(creds *AuthCredentials) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return withConfigLock(dir, func() error {
		return writeFileAtomic(filepath.Join(dir, "auth.json"), data, 0600)
	})
}

// ClearAuth removes the credentials file.
func ClearAuth() error {
	path, err := AuthPath()
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// GetServerURL returns the remote authority URL.
// Priority: TBD_SYNC_URL env > auth.json > config.json > default.
func GetServerURL() string {
	if v := os.Getenv("TBD_SYNC_URL"); v != "" {
		return v
	}
	if creds, err := LoadAuth(); err == nil && creds != nil && creds.ServerURL != "" {
		return creds.ServerURL
	}
	if cfg, err := LoadConfig(); err == nil && cfg.Sync.URL != "" {
		return cfg.Sync.URL
	}
	return defaultServerURL
}

// GetAPIKey returns the API key.
// Priority: TBD_AUTH_KEY env > auth.json.
func GetAPIKey() string {
	if v := os.Getenv("TBD_AUTH_KEY"); v != "" {
		return v
	}
	if creds, err := LoadAuth(); err == nil && creds != nil {
		return creds.APIKey
	}
	return ""
}

// IsAuthenticated reports whether an API key is available.
func IsAuthenticated() bool {
	return GetAPIKey() != ""
}

// GetWorkspace returns the active workspace id.
// Priority: TBD_WORKSPACE env > config.json.
func GetWorkspace() string {
	if v := os.Getenv("TBD_WORKSPACE"); v != "" {
		return v
	}
	if cfg, err := LoadConfig(); err == nil {
		return cfg.Workspace
	}
	return ""
}

// GetQuotaCeiling returns the local quota ceiling in bytes. Zero disables
// the ceiling. Priority: TBD_QUOTA_CEILING env > config.json > 50 MiB.
func GetQuotaCeiling() int64 {
	if v := os.Getenv("TBD_QUOTA_CEILING"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	if cfg, err := LoadConfig(); err == nil && cfg.Quota.CeilingBytes != nil && *cfg.Quota.CeilingBytes >= 0 {
		return *cfg.Quota.CeilingBytes
	}
	return defaultQuotaCeiling
}

// GetRedisURL returns the ephemeral cache URL, empty when the cache is not
// configured. Priority: TBD_REDIS_URL env > config.json.
func GetRedisURL() string {
	if v := os.Getenv("TBD_REDIS_URL"); v != "" {
		return v
	}
	if cfg, err := LoadConfig(); err == nil {
		return cfg.RedisURL
	}
	return ""
}

// GetDeviceID returns the device id from auth.json, generating one if needed.
func GetDeviceID() (string, error) {
	creds, err := LoadAuth()
	if err != nil {
		return "", err
	}
	if creds != nil && creds.DeviceID != "" {
		return creds.DeviceID, nil
	}
	return GenerateDeviceID()
}

// GenerateDeviceID creates a new random device id (16 bytes hex).
func GenerateDeviceID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func parseBoolEnv(envKey string) *bool {
	v := strings.ToLower(os.Getenv(envKey))
	switch v {
	case "1", "true":
		b := true
		return &b
	case "0", "false":
		b := false
		return &b
	}
	return nil
}

// GetAutoSyncEnabled reports whether auto-sync is on.
// Priority: TBD_SYNC_AUTO env > config.json sync.auto.enabled > true.
func GetAutoSyncEnabled() bool {
	if v := parseBoolEnv("TBD_SYNC_AUTO"); v != nil {
		return *v
	}
	if cfg, err := LoadConfig(); err == nil && cfg.Sync.Auto.Enabled != nil {
		return *cfg.Sync.Auto.Enabled
	}
	return true
}

// GetAutoSyncOnStart reports whether to sync on startup.
// Priority: TBD_SYNC_AUTO_START env > config.json sync.auto.on_start > true.
func GetAutoSyncOnStart() bool {
	if v := parseBoolEnv("TBD_SYNC_AUTO_START"); v != nil {
		return *v
	}
	if cfg, err := LoadConfig(); err == nil && cfg.Sync.Auto.OnStart != nil {
		return *cfg.Sync.Auto.OnStart
	}
	return true
}

// GetAutoSyncDebounce returns the post-mutation sync debounce.
// Priority: TBD_SYNC_AUTO_DEBOUNCE env > config.json > 3s.
func GetAutoSyncDebounce() time.Duration {
	if v := os.Getenv("TBD_SYNC_AUTO_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if cfg, err := LoadConfig(); err == nil && cfg.Sync.Auto.Debounce != "" {
		if d, err := time.ParseDuration(cfg.Sync.Auto.Debounce); err == nil {
			return d
		}
	}
	return 3 * time.Second
}

// GetAutoSyncInterval returns the periodic sync interval.
// Priority: TBD_SYNC_AUTO_INTERVAL env > config.json > 5m.
func GetAutoSyncInterval() time.Duration {
	if v := os.Getenv("TBD_SYNC_AUTO_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if cfg, err := LoadConfig(); err == nil && cfg.Sync.Auto.Interval != "" {
		if d, err := time.ParseDuration(cfg.Sync.Auto.Interval); err == nil {
			return d
		}
	}
	return 5 * time.Minute
}

// writeFileAtomic writes via temp file and rename so readers never observe
// a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}
