package reset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// loadKVFile reads a flat JSON string map. A missing or corrupted file
// reads as empty; teardown must not trip over half-written state.
func loadKVFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	kv := make(map[string]string)
	if err := json.Unmarshal(data, &kv); err != nil {
		return nil, nil
	}
	return kv, nil
}

// writeKVFile replaces the file atomically via temp file and rename.
func writeKVFile(path string, kv map[string]string) error {
	data, err := json.MarshalIndent(kv, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal kv: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp kv file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp kv file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp kv file: %w", err)
	}
	return os.Rename(tmpName, path)
}
