package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings holds the persisted application configuration. Every field has a
// default so a partially written settings file still loads cleanly.
type Settings struct {
	QuarantineDir   string `json:"quarantine_dir"`
	DatabasePath    string `json:"database_path"`
	SignatureDBPath string `json:"signature_db_path"`
}

// DefaultDir returns the directory settings and data files live in:
// ~/.local/share/infrared (or the working directory if HOME is unknown).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "infrared")
}

// Default returns a Settings with every field populated.
func Default() Settings {
	dir := DefaultDir()
	return Settings{
		QuarantineDir:   filepath.Join(dir, "quarantine"),
		DatabasePath:    filepath.Join(dir, "infrared.db"),
		SignatureDBPath: filepath.Join(dir, "signatures.json"),
	}
}

// Load reads settings from path. A missing or unreadable file yields the
// defaults; fields absent from the file are filled from defaults. Load never
// returns an error for bad content, only the defaults.
func Load(path string) Settings {
	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return settings
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return Default()
	}

	defaults := Default()
	if settings.QuarantineDir == "" {
		settings.QuarantineDir = defaults.QuarantineDir
	}
	if settings.DatabasePath == "" {
		settings.DatabasePath = defaults.DatabasePath
	}
	if settings.SignatureDBPath == "" {
		settings.SignatureDBPath = defaults.SignatureDBPath
	}
	return settings
}

// Save writes settings to path, creating parent directories as needed.
func Save(path string, settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
