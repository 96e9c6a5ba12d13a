package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// LocalStoreKey is the well-known key the Local Store blob is saved under.
const LocalStoreKey = "langquest.localstore"

// Paths contains commonly used file paths.
type Paths struct {
	Database     string // Main SQLite database
	Attachments  string // Local backing files for attachments
	Backups      string // Migration backups (migration_backups/)
	LocalStore   string // Serialized Local Store blob
	Logs         string // Log directory
	RemoteMirror string // Stand-in bucket when no storage URL is configured
}

// GetPaths returns all commonly used paths based on config.
func GetPaths(cfg *Config) Paths {
	return Paths{
		Database:     filepath.Join(cfg.BaseDir, "langquest.db"),
		Attachments:  filepath.Join(cfg.BaseDir, "attachments"),
		Backups:      filepath.Join(cfg.BaseDir, "migration_backups"),
		LocalStore:   filepath.Join(cfg.BaseDir, LocalStoreKey+".json"),
		Logs:         filepath.Join(cfg.BaseDir, "logs"),
		RemoteMirror: filepath.Join(cfg.BaseDir, "remote"),
	}
}

// DefaultBaseDir returns the default base directory
// ($XDG_DATA_HOME/langquest).
func DefaultBaseDir() string {
	if xdg.DataHome == "" {
		return ".langquest"
	}
	return filepath.Join(xdg.DataHome, "langquest")
}
