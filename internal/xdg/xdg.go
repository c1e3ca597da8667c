// Package xdg provides XDG Base Directory paths for the theatre.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "theatre"

func base(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	parts := append([]string{os.Getenv("HOME")}, fallback...)
	return filepath.Join(append(parts, appName)...)
}

// ConfigDir returns the XDG config directory for the theatre.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	return base("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for the theatre.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() string {
	return base("XDG_STATE_HOME", ".local", "state")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ActorsFile returns the default actor catalog path.
func ActorsFile() string {
	return filepath.Join(ConfigDir(), "actors.yaml")
}

// JournalDir returns where peers keep their envelope journals.
func JournalDir() string {
	return filepath.Join(StateDir(), "journal")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
