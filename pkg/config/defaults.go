package config

import (
	"os"
	"path/filepath"
)

// defaultRoot returns the default proposal root directory.
//
// Returns the current working directory, or "." if it cannot be determined.
func defaultRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// defaultFileTypes returns the file types served out of the box.
func defaultFileTypes() map[string]string {
	return map[string]string{
		"context": "context.py",
		"log":     "log.txt",
	}
}

// defaultDBPath returns the default history database file path.
//
// Returns: ~/.config/filewatch/history.db.
func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./history.db"
	}

	return filepath.Join(homeDir, ".config", "filewatch", "history.db")
}

// DefaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/filewatch/config.yaml.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}

	return filepath.Join(homeDir, ".config", "filewatch", "config.yaml")
}
