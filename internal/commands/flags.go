package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/campuslink/realtime/internal/config"
)

type Flags struct {
	LogLevel   string
	ConfigPath string
	UserID     string
	Token      string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// Logger is built from LogLevel in the Before hook
	Logger *slog.Logger
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "campuslink", "config.yaml")
}

// resolveConfigPath returns "" when path is the default and no file exists,
// so a fresh install runs on defaults and environment alone.
func resolveConfigPath(path string) string {
	if path != DefaultConfigPath() {
		return path
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
