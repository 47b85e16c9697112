package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// LogDirectory returns the directory for dmwatch log files.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\WholeTale\dmwatch\logs
//   - Unix: ~/.config/wholetale/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "dmwatch-logs")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "WholeTale", "dmwatch", "logs")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "dmwatch-logs")
		}
		return filepath.Join(homeDir, ".config", "wholetale", "logs")
	}
	return filepath.Join(configDir, "wholetale", "logs")
}

// ResolveLogFile turns a bare file name into a path under LogDirectory and
// creates the parent directory. Empty input disables file logging.
func ResolveLogFile(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	path := name
	if !filepath.IsAbs(name) && filepath.Base(name) == name {
		path = filepath.Join(LogDirectory(), name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", err
	}
	return path, nil
}
