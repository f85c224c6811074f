package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	osWindows = "windows"
	osDarwin  = "darwin"
)

// GetLogDir returns the standard application log directory for the current OS.
func GetLogDir() (string, error) {
	switch runtime.GOOS {
	case osWindows:
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return getDefaultLogDir()
			}
			localAppData = filepath.Join(userProfile, "AppData", "Local")
		}
		return filepath.Join(localAppData, "clashflux", "logs"), nil
	case osDarwin:
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return getDefaultLogDir()
		}
		return filepath.Join(homeDir, "Library", "Logs", "clashflux"), nil
	default:
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return getDefaultLogDir()
		}
		stateDir := os.Getenv("XDG_STATE_HOME")
		if stateDir == "" {
			stateDir = filepath.Join(homeDir, ".local", "state")
		}
		return filepath.Join(stateDir, "clashflux", "logs"), nil
	}
}

func getDefaultLogDir() (string, error) {
	return filepath.Join(os.TempDir(), "clashflux", "logs"), nil
}

// GetLogFilePathWithDir resolves the full log file path, creating the
// directory if needed. An empty dir selects the OS standard location.
func GetLogFilePathWithDir(dir, filename string) (string, error) {
	var err error
	if dir == "" {
		dir, err = GetLogDir()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return filepath.Join(dir, filename), nil
}
