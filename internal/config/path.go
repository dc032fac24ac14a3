package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDir = "logmux"

// DefaultDataDir picks the per-OS data location: $XDG_DATA_HOME/logmux when
// set, /var/lib/logmux for root on Unix, otherwise a directory under the
// user's home. Without a home directory it falls back to ./data.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDir)
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appDir)
		}
		return filepath.Join(home, "AppData", "Local", appDir)
	default:
		if os.Geteuid() == 0 && isDir("/var/lib") {
			return filepath.Join("/var/lib", appDir)
		}
		return filepath.Join(home, ".local", "share", appDir)
	}
}

// ExpandHome resolves a leading "~" in p against the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
