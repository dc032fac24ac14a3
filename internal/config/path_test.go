package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != filepath.Join("/custom/data", "logmux") {
		t.Fatalf("DefaultDataDir() = %s", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("expected fallback to ./data, got %s", got)
	}
}

func TestDefaultDataDirIsStableAndAbsolute(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", t.TempDir())
	got := DefaultDataDir()
	if !filepath.IsAbs(got) || filepath.Base(got) != "logmux" {
		t.Fatalf("unexpected data dir %s", got)
	}
	if again := DefaultDataDir(); again != got {
		t.Fatalf("DefaultDataDir not stable: %s vs %s", got, again)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	tests := map[string]string{
		"~":             home,
		"~/logmux/data": filepath.Join(home, "logmux", "data"),
		"/abs/path":     "/abs/path",
		"rel/~/path":    "rel/~/path",
		"~other/x":      "~other/x",
	}
	for in, want := range tests {
		if got := ExpandHome(in); got != want {
			t.Errorf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !isDir(".") || isDir(file) || isDir("/non/existent/path") {
		t.Fatalf("isDir misclassified a path")
	}
}
