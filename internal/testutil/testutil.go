// Package testutil builds FiveM resource trees on disk for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Manifest is a minimal fxmanifest.lua.
const Manifest = "fx_version 'cerulean'\ngame 'gta5'\n"

// WriteFile writes content to a file, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll(%s) error: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
}

// ReadFile reads content from a file.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	return string(data)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CreateFileTree creates files from a map of slash-separated path to
// content under a new temporary directory and returns the directory.
func CreateFileTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(name)), content)
	}
	return root
}

// Resource writes a resource directory named name under root with a
// manifest and the given scripts, and returns the resource directory.
func Resource(t *testing.T, root, name string, scripts map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(name))
	WriteFile(t, filepath.Join(dir, "fxmanifest.lua"), Manifest)
	for script, content := range scripts {
		WriteFile(t, filepath.Join(dir, filepath.FromSlash(script)), content)
	}
	return dir
}
