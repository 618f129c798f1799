//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend_RoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	b := newPlatformBackend()
	if err := b.SetString("log.level", "debug"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := b.SetInt("server.port", 4200); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	// A fresh backend reads the saved file.
	b = newPlatformBackend()
	if v, ok, err := b.GetString("log.level"); err != nil || !ok || v != "debug" {
		t.Errorf("GetString = %q, %v, %v", v, ok, err)
	}
	if v, ok, err := b.GetInt("server.port"); err != nil || !ok || v != 4200 {
		t.Errorf("GetInt = %d, %v, %v", v, ok, err)
	}

	if err := b.Delete("log.level"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := b.GetString("log.level"); ok {
		t.Error("key still present after Delete")
	}
}

func TestFileBackend_CorruptFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "anchor", "config.json")
	os.MkdirAll(filepath.Dir(path), 0o700)
	os.WriteFile(path, []byte("{not json"), 0o600)

	b := newPlatformBackend()
	if _, ok, err := b.GetString("log.level"); ok || err != nil {
		t.Errorf("GetString on corrupt file = %v, %v", ok, err)
	}
}

func TestSecretsFile_RoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if err := SetSecret("completion.gemini_api_key", "g-123"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	got, err := keychainReader{}.Get(keychainService, "gemini_api_key")
	if err != nil || got != "g-123" {
		t.Errorf("Get = %q, %v", got, err)
	}
	if err := SetSecret("server.port", "1"); err == nil {
		t.Error("SetSecret on non-secret key succeeded")
	}
}

func TestWriteJSONFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anchor", "config.json")

	for i := 0; i < 3; i++ {
		if err := writeJSONFile(path, map[string]int{"n": i}); err != nil {
			t.Fatalf("writeJSONFile: %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir = %v, want only config.json", names)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	var got map[string]int
	if err := readJSONFile(path, &got); err != nil || got["n"] != 2 {
		t.Errorf("readJSONFile = %v, %v", got, err)
	}
}

func TestReadJSONFile_Missing(t *testing.T) {
	var v map[string]any
	if err := readJSONFile(filepath.Join(t.TempDir(), "nope.json"), &v); err != nil {
		t.Errorf("readJSONFile on missing file: %v", err)
	}
}
