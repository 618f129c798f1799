//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// xdgPath resolves name under $env/anchor, falling back to home-relative
// defaults ("~/.config", "~/.local/share") and finally the working directory.
func xdgPath(env, homeRel string, name ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		dir = "."
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, homeRel)
		}
	}
	return filepath.Join(append([]string{dir, "anchor"}, name...)...)
}

func defaultDataDir() string { return xdgPath("XDG_DATA_HOME", ".local/share") }
func configFilePath() string { return xdgPath("XDG_CONFIG_HOME", ".config", "config.json") }

func secretLocation(account string) string {
	return fmt.Sprintf("stored in %s under %s.%s", secretsFilePath(), keychainService, account)
}

// writeJSONFile replaces path with v, writing through a temp file so a crash
// never leaves a half-written config or secrets file behind.
func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// readJSONFile decodes path into v. A missing file is not an error.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// fileBackend keeps settings as one flat JSON object under
// $XDG_CONFIG_HOME/anchor/config.json.
type fileBackend struct {
	path   string
	values map[string]any
}

func newPlatformBackend() ConfigBackend {
	b := &fileBackend{path: configFilePath()}
	if err := readJSONFile(b.path, &b.values); err != nil {
		slog.Warn("ignoring unreadable config file", "path", b.path, "error", err)
		b.values = nil
	}
	if b.values == nil {
		b.values = make(map[string]any)
	}
	return b
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return "", false, nil
	}
	if s, isString := v.(string); isString {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.values[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n < math.MinInt || n > math.MaxInt {
			return 0, true, fmt.Errorf("%s: %v is not an integer", key, n)
		}
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		return i, true, nil
	}
	return 0, true, fmt.Errorf("%s: unexpected %T", key, v)
}

func (b *fileBackend) SetString(key, val string) error { return b.set(key, val) }
func (b *fileBackend) SetInt(key string, val int) error { return b.set(key, val) }

func (b *fileBackend) Delete(key string) error {
	delete(b.values, key)
	return writeJSONFile(b.path, b.values)
}

func (b *fileBackend) set(key string, val any) error {
	b.values[key] = val
	return writeJSONFile(b.path, b.values)
}
