//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "anchor-data"
	}
	return filepath.Join(home, "Library", "Application Support", "anchor")
}

func secretLocation(account string) string {
	return fmt.Sprintf("macOS Keychain service %q, account %q", keychainService, account)
}

// runCommand executes a system tool and returns its trimmed stdout.
// Replaced in tests.
var runCommand = func(name string, args ...string) (string, error) {
	var stderr strings.Builder
	cmd := exec.Command(name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", &commandError{tool: name, err: err, stderr: strings.TrimSpace(stderr.String())}
	}
	return strings.TrimSpace(string(out)), nil
}

type commandError struct {
	tool   string
	err    error
	stderr string
}

func (e *commandError) Error() string {
	if e.stderr == "" {
		return fmt.Sprintf("%s: %v", e.tool, e.err)
	}
	return fmt.Sprintf("%s: %v: %s", e.tool, e.err, e.stderr)
}

func (e *commandError) Unwrap() error { return e.err }

// notFound reports whether err is the exit status `defaults` and `security`
// use for a missing key or item.
func notFound(err error, code int) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == code
}

// defaultsBackend stores settings in the user defaults domain through the
// `defaults` tool, so they can also be edited with `defaults write`.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &defaultsBackend{domain: defaultsDomain}
}

func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	out, err := runCommand("defaults", "read", b.domain, key)
	switch {
	case notFound(err, 1):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return out, true, nil
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	return b.write(key, "-string", val)
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	return b.write(key, "-int", strconv.Itoa(val))
}

func (b *defaultsBackend) Delete(key string) error {
	_, err := runCommand("defaults", "delete", b.domain, key)
	if notFound(err, 1) {
		return nil
	}
	return err
}

func (b *defaultsBackend) write(key, typeFlag, val string) error {
	if _, err := runCommand("defaults", "write", b.domain, key, typeFlag, val); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
