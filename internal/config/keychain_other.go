//go:build !darwin

package config

import "fmt"

// Without a system keychain, secrets live in a 0600 JSON file keyed by
// service then account.
type secretsFile map[string]map[string]string

func secretsFilePath() string { return xdgPath("XDG_DATA_HOME", ".local/share", "secrets.json") }

func keychainGet(service, account string) ([]byte, error) {
	var secrets secretsFile
	if err := readJSONFile(secretsFilePath(), &secrets); err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return nil, fmt.Errorf("no secret %s.%s", service, account)
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	p := secretsFilePath()
	var secrets secretsFile
	if err := readJSONFile(p, &secrets); err != nil {
		return fmt.Errorf("reading secrets file: %w", err)
	}
	if secrets == nil {
		secrets = make(secretsFile)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value
	return writeJSONFile(p, secrets)
}
