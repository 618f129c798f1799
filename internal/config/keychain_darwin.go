//go:build darwin

package config

import "fmt"

func keychainGet(service, account string) ([]byte, error) {
	out, err := runCommand("security", "find-generic-password", "-s", service, "-a", account, "-w")
	if notFound(err, 44) {
		return nil, fmt.Errorf("no keychain item %s/%s", service, account)
	}
	return []byte(out), err
}

// keychainSet adds or updates (-U) the item.
func keychainSet(service, account, value string) error {
	_, err := runCommand("security", "add-generic-password", "-U", "-s", service, "-a", account, "-w", value)
	return err
}
