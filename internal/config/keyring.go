package config

import (
	"errors"
	"os/user"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name API keys are stored under.
const KeyringService = "dualsub"

// SystemUser returns the login name used as the keyring account.
func SystemUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "default"
}

// LoadAPIKey reads the stored API key. A missing entry is not an error.
func LoadAPIKey(account string) (string, error) {
	key, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(key), nil
}

// SaveAPIKey stores the API key for account.
func SaveAPIKey(account, key string) error {
	return keyring.Set(KeyringService, account, strings.TrimSpace(key))
}
