package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const keyringService = "skytap"

// resolveSecrets reads the password from the environment, then the keyring
// when useKeyring is set and password_keyring is enabled.
func resolveSecrets(cfg *Config, useKeyring bool) {
	b := &cfg.Bluesky
	if v := os.Getenv(b.PasswordEnv); v != "" {
		b.Password, b.PasswordSource = v, "env"
	} else if useKeyring && b.PasswordKeyring {
		if v, err := PasswordFromKeyring(b.Identity); err == nil && v != "" {
			b.Password, b.PasswordSource = v, "keyring"
		}
	}

	cfg.Storage.DSN = os.Getenv(cfg.Storage.DSNEnv)
}

// PasswordFromKeyring returns the app password stored for identity.
func PasswordFromKeyring(identity string) (string, error) {
	secret, err := keyring.Get(keyringService, identity)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("no password stored for %s", identity)
	}
	if err != nil {
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return secret, nil
}

// SavePasswordToKeyring stores password for identity in the OS keyring.
func SavePasswordToKeyring(identity, password string) error {
	if identity == "" || password == "" {
		return errors.New("identity and password are required")
	}
	if err := keyring.Set(keyringService, identity, password); err != nil {
		return fmt.Errorf("save password to keyring: %w", err)
	}
	return nil
}

// DeletePasswordFromKeyring removes the stored password, if any.
func DeletePasswordFromKeyring(identity string) error {
	err := keyring.Delete(keyringService, identity)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete password from keyring: %w", err)
	}
	return nil
}
