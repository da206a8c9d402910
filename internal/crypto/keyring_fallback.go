//go:build !darwin

package crypto

import (
	"errors"
	"fmt"
	"os"
)

type fallbackKeyring struct{}

func newPlatformKeyring() Keyring {
	return &fallbackKeyring{}
}

// Get reads the secret's CASETIME_* environment variable
func (k *fallbackKeyring) Get(secret Secret) (string, error) {
	value := os.Getenv(secret.EnvVar())
	if value == "" {
		return "", fmt.Errorf("%s environment variable not set: %w", secret.EnvVar(), ErrSecretNotFound)
	}

	return value, nil
}

// Set returns an error suggesting to set the environment variable
func (k *fallbackKeyring) Set(secret Secret, value string) error {
	if value == "" {
		return errors.New("secret value cannot be empty")
	}

	return fmt.Errorf("keyring not available on this platform: please export %s", secret.EnvVar())
}

// Delete returns an error suggesting to unset the environment variable
func (k *fallbackKeyring) Delete(secret Secret) error {
	return fmt.Errorf("keyring not available on this platform: please unset %s manually", secret.EnvVar())
}

// IsAvailable is false: secrets only come from the environment here
func (k *fallbackKeyring) IsAvailable() bool {
	return false
}
