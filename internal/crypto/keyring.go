package crypto

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Secret names one credential kept outside the config file
type Secret string

const (
	// SecretAPIToken is the bearer token for the practice-management API
	SecretAPIToken Secret = "api-token"
	// SecretCacheKey encrypts the local reference-data cache
	SecretCacheKey Secret = "cache-key"
)

// ServiceName is the keychain service all secrets are filed under
const ServiceName = "casetime"

// ErrSecretNotFound is returned when neither the environment nor the keyring holds a secret
var ErrSecretNotFound = errors.New("secret not found")

// Keyring provides secure secret storage abstraction
type Keyring interface {
	Get(secret Secret) (string, error)
	Set(secret Secret, value string) error
	Delete(secret Secret) error
	IsAvailable() bool
}

// NewKeyring returns the best available keyring implementation
func NewKeyring() Keyring {
	return newPlatformKeyring()
}

// EnvVar returns the environment variable that overrides secret,
// e.g. CASETIME_API_TOKEN
func (s Secret) EnvVar() string {
	return "CASETIME_" + strings.ToUpper(strings.ReplaceAll(string(s), "-", "_"))
}

// Lookup returns secret from its environment variable if set, otherwise from k
func Lookup(k Keyring, secret Secret) (string, error) {
	if v := os.Getenv(secret.EnvVar()); v != "" {
		return v, nil
	}
	if k == nil {
		return "", fmt.Errorf("%s: %w", secret, ErrSecretNotFound)
	}
	return k.Get(secret)
}
