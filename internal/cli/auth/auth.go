package auth

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	service = "subgate-cli"
)

// ErrNoToken is returned when no token is stored for the server
var ErrNoToken = errors.New("no stored token")

// keyFor returns a unique keyring key per server so one machine can hold
// sessions against several Subgate deployments
func keyFor(serverURL string) string {
	return fmt.Sprintf("token-%s", serverURL)
}

// SaveToken persists the bearer token securely in the OS keychain/credential manager
func SaveToken(serverURL, token string) error {
	if err := keyring.Set(service, keyFor(serverURL), token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken retrieves the bearer token from the OS keychain/credential manager
func LoadToken(serverURL string) (string, error) {
	token, err := keyring.Get(service, keyFor(serverURL))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// DeleteToken removes the bearer token from the OS keychain/credential manager
func DeleteToken(serverURL string) error {
	if err := keyring.Delete(service, keyFor(serverURL)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
