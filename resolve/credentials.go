package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

// KeyringService is the service name credentials are stored under.
const KeyringService = "xmlharness"

// CredentialStore supplies basic-auth credentials for remote hosts.
type CredentialStore interface {
	// Credentials returns the user and password for host. ok is false when the
	// store has nothing for host.
	Credentials(host string) (user, password string, ok bool, err error)
}

// KeyringCredentials implements CredentialStore on the OS keyring. Items are keyed
// by host and hold "user:password".
type KeyringCredentials struct {
	ring keyring.Keyring
}

// NewKeyringCredentials opens the OS keyring for the xmlharness service.
func NewKeyringCredentials() (*KeyringCredentials, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: KeyringService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &KeyringCredentials{ring: ring}, nil
}

// NewKeyringCredentialsFrom wraps an already opened keyring.
func NewKeyringCredentialsFrom(ring keyring.Keyring) *KeyringCredentials {
	return &KeyringCredentials{ring: ring}
}

// Credentials retrieves the credentials stored for host.
func (k *KeyringCredentials) Credentials(host string) (string, string, bool, error) {
	item, err := k.ring.Get(host)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("failed to get credentials from keyring: %w", err)
	}
	user, password, found := strings.Cut(string(item.Data), ":")
	if !found {
		return "", "", false, fmt.Errorf("keyring item for %s is not in user:password form", host)
	}
	return user, password, true, nil
}

// Store saves credentials for host.
func (k *KeyringCredentials) Store(host, user, password string) error {
	if strings.Contains(user, ":") {
		return fmt.Errorf("user name must not contain ':'")
	}
	err := k.ring.Set(keyring.Item{
		Key:   host,
		Data:  []byte(user + ":" + password),
		Label: KeyringService + " " + host,
	})
	if err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}
	return nil
}

// Hosts returns every host with stored credentials.
func (k *KeyringCredentials) Hosts() ([]string, error) {
	keys, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from keyring: %w", err)
	}
	return keys, nil
}
