package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "pmsync"

// JiraTokenKey is the keyring entry holding the Jira API token.
const JiraTokenKey = "jira-token"

// TokenEnv overrides the keyring when set.
const TokenEnv = "PMSYNC_JIRA_TOKEN"

// ErrNoToken is returned when neither the environment nor the keyring
// holds a token.
var ErrNoToken = errors.New("no jira token configured; run `pmsync auth login` or set " + TokenEnv)

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	fileDir := "~/.config/pmsync/credentials"
	if home, err := os.UserHomeDir(); err == nil {
		fileDir = filepath.Join(home, ".config", "pmsync", "credentials")
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("pmsync-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "pmsync " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// JiraToken resolves the Jira token, preferring the environment over the
// keyring.
func JiraToken() (string, error) {
	return resolveToken(os.Getenv, Get)
}

func resolveToken(getenv func(string) string, get func(string) (string, error)) (string, error) {
	if tok := strings.TrimSpace(getenv(TokenEnv)); tok != "" {
		return tok, nil
	}
	tok, err := get(JiraTokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNoToken
		}
		return "", err
	}
	if strings.TrimSpace(tok) == "" {
		return "", ErrNoToken
	}
	return tok, nil
}
