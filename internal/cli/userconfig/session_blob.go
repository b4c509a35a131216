package userconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/subgate-dev/subgate/internal/cli/client"
)

const sessionFileName = "session.json"

// SessionBlob is the persisted slice of the session. The struct is the
// allow-list: transient flags never appear here, so they can never leak
// into durable storage.
type SessionBlob struct {
	Token           string       `json:"token"`
	User            *client.User `json:"user,omitempty"`
	RunMode         string       `json:"run_mode"`
	IsAuthenticated bool         `json:"is_authenticated"`
	IsAdmin         bool         `json:"is_admin"`
}

// SessionStore persists the session blob across CLI invocations.
// Implemented on disk by FileSessionStore; tests swap in memory.
type SessionStore interface {
	LoadSession() (*SessionBlob, error)
	SaveSession(blob *SessionBlob) error
	ClearSession() error
}

// FileSessionStore keeps the session blob next to the user config
type FileSessionStore struct {
	// Dir overrides the storage directory; empty means ~/.config/subgate
	Dir string
}

func (f *FileSessionStore) path() (string, error) {
	if f.Dir != "" {
		return filepath.Join(f.Dir, sessionFileName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", configDirName, sessionFileName), nil
}

// LoadSession reads the persisted session. A missing file yields nil, nil.
func (f *FileSessionStore) LoadSession() (*SessionBlob, error) {
	path, err := f.path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var blob SessionBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &blob, nil
}

// SaveSession writes the persisted session with user-only permissions
func (f *FileSessionStore) SaveSession(blob *SessionBlob) error {
	path, err := f.path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// ClearSession removes the persisted session. Removing a session that
// does not exist is not an error.
func (f *FileSessionStore) ClearSession() error {
	path, err := f.path()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
