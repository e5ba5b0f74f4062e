package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DefaultStorageDir is the default directory, relative to the home directory,
// holding the credential document.
const DefaultStorageDir = ".config/poeadmin"

// FileName is the name of the credential document inside the storage directory.
const FileName = "credentials.json"

// Keys of the credential document.
const (
	keyToken     = "oauth_token"
	keyScopedKey = "api_key"
)

// FileStore persists the credential as a small key-value JSON document so it
// survives process restarts.
//
// SECURITY:
//   - the directory is created with 0700 and the document written with 0600
//   - writes go through a temporary file and a rename, so readers never see a
//     partial document
//   - token values are never logged
type FileStore struct {
	mu   sync.Mutex
	dir  string
	path string
}

// NewFileStore creates a file-backed store in dir. An empty dir resolves to
// ~/.config/poeadmin.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultStorageDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	return &FileStore{
		dir:  dir,
		path: filepath.Join(dir, FileName),
	}, nil
}

// Dir returns the directory holding the credential document.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the full path of the credential document.
func (s *FileStore) Path() string {
	return s.path
}

// Put writes the credential, replacing any previous one.
func (s *FileStore) Put(c Credential) error {
	if c.Token == "" {
		return ErrEmptyToken
	}

	doc := map[string]string{keyToken: c.Token}
	if c.ScopedKey != "" {
		doc[keyScopedKey] = c.ScopedKey
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocked(data); err != nil {
		slog.Warn("SECURITY_AUDIT: credential storage failed",
			"event", "credential_store_failed",
			"path", s.path,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	slog.Info("SECURITY_AUDIT: credential stored",
		"event", "credential_stored",
		"path", s.path,
		"has_scoped_key", c.ScopedKey != "",
	)
	return nil
}

// Get reads the credential. A missing, unreadable or token-less document is
// reported as absent.
func (s *FileStore) Get() (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- path is derived from the configured storage directory
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Credential{}, false
	}

	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Debug("Ignoring malformed credential document", "path", s.path, "error", err.Error())
		return Credential{}, false
	}

	token := doc[keyToken]
	if token == "" {
		return Credential{}, false
	}
	return Credential{Token: token, ScopedKey: doc[keyScopedKey]}, true
}

// Clear removes the credential document. Clearing an absent credential is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("SECURITY_AUDIT: credential removal failed",
			"event", "credential_clear_failed",
			"path", s.path,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to remove credential: %w", err)
	}

	if err == nil {
		slog.Info("SECURITY_AUDIT: credential cleared",
			"event", "credential_cleared",
			"path", s.path,
		)
	}
	return nil
}

func (s *FileStore) writeLocked(data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".credentials-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}
