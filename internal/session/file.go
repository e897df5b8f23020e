package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	resumatchErrors "resumatch/internal/errors"
)

// FileStore keeps the session as JSON in a user-only file
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *resumatchErrors.Logger
}

// NewFileStore creates a store at path. The file is created on first save.
func NewFileStore(path string, logger *resumatchErrors.Logger) *FileStore {
	if logger == nil {
		logger = resumatchErrors.NewNopLogger()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the session file location
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the session file
func (f *FileStore) Load() (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, resumatchErrors.NewIOError(resumatchErrors.ErrCodeFileNotReadable,
			"failed to read session file", err).WithContext("path", f.path)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, resumatchErrors.NewIOError(resumatchErrors.ErrCodeInvalidFormat,
			"session file is corrupted, run logout to reset it", err).WithContext("path", f.path)
	}
	if s.Token == "" {
		return nil, ErrNoSession
	}
	return &s, nil
}

func (f *FileStore) Token() (string, error) {
	s, err := f.Load()
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

func (f *FileStore) SetToken(token string) error {
	return f.Save(Session{Token: token, SavedAt: time.Now().UTC()})
}

// Save replaces the session file atomically
func (f *FileStore) Save(s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return resumatchErrors.NewIOError(resumatchErrors.ErrCodeFileNotReadable,
			"failed to create session directory", err).WithContext("path", dir)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return resumatchErrors.NewIOError(resumatchErrors.ErrCodeFileNotReadable,
			"failed to create session file", err).WithContext("path", f.path)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set session file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	f.logger.Debug("Session saved", "path", f.path, "email", s.Email)
	return nil
}

// ClearToken removes the session file. A missing file is not an error.
func (f *FileStore) ClearToken() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return resumatchErrors.NewIOError(resumatchErrors.ErrCodeFileNotReadable,
			"failed to remove session file", err).WithContext("path", f.path)
	}
	f.logger.Debug("Session cleared", "path", f.path)
	return nil
}
