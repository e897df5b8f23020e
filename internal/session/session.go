// Package session stores the backend access token between invocations.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"resumatch/internal/config"
	resumatchErrors "resumatch/internal/errors"
)

// ErrNoSession is returned when no token is stored
var ErrNoSession = errors.New("not signed in")

// Accessor reads and writes the current access token
type Accessor interface {
	Token() (string, error)
	SetToken(token string) error
	ClearToken() error
}

// Session is the persisted sign-in state
type Session struct {
	Token   string    `json:"token"`
	Email   string    `json:"email,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// Saver is implemented by stores that keep the account email next to the token
type Saver interface {
	Save(s Session) error
}

// Store saves s through acc, keeping the email when the store supports it
func Store(acc Accessor, s Session) error {
	if saver, ok := acc.(Saver); ok {
		if s.SavedAt.IsZero() {
			s.SavedAt = time.Now().UTC()
		}
		return saver.Save(s)
	}
	return acc.SetToken(s.Token)
}

// MemoryStore keeps the token in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store holding token, which may be empty
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Token() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", ErrNoSession
	}
	return m.token, nil
}

func (m *MemoryStore) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) ClearToken() error {
	return m.SetToken("")
}

// New builds the store selected by cfg.Store. vault may be nil unless the
// store is "vault".
func New(cfg config.SessionConfig, vault *config.VaultClient, logger *resumatchErrors.Logger) (Accessor, error) {
	if logger == nil {
		logger = resumatchErrors.NewNopLogger()
	}

	switch cfg.Store {
	case "", "file":
		path := cfg.Path
		if path == "" {
			path = config.DefaultSessionPath()
		}
		logger.Debug("Using file session store", "path", path)
		return NewFileStore(path, logger), nil
	case "memory":
		logger.Debug("Using in-memory session store")
		return NewMemoryStore(""), nil
	case "vault":
		if vault == nil {
			return nil, resumatchErrors.NewConfigError(resumatchErrors.ErrCodeInvalidConfig,
				"vault session store requires an initialized vault client", nil)
		}
		logger.Debug("Using vault session store", "path", cfg.VaultPath)
		return NewVaultStore(vault, cfg.VaultPath, logger), nil
	default:
		return nil, resumatchErrors.NewConfigError(resumatchErrors.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown session store: %s", cfg.Store), nil)
	}
}
