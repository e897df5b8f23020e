package session

import (
	"errors"
	"time"

	"resumatch/internal/config"
	resumatchErrors "resumatch/internal/errors"
)

// secretBackend is the part of the Vault client the store needs
type secretBackend interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
	PutSecretV2(path string, data map[string]any) error
	DeleteSecretV2(path string) error
}

// VaultStore keeps the session in a Vault KV v2 secret under data.token
type VaultStore struct {
	backend secretBackend
	path    string
	logger  *resumatchErrors.Logger
}

// NewVaultStore creates a store backed by the secret at path
func NewVaultStore(backend secretBackend, path string, logger *resumatchErrors.Logger) *VaultStore {
	if logger == nil {
		logger = resumatchErrors.NewNopLogger()
	}
	return &VaultStore{backend: backend, path: path, logger: logger}
}

// Load returns the stored session
func (v *VaultStore) Load() (*Session, error) {
	secret, err := v.backend.GetSecretV2(v.path)
	if err != nil {
		if errors.Is(err, config.ErrSecretNotFound) {
			return nil, ErrNoSession
		}
		return nil, resumatchErrors.NewIOError(resumatchErrors.ErrCodeFileNotReadable,
			"failed to read session from vault", err).WithContext("path", v.path)
	}

	s := &Session{}
	s.Token, _ = secret.Data["token"].(string)
	s.Email, _ = secret.Data["email"].(string)
	if raw, ok := secret.Data["saved_at"].(string); ok {
		s.SavedAt, _ = time.Parse(time.RFC3339, raw)
	}
	if s.Token == "" {
		return nil, ErrNoSession
	}
	return s, nil
}

func (v *VaultStore) Token() (string, error) {
	s, err := v.Load()
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

func (v *VaultStore) SetToken(token string) error {
	return v.Save(Session{Token: token, SavedAt: time.Now().UTC()})
}

// Save writes s as a new secret version
func (v *VaultStore) Save(s Session) error {
	data := map[string]any{
		"token":    s.Token,
		"saved_at": s.SavedAt.UTC().Format(time.RFC3339),
	}
	if s.Email != "" {
		data["email"] = s.Email
	}

	if err := v.backend.PutSecretV2(v.path, data); err != nil {
		return resumatchErrors.NewIOError(resumatchErrors.ErrCodeFileNotReadable,
			"failed to write session to vault", err).WithContext("path", v.path)
	}
	v.logger.Debug("Session saved to vault", "path", v.path)
	return nil
}

func (v *VaultStore) ClearToken() error {
	if err := v.backend.DeleteSecretV2(v.path); err != nil {
		return resumatchErrors.NewIOError(resumatchErrors.ErrCodeFileNotReadable,
			"failed to delete session from vault", err).WithContext("path", v.path)
	}
	v.logger.Debug("Session removed from vault", "path", v.path)
	return nil
}
