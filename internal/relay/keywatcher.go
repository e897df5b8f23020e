package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"resumatch/internal/config"
	"resumatch/internal/errors"
)

// KeySource reads versioned secrets, typically a config.VaultClient
type KeySource interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
	GetStringSliceSecret(path, key string) ([]string, error)
}

// KeysCallback receives the key list each time the secret version changes
type KeysCallback func(keys []string)

// KeyWatcher polls a Vault secret holding relay API keys and reports new
// versions. Keys are read from the "keys" field.
type KeyWatcher struct {
	mu sync.RWMutex

	source       KeySource
	secretPath   string
	pollInterval time.Duration
	onChange     KeysCallback
	logger       *errors.Logger

	running     bool
	lastVersion int64
	lastError   string
	done        chan struct{}
}

// NewKeyWatcher creates a watcher. The version seen at creation is not
// reported; call Start to begin polling.
func NewKeyWatcher(source KeySource, secretPath string, pollInterval time.Duration, onChange KeysCallback, logger *errors.Logger) *KeyWatcher {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	return &KeyWatcher{
		source:       source,
		secretPath:   secretPath,
		pollInterval: pollInterval,
		onChange:     onChange,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// Start records the current version and polls until ctx is done
func (kw *KeyWatcher) Start(ctx context.Context) error {
	if kw.pollInterval <= 0 {
		return fmt.Errorf("key watcher poll interval must be positive")
	}

	kw.mu.Lock()
	if kw.running {
		kw.mu.Unlock()
		return fmt.Errorf("key watcher is already running")
	}
	kw.running = true
	kw.mu.Unlock()

	if _, err := kw.checkForUpdates(); err != nil {
		kw.logger.Warn("Initial API key version check failed", "secret_path", kw.secretPath, "error", err)
	}

	go kw.pollLoop(ctx)
	kw.logger.Info("API key watcher started", "secret_path", kw.secretPath, "poll_interval", kw.pollInterval)
	return nil
}

// Wait blocks until the polling loop has stopped
func (kw *KeyWatcher) Wait() {
	<-kw.done
}

func (kw *KeyWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(kw.pollInterval)
	defer ticker.Stop()
	defer close(kw.done)
	defer func() {
		kw.mu.Lock()
		kw.running = false
		kw.mu.Unlock()
		kw.logger.Info("API key watcher stopped")
	}()

	for {
		select {
		case <-ticker.C:
			kw.poll()
		case <-ctx.Done():
			return
		}
	}
}

// poll checks the version once and reports new keys
func (kw *KeyWatcher) poll() {
	changed, err := kw.checkForUpdates()
	if err != nil {
		kw.recordError(err)
		kw.logger.LogError(err, "Failed to check Vault for API key updates")
		return
	}
	if !changed {
		return
	}

	keys, err := kw.source.GetStringSliceSecret(kw.secretPath, "keys")
	if err != nil {
		kw.recordError(err)
		kw.logger.LogError(err, "Failed to fetch rotated API keys from Vault")
		return
	}
	kw.recordError(nil)
	kw.logger.Info("Relay API keys rotated", "count", len(keys))
	kw.onChange(keys)
}

// checkForUpdates checks if the Vault secret version has changed
func (kw *KeyWatcher) checkForUpdates() (bool, error) {
	secret, err := kw.source.GetSecretV2(kw.secretPath)
	if err != nil {
		return false, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil {
		return false, fmt.Errorf("secret %s not found", kw.secretPath)
	}

	kw.mu.Lock()
	defer kw.mu.Unlock()
	if secret.Version > kw.lastVersion {
		kw.lastVersion = secret.Version
		return true, nil
	}
	return false, nil
}

func (kw *KeyWatcher) recordError(err error) {
	kw.mu.Lock()
	defer kw.mu.Unlock()
	if err == nil {
		kw.lastError = ""
		return
	}
	kw.lastError = err.Error()
}

// Status returns the current status of the watcher for the stats endpoint
func (kw *KeyWatcher) Status() map[string]any {
	if kw == nil {
		return map[string]any{"running": false}
	}
	kw.mu.RLock()
	defer kw.mu.RUnlock()
	status := map[string]any{
		"running":       kw.running,
		"poll_interval": kw.pollInterval.String(),
		"secret_path":   kw.secretPath,
		"last_version":  kw.lastVersion,
	}
	if kw.lastError != "" {
		status["last_error"] = kw.lastError
	}
	return status
}

// WatchAPIKeys keeps the accepted API keys in sync with a Vault secret
func (s *Server) WatchAPIKeys(ctx context.Context, source KeySource, secretPath string, pollInterval time.Duration) (*KeyWatcher, error) {
	kw := NewKeyWatcher(source, secretPath, pollInterval, func(keys []string) {
		n := s.SetAPIKeys(keys)
		if n == 0 {
			s.Logger.Warn("Vault returned no relay API keys, authentication is now disabled",
				"secret_path", secretPath)
		}
	}, s.Logger)
	if err := kw.Start(ctx); err != nil {
		return nil, err
	}
	s.keyWatcher = kw
	return kw, nil
}
