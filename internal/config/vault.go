package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	resumatchErrors "resumatch/internal/errors"

	"github.com/hashicorp/vault/api"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	// PollInterval is how often the relay re-reads rotated API keys, 0 disables it
	PollInterval time.Duration `mapstructure:"pollInterval"`

	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets holds KVv2 API paths (including the "data/" segment)
type VaultSecrets struct {
	// RelayAPIKeys holds a comma-separated list under the "keys" field
	RelayAPIKeys string `mapstructure:"relayAPIKeys"`
	// GeminiKey holds the analyzer key under the "api_key" field
	GeminiKey string `mapstructure:"geminiKey"`
}

// ErrSecretNotFound is returned when a secret path or a key within it does not exist
var ErrSecretNotFound = errors.New("secret not found")

// VaultSecret is one version of a KVv2 secret
type VaultSecret struct {
	Data    map[string]any
	Version int64
}

// VaultClient reads and writes KVv2 secrets
type VaultClient struct {
	client *api.Client
	logger *resumatchErrors.Logger
}

// NewVaultClient connects to Vault. It returns nil, nil when Vault is disabled.
func NewVaultClient(cfg VaultConfig, logger *resumatchErrors.Logger) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = resumatchErrors.NewNopLogger()
	}

	token, err := vaultToken(cfg)
	if err != nil {
		return nil, err
	}

	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		logger.LogError(err, "Failed to connect to Vault", "address", apiCfg.Address)
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}
	logger.Info("Connected to Vault",
		"address", apiCfg.Address,
		"namespace", cfg.Namespace,
		"version", health.Version,
		"sealed", health.Sealed)

	return &VaultClient{client: client, logger: logger}, nil
}

// vaultToken returns the configured token, falling back to the token file
func vaultToken(cfg VaultConfig) (string, error) {
	token := cfg.Token
	if token == "" && cfg.TokenFile != "" {
		raw, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return "", fmt.Errorf("vault token is required when vault is enabled")
	}
	return token, nil
}

// GetSecretV2 reads the latest version of a KVv2 secret
func (vc *VaultClient) GetSecretV2(path string) (*VaultSecret, error) {
	if vc == nil {
		return nil, fmt.Errorf("vault client not initialized")
	}

	raw, err := vc.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if raw == nil || raw.Data == nil {
		return nil, fmt.Errorf("%w at path: %s", ErrSecretNotFound, path)
	}
	return decodeKV2(path, raw)
}

// decodeKV2 unpacks the data and metadata.version fields of a KVv2 read
func decodeKV2(path string, raw *api.Secret) (*VaultSecret, error) {
	data, ok := raw.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	metadata, ok := raw.Data["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'metadata' field)", path)
	}
	versionRaw, ok := metadata["version"]
	if !ok {
		return nil, fmt.Errorf("secret metadata at %s is missing 'version' field", path)
	}
	version, err := kv2Version(versionRaw)
	if err != nil {
		return nil, fmt.Errorf("could not parse secret version at %s: %w", path, err)
	}
	return &VaultSecret{Data: data, Version: version}, nil
}

func kv2Version(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}

// GetStringSecret reads one string field of a secret
func (vc *VaultClient) GetStringSecret(path, key string) (string, error) {
	secret, err := vc.GetSecretV2(path)
	if err != nil {
		return "", err
	}
	value, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("%w: key '%s' in secret %s", ErrSecretNotFound, key, path)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key '%s' is not a string in secret %s", key, path)
	}
	vc.logger.Debug("Secret read from Vault", "path", path, "key", key, "value", maskSecret(s))
	return s, nil
}

// GetStringSliceSecret reads a comma-separated field as a list
func (vc *VaultClient) GetStringSliceSecret(path, key string) ([]string, error) {
	value, err := vc.GetStringSecret(path, key)
	if err != nil {
		return nil, err
	}
	return splitList(value), nil
}

// PutSecretV2 writes data as a new version of a KVv2 secret
func (vc *VaultClient) PutSecretV2(path string, data map[string]any) error {
	if vc == nil {
		return fmt.Errorf("vault client not initialized")
	}
	if _, err := vc.client.Logical().Write(path, map[string]any{"data": data}); err != nil {
		return fmt.Errorf("failed to write secret to %s: %w", path, err)
	}
	vc.logger.Debug("Secret written to Vault", "path", path, "fields", len(data))
	return nil
}

// DeleteSecretV2 deletes the latest version of a KVv2 secret
func (vc *VaultClient) DeleteSecretV2(path string) error {
	if vc == nil {
		return fmt.Errorf("vault client not initialized")
	}
	if _, err := vc.client.Logical().Delete(path); err != nil {
		return fmt.Errorf("failed to delete secret at %s: %w", path, err)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func maskSecret(s string) string {
	switch {
	case len(s) > 8:
		return s[:4] + "****" + s[len(s)-4:]
	case s != "":
		return "****"
	default:
		return ""
	}
}

// secretBinding maps one Vault field onto a config value
type secretBinding struct {
	name  string
	path  string
	field string
	apply func(value string) bool
}

func (c *Config) vaultBindings() []secretBinding {
	return []secretBinding{
		{
			name:  "relay API keys",
			path:  c.Vault.Secrets.RelayAPIKeys,
			field: "keys",
			apply: func(value string) bool {
				keys := splitList(value)
				if len(keys) == 0 {
					return false
				}
				c.Relay.APIKeys = keys
				return true
			},
		},
		{
			name:  "Gemini API key",
			path:  c.Vault.Secrets.GeminiKey,
			field: "api_key",
			apply: func(value string) bool {
				if value == "" {
					return false
				}
				c.Analyzer.APIKey = value
				return true
			},
		},
	}
}

// ApplyVaultSecrets overrides config values with secrets from Vault. The
// client is returned for later use (session storage, key rotation) and is nil
// when Vault is disabled.
func ApplyVaultSecrets(cfg *Config, logger *resumatchErrors.Logger) (*VaultClient, error) {
	if !cfg.Vault.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = resumatchErrors.NewNopLogger()
	}

	client, err := NewVaultClient(cfg.Vault, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault client: %w", err)
	}

	for _, b := range cfg.vaultBindings() {
		if b.path == "" {
			continue
		}
		value, err := client.GetStringSecret(b.path, b.field)
		if err != nil {
			logger.LogError(err, "Failed to load secret from Vault", "secret", b.name, "path", b.path)
			return nil, fmt.Errorf("failed to load %s from vault: %w", b.name, err)
		}
		if !b.apply(value) {
			logger.Warn("Empty secret in Vault, keeping configured value", "secret", b.name, "path", b.path)
			continue
		}
		logger.Info("Secret loaded from Vault", "secret", b.name)
	}
	return client, nil
}
