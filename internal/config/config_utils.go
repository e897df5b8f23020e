package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// applyFallbacks applies environment variable fallbacks
func (c *Config) applyFallbacks() {
	c.applyRelayAPIKeyFallbacks()
	c.applyAnalyzerKeyFallbacks()
	c.applySessionDefaults()
	c.applyObservabilityDefaults()
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
}

// applyRelayAPIKeyFallbacks accepts a comma-separated key list from the environment
// and drops blank entries
func (c *Config) applyRelayAPIKeyFallbacks() {
	c.Relay.APIKeys = splitAndTrim(strings.Join(c.Relay.APIKeys, ","))
	if len(c.Relay.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv(envPrefix + "_RELAY_APIKEYS"); apiKeysEnv != "" {
			c.Relay.APIKeys = splitAndTrim(apiKeysEnv)
		}
	}
}

// applyAnalyzerKeyFallbacks honours the conventional GEMINI_API_KEY variable
func (c *Config) applyAnalyzerKeyFallbacks() {
	if c.Analyzer.APIKey == "" {
		c.Analyzer.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// applySessionDefaults resolves the default session file location
func (c *Config) applySessionDefaults() {
	if c.Session.Path == "" {
		c.Session.Path = DefaultSessionPath()
	}
}

// applyObservabilityDefaults applies default observability configuration values
func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
}

// DefaultSessionPath returns $HOME/.resumatch/session.json, or a path in the
// working directory when the home directory is unknown.
func DefaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".resumatch", "session.json")
	}
	return filepath.Join(home, ".resumatch", "session.json")
}

// generateServiceInstanceID generates a unique service instance ID
func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	log.Println("[CONFIG] === Configuration Sources Summary ===")

	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		envPrefix + "_API_BASEURL",
		envPrefix + "_ANALYZER_APIKEY",
		envPrefix + "_ANALYZER_MODEL",
		envPrefix + "_RELAY_PORT",
		envPrefix + "_RELAY_MODE",
		envPrefix + "_SESSION_STORE",
		envPrefix + "_APP_LOGLEVEL",
		envPrefix + "_VAULT_ENABLED",
		"GEMINI_API_KEY",
	}

	log.Println("[CONFIG] Environment variables:")
	hasEnvVars := false
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			if strings.Contains(strings.ToLower(envVar), "key") {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
			hasEnvVars = true
		}
	}
	if !hasEnvVars {
		log.Println("[CONFIG]   None set")
	}

	log.Println("[CONFIG] === Key Configuration Values ===")
	log.Printf("[CONFIG] API Base URL: %s", c.API.BaseURL)
	log.Printf("[CONFIG] Session Store: %s", c.Session.Store)
	log.Printf("[CONFIG] Analyzer: %s/%s", c.Analyzer.Provider, c.Analyzer.Model)
	if c.Analyzer.APIKey != "" {
		log.Println("[CONFIG] Analyzer API Key: ***CONFIGURED***")
	} else {
		log.Println("[CONFIG] Analyzer API Key: ***NOT SET***")
	}
	log.Printf("[CONFIG] Relay: %s:%s (%s)", c.Relay.Host, c.Relay.Port, c.Relay.Mode)
	log.Printf("[CONFIG] Log Level: %s", c.App.LogLevel)
	log.Printf("[CONFIG] Vault Enabled: %t", c.Vault.Enabled)
	log.Printf("[CONFIG] Observability Enabled: %t", c.Observability.Enabled)
	log.Println("[CONFIG] =====================================")
}
