package config

import "time"

// AnalyzerConfig holds the local analyzer (Gemini) configuration
type AnalyzerConfig struct {
	Provider         string               `mapstructure:"provider"`
	Model            string               `mapstructure:"model"`
	Timeout          time.Duration        `mapstructure:"timeout"`
	APIKey           string               `mapstructure:"apiKey"`
	MaxRetries       int                  `mapstructure:"maxRetries"`
	Temperature      float32              `mapstructure:"temperature"`
	UseSystemPrompts bool                 `mapstructure:"useSystemPrompts"`
	Prompts          PromptConfig         `mapstructure:"prompts"`
	CircuitBreaker   CircuitBreakerConfig `mapstructure:"circuitBreaker"`

	loaded LoadedPrompts
}

// PromptConfig holds configuration for customizable prompts.
// Inline text wins over files.
type PromptConfig struct {
	System     string `mapstructure:"system"`
	SystemFile string `mapstructure:"systemFile"`
	User       string `mapstructure:"user"`
	UserFile   string `mapstructure:"userFile"`
}

// LoadedPrompts holds the resolved prompt text for the analyzer.
// Empty fields mean the built-in default applies.
type LoadedPrompts struct {
	System string
	User   string
}

// AnalyzerPrompts returns the custom prompts resolved at load time.
func (c *Config) AnalyzerPrompts() LoadedPrompts {
	return c.Analyzer.loaded
}
