package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
// Secret precedence order:
// 1. Vault (if configured) - Highest priority
// 2. Config File values
// 3. Environment Variables (RESUMATCH_ANALYZER_APIKEY, etc.)
// 4. Default values - Lowest priority
type Config struct {
	API           APIConfig           `mapstructure:"api"`
	Stream        StreamConfig        `mapstructure:"stream"`
	Session       SessionConfig       `mapstructure:"session"`
	Analyzer      AnalyzerConfig      `mapstructure:"analyzer"`
	Relay         RelayConfig         `mapstructure:"relay"`
	App           AppConfig           `mapstructure:"app"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// APIConfig holds the backend connection settings
type APIConfig struct {
	BaseURL            string               `mapstructure:"baseURL"`
	Timeout            time.Duration        `mapstructure:"timeout"`       // Per request, excluding streams
	StreamTimeout      time.Duration        `mapstructure:"streamTimeout"` // Whole stream budget, 0 disables
	FallbackToBlocking bool                 `mapstructure:"fallbackToBlocking"`
	UserAgent          string               `mapstructure:"userAgent"`
	RateLimit          ClientRateLimit      `mapstructure:"rateLimit"`
	CircuitBreaker     CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// ClientRateLimit throttles outgoing requests
type ClientRateLimit struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
	Burst             int     `mapstructure:"burst"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`          // Whether circuit breaker is enabled
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Timeout for half-open to open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// StreamConfig holds settings for progress streams
type StreamConfig struct {
	BufferSize        int              `mapstructure:"bufferSize"`
	HeartbeatInterval time.Duration    `mapstructure:"heartbeatInterval"` // Relay keep-alive comments
	Simulation        SimulationConfig `mapstructure:"simulation"`
}

// SimulationConfig paces simulated progress for non-streaming fallbacks
type SimulationConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Step     float64       `mapstructure:"step"`
	Ceiling  float64       `mapstructure:"ceiling"`
}

// SessionConfig selects where the sign-in token is kept
type SessionConfig struct {
	Store         string        `mapstructure:"store"` // "file", "memory" or "vault"
	Path          string        `mapstructure:"path"`
	WatchDebounce time.Duration `mapstructure:"watchDebounce"`
	VaultPath     string        `mapstructure:"vaultPath"`
}

// RelayConfig holds the local relay server configuration
type RelayConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "remote" or "local"
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	MaxUploadSize   int64         `mapstructure:"maxUploadSize"`

	// API Authentication
	APIKeys []string `mapstructure:"apiKeys"`

	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`        // Enable/disable rate limiting
	RequestsPerMin int           `mapstructure:"requestsPerMin"` // Requests allowed per minute
	BurstCapacity  int           `mapstructure:"burstCapacity"`  // Burst capacity for token bucket
	ByIP           bool          `mapstructure:"byIP"`           // Enable per-IP rate limiting
	ByAPIKey       bool          `mapstructure:"byAPIKey"`       // Enable per-API-key rate limiting
	Window         time.Duration `mapstructure:"window"`         // Idle limiter eviction window
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel         string   `mapstructure:"logLevel"`
	DefaultFormat    string   `mapstructure:"defaultFormat"`
	SupportedFormats []string `mapstructure:"supportedFormats"`
	MaxFileSize      int64    `mapstructure:"maxFileSize"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled         bool                `mapstructure:"enabled"`
	ServiceName     string              `mapstructure:"serviceName"`
	ServiceVersion  string              `mapstructure:"serviceVersion"`
	ServiceInstance string              `mapstructure:"serviceInstance"`
	ConsoleOutput   bool                `mapstructure:"consoleOutput"`
	SampleRate      float64             `mapstructure:"sampleRate"`
	Metrics         MetricsConfig       `mapstructure:"metrics"`
	CustomMetrics   CustomMetricsConfig `mapstructure:"customMetrics"`
	Console         ConsoleConfig       `mapstructure:"console"`
	Prometheus      PrometheusConfig    `mapstructure:"prometheus"`
	OTLP            OTLPConfig          `mapstructure:"otlp"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CollectionInterval time.Duration `mapstructure:"collectionInterval"`
}

// ConsoleConfig holds console output configuration
type ConsoleConfig struct {
	PrettyPrint bool `mapstructure:"prettyPrint"`
}

// CustomMetricsConfig switches groups of application metrics
type CustomMetricsConfig struct {
	Streaming      StreamingMetricsConfig      `mapstructure:"streaming"`
	AIOperations   AIOperationsMetricsConfig   `mapstructure:"aiOperations"`
	Infrastructure InfrastructureMetricsConfig `mapstructure:"infrastructure"`
}

// StreamingMetricsConfig holds submission and stream metrics configuration
type StreamingMetricsConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	TrackFrames   bool `mapstructure:"trackFrames"`
	TrackDuration bool `mapstructure:"trackDuration"`
}

// AIOperationsMetricsConfig holds local analyzer metrics configuration
type AIOperationsMetricsConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	TrackTokenUsage bool `mapstructure:"trackTokenUsage"`
}

// InfrastructureMetricsConfig holds infrastructure metrics configuration
type InfrastructureMetricsConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	TrackRateLimits bool `mapstructure:"trackRateLimits"`
}

// PrometheusConfig holds Prometheus configuration
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

const envPrefix = "RESUMATCH"

// LoadConfig loads configuration from environment variables and a config file
func LoadConfig() (*Config, error) {
	return load(viper.New(), "")
}

// LoadConfigFile loads configuration from an explicit file path
func LoadConfigFile(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, explicitFile string) (*Config, error) {
	log.Println("[CONFIG] Starting configuration loading process")

	setDefaults(v)
	log.Println("[CONFIG] Applied default configuration values")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	log.Printf("[CONFIG] Configured environment variable handling with prefix '%s'", envPrefix)

	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/resumatch/")
		v.AddConfigPath("$HOME/.resumatch")
		v.AddConfigPath(".")
		log.Println("[CONFIG] Configured config file search paths: /etc/resumatch/, $HOME/.resumatch, .")
	}

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || explicitFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Println("[CONFIG] No config file found, using defaults and environment variables")
	} else {
		configFileUsed = v.ConfigFileUsed()
		log.Printf("[CONFIG] Successfully loaded config file: %s", configFileUsed)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	log.Println("[CONFIG] Successfully unmarshaled configuration")

	config.applyFallbacks()
	log.Println("[CONFIG] Applied configuration fallbacks and environment variable overrides")

	config.logConfigurationSources(configFileUsed)

	if err := config.validatePromptFiles(); err != nil {
		return nil, fmt.Errorf("prompt file validation failed: %w", err)
	}

	if err := config.loadPromptsFromFiles(); err != nil {
		return nil, fmt.Errorf("failed to load custom prompts from files: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Println("[CONFIG] Configuration loading completed successfully")
	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid API base URL: %q", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("API timeout must be positive")
	}

	if c.API.StreamTimeout < 0 {
		return fmt.Errorf("API stream timeout must not be negative")
	}

	if c.API.RateLimit.Enabled && c.API.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("API rate limit requires a positive requestsPerSecond")
	}

	switch c.Session.Store {
	case "file", "memory":
	case "vault":
		if !c.Vault.Enabled {
			return fmt.Errorf("session store 'vault' requires vault.enabled")
		}
		if c.Session.VaultPath == "" {
			return fmt.Errorf("session store 'vault' requires session.vaultPath")
		}
	default:
		return fmt.Errorf("invalid session store: %s (must be 'file', 'memory', or 'vault')", c.Session.Store)
	}

	switch c.Relay.Mode {
	case "remote", "local":
	default:
		return fmt.Errorf("invalid relay mode: %s (must be 'remote' or 'local')", c.Relay.Mode)
	}

	if c.Relay.Port == "" {
		return fmt.Errorf("relay port is required")
	}

	if c.Stream.Simulation.Ceiling < 0 || c.Stream.Simulation.Ceiling > 100 {
		return fmt.Errorf("simulated progress ceiling must be between 0 and 100")
	}

	validFormats := make(map[string]bool)
	for _, format := range c.App.SupportedFormats {
		validFormats[format] = true
	}
	if !validFormats[c.App.DefaultFormat] {
		return fmt.Errorf("invalid default format: %s", c.App.DefaultFormat)
	}

	return nil
}
