package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Backend API
	v.SetDefault("api.baseURL", "http://localhost:8000")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.streamTimeout", 5*time.Minute)
	v.SetDefault("api.fallbackToBlocking", true)
	v.SetDefault("api.userAgent", "resumatch-cli")
	v.SetDefault("api.rateLimit.enabled", true)
	v.SetDefault("api.rateLimit.requestsPerSecond", 5.0)
	v.SetDefault("api.rateLimit.burst", 10)
	v.SetDefault("api.circuitBreaker.enabled", true)
	v.SetDefault("api.circuitBreaker.maxRequests", 3)
	v.SetDefault("api.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("api.circuitBreaker.timeout", 30*time.Second)
	v.SetDefault("api.circuitBreaker.minRequests", 5)
	v.SetDefault("api.circuitBreaker.failureThreshold", 0.6)

	// Progress streams
	v.SetDefault("stream.bufferSize", 4096)
	v.SetDefault("stream.heartbeatInterval", 15*time.Second)
	v.SetDefault("stream.simulation.interval", 800*time.Millisecond)
	v.SetDefault("stream.simulation.step", 7.5)
	v.SetDefault("stream.simulation.ceiling", 90.0)

	// Session
	v.SetDefault("session.store", "file")
	v.SetDefault("session.path", "") // Resolved to $HOME/.resumatch/session.json
	v.SetDefault("session.watchDebounce", 500*time.Millisecond)
	v.SetDefault("session.vaultPath", "")

	// Local analyzer
	v.SetDefault("analyzer.provider", "gemini")
	v.SetDefault("analyzer.model", "gemini-2.0-flash")
	v.SetDefault("analyzer.timeout", 75*time.Second)
	v.SetDefault("analyzer.apiKey", "")
	v.SetDefault("analyzer.maxRetries", 2)
	v.SetDefault("analyzer.temperature", 0.2) // Low temperature for consistent scoring
	v.SetDefault("analyzer.useSystemPrompts", true)
	v.SetDefault("analyzer.circuitBreaker.enabled", true)
	v.SetDefault("analyzer.circuitBreaker.maxRequests", 3)
	v.SetDefault("analyzer.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("analyzer.circuitBreaker.timeout", 60*time.Second)
	v.SetDefault("analyzer.circuitBreaker.minRequests", 3)
	v.SetDefault("analyzer.circuitBreaker.failureThreshold", 0.6)

	// Relay server
	v.SetDefault("relay.host", "localhost")
	v.SetDefault("relay.port", "8787")
	v.SetDefault("relay.mode", "remote")
	v.SetDefault("relay.readTimeout", 30*time.Second)
	v.SetDefault("relay.writeTimeout", 0) // Streams may run for minutes
	v.SetDefault("relay.idleTimeout", 120*time.Second)
	v.SetDefault("relay.shutdownTimeout", 10*time.Second)
	v.SetDefault("relay.maxUploadSize", 10*1024*1024)
	v.SetDefault("relay.apiKeys", []string{})
	v.SetDefault("relay.rateLimit.enabled", false)
	v.SetDefault("relay.rateLimit.requestsPerMin", 30)
	v.SetDefault("relay.rateLimit.burstCapacity", 5)
	v.SetDefault("relay.rateLimit.byIP", true)
	v.SetDefault("relay.rateLimit.byAPIKey", false)
	v.SetDefault("relay.rateLimit.window", time.Minute)

	// App Configuration
	v.SetDefault("app.logLevel", "warn")
	v.SetDefault("app.defaultFormat", "text")
	v.SetDefault("app.supportedFormats", []string{"json", "yaml", "text", "markdown", "pretty"})
	v.SetDefault("app.maxFileSize", 5*1024*1024) // 5MB, PDFs included

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.pollInterval", 5*time.Minute)
	v.SetDefault("vault.secrets.relayAPIKeys", "")
	v.SetDefault("vault.secrets.geminiKey", "")

	// Observability Configuration
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.serviceName", "resumatch")
	v.SetDefault("observability.serviceVersion", "")  // Will use app version if empty
	v.SetDefault("observability.serviceInstance", "") // Will be auto-generated if empty
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.customMetrics.streaming.enabled", true)
	v.SetDefault("observability.customMetrics.streaming.trackFrames", true)
	v.SetDefault("observability.customMetrics.streaming.trackDuration", true)
	v.SetDefault("observability.customMetrics.aiOperations.enabled", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackTokenUsage", true)
	v.SetDefault("observability.customMetrics.infrastructure.enabled", true)
	v.SetDefault("observability.customMetrics.infrastructure.trackRateLimits", true)
	v.SetDefault("observability.console.prettyPrint", true)
	v.SetDefault("observability.prometheus.enabled", true)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
}
