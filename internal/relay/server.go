// Package relay serves analysis progress to local tools as server-sent events.
package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"resumatch/internal/analyzer"
	"resumatch/internal/config"
	"resumatch/internal/errors"
	"resumatch/internal/observability"
	"resumatch/internal/session"
	"resumatch/internal/stream"
	"resumatch/internal/types"
)

// Relay modes
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Submitter forwards analyses to the backend
type Submitter interface {
	SubmitAnalysis(ctx context.Context, req types.AnalysisRequest, obs stream.Observer)
	BreakerStats() map[string]any
	Healthy() bool
}

// LocalAnalyzer runs analyses in process
type LocalAnalyzer interface {
	Stream(ctx context.Context, input analyzer.MatchInput, obs stream.Observer)
	GetModelInfo(ctx context.Context) *analyzer.ModelInfo
	BreakerStats() map[string]any
}

// Server holds configuration for the relay HTTP server
type Server struct {
	Host    string
	Port    string
	Version string
	Mode    string

	// API Authentication, guarded by keysMu once the server runs
	APIKeys map[string]bool
	keysMu  sync.RWMutex

	// Timeout configurations
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Upload size limit
	MaxUploadSize int64

	// Keep-alive comment interval for open streams, 0 disables it
	HeartbeatInterval time.Duration

	// Rate limiting
	RateLimit   config.RateLimitConfig
	RateLimiter *LimiterManager

	Logger *errors.Logger

	remote        Submitter
	local         LocalAnalyzer
	session       session.Accessor
	observability *observability.ObservabilityManager
	keyWatcher    *KeyWatcher

	activeStreams atomic.Int64
	totalStreams  atomic.Int64
	startedAt     time.Time
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Version           string
	Relay             config.RelayConfig
	HeartbeatInterval time.Duration

	// Remote is required in remote mode, Local in local mode
	Remote Submitter
	Local  LocalAnalyzer

	// Session, when set, is reported as signed_in by /health
	Session session.Accessor

	Observability *observability.ObservabilityManager
}

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(cfg ServerConfig, logger *errors.Logger) (*Server, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	mode := cfg.Relay.Mode
	if mode == "" {
		mode = ModeRemote
	}
	switch mode {
	case ModeRemote:
		if cfg.Remote == nil {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
				"remote relay mode requires an API client", nil)
		}
	case ModeLocal:
		if cfg.Local == nil {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
				"local relay mode requires an analyzer", nil)
		}
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown relay mode: %s", mode), nil)
	}

	var rateLimiter *LimiterManager
	if cfg.Relay.RateLimit.Enabled {
		rateLimiter = NewLimiterManager(
			cfg.Relay.RateLimit.RequestsPerMin,
			cfg.Relay.RateLimit.Window,
			cfg.Relay.RateLimit.BurstCapacity,
			logger,
		)
	}

	return &Server{
		Host:              cfg.Relay.Host,
		Port:              cfg.Relay.Port,
		Version:           cfg.Version,
		Mode:              mode,
		APIKeys:           keySet(cfg.Relay.APIKeys),
		ReadTimeout:       cfg.Relay.ReadTimeout,
		WriteTimeout:      cfg.Relay.WriteTimeout,
		IdleTimeout:       cfg.Relay.IdleTimeout,
		ShutdownTimeout:   cfg.Relay.ShutdownTimeout,
		MaxUploadSize:     cfg.Relay.MaxUploadSize,
		HeartbeatInterval: cfg.HeartbeatInterval,
		RateLimit:         cfg.Relay.RateLimit,
		RateLimiter:       rateLimiter,
		Logger:            logger,
		remote:            cfg.Remote,
		local:             cfg.Local,
		session:           cfg.Session,
		observability:     cfg.Observability,
		startedAt:         time.Now(),
	}, nil
}

// ActiveStreams returns the number of analyses currently being relayed
func (s *Server) ActiveStreams() int64 {
	return s.activeStreams.Load()
}

// SetAPIKeys replaces the accepted API keys. An empty list disables
// authentication. It returns the number of keys in effect.
func (s *Server) SetAPIKeys(keys []string) int {
	set := keySet(keys)
	s.keysMu.Lock()
	s.APIKeys = set
	s.keysMu.Unlock()
	return len(set)
}

// checkAPIKey reports whether authentication is required and whether key passes it
func (s *Server) checkAPIKey(key string) (required, valid bool) {
	s.keysMu.RLock()
	defer s.keysMu.RUnlock()
	return len(s.APIKeys) > 0, s.APIKeys[key]
}

func (s *Server) apiKeyCount() int {
	s.keysMu.RLock()
	defer s.keysMu.RUnlock()
	return len(s.APIKeys)
}

func keySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key != "" {
			set[key] = true
		}
	}
	return set
}
