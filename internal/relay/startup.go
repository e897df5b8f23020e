package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	resumatchErrors "resumatch/internal/errors"
	"resumatch/internal/session"
)

const defaultShutdownTimeout = 10 * time.Second

// Run listens on Host:Port and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.Host, s.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cleanupRateLimiter()
		return resumatchErrors.NewNetworkError(resumatchErrors.ErrCodeAPIRequestFailed,
			fmt.Sprintf("failed to listen on %s", addr), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within ShutdownTimeout. It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := s.setupHTTPServer()
	s.displayServerInfo(ln.Addr().String())

	serverErrors := make(chan error, 1)
	go func() {
		s.Logger.Info("Starting relay server",
			"address", ln.Addr().String(),
			"mode", s.Mode)

		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		s.cleanupRateLimiter()
		if err == nil {
			return nil
		}
		return fmt.Errorf("relay server failed: %w", err)
	case <-ctx.Done():
		s.Logger.Info("Shutdown requested, starting graceful shutdown",
			"active_streams", s.activeStreams.Load())
		return s.performGracefulShutdown(httpServer)
	}
}

// setupHTTPServer creates and configures the HTTP server
func (s *Server) setupHTTPServer() *http.Server {
	return &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.ReadTimeout,
		ReadHeaderTimeout: s.ReadTimeout,
		WriteTimeout:      s.WriteTimeout,
		IdleTimeout:       s.IdleTimeout,
	}
}

// performGracefulShutdown waits for open streams up to ShutdownTimeout
func (s *Server) performGracefulShutdown(server *http.Server) error {
	timeout := s.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.cleanupRateLimiter()

	s.Logger.Info("Shutting down relay server...", "timeout", timeout.String())
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown relay gracefully, forcing close")
		return server.Close()
	}

	s.Logger.Info("Relay shutdown completed successfully")
	return nil
}

// cleanupRateLimiter cleans up the rate limiter resources
func (s *Server) cleanupRateLimiter() {
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
		s.Logger.Debug("Rate limiter cleaned up")
	}
}

// WatchSession mirrors the token in store into cache whenever the session
// file changes, so a running relay follows login and logout from other
// terminals. cache is seeded with the current token.
func WatchSession(ctx context.Context, store *session.FileStore, cache session.Accessor, debounce time.Duration, logger *resumatchErrors.Logger) (*session.Watcher, error) {
	if logger == nil {
		logger = resumatchErrors.NewNopLogger()
	}

	if token, err := store.Token(); err == nil {
		if err := cache.SetToken(token); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, session.ErrNoSession) {
		return nil, err
	}

	return store.Watch(ctx, debounce, func(token string) {
		var err error
		if token == "" {
			err = cache.ClearToken()
		} else {
			err = cache.SetToken(token)
		}
		if err != nil {
			logger.LogError(err, "Failed to apply session change")
			return
		}
		logger.Info("Relay session updated", "signed_in", token != "")
	})
}
