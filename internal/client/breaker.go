package client

import (
	"fmt"
	"net/http"

	"resumatch/internal/config"
	"resumatch/internal/errors"

	"github.com/sony/gobreaker/v2"
)

// serverStatusError marks a 5xx response as a breaker failure. The response
// is still returned to the caller for error parsing.
type serverStatusError struct {
	statusCode int
}

func (e *serverStatusError) Error() string {
	return fmt.Sprintf("server responded %d", e.statusCode)
}

// requestBreaker wraps backend requests with the circuit breaker pattern
type requestBreaker struct {
	cb *gobreaker.CircuitBreaker[*http.Response]
}

// newRequestBreaker returns nil when the breaker is disabled
func newRequestBreaker(cfg config.CircuitBreakerConfig, logger *errors.Logger) *requestBreaker {
	if !cfg.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        "backend-api",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests &&
				failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
				"max_requests", cfg.MaxRequests,
				"failure_threshold", cfg.FailureThreshold)
		},
	}

	return &requestBreaker{
		cb: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// Execute runs fn with circuit breaker protection
func (b *requestBreaker) Execute(fn func() (*http.Response, error)) (*http.Response, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// Stats returns circuit breaker statistics
func (b *requestBreaker) Stats() map[string]any {
	if b == nil || b.cb == nil {
		return map[string]any{
			"enabled": false,
		}
	}

	counts := b.cb.Counts()
	return map[string]any{
		"name":    b.cb.Name(),
		"state":   b.cb.State().String(),
		"enabled": true,
		"counts": map[string]uint32{
			"requests":              counts.Requests,
			"total_successes":       counts.TotalSuccesses,
			"total_failures":        counts.TotalFailures,
			"consecutive_successes": counts.ConsecutiveSuccesses,
			"consecutive_failures":  counts.ConsecutiveFailures,
		},
	}
}

// IsHealthy returns true if the circuit breaker is in closed state
func (b *requestBreaker) IsHealthy() bool {
	if b == nil || b.cb == nil {
		return true
	}
	return b.cb.State() == gobreaker.StateClosed
}
