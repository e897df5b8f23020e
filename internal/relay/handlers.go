package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resumatch/internal/analyzer"
	"resumatch/internal/stream"
	"resumatch/internal/types"

	"github.com/google/uuid"
)

const (
	healthCheckTimeout = 5 * time.Second
	maxFormMemory      = 8 << 20
	streamIDHeader     = "X-Stream-ID"
)

// analyzeHandler relays one analysis as an event stream. Validation failures
// are answered with a JSON error before the stream starts. Once the stream
// has started every outcome, including failures, is a terminal frame.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	req, status, err := s.parseAnalyzeForm(r)
	if err != nil {
		s.Logger.Info("Rejected analysis request",
			"status", status,
			"error", err.Error(),
			"client_ip", getClientIP(r))
		writeErrorResponse(w, http.StatusText(status), err.Error(), status)
		return
	}

	streamID := uuid.NewString()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(streamIDHeader, streamID)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	s.activeStreams.Add(1)
	s.totalStreams.Add(1)
	defer s.activeStreams.Add(-1)

	ctx := r.Context()
	enc := stream.NewEncoder(w)
	out := stream.NewEncodingObserver(enc)

	stopHeartbeat := s.startHeartbeat(ctx, enc)
	defer stopHeartbeat()

	var (
		outcome = "complete"
		frames  int
		failure error
	)
	obs := stream.ObserverFuncs{
		Frame: func(f stream.Frame) {
			frames++
			out.OnFrame(f)
		},
		Complete: out.OnComplete,
		Error: func(err error) {
			outcome = "error"
			failure = err
			out.OnError(err)
		},
	}

	s.Logger.Info("Relaying analysis",
		"stream_id", streamID,
		"mode", s.Mode,
		"resume", req.ResumeFilename,
		"resume_bytes", len(req.Resume))

	start := time.Now()
	switch s.Mode {
	case ModeLocal:
		s.local.Stream(ctx, analyzer.InputFromRequest(req),
			s.observability.InstrumentObserver(ctx, obs, "relay_local"))
	default:
		s.remote.SubmitAnalysis(ctx, req, obs)
	}

	logArgs := []any{
		"stream_id", streamID,
		"outcome", outcome,
		"frames", frames,
		"duration", time.Since(start).String(),
	}
	if failure != nil {
		logArgs = append(logArgs, "error", failure.Error())
	}
	if writeErr := out.Err(); writeErr != nil {
		logArgs = append(logArgs, "write_error", writeErr.Error())
	}
	s.Logger.Info("Analysis relay finished", logArgs...)
}

// startHeartbeat writes keep-alive comments until the returned stop function
// is called. stop waits for the writer to exit.
func (s *Server) startHeartbeat(ctx context.Context, enc *stream.Encoder) func() {
	if s.HeartbeatInterval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := enc.Comment("keep-alive"); err != nil {
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// parseAnalyzeForm reads the multipart upload. The returned status is the
// one to answer with when err is non-nil.
func (s *Server) parseAnalyzeForm(r *http.Request) (types.AnalysisRequest, int, error) {
	var req types.AnalysisRequest

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return req, http.StatusRequestEntityTooLarge,
				fmt.Errorf("upload too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return req, http.StatusBadRequest, fmt.Errorf("expected a multipart form: %w", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("resume")
	if err != nil {
		return req, http.StatusBadRequest, fmt.Errorf("resume file is required")
	}
	defer file.Close()

	resume, err := io.ReadAll(file)
	if err != nil {
		return req, http.StatusBadRequest, fmt.Errorf("failed to read resume: %w", err)
	}
	if len(resume) == 0 {
		return req, http.StatusBadRequest, fmt.Errorf("resume file is empty")
	}

	req.ResumeFilename = header.Filename
	req.Resume = resume
	req.JobDescription = strings.TrimSpace(r.FormValue("job_description"))
	if req.JobDescription == "" {
		return req, http.StatusBadRequest, fmt.Errorf("job_description is required")
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{"generate_feedback", &req.GenerateFeedback},
		{"generate_optimized_resume", &req.GenerateOptimizedResume},
		{"generate_cover_letter", &req.GenerateCoverLetter},
	}
	for _, f := range flags {
		raw := strings.TrimSpace(r.FormValue(f.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return req, http.StatusBadRequest, fmt.Errorf("%s must be a boolean, got %q", f.name, raw)
		}
		*f.dst = v
	}

	return req, 0, nil
}

// healthHandler reports whether the relay can currently serve analyses
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "resumatch-relay",
		"version": s.Version,
		"mode":    s.Mode,
	}

	healthy := true
	switch s.Mode {
	case ModeLocal:
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		info := s.local.GetModelInfo(ctx)
		response["model"] = info
		if info == nil || !info.Available {
			healthy = false
		}
	default:
		backendHealthy := s.remote.Healthy()
		response["backend"] = map[string]any{
			"healthy":         backendHealthy,
			"circuit_breaker": s.remote.BreakerStats(),
		}
		if !backendHealthy {
			healthy = false
		}
	}

	if s.session != nil {
		_, err := s.session.Token()
		response["signed_in"] = err == nil
	}

	status := http.StatusOK
	if !healthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, response)
}

// statsHandler provides relay statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "resumatch-relay",
		"version": s.Version,
		"mode":    s.Mode,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"streams": map[string]int64{
			"active": s.activeStreams.Load(),
			"total":  s.totalStreams.Load(),
		},
		"server": map[string]any{
			"max_upload_size_bytes": s.MaxUploadSize,
			"heartbeat_interval":    s.HeartbeatInterval.String(),
		},
	}

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	response["rate_limit_config"] = map[string]any{
		"enabled":          s.RateLimit.Enabled,
		"requests_per_min": s.RateLimit.RequestsPerMin,
		"burst_capacity":   s.RateLimit.BurstCapacity,
		"by_ip":            s.RateLimit.ByIP,
		"by_api_key":       s.RateLimit.ByAPIKey,
		"window":           s.RateLimit.Window.String(),
	}

	response["authentication"] = map[string]any{
		"enabled":     s.apiKeyCount() > 0,
		"keys":        s.apiKeyCount(),
		"key_watcher": s.keyWatcher.Status(),
	}

	switch s.Mode {
	case ModeLocal:
		response["circuit_breaker"] = s.local.BreakerStats()
	default:
		response["circuit_breaker"] = s.remote.BreakerStats()
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.LogError(err, "Failed to encode response")
	}
}

// writeErrorResponse writes a JSON error response
func writeErrorResponse(w http.ResponseWriter, errorMsg, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorMsg,
		Message: message,
	})
}
