package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"resumatch/internal/analyzer"
	"resumatch/internal/client"
	"resumatch/internal/config"
	"resumatch/internal/session"
	"resumatch/internal/stream"
	"resumatch/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	calls   atomic.Int32
	healthy bool
	delay   time.Duration
	run     func(ctx context.Context, req types.AnalysisRequest, obs stream.Observer)
	lastReq types.AnalysisRequest
}

func (f *fakeSubmitter) SubmitAnalysis(ctx context.Context, req types.AnalysisRequest, obs stream.Observer) {
	f.calls.Add(1)
	f.lastReq = req
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.run(ctx, req, obs)
}

func (f *fakeSubmitter) BreakerStats() map[string]any {
	return map[string]any{"enabled": true, "state": "closed"}
}

func (f *fakeSubmitter) Healthy() bool {
	return f.healthy
}

func completingSubmitter() *fakeSubmitter {
	return &fakeSubmitter{
		healthy: true,
		run: func(ctx context.Context, req types.AnalysisRequest, obs stream.Observer) {
			obs.OnFrame(stream.ProgressFrame(10, "Uploading resume"))
			obs.OnFrame(stream.ProgressFrame(60, "Scoring match"))
			obs.OnComplete(json.RawMessage(`{"analysis_id":7}`))
		},
	}
}

type fakeProvider struct {
	score float64
	err   error
}

func (p *fakeProvider) Match(ctx context.Context, input analyzer.MatchInput) (types.AnalysisResult, *analyzer.TokenUsage, error) {
	if p.err != nil {
		return types.AnalysisResult{}, nil, p.err
	}
	return types.AnalysisResult{
		MatchScore:      p.score,
		MatchedKeywords: []string{"go"},
		MissingKeywords: []string{},
		Summary:         "solid",
	}, nil, nil
}

func (p *fakeProvider) GetModelInfo(ctx context.Context) *analyzer.ModelInfo {
	return &analyzer.ModelInfo{Name: "fake-model", Available: p.err == nil}
}

func (p *fakeProvider) Close() error { return nil }

func relayConfig() config.RelayConfig {
	return config.RelayConfig{
		Host:            "127.0.0.1",
		Port:            "0",
		Mode:            ModeRemote,
		ShutdownTimeout: time.Second,
		MaxUploadSize:   1 << 20,
	}
}

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(srv.cleanupRateLimiter)
	return srv
}

func analyzeBody(t *testing.T, fields map[string]string, resume []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if resume != nil {
		part, err := w.CreateFormFile("resume", "cv.pdf")
		require.NoError(t, err)
		_, err = part.Write(resume)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func analyzeRequest(t *testing.T) *http.Request {
	t.Helper()
	body, contentType := analyzeBody(t, map[string]string{
		"job_description":   "Senior Go engineer",
		"generate_feedback": "true",
	}, []byte("%PDF-1.4 resume"))
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func TestNewServerValidatesMode(t *testing.T) {
	cfg := relayConfig()

	_, err := NewServer(ServerConfig{Relay: cfg}, nil)
	assert.Error(t, err, "remote mode needs a submitter")

	cfg.Mode = ModeLocal
	_, err = NewServer(ServerConfig{Relay: cfg}, nil)
	assert.Error(t, err, "local mode needs an analyzer")

	cfg.Mode = "sideways"
	_, err = NewServer(ServerConfig{Relay: cfg, Remote: completingSubmitter()}, nil)
	assert.Error(t, err)

	cfg.Mode = ""
	srv, err := NewServer(ServerConfig{Relay: cfg, Remote: completingSubmitter()}, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeRemote, srv.Mode)
}

func TestAnalyzeRelaysRemoteStream(t *testing.T) {
	sub := completingSubmitter()
	srv := newTestServer(t, ServerConfig{Relay: relayConfig(), Remote: sub})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, analyzeRequest(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(streamIDHeader))

	frames, data, err := stream.Collect(rec.Body)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "Scoring match", frames[1].Message)
	assert.JSONEq(t, `{"analysis_id":7}`, string(data))

	assert.Equal(t, int32(1), sub.calls.Load())
	assert.Equal(t, "cv.pdf", sub.lastReq.ResumeFilename)
	assert.Equal(t, "Senior Go engineer", sub.lastReq.JobDescription)
	assert.True(t, sub.lastReq.GenerateFeedback)
	assert.False(t, sub.lastReq.GenerateCoverLetter)
	assert.Equal(t, int64(0), srv.ActiveStreams())
}

func TestAnalyzeReencodesErrors(t *testing.T) {
	sub := &fakeSubmitter{
		healthy: true,
		run: func(ctx context.Context, req types.AnalysisRequest, obs stream.Observer) {
			obs.OnFrame(stream.ProgressFrame(20, "Parsing resume"))
			obs.OnError(errors.New("quota exceeded"))
		},
	}
	srv := newTestServer(t, ServerConfig{Relay: relayConfig(), Remote: sub})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, analyzeRequest(t))

	frames, _, err := stream.Collect(rec.Body)
	require.Len(t, frames, 1)
	var frameErr *stream.FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.Equal(t, "quota exceeded", frameErr.Message)
}

func TestAnalyzeRelaysBackendThroughClient(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analysis/stream", r.URL.Path)
		assert.Equal(t, "Bearer relay-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		enc := stream.NewEncoder(w)
		_ = enc.Encode(stream.ProgressFrame(50, "Analyzing"))
		_ = enc.Encode(stream.Frame{Stage: stream.StageError, Data: json.RawMessage(`{"error":"resume unreadable"}`)})
	}))
	defer backend.Close()

	c, err := client.New(config.APIConfig{BaseURL: backend.URL, Timeout: 5 * time.Second},
		session.NewMemoryStore("relay-token"), nil)
	require.NoError(t, err)

	srv := newTestServer(t, ServerConfig{Relay: relayConfig(), Remote: c})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, analyzeRequest(t))

	frames, _, err := stream.Collect(rec.Body)
	require.Len(t, frames, 1)
	assert.Equal(t, "Analyzing", frames[0].Message)
	var frameErr *stream.FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.Equal(t, "resume unreadable", frameErr.Message)
	assert.JSONEq(t, `{"error":"resume unreadable"}`, string(frameErr.Frame.Data))
}

func TestAnalyzeLocalMode(t *testing.T) {
	svc := analyzer.NewServiceWithProvider(&fakeProvider{score: 72.5}, nil,
		analyzer.WithSimulation(config.SimulationConfig{Interval: time.Millisecond, Step: 10, Ceiling: 90}))

	cfg := relayConfig()
	cfg.Mode = ModeLocal
	srv := newTestServer(t, ServerConfig{Relay: cfg, Local: svc})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, analyzeRequest(t))

	frames, data, err := stream.Collect(rec.Body)
	require.NoError(t, err)
	require.NotEmpty(t, frames)

	var stages []string
	for _, f := range frames {
		stages = append(stages, f.Stage)
	}
	assert.Contains(t, stages, stream.StageScoreReady)

	var submission types.AnalysisSubmission
	require.NoError(t, json.Unmarshal(data, &submission))
	require.NotNil(t, submission.Result)
	assert.Equal(t, 72.5, submission.Result.MatchScore)
}

func TestAnalyzeRejectsInvalidForms(t *testing.T) {
	sub := completingSubmitter()
	srv := newTestServer(t, ServerConfig{Relay: relayConfig(), Remote: sub})

	tests := []struct {
		name   string
		fields map[string]string
		resume []byte
	}{
		{"missing resume", map[string]string{"job_description": "Go"}, nil},
		{"empty resume", map[string]string{"job_description": "Go"}, []byte{}},
		{"missing job description", map[string]string{}, []byte("cv")},
		{"bad flag", map[string]string{"job_description": "Go", "generate_cover_letter": "maybe"}, []byte("cv")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := analyzeBody(t, tt.fields, tt.resume)
			req := httptest.NewRequest(http.MethodPost, "/analyze", body)
			req.Header.Set("Content-Type", contentType)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	assert.Equal(t, int32(0), sub.calls.Load())
}

func TestAnalyzeEnforcesUploadLimit(t *testing.T) {
	cfg := relayConfig()
	cfg.MaxUploadSize = 512
	sub := completingSubmitter()
	srv := newTestServer(t, ServerConfig{Relay: cfg, Remote: sub})

	body, contentType := analyzeBody(t, map[string]string{"job_description": "Go"}, bytes.Repeat([]byte("x"), 4096))
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, int32(0), sub.calls.Load())
}

func TestAuthMiddleware(t *testing.T) {
	cfg := relayConfig()
	cfg.APIKeys = []string{"secret-key-123456", ""}
	srv := newTestServer(t, ServerConfig{Relay: cfg, Remote: completingSubmitter()})
	require.Len(t, srv.APIKeys, 1)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"header key", "X-API-Key", "secret-key-123456", http.StatusOK},
		{"bearer key", "Authorization", "Bearer secret-key-123456", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := analyzeRequest(t)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	// health stays public
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := relayConfig()
	cfg.RateLimit = config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 1,
		BurstCapacity:  1,
		ByIP:           true,
		Window:         time.Minute,
	}
	srv := newTestServer(t, ServerConfig{Relay: cfg, Remote: completingSubmitter()})

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, analyzeRequest(t))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, analyzeRequest(t))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	other := analyzeRequest(t)
	other.RemoteAddr = "10.1.2.3:4567"
	third := httptest.NewRecorder()
	srv.Handler().ServeHTTP(third, other)
	assert.Equal(t, http.StatusOK, third.Code, "limits are per client")
}

func TestLimiterManagerEvictsIdleLimiters(t *testing.T) {
	m := NewLimiterManager(60, time.Minute, 2, nil)
	defer m.Close()

	m.GetLimiter("ip:1.1.1.1")
	m.GetLimiter("ip:2.2.2.2")
	assert.Equal(t, 2, m.GetStats()["active_limiters"])

	assert.Equal(t, 0, m.cleanup(time.Now()))
	assert.Equal(t, 2, m.cleanup(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, m.GetStats()["active_limiters"])

	m.Close()
}

func TestGetRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "ip:192.0.2.1", getRateLimitKey(req, true, true))
	assert.Equal(t, "", getRateLimitKey(req, true, false))

	req.Header.Set("X-API-Key", "k1")
	assert.Equal(t, "api:k1", getRateLimitKey(req, true, true))
	assert.Equal(t, "ip:192.0.2.1", getRateLimitKey(req, false, true))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "garbage, 203.0.113.5, 10.0.0.1"}, "10.0.0.1:1", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "10.0.0.1:1", "198.51.100.7"},
		{"no port", nil, "192.0.2.9", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "abcdefgh****", maskAPIKey("abcdefghijkl"))
}

func TestHealthHandler(t *testing.T) {
	t.Run("remote healthy", func(t *testing.T) {
		srv := newTestServer(t, ServerConfig{
			Relay:   relayConfig(),
			Remote:  completingSubmitter(),
			Session: session.NewMemoryStore("tok"),
		})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, true, body["signed_in"])
	})

	t.Run("remote breaker open", func(t *testing.T) {
		sub := completingSubmitter()
		sub.healthy = false
		srv := newTestServer(t, ServerConfig{Relay: relayConfig(), Remote: sub})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"degraded"`)
	})

	t.Run("local model unavailable", func(t *testing.T) {
		cfg := relayConfig()
		cfg.Mode = ModeLocal
		svc := analyzer.NewServiceWithProvider(&fakeProvider{err: errors.New("no key")}, nil)
		srv := newTestServer(t, ServerConfig{Relay: cfg, Local: svc})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "fake-model")
	})
}

func TestStatsHandlerCountsStreams(t *testing.T) {
	cfg := relayConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 600, BurstCapacity: 10, ByIP: true}
	srv := newTestServer(t, ServerConfig{Relay: cfg, Remote: completingSubmitter()})

	for range 2 {
		srv.Handler().ServeHTTP(httptest.NewRecorder(), analyzeRequest(t))
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Streams      map[string]int64 `json:"streams"`
		RateLimiting map[string]any   `json:"rate_limiting"`
		Breaker      map[string]any   `json:"circuit_breaker"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(2), body.Streams["total"])
	assert.Equal(t, int64(0), body.Streams["active"])
	assert.Equal(t, true, body.RateLimiting["enabled"])
	assert.Equal(t, "closed", body.Breaker["state"])
}

func TestHeartbeatCommentsDuringSlowAnalysis(t *testing.T) {
	sub := completingSubmitter()
	sub.delay = 60 * time.Millisecond
	srv := newTestServer(t, ServerConfig{
		Relay:             relayConfig(),
		Remote:            sub,
		HeartbeatInterval: 5 * time.Millisecond,
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, analyzeRequest(t))

	raw := rec.Body.String()
	assert.Contains(t, raw, ": keep-alive\n\n")

	_, data, err := stream.Collect(strings.NewReader(raw))
	require.NoError(t, err, "comments are ignored by consumers")
	assert.JSONEq(t, `{"analysis_id":7}`, string(data))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Relay: relayConfig(), Remote: completingSubmitter()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestWatchSessionFollowsFileStore(t *testing.T) {
	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"), nil)
	require.NoError(t, store.SetToken("first"))

	cache := session.NewMemoryStore("")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := WatchSession(ctx, store, cache, 10*time.Millisecond, nil)
	require.NoError(t, err)

	token, err := cache.Token()
	require.NoError(t, err)
	assert.Equal(t, "first", token)

	require.NoError(t, store.SetToken("second"))
	assert.Eventually(t, func() bool {
		token, err := cache.Token()
		return err == nil && token == "second"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, store.ClearToken())
	assert.Eventually(t, func() bool {
		_, err := cache.Token()
		return errors.Is(err, session.ErrNoSession)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	w.Wait()
}
