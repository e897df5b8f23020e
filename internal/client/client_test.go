package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"resumatch/internal/config"
	resumatchErrors "resumatch/internal/errors"
	"resumatch/internal/session"
	"resumatch/internal/stream"
	"resumatch/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, mutate ...func(*config.APIConfig)) (*Client, *session.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.APIConfig{
		BaseURL:            srv.URL,
		Timeout:            5 * time.Second,
		StreamTimeout:      10 * time.Second,
		FallbackToBlocking: true,
		UserAgent:          "resumatch-test",
	}
	for _, m := range mutate {
		m(&cfg)
	}

	store := session.NewMemoryStore("test-token")
	c, err := New(cfg, store, nil, WithStreamConfig(config.StreamConfig{
		Simulation: config.SimulationConfig{Interval: 5 * time.Millisecond, Step: 10, Ceiling: 90},
	}))
	require.NoError(t, err)
	return c, store
}

func analysisRequest() types.AnalysisRequest {
	return types.AnalysisRequest{
		ResumeFilename:   "/home/me/cv.pdf",
		Resume:           []byte("%PDF-1.4 resume"),
		JobDescription:   "Senior Go engineer",
		GenerateFeedback: true,
	}
}

func writeSSE(t *testing.T, w http.ResponseWriter, frames ...stream.Frame) {
	t.Helper()
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	enc := stream.NewEncoder(w)
	for _, f := range frames {
		require.NoError(t, enc.Encode(f))
	}
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/path"} {
		_, err := New(config.APIConfig{BaseURL: raw}, nil, nil)
		require.Error(t, err, raw)
		assert.True(t, resumatchErrors.IsType(err, resumatchErrors.ErrorTypeConfig))
	}
}

func TestSubmitAnalysisStreamsFrames(t *testing.T) {
	result := `{"analysis_id":42,"result":{"match_score":81.5,"matched_keywords":["go"],"missing_keywords":["k8s"]}}`

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analysis/stream", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "resumatch-test", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get(requestIDHeader))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("resume")
		require.NoError(t, err)
		body, _ := io.ReadAll(file)
		assert.Equal(t, "cv.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.4 resume", string(body))
		assert.Equal(t, "Senior Go engineer", r.FormValue("job_description"))
		assert.Equal(t, "true", r.FormValue("generate_feedback"))
		assert.Equal(t, "false", r.FormValue("generate_optimized_resume"))
		assert.Equal(t, "false", r.FormValue("generate_cover_letter"))

		writeSSE(t, w,
			stream.ProgressFrame(10, "Parsing resume"),
			stream.Frame{Stage: stream.StageScoreReady, Data: json.RawMessage(`{"match_score":81.5}`)},
			stream.Frame{Stage: stream.StageComplete, Data: json.RawMessage(result)},
		)
	})
	c, _ := newTestClient(t, mux)

	var frames []stream.Frame
	submission, err := c.AnalyzeAndWait(context.Background(), analysisRequest(), func(f stream.Frame) {
		frames = append(frames, f)
	})
	require.NoError(t, err)

	require.Len(t, frames, 2)
	assert.Equal(t, stream.StageProgress, frames[0].Stage)
	assert.Equal(t, stream.StageScoreReady, frames[1].Stage)

	assert.Equal(t, int64(42), submission.AnalysisID)
	require.NotNil(t, submission.Result)
	assert.Equal(t, int64(42), submission.Result.ID)
	assert.InDelta(t, 81.5, submission.Result.MatchScore, 0.001)
	assert.Equal(t, []string{"k8s"}, submission.Result.MissingKeywords)
}

func TestSubmitAnalysisFetchesResultWhenOnlyIDIsReturned(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analysis/stream", func(w http.ResponseWriter, r *http.Request) {
		writeSSE(t, w, stream.Frame{Stage: stream.StageComplete, Data: json.RawMessage(`{"analysis_id":7}`)})
	})
	mux.HandleFunc("GET /api/analysis/7", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"match_score":64,"summary":"decent"}`))
	})
	c, _ := newTestClient(t, mux)

	submission, err := c.AnalyzeAndWait(context.Background(), analysisRequest(), nil)
	require.NoError(t, err)
	require.NotNil(t, submission.Result)
	assert.Equal(t, int64(7), submission.Result.ID)
	assert.Equal(t, "decent", submission.Result.Summary)
}

func TestSubmitAnalysisErrorFrame(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analysis/stream", func(w http.ResponseWriter, r *http.Request) {
		writeSSE(t, w,
			stream.ProgressFrame(20, "Parsing resume"),
			stream.Frame{Stage: stream.StageError, Message: "Could not read PDF"},
		)
	})
	c, _ := newTestClient(t, mux)

	rec := stream.NewRecorder()
	c.SubmitAnalysis(context.Background(), analysisRequest(), rec)

	res := rec.Result()
	require.Error(t, res.Err)
	var frameErr *stream.FrameError
	require.ErrorAs(t, res.Err, &frameErr)
	assert.Equal(t, "Could not read PDF", frameErr.Message)
	assert.Len(t, res.Frames, 1)
}

func TestSubmitAnalysisTruncatedStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analysis/stream", func(w http.ResponseWriter, r *http.Request) {
		writeSSE(t, w, stream.ProgressFrame(50, "Scoring"))
	})
	c, _ := newTestClient(t, mux)

	_, err := c.AnalyzeAndWait(context.Background(), analysisRequest(), nil)
	assert.ErrorIs(t, err, stream.ErrStreamEndedWithoutResult)
}

func TestSubmitAnalysisFallsBackWhenStreamingIsMissing(t *testing.T) {
	var streamCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analysis/stream", func(w http.ResponseWriter, r *http.Request) {
		streamCalls.Add(1)
		http.NotFound(w, r)
	})
	mux.HandleFunc("POST /api/analysis", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Senior Go engineer", r.FormValue("job_description"))
		time.Sleep(30 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"analysis_id":9,"result":{"match_score":55}}`))
	})
	c, _ := newTestClient(t, mux)

	var frames []stream.Frame
	submission, err := c.AnalyzeAndWait(context.Background(), analysisRequest(), func(f stream.Frame) {
		frames = append(frames, f)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), streamCalls.Load())
	assert.Equal(t, int64(9), submission.AnalysisID)

	require.NotEmpty(t, frames)
	last, ok := frames[len(frames)-1].Percent()
	require.True(t, ok)
	assert.Equal(t, 100.0, last)

	prev := -1.0
	for _, f := range frames {
		p, _ := f.Percent()
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
}

func TestSubmitAnalysisReadsNonEventStreamBodyOnce(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analysis/stream", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":3,"match_score":70}`))
	})
	mux.HandleFunc("POST /api/analysis", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		t.Error("blocking endpoint must not be called")
	})
	c, _ := newTestClient(t, mux)

	submission, err := c.AnalyzeAndWait(context.Background(), analysisRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(3), submission.AnalysisID)
	assert.InDelta(t, 70.0, submission.Result.MatchScore, 0.001)
}

func TestSubmitAnalysisWithoutFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analysis/stream", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c, _ := newTestClient(t, mux, func(cfg *config.APIConfig) { cfg.FallbackToBlocking = false })

	_, err := c.AnalyzeAndWait(context.Background(), analysisRequest(), nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestSubmitAnalysisValidatesBeforeSending(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	tests := []struct {
		name   string
		mutate func(*types.AnalysisRequest)
	}{
		{"empty resume", func(r *types.AnalysisRequest) { r.Resume = nil }},
		{"blank job description", func(r *types.AnalysisRequest) { r.JobDescription = "  \n" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := analysisRequest()
			tt.mutate(&req)
			_, err := c.AnalyzeAndWait(context.Background(), req, nil)
			require.Error(t, err)
			assert.True(t, resumatchErrors.IsType(err, resumatchErrors.ErrorTypeValidation))
		})
	}
	assert.Zero(t, calls.Load())
}

func TestSubmitAnalysisRequiresSession(t *testing.T) {
	var calls atomic.Int32
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	require.NoError(t, store.ClearToken())

	_, err := c.AnalyzeAndWait(context.Background(), analysisRequest(), nil)
	require.Error(t, err)
	assert.True(t, resumatchErrors.IsType(err, resumatchErrors.ErrorTypeAuth))
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.Zero(t, calls.Load())
}

func TestSubmitAnalysisCancellation(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analysis/stream", func(w http.ResponseWriter, r *http.Request) {
		writeSSE(t, w, stream.ProgressFrame(10, "Parsing resume"))
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	c, _ := newTestClient(t, mux)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	rec := stream.NewRecorder()
	go c.SubmitAnalysis(ctx, analysisRequest(), stream.ObserverFuncs{
		Frame:    func(f stream.Frame) { rec.OnFrame(f); cancel() },
		Complete: rec.OnComplete,
		Error:    rec.OnError,
	})

	select {
	case <-rec.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after cancellation")
	}
	assert.ErrorIs(t, rec.Result().Err, context.Canceled)
}

func TestUnauthorizedBecomesAuthError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Token expired"}`))
	}))

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, resumatchErrors.IsType(err, resumatchErrors.ErrorTypeAuth))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Token expired", apiErr.Message)
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestParseAPIErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail string", 400, `{"detail":"Invalid file type"}`, "Invalid file type"},
		{"detail validation list", 422, `{"detail":[{"msg":"field required"},{"msg":"too long"}]}`, "field required; too long"},
		{"error object", 400, `{"error":{"message":"bad plan"}}`, "bad plan"},
		{"error string", 403, `{"error":"limit reached"}`, "limit reached"},
		{"message field", 409, `{"message":"already exists"}`, "already exists"},
		{"plain text", 502, "upstream down", "upstream down"},
		{"html page", 503, "<html><body>oops</body></html>", "Service Unavailable"},
		{"empty body", 404, "", "Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.status,
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}
			apiErr := parseAPIError(resp, "req-1")
			assert.Equal(t, tt.want, apiErr.Message)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.status >= 500, apiErr.Temporary())
		})
	}
}

func TestCircuitBreakerOpensAfterServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}), func(cfg *config.APIConfig) {
		cfg.CircuitBreaker = config.CircuitBreakerConfig{
			Enabled:          true,
			MaxRequests:      1,
			Timeout:          time.Minute,
			MinRequests:      2,
			FailureThreshold: 0.5,
		}
	})

	for range 2 {
		_, err := c.Me(context.Background())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	}
	assert.False(t, c.Healthy())

	_, err := c.Me(context.Background())
	var appErr *resumatchErrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, resumatchErrors.ErrCodeCircuitOpen, appErr.Code)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "open", c.BreakerStats()["state"])
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}), func(cfg *config.APIConfig) {
		cfg.CircuitBreaker = config.CircuitBreakerConfig{Enabled: true, MinRequests: 1, FailureThreshold: 0.1}
	})

	for range 3 {
		_, err := c.Me(context.Background())
		require.Error(t, err)
	}
	assert.True(t, c.Healthy())
}

func TestRateLimiterHonoursContext(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"id":1,"email":"a@b.co"}`))
	}), func(cfg *config.APIConfig) {
		cfg.RateLimit = config.ClientRateLimit{Enabled: true, RequestsPerSecond: 0.01, Burst: 1}
	})

	_, err := c.Me(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Me(ctx)
	require.Error(t, err)
	assert.True(t, resumatchErrors.IsType(err, resumatchErrors.ErrorTypeNetwork))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDecodeSubmission(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantID  int64
		wantErr bool
	}{
		{"wrapped result", `{"analysis_id":5,"result":{"match_score":90}}`, 5, false},
		{"id only", `{"analysis_id":6}`, 6, false},
		{"bare result", `{"id":8,"match_score":40}`, 8, false},
		{"empty", ``, 0, true},
		{"null", `null`, 0, true},
		{"array", `[1,2]`, 0, true},
		{"unrelated object", `{"status":"ok"}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := DecodeSubmission(json.RawMessage(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, resumatchErrors.IsType(err, resumatchErrors.ErrorTypeStream))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, sub.AnalysisID)
		})
	}
}

func TestIsEventStream(t *testing.T) {
	assert.True(t, isEventStream("text/event-stream"))
	assert.True(t, isEventStream("text/event-stream; charset=utf-8"))
	assert.False(t, isEventStream("application/json"))
	assert.False(t, isEventStream(""))
}

func TestRequestIDsAreUnique(t *testing.T) {
	seen := make(chan string, 2)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get(requestIDHeader)
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := c.Me(context.Background())
	require.NoError(t, err)
	_, err = c.Me(context.Background())
	require.NoError(t, err)

	first, second := <-seen, <-seen
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestTransportErrorIsNetworkError(t *testing.T) {
	c, err := New(config.APIConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, session.NewMemoryStore("t"), nil)
	require.NoError(t, err)

	_, err = c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, resumatchErrors.IsType(err, resumatchErrors.ErrorTypeNetwork))
	assert.False(t, errors.Is(err, session.ErrNoSession))
}
