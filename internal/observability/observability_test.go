package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"resumatch/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestManager(t *testing.T, prometheusEnabled bool) (*ObservabilityManager, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	om, err := NewObservabilityManager(ObservabilityConfig{
		ServiceName:    "resumatch-test",
		ServiceVersion: "test",
		Enabled:        true,
		SampleRate:     1.0,
		Prometheus:     PrometheusConfig{Enabled: prometheusEnabled, Endpoint: "/metrics"},
	}, nil, WithMetricReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = om.Shutdown(context.Background()) })
	return om, reader
}

// sumByAttr returns counter totals keyed by the value of attribute key
func sumByAttr(t *testing.T, reader *sdkmetric.ManualReader, name, key string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					v, _ := dp.Attributes.Value(attribute.Key(key))
					out[v.Emit()] += dp.Value
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					v, _ := dp.Attributes.Value(attribute.Key(key))
					out[v.Emit()] += int64(dp.Count)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					v, _ := dp.Attributes.Value(attribute.Key(key))
					out[v.Emit()] += int64(dp.Count)
				}
			}
		}
	}
	return out
}

func TestInstrumentObserverRecordsFramesAndOutcome(t *testing.T) {
	om, reader := newTestManager(t, false)

	rec := stream.NewRecorder()
	obs := om.InstrumentObserver(context.Background(), rec, "stream")

	obs.OnFrame(stream.ProgressFrame(10, "Parsing resume"))
	obs.OnFrame(stream.ProgressFrame(60, "Scoring"))
	obs.OnFrame(stream.Frame{Stage: stream.StageScoreReady})
	obs.OnComplete(json.RawMessage(`{"analysis_id":1}`))

	result := rec.Result()
	assert.Len(t, result.Frames, 3)
	assert.JSONEq(t, `{"analysis_id":1}`, string(result.Data))

	frames := sumByAttr(t, reader, "resumatch_stream_frames_total", "stage")
	assert.Equal(t, int64(2), frames["progress"])
	assert.Equal(t, int64(1), frames["score_ready"])
	assert.Equal(t, int64(1), frames["complete"])

	submissions := sumByAttr(t, reader, "resumatch_submissions_total", "success")
	assert.Equal(t, int64(1), submissions["true"])

	durations := sumByAttr(t, reader, "resumatch_submission_duration_seconds", "mode")
	assert.Equal(t, int64(1), durations["stream"])

	active := sumByAttr(t, reader, "resumatch_active_streams", "mode")
	assert.Equal(t, int64(0), active["stream"])
}

func TestInstrumentObserverClassifiesErrors(t *testing.T) {
	om, reader := newTestManager(t, false)

	errs := []error{
		stream.ErrStreamEndedWithoutResult,
		errors.New("connection reset"),
	}
	for _, err := range errs {
		obs := om.InstrumentObserver(context.Background(), stream.NewRecorder(), "fallback")
		obs.OnError(err)
		// A second terminal call is not counted twice
		obs.OnError(err)
	}

	_, _, frameErr := stream.Collect(strings.NewReader("data: {\"stage\":\"error\",\"message\":\"bad pdf\"}\n"))
	obs := om.InstrumentObserver(context.Background(), stream.NewRecorder(), "fallback")
	obs.OnError(frameErr)

	kinds := sumByAttr(t, reader, "resumatch_stream_errors_total", "kind")
	assert.Equal(t, map[string]int64{
		ErrorKindTruncated: 1,
		ErrorKindTransport: 1,
		ErrorKindFrame:     1,
	}, kinds)

	submissions := sumByAttr(t, reader, "resumatch_submissions_total", "success")
	assert.Equal(t, int64(3), submissions["false"])
}

func TestInstrumentObserverDisabled(t *testing.T) {
	om, err := NewObservabilityManager(ObservabilityConfig{Enabled: false}, nil)
	require.NoError(t, err)

	rec := stream.NewRecorder()
	assert.Same(t, rec, om.InstrumentObserver(context.Background(), rec, "stream"))

	var nilManager *ObservabilityManager
	assert.Same(t, rec, nilManager.InstrumentObserver(context.Background(), rec, "stream"))
	assert.Nil(t, nilManager.MetricsHandler())
}

func TestPrometheusHandlerServesMetrics(t *testing.T) {
	om, _ := newTestManager(t, true)
	require.NotNil(t, om.MetricsHandler())

	obs := om.InstrumentObserver(context.Background(), stream.NewRecorder(), "local")
	obs.OnComplete(json.RawMessage(`{}`))
	om.RecordRateLimitHit(context.Background(), attribute.String("limiter", "ip"))

	rr := httptest.NewRecorder()
	om.MetricsHandler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rr.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "resumatch_submissions_total")
	assert.Contains(t, string(body), "resumatch_rate_limit_hits_total")
}

func TestTrackAIOperationWithTokens(t *testing.T) {
	om, reader := newTestManager(t, false)
	metrics := om.GetMetrics()

	err := metrics.TrackAIOperationWithTokens(context.Background(), "match", func(ctx context.Context) *AIOperationResult {
		return &AIOperationResult{TokenUsage: &TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}}
	}, om)
	require.NoError(t, err)

	wantErr := fmt.Errorf("quota exceeded")
	err = metrics.TrackAIOperationWithTokens(context.Background(), "match", func(ctx context.Context) *AIOperationResult {
		return &AIOperationResult{Error: wantErr}
	}, om)
	assert.ErrorIs(t, err, wantErr)

	requests := sumByAttr(t, reader, "resumatch_ai_requests_total", "success")
	assert.Equal(t, int64(1), requests["true"])
	assert.Equal(t, int64(1), requests["false"])

	tokens := sumByAttr(t, reader, "resumatch_ai_token_usage", "token_type")
	assert.Equal(t, int64(1), tokens["total"])
}

func TestGetMetricsWithoutInit(t *testing.T) {
	var om *ObservabilityManager
	metrics := om.GetMetrics()

	err := metrics.TrackAIOperationWithTokens(context.Background(), "match", func(ctx context.Context) *AIOperationResult {
		return nil
	}, om)
	assert.NoError(t, err)
}
