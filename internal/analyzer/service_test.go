package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"resumatch/internal/config"
	resumatchErrors "resumatch/internal/errors"
	"resumatch/internal/stream"
	"resumatch/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns a canned result after an optional delay
type fakeProvider struct {
	result types.AnalysisResult
	usage  *TokenUsage
	err    error
	delay  time.Duration
	calls  atomic.Int32
	input  MatchInput
}

func (f *fakeProvider) Match(ctx context.Context, input MatchInput) (types.AnalysisResult, *TokenUsage, error) {
	f.calls.Add(1)
	f.input = input
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return types.AnalysisResult{}, nil, ctx.Err()
		}
	}
	return f.result, f.usage, f.err
}

func (f *fakeProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	return &ModelInfo{Name: "fake", Available: true}
}

func (f *fakeProvider) Close() error { return nil }

func testInput() MatchInput {
	return MatchInput{
		ResumeFilename:   "resume.md",
		Resume:           []byte("# Jane\nGo, Kubernetes"),
		JobDescription:   "Go engineer with Terraform",
		GenerateFeedback: true,
	}
}

func fastSimulation() ServiceOption {
	return WithSimulation(config.SimulationConfig{Interval: 5 * time.Millisecond, Step: 10, Ceiling: 80})
}

func TestStreamEmitsBackendShapedFrames(t *testing.T) {
	provider := &fakeProvider{
		result: types.AnalysisResult{MatchScore: 72, MatchedKeywords: []string{"Go"}, MissingKeywords: []string{"Terraform"}},
		usage:  &TokenUsage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
		delay:  40 * time.Millisecond,
	}
	svc := NewServiceWithProvider(provider, nil, fastSimulation())

	rec := stream.NewRecorder()
	svc.Stream(context.Background(), testInput(), rec)
	res := rec.Result()
	require.NoError(t, res.Err)

	require.GreaterOrEqual(t, len(res.Frames), 2)
	n := len(res.Frames)
	assert.Equal(t, stream.StageScoreReady, res.Frames[n-2].Stage)
	assert.JSONEq(t, `{"match_score":72}`, string(res.Frames[n-2].Data))
	last, ok := res.Frames[n-1].Percent()
	require.True(t, ok)
	assert.Equal(t, 100.0, last)

	prev := -1.0
	for _, f := range res.Frames {
		if p, ok := f.Percent(); ok {
			assert.GreaterOrEqual(t, p, prev)
			prev = p
		}
	}

	var submission types.AnalysisSubmission
	require.NoError(t, json.Unmarshal(res.Data, &submission))
	require.NotNil(t, submission.Result)
	assert.Equal(t, []string{"Terraform"}, submission.Result.MissingKeywords)
	assert.True(t, provider.input.GenerateFeedback)
}

func TestStreamReportsProviderErrors(t *testing.T) {
	wantErr := resumatchErrors.NewAIError(resumatchErrors.ErrCodeAIServiceFailed, "quota exceeded", nil)
	svc := NewServiceWithProvider(&fakeProvider{err: wantErr}, nil, fastSimulation())

	rec := stream.NewRecorder()
	svc.Stream(context.Background(), testInput(), rec)
	res := rec.Result()

	assert.ErrorIs(t, res.Err, wantErr)
	assert.Nil(t, res.Data)
	for _, f := range res.Frames {
		assert.NotEqual(t, stream.StageScoreReady, f.Stage)
	}
}

func TestStreamValidatesInput(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewServiceWithProvider(provider, nil)

	input := testInput()
	input.JobDescription = " "
	rec := stream.NewRecorder()
	svc.Stream(context.Background(), input, rec)

	assert.True(t, resumatchErrors.IsType(rec.Result().Err, resumatchErrors.ErrorTypeValidation))
	assert.Zero(t, provider.calls.Load())
}

func TestStreamCancellation(t *testing.T) {
	svc := NewServiceWithProvider(&fakeProvider{delay: time.Minute}, nil, fastSimulation())

	ctx, cancel := context.WithCancel(context.Background())
	rec := stream.NewRecorder()
	go svc.Source(testInput()).Stream(ctx, rec)

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-rec.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after cancellation")
	}
	assert.True(t, errors.Is(rec.Result().Err, context.Canceled))
}

func TestServiceBreakerStatsWithoutBreaker(t *testing.T) {
	svc := NewServiceWithProvider(&fakeProvider{}, nil)
	assert.Equal(t, map[string]any{"enabled": false}, svc.BreakerStats())
	assert.True(t, svc.GetModelInfo(context.Background()).Available)
	assert.NoError(t, svc.Close())
}

func TestNewServiceRejectsUnknownProvider(t *testing.T) {
	cfg := &config.Config{Analyzer: config.AnalyzerConfig{Provider: "openai"}}
	_, err := NewService(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, resumatchErrors.IsType(err, resumatchErrors.ErrorTypeConfig))
}

func TestNewServiceRequiresAPIKey(t *testing.T) {
	cfg := &config.Config{Analyzer: config.AnalyzerConfig{Provider: "gemini", Model: "gemini-2.0-flash"}}
	_, err := NewService(context.Background(), cfg, nil)

	var appErr *resumatchErrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, resumatchErrors.ErrCodeMissingAPIKey, appErr.Code)
}
