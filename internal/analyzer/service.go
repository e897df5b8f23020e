package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"resumatch/internal/config"
	"resumatch/internal/errors"
	"resumatch/internal/observability"
	"resumatch/internal/progress"
	"resumatch/internal/stream"
	"resumatch/internal/types"
)

// Messages shown while the model is working
var localMessages = []string{
	"Reading resume",
	"Extracting keywords",
	"Comparing with job description",
	"Scoring match",
	"Writing feedback",
}

// Service runs local analyses and reports them as event streams
type Service struct {
	Provider Provider

	simulation    config.SimulationConfig
	observability *observability.ObservabilityManager
	logger        *errors.Logger
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithSimulation paces the progress frames sent while the model runs
func WithSimulation(cfg config.SimulationConfig) ServiceOption {
	return func(s *Service) {
		s.simulation = cfg
	}
}

// WithObservability records analyzer metrics through om
func WithObservability(om *observability.ObservabilityManager) ServiceOption {
	return func(s *Service) {
		s.observability = om
	}
}

// NewService creates a service for the provider selected in cfg.Analyzer
func NewService(ctx context.Context, cfg *config.Config, logger *errors.Logger, opts ...ServiceOption) (*Service, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	logger.Debug("Initializing analyzer",
		"provider", cfg.Analyzer.Provider,
		"model", cfg.Analyzer.Model,
		"temperature", cfg.Analyzer.Temperature,
		"timeout", cfg.Analyzer.Timeout,
		"max_retries", cfg.Analyzer.MaxRetries,
		"use_system_prompts", cfg.Analyzer.UseSystemPrompts)

	var provider Provider
	switch cfg.Analyzer.Provider {
	case "gemini", "":
		p, err := NewGeminiProvider(ctx, cfg.Analyzer, cfg.AnalyzerPrompts(), logger)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported analyzer provider: %s", cfg.Analyzer.Provider), nil)
	}

	opts = append([]ServiceOption{WithSimulation(cfg.Stream.Simulation)}, opts...)
	return NewServiceWithProvider(provider, logger, opts...), nil
}

// NewServiceWithProvider wraps an existing provider
func NewServiceWithProvider(provider Provider, logger *errors.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	s := &Service{Provider: provider, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze runs one analysis and records analyzer metrics
func (s *Service) Analyze(ctx context.Context, input MatchInput) (*types.AnalysisResult, *TokenUsage, error) {
	if err := validateInput(input); err != nil {
		return nil, nil, err
	}

	var (
		result types.AnalysisResult
		usage  *TokenUsage
	)
	err := s.observability.GetMetrics().TrackAIOperationWithTokens(ctx, "match",
		func(ctx context.Context) *observability.AIOperationResult {
			var err error
			result, usage, err = s.Provider.Match(ctx, input)
			op := &observability.AIOperationResult{Error: err}
			if usage != nil {
				op.TokenUsage = &observability.TokenUsage{
					InputTokens:  usage.InputTokens,
					OutputTokens: usage.OutputTokens,
					TotalTokens:  usage.TotalTokens,
				}
			}
			return op
		}, s.observability)
	if err != nil {
		return nil, nil, err
	}

	if usage != nil {
		s.logger.Info("AI token usage",
			"input_tokens", usage.InputTokens,
			"output_tokens", usage.OutputTokens,
			"total_tokens", usage.TotalTokens)
	}
	return &result, usage, nil
}

// Stream runs an analysis and reports it to obs the way the backend streams
// it: progress frames, a score_ready frame carrying the score, then complete
// with {"analysis_id":0,"result":{...}}. Failures end with OnError.
func (s *Service) Stream(ctx context.Context, input MatchInput, obs stream.Observer) {
	obs = stream.Guard(obs)

	if err := validateInput(input); err != nil {
		obs.OnError(err)
		return
	}

	sim := progress.NewSimulator()
	sim.Messages = localMessages
	if s.simulation.Interval > 0 {
		sim.Interval = s.simulation.Interval
	}
	if s.simulation.Step > 0 {
		sim.Step = s.simulation.Step
	}
	if s.simulation.Ceiling > 0 {
		sim.Ceiling = s.simulation.Ceiling
	}

	sim.Start(ctx, obs.OnFrame)
	result, _, err := s.Analyze(ctx, input)
	sim.Stop()

	if err != nil {
		obs.OnError(err)
		return
	}
	if ctx.Err() != nil {
		obs.OnError(ctx.Err())
		return
	}

	score, _ := json.Marshal(map[string]float64{"match_score": result.MatchScore})
	obs.OnFrame(stream.Frame{
		Stage:   stream.StageScoreReady,
		Message: fmt.Sprintf("Match score: %.0f%%", result.MatchScore),
		Data:    score,
	})
	obs.OnFrame(stream.ProgressFrame(100, "Done"))

	payload, err := json.Marshal(types.AnalysisSubmission{Result: result})
	if err != nil {
		obs.OnError(errors.NewInternalError(errors.ErrCodeInvalidFormat, "failed to encode analysis result", err))
		return
	}
	obs.OnComplete(payload)
}

// Source adapts one analysis to the stream.Source interface
func (s *Service) Source(input MatchInput) stream.Source {
	return stream.SourceFunc(func(ctx context.Context, obs stream.Observer) {
		s.Stream(ctx, input, obs)
	})
}

// GetModelInfo returns information about the AI model for health checks
func (s *Service) GetModelInfo(ctx context.Context) *ModelInfo {
	return s.Provider.GetModelInfo(ctx)
}

// BreakerStats returns the provider's circuit breaker statistics, if it has any
func (s *Service) BreakerStats() map[string]any {
	if p, ok := s.Provider.(interface{ CircuitBreakerStats() map[string]any }); ok {
		return p.CircuitBreakerStats()
	}
	return map[string]any{"enabled": false}
}

// Close releases the provider
func (s *Service) Close() error {
	return s.Provider.Close()
}

func validateInput(input MatchInput) error {
	if len(input.Resume) == 0 {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "resume is empty", nil)
	}
	if strings.TrimSpace(input.JobDescription) == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "job description is empty", nil)
	}
	return nil
}
