package analyzer

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"resumatch/internal/config"
	resumatchErrors "resumatch/internal/errors"
	"resumatch/internal/types"
	"resumatch/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

const (
	modelCheckTimeout = 10 * time.Second
	maxBackoff        = 30 * time.Second
)

// GeminiProvider implements Provider for Google Gemini
type GeminiProvider struct {
	client         *genai.Client
	config         config.AnalyzerConfig
	prompts        config.LoadedPrompts
	circuitBreaker *breaker[*genai.GenerateContentResponse]
	modelBreaker   *breaker[*genai.Model]
	retryBaseDelay time.Duration
	logger         *resumatchErrors.Logger
}

// Ensure GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a Gemini provider. prompts overrides the
// built-in prompts where non-empty.
func NewGeminiProvider(ctx context.Context, cfg config.AnalyzerConfig, prompts config.LoadedPrompts, logger *resumatchErrors.Logger) (*GeminiProvider, error) {
	if logger == nil {
		logger = resumatchErrors.NewNopLogger()
	}
	if cfg.APIKey == "" {
		return nil, resumatchErrors.NewConfigError(resumatchErrors.ErrCodeMissingAPIKey,
			"analyzer API key is not set (RESUMATCH_ANALYZER_APIKEY or GEMINI_API_KEY)", nil)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, resumatchErrors.NewAIError(resumatchErrors.ErrCodeAIServiceFailed,
			"Failed to create Gemini client", err)
	}

	return &GeminiProvider{
		client:         client,
		config:         cfg,
		prompts:        prompts,
		circuitBreaker: newBreaker[*genai.GenerateContentResponse]("analyzer-match", cfg.CircuitBreaker, false, logger),
		modelBreaker:   newBreaker[*genai.Model]("analyzer-model", cfg.CircuitBreaker, true, logger),
		retryBaseDelay: time.Second,
		logger:         logger,
	}, nil
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	modelInfo := &ModelInfo{
		Name:      g.config.Model,
		Available: false,
	}

	checkCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout)
	defer cancel()

	model, err := g.modelBreaker.Execute(func() (*genai.Model, error) {
		return g.client.Models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		modelInfo.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"error", err.Error())
		return modelInfo
	}

	modelInfo.Available = true
	modelInfo.DisplayName = model.DisplayName
	modelInfo.Version = model.Version

	g.logger.Debug("Model availability check successful",
		"model", g.config.Model,
		"display_name", modelInfo.DisplayName,
		"version", modelInfo.Version)

	return modelInfo
}

// Match scores input with Gemini
func (g *GeminiProvider) Match(ctx context.Context, input MatchInput) (types.AnalysisResult, *TokenUsage, error) {
	tracer := otel.Tracer("resumatch.analyzer.gemini")
	ctx, span := tracer.Start(ctx, "gemini.match")
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.config.Model),
		attribute.Float64("ai.temperature", float64(g.config.Temperature)),
		attribute.Int("input.resume_bytes", len(input.Resume)),
		attribute.Int("input.job_length", len(input.JobDescription)),
	)

	contents, err := g.buildContents(input)
	if err != nil {
		span.RecordError(err)
		return types.AnalysisResult{}, nil, err
	}

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	genaiConfig := g.buildMatchSchema()
	if g.config.UseSystemPrompts {
		systemPrompt := resolvePrompt(g.prompts.System, DefaultSystemPrompt)
		genaiConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	start := time.Now()
	response, err := g.circuitBreaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.executeWithRetry(ctx, "match", func() (*genai.GenerateContentResponse, error) {
			return g.client.Models.GenerateContent(ctx, g.config.Model, contents, genaiConfig)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		if errors.Is(err, context.DeadlineExceeded) {
			return types.AnalysisResult{}, nil, resumatchErrors.NewAIError(resumatchErrors.ErrCodeAITimeout,
				"Analysis timed out", err)
		}
		return types.AnalysisResult{}, nil, resumatchErrors.NewAIError(resumatchErrors.ErrCodeAIServiceFailed,
			"Failed to generate analysis", err)
	}

	result, err := parseMatchResponse(response.Text())
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return types.AnalysisResult{}, nil, err
	}
	result.ResumeFilename = input.ResumeFilename
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	result.CreatedAt = time.Now().UTC()

	usage := extractTokenUsage(response)
	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Float64("match.score", result.MatchScore),
		attribute.Int("match.missing_keywords", len(result.MissingKeywords)),
	)
	return result, usage, nil
}

// buildContents assembles the request. Text resumes are inlined in the
// prompt, PDFs are attached as a document part.
func (g *GeminiProvider) buildContents(input MatchInput) ([]*genai.Content, error) {
	userPrompt := buildUserPrompt(resolvePrompt(g.prompts.User, DefaultUserPrompt), input)

	mimeType := utils.DetectMIMEType(input.ResumeFilename, input.Resume)
	switch {
	case strings.HasPrefix(mimeType, "text/"):
		userPrompt += "\n\n" + fmt.Sprintf(resumeTextTemplate, string(input.Resume))
		return genai.Text(userPrompt), nil
	case mimeType == "application/pdf":
		parts := []*genai.Part{
			genai.NewPartFromBytes(input.Resume, mimeType),
			genai.NewPartFromText(userPrompt),
		}
		return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
	default:
		return nil, resumatchErrors.NewValidationError(resumatchErrors.ErrCodeInvalidFormat,
			fmt.Sprintf("local analysis supports PDF and text resumes, got %s", mimeType), nil).
			WithContext("filename", input.ResumeFilename)
	}
}

// executeWithRetry executes an AI operation with retry logic and exponential backoff
func (g *GeminiProvider) executeWithRetry(ctx context.Context, operation string, fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr error
	maxRetries := max(g.config.MaxRetries, 0)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(g.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry",
					"operation", operation,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			g.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", operation,
				"error", err.Error())
			break
		}
	}

	g.logger.LogError(lastErr, "AI operation failed after all retry attempts",
		"operation", operation,
		"total_attempts", maxRetries+1)

	return nil, fmt.Errorf("operation '%s' failed after %d retries: %w", operation, maxRetries, lastErr)
}

// backoff is exponential with up to 10% jitter, capped at maxBackoff
func (g *GeminiProvider) backoff(attempt int) time.Duration {
	base := g.retryBaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * base

	if jitterMax := int64(float64(delay) * 0.1); jitterMax > 0 {
		if jitter, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			delay += time.Duration(jitter.Int64())
		}
	}
	return min(delay, maxBackoff)
}

// isRetryableError reports whether err is worth another attempt: network
// failures and throttling or server-side statuses
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}

	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// CircuitBreakerStats returns circuit breaker statistics
func (g *GeminiProvider) CircuitBreakerStats() map[string]any {
	return map[string]any{
		"match":           g.circuitBreaker.Stats(),
		"model":           g.modelBreaker.Stats(),
		"overall_healthy": g.circuitBreaker.IsHealthy() && g.modelBreaker.IsHealthy(),
	}
}

// Close implements Provider
func (g *GeminiProvider) Close() error {
	return nil
}

// buildMatchSchema creates the structured output schema for match requests
func (g *GeminiProvider) buildMatchSchema() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"matchScore": {Type: genai.TypeNumber},
				"matchedKeywords": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
				"missingKeywords": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
				"summary":         {Type: genai.TypeString},
				"jobTitle":        {Type: genai.TypeString},
				"feedback":        {Type: genai.TypeString},
				"optimizedResume": {Type: genai.TypeString},
				"coverLetter":     {Type: genai.TypeString},
			},
			Required: []string{"matchScore", "matchedKeywords", "missingKeywords", "summary"},
		},
	}

	if g.config.Temperature > 0 {
		temperature := g.config.Temperature
		cfg.Temperature = &temperature
	}

	return cfg
}

// matchResponse is the JSON shape requested from the model
type matchResponse struct {
	MatchScore      float64  `json:"matchScore"`
	MatchedKeywords []string `json:"matchedKeywords"`
	MissingKeywords []string `json:"missingKeywords"`
	Summary         string   `json:"summary"`
	JobTitle        string   `json:"jobTitle"`
	Feedback        string   `json:"feedback"`
	OptimizedResume string   `json:"optimizedResume"`
	CoverLetter     string   `json:"coverLetter"`
}

// parseMatchResponse converts model output into a result. Scores are clamped
// to 0-100 and keywords are trimmed and deduplicated.
func parseMatchResponse(text string) (types.AnalysisResult, error) {
	var out matchResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return types.AnalysisResult{}, resumatchErrors.NewAIError("AI_RESPONSE_PARSE_FAILED",
			"Failed to parse AI response for match", err)
	}

	return types.AnalysisResult{
		MatchScore:      math.Round(min(max(out.MatchScore, 0), 100)*10) / 10,
		MatchedKeywords: cleanKeywords(out.MatchedKeywords),
		MissingKeywords: cleanKeywords(out.MissingKeywords),
		Summary:         strings.TrimSpace(out.Summary),
		JobTitle:        strings.TrimSpace(out.JobTitle),
		Feedback:        strings.TrimSpace(out.Feedback),
		OptimizedResume: strings.TrimSpace(out.OptimizedResume),
		CoverLetter:     strings.TrimSpace(out.CoverLetter),
	}, nil
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
