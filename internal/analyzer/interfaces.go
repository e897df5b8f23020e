// Package analyzer scores a resume against a job description locally with
// Gemini. Its output has the same shape as the backend's analysis result.
package analyzer

import (
	"context"

	"resumatch/internal/types"
)

// Provider produces an analysis result for one resume/job description pair
type Provider interface {
	Match(ctx context.Context, input MatchInput) (types.AnalysisResult, *TokenUsage, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	Close() error
}

// MatchInput is the material for one analysis
type MatchInput struct {
	ResumeFilename string
	Resume         []byte
	JobDescription string

	GenerateFeedback        bool
	GenerateOptimizedResume bool
	GenerateCoverLetter     bool
}

// InputFromRequest converts a backend analysis request
func InputFromRequest(req types.AnalysisRequest) MatchInput {
	return MatchInput{
		ResumeFilename:          req.ResumeFilename,
		Resume:                  req.Resume,
		JobDescription:          req.JobDescription,
		GenerateFeedback:        req.GenerateFeedback,
		GenerateOptimizedResume: req.GenerateOptimizedResume,
		GenerateCoverLetter:     req.GenerateCoverLetter,
	}
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}
