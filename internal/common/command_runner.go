package common

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"resumatch/internal/errors"
	"resumatch/internal/stream"
	"resumatch/internal/types"
)

// FetchFunc loads the data a command prints
type FetchFunc[Output any] func(ctx context.Context) (Output, error)

// RunFetchCommand runs fetch and writes its result with the configured format
func RunFetchCommand[Output any](
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	fetch FetchFunc[Output],
) error {
	result, err := fetch(ctx)
	if err != nil {
		return err
	}
	return NewOutputHandler(logger).HandleOutput(result, cmdConfig)
}

// AnalyzeFunc runs one analysis, passing intermediate frames to onFrame, and
// returns the decoded submission
type AnalyzeFunc func(ctx context.Context, req types.AnalysisRequest, onFrame func(stream.Frame)) (*types.AnalysisSubmission, error)

// AnalysisCommand describes one streamed analysis run from the CLI
type AnalysisCommand struct {
	Request types.AnalysisRequest
	Analyze AnalyzeFunc

	// Progress receives a line per intermediate frame; nil disables it
	Progress io.Writer
}

// RunAnalysisCommand runs the analysis, shows its progress and writes the
// final submission with the configured format
func RunAnalysisCommand(
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	cmd AnalysisCommand,
) error {
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	logger.Info("Starting analysis",
		"resume", cmd.Request.ResumeFilename,
		"feedback", cmd.Request.GenerateFeedback,
		"optimized_resume", cmd.Request.GenerateOptimizedResume,
		"cover_letter", cmd.Request.GenerateCoverLetter,
		"format", cmdConfig.OutputFormat)

	reporter := NewProgressReporter(cmd.Progress)
	submission, err := cmd.Analyze(ctx, cmd.Request, reporter.OnFrame)
	reporter.Finish()
	if err != nil {
		if submission == nil {
			return err
		}
		// The analysis is stored but its result could not be fetched
		logger.Warn("Analysis finished without a full result",
			"analysis_id", submission.AnalysisID, "error", err)
	}

	logger.Info("Analysis finished", "analysis_id", submission.AnalysisID)
	return NewOutputHandler(logger).HandleOutput(submission, cmdConfig)
}

// ProgressReporter writes one line per intermediate frame
type ProgressReporter struct {
	mu    sync.Mutex
	w     io.Writer
	lines int
}

// NewProgressReporter writes to w; a nil w discards everything
func NewProgressReporter(w io.Writer) *ProgressReporter {
	return &ProgressReporter{w: w}
}

// OnFrame prints the frame as "[ 42%] message"
func (p *ProgressReporter) OnFrame(frame stream.Frame) {
	if p.w == nil {
		return
	}

	text := frame.Message
	if text == "" {
		text = strings.ReplaceAll(frame.Stage, "_", " ")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pct, ok := frame.Percent(); ok {
		fmt.Fprintf(p.w, "[%3.0f%%] %s\n", pct, text)
	} else {
		fmt.Fprintf(p.w, "[ -- ] %s\n", text)
	}
	p.lines++
}

// Finish separates progress from the result that follows
func (p *ProgressReporter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w != nil && p.lines > 0 {
		fmt.Fprintln(p.w)
	}
}
