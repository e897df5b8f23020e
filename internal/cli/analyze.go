package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"resumatch/internal/analyzer"
	"resumatch/internal/client"
	"resumatch/internal/common"
	"resumatch/internal/stream"
	"resumatch/internal/types"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [resume-file] [job-description-file|-]",
	Short: "Score a resume against a job description",
	Long: `Upload a resume and a job description for analysis and follow the
progress live. Use "-" to read the job description from standard input.

The analysis includes:
- A 0-100 match score
- Matched and missing keywords
- Optional feedback, an optimized resume and a cover letter

With --local the analysis runs on this machine with Gemini instead of the
backend; nothing is stored and the result has no analysis id.`,
	Args: cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return resolveOutput(cmd, &analyzeConfig)
	},
	RunE: runAnalyze,
}

var (
	analyzeConfig  common.CommandConfig
	analyzeOptions common.AnalysisOptions
	analyzeLocal   bool
	analyzeQuiet   bool
)

func init() {
	addOutputFlags(analyzeCmd, &analyzeConfig)
	analyzeCmd.Flags().BoolVar(&analyzeOptions.Feedback, "feedback", false, "Include written feedback")
	analyzeCmd.Flags().BoolVar(&analyzeOptions.OptimizedResume, "optimize", false, "Include an optimized resume")
	analyzeCmd.Flags().BoolVar(&analyzeOptions.CoverLetter, "cover-letter", false, "Include a cover letter")
	analyzeCmd.Flags().BoolVar(&analyzeLocal, "local", false, "Analyze locally with Gemini instead of the backend")
	analyzeCmd.Flags().BoolVar(&analyzeQuiet, "no-progress", false, "Do not print progress to stderr")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	req, err := common.NewFileProcessor(logger, cfg.App.MaxFileSize).
		WithStdin(cmd.InOrStdin()).
		BuildAnalysisRequest(args[0], args[1], analyzeOptions)
	if err != nil {
		return err
	}

	var analyze common.AnalyzeFunc
	if analyzeLocal {
		svc, err := analyzer.NewService(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create analyzer: %w", err)
		}
		defer func() {
			if err := svc.Close(); err != nil {
				logger.Warn("Failed to close analyzer", "error", err)
			}
		}()
		analyze = localAnalyze(svc)
	} else {
		c, err := newAPIClient(ctx)
		if err != nil {
			return err
		}
		analyze = c.AnalyzeAndWait
	}

	var progress io.Writer = cmd.ErrOrStderr()
	if analyzeQuiet {
		progress = nil
	}

	err = common.RunAnalysisCommand(ctx, logger, analyzeConfig, common.AnalysisCommand{
		Request:  req,
		Analyze:  analyze,
		Progress: progress,
	})
	if err != nil {
		return fmt.Errorf("failed to analyze resume: %w", err)
	}
	return nil
}

// localAnalyze runs the analyzer's event stream in process and decodes its
// complete payload the same way a backend payload is decoded
func localAnalyze(svc *analyzer.Service) common.AnalyzeFunc {
	return func(ctx context.Context, req types.AnalysisRequest, onFrame func(stream.Frame)) (*types.AnalysisSubmission, error) {
		var (
			data   json.RawMessage
			failed error
		)
		svc.Stream(ctx, analyzer.InputFromRequest(req), stream.ObserverFuncs{
			Frame:    onFrame,
			Complete: func(d json.RawMessage) { data = d },
			Error:    func(err error) { failed = err },
		})
		if failed != nil {
			return nil, failed
		}
		return client.DecodeSubmission(data)
	}
}
