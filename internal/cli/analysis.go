package cli

import (
	"fmt"
	"strconv"

	"resumatch/internal/client"
	"resumatch/internal/errors"
	"resumatch/internal/types"

	"github.com/spf13/cobra"
)

var analysisCmd = &cobra.Command{
	Use:     "analysis",
	Aliases: []string{"analyses"},
	Short:   "Browse stored analyses",
}

var analysisGetCmd = fetchCommand("get [id]", "Show a stored analysis", cobra.ExactArgs(1),
	func(cmd *cobra.Command, c *client.Client, args []string) (*types.AnalysisResult, error) {
		id, err := parseID(args[0])
		if err != nil {
			return nil, err
		}
		return c.GetAnalysis(cmd.Context(), id)
	})

var analysisListCmd = fetchCommand("list", "List past analyses", cobra.NoArgs,
	func(cmd *cobra.Command, c *client.Client, args []string) ([]types.AnalysisSummary, error) {
		return c.ListAnalyses(cmd.Context())
	})

func init() {
	analysisCmd.AddCommand(analysisGetCmd)
	analysisCmd.AddCommand(analysisListCmd)
}

// parseID reads a positive numeric id argument
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid id %q, expected a positive number", arg), err)
	}
	return id, nil
}
