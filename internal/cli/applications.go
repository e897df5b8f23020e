package cli

import (
	"fmt"
	"strings"
	"time"

	"resumatch/internal/client"
	"resumatch/internal/export"
	"resumatch/internal/types"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var applicationsCmd = &cobra.Command{
	Use:     "applications",
	Aliases: []string{"apps"},
	Short:   "Track job applications",
}

var listFilter struct {
	status string
	search string
}

var applicationsListCmd = fetchCommand("list", "List tracked applications", cobra.NoArgs,
	func(cmd *cobra.Command, c *client.Client, args []string) ([]types.Application, error) {
		return c.ListApplications(cmd.Context(), types.ApplicationFilter{
			Status: types.ApplicationStatus(strings.ToLower(listFilter.status)),
			Search: listFilter.search,
		})
	})

var applicationsGetCmd = fetchCommand("get [id]", "Show one application", cobra.ExactArgs(1),
	func(cmd *cobra.Command, c *client.Client, args []string) (*types.Application, error) {
		id, err := parseID(args[0])
		if err != nil {
			return nil, err
		}
		return c.GetApplication(cmd.Context(), id)
	})

// applicationFields backs the add and update flags
type applicationFields struct {
	company, position, status, url, location, salary, notes, applied string
	analysisID                                                       int64
}

func (f *applicationFields) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.company, "company", "", "Company name")
	cmd.Flags().StringVar(&f.position, "position", "", "Position title")
	cmd.Flags().StringVar(&f.status, "status", "", "Status: "+statusList())
	cmd.Flags().StringVar(&f.url, "url", "", "Job posting URL")
	cmd.Flags().StringVar(&f.location, "location", "", "Location")
	cmd.Flags().StringVar(&f.salary, "salary", "", "Salary range")
	cmd.Flags().StringVar(&f.notes, "notes", "", "Free-form notes")
	cmd.Flags().StringVar(&f.applied, "applied", "", "Date applied (YYYY-MM-DD)")
}

var addFields applicationFields

var applicationsAddCmd = fetchCommand("add", "Track a new application", cobra.NoArgs,
	func(cmd *cobra.Command, c *client.Client, args []string) (*types.Application, error) {
		if err := validateAppliedDate(addFields.applied); err != nil {
			return nil, err
		}
		return c.CreateApplication(cmd.Context(), types.Application{
			Company:     addFields.company,
			Position:    addFields.position,
			Status:      types.ApplicationStatus(strings.ToLower(addFields.status)),
			JobURL:      addFields.url,
			Location:    addFields.location,
			Salary:      addFields.salary,
			Notes:       addFields.notes,
			AnalysisID:  addFields.analysisID,
			AppliedDate: addFields.applied,
		})
	})

var updateFields applicationFields

var applicationsUpdateCmd = fetchCommand("update [id]", "Change fields of an application", cobra.ExactArgs(1),
	func(cmd *cobra.Command, c *client.Client, args []string) (*types.Application, error) {
		id, err := parseID(args[0])
		if err != nil {
			return nil, err
		}
		if err := validateAppliedDate(updateFields.applied); err != nil {
			return nil, err
		}
		return c.UpdateApplication(cmd.Context(), id, buildUpdate(cmd, updateFields))
	})

var applicationsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Stop tracking an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := newAPIClient(cmd.Context())
		if err != nil {
			return err
		}
		if err := c.DeleteApplication(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted application #%d\n", id)
		return nil
	},
}

var applicationsStatsCmd = fetchCommand("stats", "Show pipeline statistics", cobra.NoArgs,
	func(cmd *cobra.Command, c *client.Client, args []string) (*types.ApplicationStats, error) {
		return c.ApplicationStats(cmd.Context())
	})

var applicationsExportCmd = &cobra.Command{
	Use:   "export [file.xlsx]",
	Short: "Export applications and statistics to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := getLoggerFromContext(ctx)
		c, err := newAPIClient(ctx)
		if err != nil {
			return err
		}

		var (
			apps  []types.Application
			stats *types.ApplicationStats
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			apps, err = c.ListApplications(gctx, types.ApplicationFilter{})
			return err
		})
		g.Go(func() error {
			var err error
			stats, err = c.ApplicationStats(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		path, err := export.ExportApplications(args[0], apps, *stats, time.Now())
		if err != nil {
			return err
		}
		logger.Info("Applications exported", "file", path, "rows", len(apps))
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d applications to %s\n", len(apps), path)
		return nil
	},
}

func init() {
	applicationsListCmd.Flags().StringVar(&listFilter.status, "status", "", "Only show applications with this status: "+statusList())
	applicationsListCmd.Flags().StringVar(&listFilter.search, "search", "", "Filter by company or position")

	addFields.register(applicationsAddCmd)
	applicationsAddCmd.Flags().Int64Var(&addFields.analysisID, "analysis", 0, "Link a stored analysis by id")
	_ = applicationsAddCmd.MarkFlagRequired("company")
	_ = applicationsAddCmd.MarkFlagRequired("position")

	updateFields.register(applicationsUpdateCmd)

	for _, cmd := range []*cobra.Command{applicationsAddCmd, applicationsUpdateCmd, applicationsListCmd} {
		_ = cmd.RegisterFlagCompletionFunc("status", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			statuses := make([]string, len(types.ApplicationStatuses))
			for i, s := range types.ApplicationStatuses {
				statuses[i] = string(s)
			}
			return statuses, cobra.ShellCompDirectiveNoFileComp
		})
	}

	applicationsCmd.AddCommand(applicationsListCmd)
	applicationsCmd.AddCommand(applicationsGetCmd)
	applicationsCmd.AddCommand(applicationsAddCmd)
	applicationsCmd.AddCommand(applicationsUpdateCmd)
	applicationsCmd.AddCommand(applicationsDeleteCmd)
	applicationsCmd.AddCommand(applicationsStatsCmd)
	applicationsCmd.AddCommand(applicationsExportCmd)
}

// buildUpdate turns the flags that were set into an update. Unset flags stay nil.
func buildUpdate(cmd *cobra.Command, f applicationFields) types.ApplicationUpdate {
	var update types.ApplicationUpdate
	set := func(name string, value string, dst **string) {
		if cmd.Flags().Changed(name) {
			v := value
			*dst = &v
		}
	}
	set("company", f.company, &update.Company)
	set("position", f.position, &update.Position)
	set("url", f.url, &update.JobURL)
	set("location", f.location, &update.Location)
	set("salary", f.salary, &update.Salary)
	set("notes", f.notes, &update.Notes)
	set("applied", f.applied, &update.AppliedDate)
	if cmd.Flags().Changed("status") {
		status := types.ApplicationStatus(strings.ToLower(f.status))
		update.Status = &status
	}
	return update
}

func validateAppliedDate(date string) error {
	if date == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid --applied date %q, expected YYYY-MM-DD", date)
	}
	return nil
}

func statusList() string {
	names := make([]string, len(types.ApplicationStatuses))
	for i, s := range types.ApplicationStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
