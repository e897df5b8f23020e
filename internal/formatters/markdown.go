package formatters

import (
	"fmt"
	"strings"

	"resumatch/internal/types"
)

func markdownFormatters() []Formatter {
	return []Formatter{
		newTyped("AnalysisResult", analysisMarkdown),
		newTyped("AnalysisSubmission", submissionMarkdown),
		newTyped("AnalysisList", analysisListMarkdown),
		newTyped("Application", applicationMarkdown),
		newTyped("ApplicationList", applicationListMarkdown),
		newTyped("ApplicationStats", statsMarkdown),
		newTyped("BillingStatus", billingMarkdown),
		newTyped("Dashboard", dashboardMarkdown),
		newTyped("User", userMarkdown),
	}
}

func analysisMarkdown(result types.AnalysisResult) string {
	var output strings.Builder

	title := "Match Analysis"
	if result.JobTitle != "" {
		title += ": " + result.JobTitle
	}
	output.WriteString("# " + title + "\n\n")
	output.WriteString(fmt.Sprintf("**Score:** %.0f/100\n\n", result.MatchScore))
	if result.ResumeFilename != "" {
		output.WriteString(fmt.Sprintf("**Resume:** %s\n\n", result.ResumeFilename))
	}
	if result.Summary != "" {
		output.WriteString(result.Summary)
		output.WriteString("\n\n")
	}

	output.WriteString("## Keywords\n\n")
	output.WriteString("### Matched\n")
	output.WriteString(bulletList(result.MatchedKeywords))
	output.WriteString("\n### Missing\n")
	output.WriteString(bulletList(result.MissingKeywords))

	sections := []struct{ title, body string }{
		{"Feedback", result.Feedback},
		{"Optimized Resume", result.OptimizedResume},
		{"Cover Letter", result.CoverLetter},
	}
	for _, s := range sections {
		if s.body == "" {
			continue
		}
		output.WriteString(fmt.Sprintf("\n## %s\n\n", s.title))
		output.WriteString(s.body)
		output.WriteString("\n")
	}

	return output.String()
}

func submissionMarkdown(sub types.AnalysisSubmission) string {
	if sub.Result != nil {
		result := *sub.Result
		if result.ID == 0 {
			result.ID = sub.AnalysisID
		}
		return analysisMarkdown(result)
	}
	if sub.AnalysisID == 0 {
		return "**Analysis complete.**\n"
	}
	return fmt.Sprintf("**Analysis complete:** #%d\n\nRun `resumatch analysis get %d` to view the result.\n",
		sub.AnalysisID, sub.AnalysisID)
}

func analysisListMarkdown(list []types.AnalysisSummary) string {
	if len(list) == 0 {
		return "_No analyses yet._\n"
	}

	var output strings.Builder
	output.WriteString("| ID | Score | Date | Job | Resume |\n")
	output.WriteString("|---:|---:|---|---|---|\n")
	for _, a := range list {
		output.WriteString(fmt.Sprintf("| %d | %.0f | %s | %s | %s |\n",
			a.ID, a.MatchScore, formatDate(a.CreatedAt), cell(a.JobTitle), cell(a.ResumeFilename)))
	}
	return output.String()
}

func applicationMarkdown(app types.Application) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("# %s at %s\n\n", app.Position, app.Company))
	output.WriteString(fmt.Sprintf("- **Status:** %s\n", app.Status))
	optional := []struct{ label, value string }{
		{"Location", app.Location},
		{"Salary", app.Salary},
		{"Applied", app.AppliedDate},
	}
	for _, o := range optional {
		if o.value != "" {
			output.WriteString(fmt.Sprintf("- **%s:** %s\n", o.label, o.value))
		}
	}
	if app.JobURL != "" {
		output.WriteString(fmt.Sprintf("- **Job posting:** <%s>\n", app.JobURL))
	}
	if app.AnalysisID != 0 {
		output.WriteString(fmt.Sprintf("- **Analysis:** #%d\n", app.AnalysisID))
	}
	if app.Notes != "" {
		output.WriteString("\n## Notes\n\n")
		output.WriteString(app.Notes)
		output.WriteString("\n")
	}
	return output.String()
}

func applicationListMarkdown(apps []types.Application) string {
	if len(apps) == 0 {
		return "_No applications found._\n"
	}

	var output strings.Builder
	output.WriteString("| ID | Company | Position | Status | Applied |\n")
	output.WriteString("|---:|---|---|---|---|\n")
	for _, a := range apps {
		output.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			a.ID, cell(a.Company), cell(a.Position), a.Status, cell(a.AppliedDate)))
	}
	return output.String()
}

func statsMarkdown(stats types.ApplicationStats) string {
	var output strings.Builder

	output.WriteString("## Application Pipeline\n\n")
	output.WriteString(fmt.Sprintf("**Total:** %d\n\n", stats.Total))
	output.WriteString("| Status | Count |\n")
	output.WriteString("|---|---:|\n")
	for _, status := range types.ApplicationStatuses {
		output.WriteString(fmt.Sprintf("| %s | %d |\n", status, stats.ByStatus[status]))
	}
	output.WriteString("\n")
	output.WriteString(fmt.Sprintf("- **Response rate:** %.1f%%\n", stats.ResponseRate))
	output.WriteString(fmt.Sprintf("- **Interview rate:** %.1f%%\n", stats.InterviewRate))
	output.WriteString(fmt.Sprintf("- **Offer rate:** %.1f%%\n", stats.OfferRate))
	return output.String()
}

func billingMarkdown(b types.BillingStatus) string {
	var output strings.Builder

	output.WriteString("## Billing\n\n")
	output.WriteString(fmt.Sprintf("- **Plan:** %s\n", b.Plan))
	output.WriteString(fmt.Sprintf("- **Status:** %s\n", b.Status))
	output.WriteString(fmt.Sprintf("- **Active:** %s\n", yesNo(b.IsActive)))
	output.WriteString(fmt.Sprintf("- **Usage:** %s\n", usage(b)))
	if b.CurrentPeriodEnd != nil {
		label := "Renews"
		if b.CancelAtPeriodEnd {
			label = "Ends"
		}
		output.WriteString(fmt.Sprintf("- **%s:** %s\n", label, formatDate(*b.CurrentPeriodEnd)))
	}
	if b.TrialEndsAt != nil {
		output.WriteString(fmt.Sprintf("- **Trial ends:** %s\n", formatDate(*b.TrialEndsAt)))
	}
	if b.PassExpiresAt != nil {
		output.WriteString(fmt.Sprintf("- **Pass expires:** %s\n", formatDate(*b.PassExpiresAt)))
	}
	return output.String()
}

func dashboardMarkdown(d types.Dashboard) string {
	var output strings.Builder

	name := d.User.FullName
	if name == "" {
		name = d.User.Email
	}
	output.WriteString(fmt.Sprintf("# Dashboard: %s\n\n", name))
	output.WriteString(fmt.Sprintf("- **Analyses this week:** %d\n", d.AnalysesThisWeek))
	output.WriteString(fmt.Sprintf("- **Average score:** %.1f\n", d.AverageScore))
	output.WriteString(fmt.Sprintf("- **Plan:** %s (%s)\n\n", d.Billing.Plan, usage(d.Billing)))

	output.WriteString(statsMarkdown(d.Stats))
	output.WriteString("\n## Recent Analyses\n\n")
	output.WriteString(analysisListMarkdown(d.RecentAnalyses))
	return output.String()
}

func userMarkdown(u types.User) string {
	var output strings.Builder
	output.WriteString(fmt.Sprintf("Signed in as **%s**\n", u.Email))
	if u.FullName != "" {
		output.WriteString(fmt.Sprintf("\n- **Name:** %s\n", u.FullName))
	}
	if !u.CreatedAt.IsZero() {
		output.WriteString(fmt.Sprintf("- **Member since:** %s\n", formatDate(u.CreatedAt)))
	}
	return output.String()
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "_none_\n"
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
	return b.String()
}

// cell escapes pipes so values cannot break a table row
func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}
