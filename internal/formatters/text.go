package formatters

import (
	"fmt"
	"strings"
	"time"

	"resumatch/internal/types"
)

const dateLayout = "2006-01-02"

func textFormatters() []Formatter {
	return []Formatter{
		newTyped("AnalysisResult", analysisText),
		newTyped("AnalysisSubmission", submissionText),
		newTyped("AnalysisList", analysisListText),
		newTyped("Application", applicationText),
		newTyped("ApplicationList", applicationListText),
		newTyped("ApplicationStats", statsText),
		newTyped("BillingStatus", billingText),
		newTyped("Dashboard", dashboardText),
		newTyped("User", userText),
	}
}

func analysisText(result types.AnalysisResult) string {
	var output strings.Builder

	output.WriteString("=== MATCH ANALYSIS ===\n")
	if result.ID != 0 {
		output.WriteString(fmt.Sprintf("Analysis: #%d\n", result.ID))
	}
	if result.JobTitle != "" {
		output.WriteString(fmt.Sprintf("Job: %s\n", result.JobTitle))
	}
	if result.ResumeFilename != "" {
		output.WriteString(fmt.Sprintf("Resume: %s\n", result.ResumeFilename))
	}
	output.WriteString(fmt.Sprintf("Score: %.0f/100\n\n", result.MatchScore))

	if result.Summary != "" {
		output.WriteString("Summary:\n")
		output.WriteString(result.Summary)
		output.WriteString("\n\n")
	}

	output.WriteString("Matched keywords: ")
	output.WriteString(joinOrNone(result.MatchedKeywords))
	output.WriteString("\n")
	output.WriteString("Missing keywords: ")
	output.WriteString(joinOrNone(result.MissingKeywords))
	output.WriteString("\n")

	sections := []struct{ title, body string }{
		{"FEEDBACK", result.Feedback},
		{"OPTIMIZED RESUME", result.OptimizedResume},
		{"COVER LETTER", result.CoverLetter},
	}
	for _, s := range sections {
		if s.body == "" {
			continue
		}
		output.WriteString(fmt.Sprintf("\n=== %s ===\n\n", s.title))
		output.WriteString(s.body)
		output.WriteString("\n")
	}

	return output.String()
}

func submissionText(sub types.AnalysisSubmission) string {
	if sub.Result != nil {
		result := *sub.Result
		if result.ID == 0 {
			result.ID = sub.AnalysisID
		}
		return analysisText(result)
	}
	if sub.AnalysisID == 0 {
		return "Analysis complete.\n"
	}
	return fmt.Sprintf("Analysis complete: #%d\nRun 'resumatch analysis get %d' to view the result.\n",
		sub.AnalysisID, sub.AnalysisID)
}

func analysisListText(list []types.AnalysisSummary) string {
	if len(list) == 0 {
		return "No analyses yet.\n"
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("%-6s %-6s %-12s %-30s %s\n", "ID", "SCORE", "DATE", "JOB", "RESUME"))
	for _, a := range list {
		output.WriteString(fmt.Sprintf("%-6d %-6.0f %-12s %-30s %s\n",
			a.ID, a.MatchScore, formatDate(a.CreatedAt), truncate(a.JobTitle, 30), a.ResumeFilename))
	}
	return output.String()
}

func applicationText(app types.Application) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("=== APPLICATION #%d ===\n", app.ID))
	output.WriteString(fmt.Sprintf("Company: %s\n", app.Company))
	output.WriteString(fmt.Sprintf("Position: %s\n", app.Position))
	output.WriteString(fmt.Sprintf("Status: %s\n", app.Status))
	optional := []struct{ label, value string }{
		{"Location", app.Location},
		{"Salary", app.Salary},
		{"Applied", app.AppliedDate},
		{"Job URL", app.JobURL},
	}
	for _, o := range optional {
		if o.value != "" {
			output.WriteString(fmt.Sprintf("%s: %s\n", o.label, o.value))
		}
	}
	if app.AnalysisID != 0 {
		output.WriteString(fmt.Sprintf("Analysis: #%d\n", app.AnalysisID))
	}
	if app.Notes != "" {
		output.WriteString("\nNotes:\n")
		output.WriteString(app.Notes)
		output.WriteString("\n")
	}
	return output.String()
}

func applicationListText(apps []types.Application) string {
	if len(apps) == 0 {
		return "No applications found.\n"
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("%-6s %-24s %-28s %-10s %s\n", "ID", "COMPANY", "POSITION", "STATUS", "APPLIED"))
	for _, a := range apps {
		output.WriteString(fmt.Sprintf("%-6d %-24s %-28s %-10s %s\n",
			a.ID, truncate(a.Company, 24), truncate(a.Position, 28), a.Status, a.AppliedDate))
	}
	return output.String()
}

func statsText(stats types.ApplicationStats) string {
	var output strings.Builder

	output.WriteString("=== APPLICATION PIPELINE ===\n")
	output.WriteString(fmt.Sprintf("Total: %d\n\n", stats.Total))
	for _, status := range types.ApplicationStatuses {
		output.WriteString(fmt.Sprintf("  %-10s %d\n", status, stats.ByStatus[status]))
	}
	output.WriteString("\n")
	output.WriteString(fmt.Sprintf("Response rate:  %.1f%%\n", stats.ResponseRate))
	output.WriteString(fmt.Sprintf("Interview rate: %.1f%%\n", stats.InterviewRate))
	output.WriteString(fmt.Sprintf("Offer rate:     %.1f%%\n", stats.OfferRate))
	return output.String()
}

func billingText(b types.BillingStatus) string {
	var output strings.Builder

	output.WriteString("=== BILLING ===\n")
	output.WriteString(fmt.Sprintf("Plan: %s\n", b.Plan))
	output.WriteString(fmt.Sprintf("Status: %s\n", b.Status))
	output.WriteString(fmt.Sprintf("Active: %s\n", yesNo(b.IsActive)))
	output.WriteString(fmt.Sprintf("Usage: %s\n", usage(b)))
	if b.CurrentPeriodEnd != nil {
		label := "Renews"
		if b.CancelAtPeriodEnd {
			label = "Ends"
		}
		output.WriteString(fmt.Sprintf("%s: %s\n", label, formatDate(*b.CurrentPeriodEnd)))
	}
	if b.TrialEndsAt != nil {
		output.WriteString(fmt.Sprintf("Trial ends: %s\n", formatDate(*b.TrialEndsAt)))
	}
	if b.PassExpiresAt != nil {
		output.WriteString(fmt.Sprintf("Pass expires: %s\n", formatDate(*b.PassExpiresAt)))
	}
	if b.SubscriptionSource != "" {
		output.WriteString(fmt.Sprintf("Source: %s\n", b.SubscriptionSource))
	}
	return output.String()
}

func dashboardText(d types.Dashboard) string {
	var output strings.Builder

	name := d.User.FullName
	if name == "" {
		name = d.User.Email
	}
	output.WriteString(fmt.Sprintf("=== DASHBOARD: %s ===\n\n", name))
	output.WriteString(fmt.Sprintf("Analyses this week: %d\n", d.AnalysesThisWeek))
	output.WriteString(fmt.Sprintf("Average score: %.1f\n", d.AverageScore))
	output.WriteString(fmt.Sprintf("Plan: %s (%s)\n\n", d.Billing.Plan, usage(d.Billing)))

	output.WriteString(statsText(d.Stats))
	output.WriteString("\n=== RECENT ANALYSES ===\n")
	output.WriteString(analysisListText(d.RecentAnalyses))
	return output.String()
}

func userText(u types.User) string {
	var output strings.Builder
	output.WriteString(fmt.Sprintf("Signed in as %s\n", u.Email))
	if u.FullName != "" {
		output.WriteString(fmt.Sprintf("Name: %s\n", u.FullName))
	}
	if !u.CreatedAt.IsZero() {
		output.WriteString(fmt.Sprintf("Member since: %s\n", formatDate(u.CreatedAt)))
	}
	return output.String()
}

func usage(b types.BillingStatus) string {
	if b.AnalysesLimit == nil {
		return fmt.Sprintf("%d analyses (unlimited)", b.AnalysesUsed)
	}
	return fmt.Sprintf("%d/%d analyses", b.AnalysesUsed, *b.AnalysesLimit)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
