package analyzer

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used unless a custom system prompt is configured
const DefaultSystemPrompt = `You are an experienced technical recruiter and ATS (Applicant Tracking System) analyst with a strict commitment to honesty and accuracy. Your core principles are:

- Score only what is present in the resume; never assume unstated skills
- Every matched keyword must appear in both the resume and the job description
- Every missing keyword must appear in the job description and be absent from the resume
- When rewriting, NEVER invent, exaggerate, or misattribute experience`

// DefaultUserPrompt is the user prompt template. The first %s is the job
// description, the second the list of requested extras.
const DefaultUserPrompt = `Compare the attached resume with the job description below.

**Tasks:**

1. **Match Score**:
   Give a score from 0 to 100 for how well the resume matches the role, the way an ATS would.

2. **Keyword Gap Analysis**:
   List the important skills and keywords from the job description that the resume covers (matchedKeywords) and the ones it lacks (missingKeywords).

3. **Summary**:
   Two or three sentences on the overall fit.

%[2]s
**Job Description:**
-----
%[1]s
-----`

const resumeTextTemplate = `**Resume:**
-----
%s
-----`

// extrasSection lists the optional outputs requested by input
func extrasSection(input MatchInput) string {
	var extras []string
	if input.GenerateFeedback {
		extras = append(extras, "- **feedback**: concrete, prioritized suggestions to improve the resume for this role.")
	}
	if input.GenerateOptimizedResume {
		extras = append(extras, "- **optimizedResume**: the resume rewritten in Markdown to highlight relevant experience that is explicitly present in the original.")
	}
	if input.GenerateCoverLetter {
		extras = append(extras, "- **coverLetter**: a short cover letter for this role based only on the resume.")
	}
	if len(extras) == 0 {
		return "Leave feedback, optimizedResume and coverLetter empty.\n"
	}
	return "**Also provide:**\n" + strings.Join(extras, "\n") + "\n"
}

// buildUserPrompt formats template with the job description and extras.
// Templates without verbs get the job description appended.
func buildUserPrompt(template string, input MatchInput) string {
	if !strings.Contains(template, "%") {
		return template + "\n\n" + extrasSection(input) + "\n**Job Description:**\n-----\n" + input.JobDescription + "\n-----"
	}
	if strings.Contains(template, "%[2]s") {
		return fmt.Sprintf(template, input.JobDescription, extrasSection(input))
	}
	return fmt.Sprintf(template, input.JobDescription)
}

// resolvePrompt returns the configured prompt, falling back to the default
func resolvePrompt(configured, fallback string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	return fallback
}
