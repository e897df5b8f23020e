package types

import "time"

// AnalysisRequest represents the input for a resume/job description match
type AnalysisRequest struct {
	ResumeFilename          string `json:"resume_filename"`
	Resume                  []byte `json:"-"`
	JobDescription          string `json:"job_description"`
	GenerateFeedback        bool   `json:"generate_feedback"`
	GenerateOptimizedResume bool   `json:"generate_optimized_resume"`
	GenerateCoverLetter     bool   `json:"generate_cover_letter"`
}

// AnalysisResult represents the scored match between a resume and a job description
type AnalysisResult struct {
	ID               int64     `json:"id,omitempty"`
	MatchScore       float64   `json:"match_score"` // 0-100
	MatchedKeywords  []string  `json:"matched_keywords"`
	MissingKeywords  []string  `json:"missing_keywords"`
	Summary          string    `json:"summary,omitempty"`
	Feedback         string    `json:"feedback,omitempty"`
	OptimizedResume  string    `json:"optimized_resume,omitempty"`
	CoverLetter      string    `json:"cover_letter,omitempty"`
	ResumeFilename   string    `json:"resume_filename,omitempty"`
	JobTitle         string    `json:"job_title,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitzero"`
	ProcessingTimeMs int64     `json:"processing_time_ms,omitempty"`
}

// AnalysisSubmission is the payload of a terminal "complete" frame.
// Some backends inline the result, others only return the id.
type AnalysisSubmission struct {
	AnalysisID int64           `json:"analysis_id"`
	Result     *AnalysisResult `json:"result,omitempty"`
}

// AnalysisSummary is one entry of the analysis history
type AnalysisSummary struct {
	ID             int64     `json:"id"`
	MatchScore     float64   `json:"match_score"`
	ResumeFilename string    `json:"resume_filename,omitempty"`
	JobTitle       string    `json:"job_title,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
}

// ApplicationStatus is the lifecycle state of a tracked job application
type ApplicationStatus string

const (
	StatusSaved     ApplicationStatus = "saved"
	StatusApplied   ApplicationStatus = "applied"
	StatusInterview ApplicationStatus = "interview"
	StatusOffer     ApplicationStatus = "offer"
	StatusRejected  ApplicationStatus = "rejected"
	StatusWithdrawn ApplicationStatus = "withdrawn"
)

// ApplicationStatuses lists every known status in pipeline order
var ApplicationStatuses = []ApplicationStatus{
	StatusSaved, StatusApplied, StatusInterview, StatusOffer, StatusRejected, StatusWithdrawn,
}

// Valid reports whether s is one of the known statuses
func (s ApplicationStatus) Valid() bool {
	for _, known := range ApplicationStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Application represents a tracked job application
type Application struct {
	ID          int64             `json:"id,omitempty"`
	Company     string            `json:"company"`
	Position    string            `json:"position"`
	Status      ApplicationStatus `json:"status"`
	JobURL      string            `json:"job_url,omitempty"`
	Location    string            `json:"location,omitempty"`
	Salary      string            `json:"salary,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	AnalysisID  int64             `json:"analysis_id,omitempty"`
	AppliedDate string            `json:"applied_date,omitempty"`
	CreatedAt   time.Time         `json:"created_at,omitzero"`
	UpdatedAt   time.Time         `json:"updated_at,omitzero"`
}

// ApplicationUpdate carries the fields to change on an application.
// Nil fields are left untouched by the backend.
type ApplicationUpdate struct {
	Company     *string            `json:"company,omitempty"`
	Position    *string            `json:"position,omitempty"`
	Status      *ApplicationStatus `json:"status,omitempty"`
	JobURL      *string            `json:"job_url,omitempty"`
	Location    *string            `json:"location,omitempty"`
	Salary      *string            `json:"salary,omitempty"`
	Notes       *string            `json:"notes,omitempty"`
	AppliedDate *string            `json:"applied_date,omitempty"`
}

// ApplicationFilter narrows an application listing
type ApplicationFilter struct {
	Status ApplicationStatus
	Search string
}

// ApplicationStats summarises the application pipeline
type ApplicationStats struct {
	Total         int                       `json:"total"`
	ByStatus      map[ApplicationStatus]int `json:"by_status"`
	ResponseRate  float64                   `json:"response_rate"`  // percent
	InterviewRate float64                   `json:"interview_rate"` // percent
	OfferRate     float64                   `json:"offer_rate"`     // percent
}

// User is the signed-in account
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// RegisterInput is the payload for account creation
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// AuthResponse is returned by login and register
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	User        *User  `json:"user,omitempty"`
}

// BillingStatus is shown as provided by the server; no plan logic lives here
type BillingStatus struct {
	Plan               string     `json:"plan"`
	Status             string     `json:"status"`
	IsActive           bool       `json:"is_active"`
	AnalysesUsed       int        `json:"analyses_used"`
	AnalysesLimit      *int       `json:"analyses_limit,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	HasStripeCustomer  bool       `json:"has_stripe_customer"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	PassExpiresAt      *time.Time `json:"pass_expires_at,omitempty"`
	SubscriptionSource string     `json:"subscription_source,omitempty"`
}

// Dashboard aggregates the data shown on the account overview
type Dashboard struct {
	User             User              `json:"user"`
	Stats            ApplicationStats  `json:"stats"`
	Billing          BillingStatus     `json:"billing"`
	RecentAnalyses   []AnalysisSummary `json:"recent_analyses"`
	AverageScore     float64           `json:"average_score"`
	AnalysesThisWeek int               `json:"analyses_this_week"`
}
