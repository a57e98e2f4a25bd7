package nudge

import (
	"strings"
	"time"
)

// Application statuses. Terminal ones never need rescuing.
const (
	AppStatusSaved     = "saved"
	AppStatusApplied   = "applied"
	AppStatusScreening = "screening"
	AppStatusInterview = "interview"
	AppStatusOffer     = "offer"
	AppStatusAccepted  = "accepted"
	AppStatusRejected  = "rejected"
	AppStatusWithdrawn = "withdrawn"
	AppStatusArchived  = "archived"
)

var terminalAppStatuses = map[string]bool{
	AppStatusAccepted:  true,
	AppStatusRejected:  true,
	AppStatusWithdrawn: true,
	AppStatusArchived:  true,
}

// Interview statuses.
const (
	InterviewScheduled = "scheduled"
	InterviewCompleted = "completed"
	InterviewCancelled = "cancelled"
)

// Document kinds.
const (
	DocumentResume      = "resume"
	DocumentCoverLetter = "cover_letter"
)

// Application is a tracked job application.
type Application struct {
	ID               string    `json:"id"`
	Company          string    `json:"company"`
	Title            string    `json:"title"`
	Status           string    `json:"status"`
	AppliedAt        time.Time `json:"applied_at"`
	LastStatusChange time.Time `json:"last_status_change"`
}

// Terminal reports whether the application reached a final state.
func (a Application) Terminal() bool {
	return terminalAppStatuses[strings.ToLower(a.Status)]
}

// Interview is a scheduled interview, optionally tied to an application.
type Interview struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id,omitempty"`
	Company       string    `json:"company"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Status        string    `json:"status"`
}

// Goal is a user career goal with progress in percent.
type Goal struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Progress  int       `json:"progress"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile holds the fields whose emptiness makes a profile incomplete.
type Profile struct {
	Headline    string   `json:"headline"`
	Summary     string   `json:"summary"`
	Location    string   `json:"location"`
	Phone       string   `json:"phone"`
	LinkedInURL string   `json:"linkedin_url"`
	Skills      []string `json:"skills"`
}

// MissingFields lists empty required profile fields in a fixed order.
func (p Profile) MissingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("headline", p.Headline)
	check("summary", p.Summary)
	check("location", p.Location)
	check("phone", p.Phone)
	check("linkedin_url", p.LinkedInURL)
	if len(p.Skills) == 0 {
		missing = append(missing, "skills")
	}
	return missing
}

// Document is a resume or cover letter with a quality signal in 0..100.
type Document struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Title        string    `json:"title"`
	QualityScore int       `json:"quality_score"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot is the immutable bundle of facts one evaluation pass reads.
// Missing collections mean "absent", never an error.
type Snapshot struct {
	UserID       string
	Now          time.Time
	Location     *time.Location
	Applications []Application
	Interviews   []Interview
	Goals        []Goal
	Profile      Profile
	Documents    []Document
	TargetSkills []string
	LastActiveAt *time.Time
}

// LocalNow returns Now in the user's timezone.
func (s *Snapshot) LocalNow() time.Time {
	if s.Location == nil {
		return s.Now.UTC()
	}
	return s.Now.In(s.Location)
}

// Resumes returns resume documents only.
func (s *Snapshot) Resumes() []Document {
	return s.documents(DocumentResume)
}

// CoverLetters returns cover letter documents only.
func (s *Snapshot) CoverLetters() []Document {
	return s.documents(DocumentCoverLetter)
}

func (s *Snapshot) documents(kind string) []Document {
	var res []Document
	for _, d := range s.Documents {
		if strings.EqualFold(d.Kind, kind) {
			res = append(res, d)
		}
	}
	return res
}

// OpenApplications returns non-terminal applications.
func (s *Snapshot) OpenApplications() []Application {
	var res []Application
	for _, a := range s.Applications {
		if !a.Terminal() {
			res = append(res, a)
		}
	}
	return res
}

// ActiveGoals returns goals that are not completed.
func (s *Snapshot) ActiveGoals() []Goal {
	var res []Goal
	for _, g := range s.Goals {
		if !g.Completed {
			res = append(res, g)
		}
	}
	return res
}
