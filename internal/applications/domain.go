package applications

import (
	"time"

	"github.com/haven-community/haven/internal/access"
)

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

const (
	StatusPending  SubmissionStatus = "pending"
	StatusAccepted SubmissionStatus = "accepted"
	StatusDenied   SubmissionStatus = "denied"
)

// Question is one entry of a form's ordered question list, stored as
// JSONB alongside the form.
type Question struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	Required bool   `json:"required"`
}

// Form is a role-gated application form.
type Form struct {
	ID              int64
	Title           string
	Description     string
	AdminRoleID     *string
	ModeratorRoleID *string
	ViewerRoleID    *string
	IsActive        bool
	Questions       []Question
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Access converts the row into the evaluator's form view.
func (f Form) Access() access.Form {
	return access.Form{ID: f.ID, AdminRoleID: f.AdminRoleID, ModeratorRoleID: f.ModeratorRoleID, ViewerRoleID: f.ViewerRoleID}
}

// Submission is a user's answer set for a form.
type Submission struct {
	ID           int64
	FormID       int64
	UserID       string
	Answers      map[string]string
	Status       SubmissionStatus
	DecidedBy    *string
	DecidedAt    *time.Time
	DecisionNote string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FormInput carries the fields for creating or updating a form.
type FormInput struct {
	Title           string
	Description     string
	AdminRoleID     *string
	ModeratorRoleID *string
	ViewerRoleID    *string
	IsActive        bool
	Questions       []Question
}
