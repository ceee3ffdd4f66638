package applications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/db"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// Store defines the persistence contract the service needs.
type Store interface {
	ListForms(ctx context.Context) ([]Form, error)
	GetForm(ctx context.Context, id int64) (Form, error)
	CreateForm(ctx context.Context, in FormInput) (Form, error)
	UpdateForm(ctx context.Context, id int64, in FormInput) (Form, error)
	DeleteForm(ctx context.Context, id int64) error
	CreateSubmission(ctx context.Context, formID int64, userID string, answers map[string]string) (Submission, error)
	GetSubmission(ctx context.Context, id int64) (Submission, error)
	ListSubmissionsByForm(ctx context.Context, formID int64, status *SubmissionStatus) ([]Submission, error)
	ListSubmissionsByUser(ctx context.Context, userID string) ([]Submission, error)
	Decide(ctx context.Context, id int64, status SubmissionStatus, decidedBy, note string) (bool, error)
	HasPending(ctx context.Context, formID int64, userID string) (bool, error)
}

// Auditor records staff decisions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates application forms and submissions.
type Service struct {
	logger *slog.Logger
	repo   Store
	audit  Auditor
}

// NewService constructs a Service. audit may be nil in tests.
func NewService(logger *slog.Logger, repo Store, audit Auditor) *Service {
	return &Service{logger: logger, repo: repo, audit: audit}
}

// ListForms returns the forms the caller may at least submit to. Admins
// and form administrators also see inactive forms.
func (s *Service) ListForms(ctx context.Context, p access.Principal) ([]Form, error) {
	forms, err := s.repo.ListForms(ctx)
	if err != nil {
		return nil, err
	}
	var out []Form
	for _, f := range forms {
		acc := access.ForApplication(p, f.Access())
		if !acc.CanSubmit {
			continue
		}
		if !f.IsActive && !acc.CanAdminister {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// GetForm returns a single form, gated like the listing.
func (s *Service) GetForm(ctx context.Context, p access.Principal, id int64) (Form, access.ApplicationAccess, error) {
	f, err := s.repo.GetForm(ctx, id)
	if err != nil {
		return Form{}, access.ApplicationAccess{}, err
	}
	acc := access.ForApplication(p, f.Access())
	if !acc.CanSubmit {
		return Form{}, access.ApplicationAccess{}, httpx.ErrForbidden
	}
	if !f.IsActive && !acc.CanAdminister {
		return Form{}, access.ApplicationAccess{}, httpx.ErrForbidden
	}
	return f, acc, nil
}

// CreateForm inserts a form. Admin-only, enforced by routing.
func (s *Service) CreateForm(ctx context.Context, in FormInput) (Form, error) {
	if err := validateForm(&in); err != nil {
		return Form{}, err
	}
	return s.repo.CreateForm(ctx, in)
}

// UpdateForm replaces a form's attributes. Admin-only.
func (s *Service) UpdateForm(ctx context.Context, id int64, in FormInput) (Form, error) {
	if err := validateForm(&in); err != nil {
		return Form{}, err
	}
	return s.repo.UpdateForm(ctx, id, in)
}

// DeleteForm removes a form and its submissions. Admin-only.
func (s *Service) DeleteForm(ctx context.Context, id int64) error {
	return s.repo.DeleteForm(ctx, id)
}

// Submit files a pending submission. The caller needs submit access, the
// form must be active, and at most one pending submission per user and
// form is allowed.
func (s *Service) Submit(ctx context.Context, p access.Principal, formID int64, answers map[string]string) (Submission, error) {
	f, err := s.repo.GetForm(ctx, formID)
	if err != nil {
		return Submission{}, err
	}
	if !access.ForApplication(p, f.Access()).CanSubmit {
		return Submission{}, httpx.ErrForbidden
	}
	if !f.IsActive {
		return Submission{}, fmt.Errorf("%w: form is not accepting submissions", httpx.ErrConflict)
	}
	if err := validateAnswers(f, answers); err != nil {
		return Submission{}, err
	}
	pending, err := s.repo.HasPending(ctx, formID, p.ID)
	if err != nil {
		return Submission{}, err
	}
	if pending {
		return Submission{}, fmt.Errorf("%w: a pending submission already exists", httpx.ErrConflict)
	}
	sub, err := s.repo.CreateSubmission(ctx, formID, p.ID, answers)
	if err != nil {
		// The partial unique index catches the race the HasPending check
		// cannot.
		if db.IsUniqueViolation(err) {
			return Submission{}, fmt.Errorf("%w: a pending submission already exists", httpx.ErrConflict)
		}
		return Submission{}, err
	}
	return sub, nil
}

// ListSubmissions returns a form's submissions to a reviewer.
func (s *Service) ListSubmissions(ctx context.Context, p access.Principal, formID int64, status *SubmissionStatus) ([]Submission, error) {
	f, err := s.repo.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if !access.ForApplication(p, f.Access()).CanReview {
		return nil, httpx.ErrForbidden
	}
	return s.repo.ListSubmissionsByForm(ctx, formID, status)
}

// MySubmissions returns the caller's own submissions.
func (s *Service) MySubmissions(ctx context.Context, p access.Principal) ([]Submission, error) {
	return s.repo.ListSubmissionsByUser(ctx, p.ID)
}

// Decide accepts or denies a pending submission.
func (s *Service) Decide(ctx context.Context, p access.Principal, submissionID int64, status SubmissionStatus, note string) (Submission, error) {
	if status != StatusAccepted && status != StatusDenied {
		return Submission{}, fmt.Errorf("%w: decision must be accepted or denied", httpx.ErrValidation)
	}
	sub, err := s.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	f, err := s.repo.GetForm(ctx, sub.FormID)
	if err != nil {
		return Submission{}, err
	}
	if !access.ForApplication(p, f.Access()).CanReview {
		return Submission{}, httpx.ErrForbidden
	}
	ok, err := s.repo.Decide(ctx, submissionID, status, p.ID, note)
	if err != nil {
		return Submission{}, err
	}
	if !ok {
		return Submission{}, fmt.Errorf("%w: submission already decided", httpx.ErrConflict)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  p.ID,
			Action:   "application.decide",
			Entity:   "submission",
			EntityID: fmt.Sprint(submissionID),
			Meta:     map[string]any{"form_id": sub.FormID, "status": string(status)},
		})
	}
	return s.repo.GetSubmission(ctx, submissionID)
}

func validateForm(in *FormInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: form title is required", httpx.ErrValidation)
	}
	seen := make(map[string]struct{}, len(in.Questions))
	for i := range in.Questions {
		q := &in.Questions[i]
		q.Prompt = strings.TrimSpace(q.Prompt)
		if q.ID == "" || q.Prompt == "" {
			return fmt.Errorf("%w: question id and prompt are required", httpx.ErrValidation)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", httpx.ErrValidation, q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	for _, role := range []**string{&in.AdminRoleID, &in.ModeratorRoleID, &in.ViewerRoleID} {
		if *role != nil && strings.TrimSpace(**role) == "" {
			*role = nil
		}
	}
	return nil
}

func validateAnswers(f Form, answers map[string]string) error {
	known := make(map[string]struct{}, len(f.Questions))
	for _, q := range f.Questions {
		known[q.ID] = struct{}{}
		if q.Required && strings.TrimSpace(answers[q.ID]) == "" {
			return fmt.Errorf("%w: question %q requires an answer", httpx.ErrValidation, q.ID)
		}
	}
	for id := range answers {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: unknown question %q", httpx.ErrValidation, id)
		}
	}
	return nil
}
