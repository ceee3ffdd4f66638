package applications

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haven-community/haven/internal/shared"
)

// Repository provides PostgreSQL backed persistence for application forms
// and submissions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const formColumns = `id, title, description, admin_role_id, moderator_role_id, viewer_role_id, is_active, questions, created_at, updated_at`

func scanForm(row pgx.Row) (Form, error) {
	var f Form
	var questions []byte
	err := row.Scan(&f.ID, &f.Title, &f.Description, &f.AdminRoleID, &f.ModeratorRoleID, &f.ViewerRoleID, &f.IsActive, &questions, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return Form{}, err
	}
	if err := json.Unmarshal(questions, &f.Questions); err != nil {
		return Form{}, err
	}
	return f, nil
}

// ListForms returns all forms ordered by creation.
func (r *Repository) ListForms(ctx context.Context) ([]Form, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+formColumns+` FROM application_forms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Form
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetForm fetches a form by ID.
func (r *Repository) GetForm(ctx context.Context, id int64) (Form, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+formColumns+` FROM application_forms WHERE id = $1`, id)
	f, err := scanForm(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Form{}, shared.ErrNotFound
		}
		return Form{}, err
	}
	return f, nil
}

// CreateForm inserts a form.
func (r *Repository) CreateForm(ctx context.Context, in FormInput) (Form, error) {
	questions, err := json.Marshal(in.Questions)
	if err != nil {
		return Form{}, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO application_forms (title, description, admin_role_id, moderator_role_id, viewer_role_id, is_active, questions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING `+formColumns,
		in.Title, in.Description, in.AdminRoleID, in.ModeratorRoleID, in.ViewerRoleID, in.IsActive, questions)
	return scanForm(row)
}

// UpdateForm replaces a form's attributes.
func (r *Repository) UpdateForm(ctx context.Context, id int64, in FormInput) (Form, error) {
	questions, err := json.Marshal(in.Questions)
	if err != nil {
		return Form{}, err
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE application_forms
		SET title = $2, description = $3, admin_role_id = $4, moderator_role_id = $5, viewer_role_id = $6, is_active = $7, questions = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+formColumns,
		id, in.Title, in.Description, in.AdminRoleID, in.ModeratorRoleID, in.ViewerRoleID, in.IsActive, questions)
	f, err := scanForm(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Form{}, shared.ErrNotFound
		}
		return Form{}, err
	}
	return f, nil
}

// DeleteForm removes a form and, through the cascade, its submissions.
func (r *Repository) DeleteForm(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM application_forms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const submissionColumns = `id, form_id, user_id, answers, status, decided_by, decided_at, decision_note, created_at, updated_at`

func scanSubmission(row pgx.Row) (Submission, error) {
	var s Submission
	var answers []byte
	err := row.Scan(&s.ID, &s.FormID, &s.UserID, &answers, &s.Status, &s.DecidedBy, &s.DecidedAt, &s.DecisionNote, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Submission{}, err
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return Submission{}, err
	}
	return s, nil
}

// CreateSubmission inserts a pending submission. The partial unique index
// on (form_id, user_id) WHERE status = 'pending' rejects a second pending
// submission; the service maps that to a conflict.
func (r *Repository) CreateSubmission(ctx context.Context, formID int64, userID string, answers map[string]string) (Submission, error) {
	payload, err := json.Marshal(answers)
	if err != nil {
		return Submission{}, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO application_submissions (form_id, user_id, answers, status, decision_note, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', '', NOW(), NOW())
		RETURNING `+submissionColumns,
		formID, userID, payload)
	return scanSubmission(row)
}

// GetSubmission fetches a submission by ID.
func (r *Repository) GetSubmission(ctx context.Context, id int64) (Submission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM application_submissions WHERE id = $1`, id)
	s, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Submission{}, shared.ErrNotFound
		}
		return Submission{}, err
	}
	return s, nil
}

// ListSubmissionsByForm returns a form's submissions, optionally filtered
// by status, newest first.
func (r *Repository) ListSubmissionsByForm(ctx context.Context, formID int64, status *SubmissionStatus) ([]Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM application_submissions
		 WHERE form_id = $1 AND ($2::text IS NULL OR status = $2)
		 ORDER BY created_at DESC, id DESC`,
		formID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

// ListSubmissionsByUser returns a user's submissions across forms.
func (r *Repository) ListSubmissionsByUser(ctx context.Context, userID string) ([]Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM application_submissions WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func collectSubmissions(rows pgx.Rows) ([]Submission, error) {
	var out []Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Decide moves a pending submission to accepted or denied. Returns false
// when the submission was already decided.
func (r *Repository) Decide(ctx context.Context, id int64, status SubmissionStatus, decidedBy, note string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE application_submissions
		SET status = $2, decided_by = $3, decided_at = NOW(), decision_note = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, status, decidedBy, note)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// HasPending reports whether the user already has a pending submission on
// the form. The partial unique index remains the authority under races.
func (r *Repository) HasPending(ctx context.Context, formID int64, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM application_submissions WHERE form_id = $1 AND user_id = $2 AND status = 'pending')`,
		formID, userID).Scan(&ok)
	return ok, err
}
