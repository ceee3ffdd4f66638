package applications

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

type memStore struct {
	forms       map[int64]Form
	submissions map[int64]Submission
	nextForm    int64
	nextSub     int64
}

func newMemStore() *memStore {
	return &memStore{forms: make(map[int64]Form), submissions: make(map[int64]Submission)}
}

func (m *memStore) ListForms(ctx context.Context) ([]Form, error) {
	var out []Form
	for _, f := range m.forms {
		out = append(out, f)
	}
	return out, nil
}

func (m *memStore) GetForm(ctx context.Context, id int64) (Form, error) {
	f, ok := m.forms[id]
	if !ok {
		return Form{}, shared.ErrNotFound
	}
	return f, nil
}

func (m *memStore) CreateForm(ctx context.Context, in FormInput) (Form, error) {
	m.nextForm++
	f := Form{ID: m.nextForm, Title: in.Title, Description: in.Description, AdminRoleID: in.AdminRoleID, ModeratorRoleID: in.ModeratorRoleID, ViewerRoleID: in.ViewerRoleID, IsActive: in.IsActive, Questions: in.Questions}
	m.forms[f.ID] = f
	return f, nil
}

func (m *memStore) UpdateForm(ctx context.Context, id int64, in FormInput) (Form, error) {
	f, ok := m.forms[id]
	if !ok {
		return Form{}, shared.ErrNotFound
	}
	f.Title = in.Title
	f.IsActive = in.IsActive
	f.Questions = in.Questions
	m.forms[id] = f
	return f, nil
}

func (m *memStore) DeleteForm(ctx context.Context, id int64) error {
	if _, ok := m.forms[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.forms, id)
	for sid, s := range m.submissions {
		if s.FormID == id {
			delete(m.submissions, sid)
		}
	}
	return nil
}

func (m *memStore) CreateSubmission(ctx context.Context, formID int64, userID string, answers map[string]string) (Submission, error) {
	m.nextSub++
	s := Submission{ID: m.nextSub, FormID: formID, UserID: userID, Answers: answers, Status: StatusPending, CreatedAt: time.Now()}
	m.submissions[s.ID] = s
	return s, nil
}

func (m *memStore) GetSubmission(ctx context.Context, id int64) (Submission, error) {
	s, ok := m.submissions[id]
	if !ok {
		return Submission{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *memStore) ListSubmissionsByForm(ctx context.Context, formID int64, status *SubmissionStatus) ([]Submission, error) {
	var out []Submission
	for _, s := range m.submissions {
		if s.FormID != formID {
			continue
		}
		if status != nil && s.Status != *status {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) ListSubmissionsByUser(ctx context.Context, userID string) ([]Submission, error) {
	var out []Submission
	for _, s := range m.submissions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Decide(ctx context.Context, id int64, status SubmissionStatus, decidedBy, note string) (bool, error) {
	s, ok := m.submissions[id]
	if !ok || s.Status != StatusPending {
		return false, nil
	}
	now := time.Now()
	s.Status = status
	s.DecidedBy = &decidedBy
	s.DecidedAt = &now
	s.DecisionNote = note
	m.submissions[id] = s
	return true, nil
}

func (m *memStore) HasPending(ctx context.Context, formID int64, userID string) (bool, error) {
	for _, s := range m.submissions {
		if s.FormID == formID && s.UserID == userID && s.Status == StatusPending {
			return true, nil
		}
	}
	return false, nil
}

const (
	adminRole = "10"
	modRole   = "20"
	viewRole  = "30"
)

func newTestService(t *testing.T) (*Service, *memStore, Form) {
	t.Helper()
	store := newMemStore()
	svc := NewService(slog.Default(), store, nil)
	form, err := svc.CreateForm(context.Background(), FormInput{
		Title:           "Staff Application",
		AdminRoleID:     strPtr(adminRole),
		ModeratorRoleID: strPtr(modRole),
		ViewerRoleID:    strPtr(viewRole),
		IsActive:        true,
		Questions: []Question{
			{ID: "why", Prompt: "Why do you want to join?", Required: true},
			{ID: "extra", Prompt: "Anything else?"},
		},
	})
	require.NoError(t, err)
	return svc, store, form
}

func strPtr(s string) *string { return &s }

func member(id string, roles ...string) access.Principal {
	return access.Principal{ID: id, Roles: access.NewRoleSet(roles...)}
}

func TestSubmitRequiresViewerRole(t *testing.T) {
	svc, _, form := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, member("outsider"), form.ID, map[string]string{"why": "because"})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	sub, err := svc.Submit(ctx, member("alice", viewRole), form.ID, map[string]string{"why": "because"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, sub.Status)
}

func TestSubmitValidatesAnswers(t *testing.T) {
	svc, _, form := newTestService(t)
	ctx := context.Background()
	alice := member("alice", viewRole)

	_, err := svc.Submit(ctx, alice, form.ID, map[string]string{"extra": "hi"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Submit(ctx, alice, form.ID, map[string]string{"why": "because", "bogus": "x"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestSinglePendingSubmission(t *testing.T) {
	svc, _, form := newTestService(t)
	ctx := context.Background()
	alice := member("alice", viewRole)

	first, err := svc.Submit(ctx, alice, form.ID, map[string]string{"why": "because"})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, alice, form.ID, map[string]string{"why": "again"})
	require.ErrorIs(t, err, httpx.ErrConflict)

	// After a decision the user may apply again.
	_, err = svc.Decide(ctx, member("mod", modRole), first.ID, StatusDenied, "not yet")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, alice, form.ID, map[string]string{"why": "third time"})
	require.NoError(t, err)
}

func TestInactiveFormRejectsSubmissions(t *testing.T) {
	svc, store, form := newTestService(t)
	ctx := context.Background()

	form.IsActive = false
	store.forms[form.ID] = form

	_, err := svc.Submit(ctx, member("alice", viewRole), form.ID, map[string]string{"why": "because"})
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestReviewLadder(t *testing.T) {
	svc, _, form := newTestService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, member("alice", viewRole), form.ID, map[string]string{"why": "because"})
	require.NoError(t, err)

	// Viewer may submit but not review.
	_, err = svc.ListSubmissions(ctx, member("alice", viewRole), form.ID, nil)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	subs, err := svc.ListSubmissions(ctx, member("mod", modRole), form.ID, nil)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	// System admin reviews without holding any form role.
	subs, err = svc.ListSubmissions(ctx, access.Principal{ID: "root", IsSystemAdmin: true}, form.ID, nil)
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestDecideOnce(t *testing.T) {
	svc, _, form := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Submit(ctx, member("alice", viewRole), form.ID, map[string]string{"why": "because"})
	require.NoError(t, err)

	mod := member("mod", modRole)
	decided, err := svc.Decide(ctx, mod, sub.ID, StatusAccepted, "welcome")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, decided.Status)
	require.Equal(t, "mod", *decided.DecidedBy)

	_, err = svc.Decide(ctx, mod, sub.ID, StatusDenied, "changed my mind")
	require.ErrorIs(t, err, httpx.ErrConflict)

	// Viewer cannot decide at all.
	_, err = svc.Decide(ctx, member("alice", viewRole), sub.ID, StatusAccepted, "")
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestListFormsHidesInactiveFromMembers(t *testing.T) {
	svc, store, form := newTestService(t)
	ctx := context.Background()

	form.IsActive = false
	store.forms[form.ID] = form

	forms, err := svc.ListForms(ctx, member("alice", viewRole))
	require.NoError(t, err)
	require.Empty(t, forms)

	forms, err = svc.ListForms(ctx, member("lead", adminRole))
	require.NoError(t, err)
	require.Len(t, forms, 1)
}
