package tickets

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/categories"
	"github.com/haven-community/haven/internal/discord"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

type memStore struct {
	tickets      map[int64]Ticket
	messages     map[int64][]Message
	participants map[int64]map[string]Participant
	log          map[int64][]LogEntry
	nextID       int64
}

func newMemStore() *memStore {
	return &memStore{
		tickets:      make(map[int64]Ticket),
		messages:     make(map[int64][]Message),
		participants: make(map[int64]map[string]Participant),
		log:          make(map[int64][]LogEntry),
	}
}

func (m *memStore) Create(ctx context.Context, in CreateInput, ownerID string, firstIsStaff bool) (Ticket, error) {
	m.nextID++
	catID := in.CategoryID
	t := Ticket{ID: m.nextID, CategoryID: &catID, OwnerID: ownerID, Subject: in.Subject, Status: StatusOpen, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.tickets[t.ID] = t
	m.messages[t.ID] = []Message{{ID: 1, TicketID: t.ID, AuthorID: ownerID, Body: in.Body, IsStaff: firstIsStaff, CreatedAt: time.Now()}}
	m.log[t.ID] = []LogEntry{{ID: 1, TicketID: t.ID, ActorID: ownerID, Action: LogCreated, CreatedAt: time.Now()}}
	return t, nil
}

func (m *memStore) Get(ctx context.Context, id int64) (Ticket, error) {
	t, ok := m.tickets[id]
	if !ok {
		return Ticket{}, shared.ErrNotFound
	}
	return t, nil
}

func (m *memStore) List(ctx context.Context, f ListFilter) ([]Ticket, int, error) {
	var out []Ticket
	for _, t := range m.tickets {
		if !f.All && !m.visible(t, f) {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
}

func (m *memStore) visible(t Ticket, f ListFilter) bool {
	if t.OwnerID == f.UserID || (t.AssignedTo != nil && *t.AssignedTo == f.UserID) || (t.ClaimedBy != nil && *t.ClaimedBy == f.UserID) {
		return true
	}
	if _, ok := m.participants[t.ID][f.UserID]; ok {
		return true
	}
	for _, id := range f.SupportCategoryIDs {
		if t.CategoryID != nil && *t.CategoryID == id {
			return true
		}
	}
	return false
}

func (m *memStore) UpdateStatus(ctx context.Context, id int64, status Status) error {
	t, ok := m.tickets[id]
	if !ok {
		return shared.ErrNotFound
	}
	t.Status = status
	m.tickets[id] = t
	return nil
}

func (m *memStore) Claim(ctx context.Context, id int64, userID string) (bool, error) {
	t, ok := m.tickets[id]
	if !ok || t.ClaimedBy != nil {
		return false, nil
	}
	t.ClaimedBy = &userID
	if t.Status == StatusOpen {
		t.Status = StatusInProgress
	}
	m.tickets[id] = t
	return true, nil
}

func (m *memStore) Unclaim(ctx context.Context, id int64) (bool, error) {
	t, ok := m.tickets[id]
	if !ok || t.ClaimedBy == nil {
		return false, nil
	}
	t.ClaimedBy = nil
	m.tickets[id] = t
	return true, nil
}

func (m *memStore) Assign(ctx context.Context, id int64, userID *string) error {
	t, ok := m.tickets[id]
	if !ok {
		return shared.ErrNotFound
	}
	t.AssignedTo = userID
	m.tickets[id] = t
	return nil
}

func (m *memStore) Transfer(ctx context.Context, id, categoryID int64) error {
	t, ok := m.tickets[id]
	if !ok {
		return shared.ErrNotFound
	}
	t.CategoryID = &categoryID
	m.tickets[id] = t
	return nil
}

func (m *memStore) AddMessage(ctx context.Context, ticketID int64, authorID, body string, isStaff bool) (Message, error) {
	msg := Message{ID: int64(len(m.messages[ticketID]) + 1), TicketID: ticketID, AuthorID: authorID, Body: body, IsStaff: isStaff, CreatedAt: time.Now()}
	m.messages[ticketID] = append(m.messages[ticketID], msg)
	return msg, nil
}

func (m *memStore) ListMessages(ctx context.Context, ticketID int64) ([]Message, error) {
	return m.messages[ticketID], nil
}

func (m *memStore) IsParticipant(ctx context.Context, ticketID int64, userID string) (bool, error) {
	_, ok := m.participants[ticketID][userID]
	return ok, nil
}

func (m *memStore) AddParticipant(ctx context.Context, ticketID int64, userID, addedBy string) error {
	if m.participants[ticketID] == nil {
		m.participants[ticketID] = make(map[string]Participant)
	}
	m.participants[ticketID][userID] = Participant{TicketID: ticketID, UserID: userID, AddedBy: addedBy, AddedAt: time.Now()}
	return nil
}

func (m *memStore) RemoveParticipant(ctx context.Context, ticketID int64, userID string) error {
	if _, ok := m.participants[ticketID][userID]; !ok {
		return shared.ErrNotFound
	}
	delete(m.participants[ticketID], userID)
	return nil
}

func (m *memStore) ListParticipants(ctx context.Context, ticketID int64) ([]Participant, error) {
	var out []Participant
	for _, p := range m.participants[ticketID] {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) AppendLog(ctx context.Context, ticketID int64, actorID, action, detail string) error {
	m.log[ticketID] = append(m.log[ticketID], LogEntry{ID: int64(len(m.log[ticketID]) + 1), TicketID: ticketID, ActorID: actorID, Action: action, Detail: detail, CreatedAt: time.Now()})
	return nil
}

func (m *memStore) ListLog(ctx context.Context, ticketID int64) ([]LogEntry, error) {
	return m.log[ticketID], nil
}

type fakeCats struct {
	cats map[int64]categories.Category
}

func (f *fakeCats) Get(ctx context.Context, id int64) (categories.Category, error) {
	c, ok := f.cats[id]
	if !ok {
		return categories.Category{}, shared.ErrNotFound
	}
	return c, nil
}

func (f *fakeCats) List(ctx context.Context) ([]categories.Category, error) {
	var out []categories.Category
	for _, c := range f.cats {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCats) IsStaffAnywhere(ctx context.Context, p access.Principal) (bool, error) {
	if p.IsSystemAdmin {
		return true, nil
	}
	for _, c := range f.cats {
		if c.RequiredRoleID != nil && p.Roles.Has(*c.RequiredRoleID) {
			return true, nil
		}
	}
	return false, nil
}

type fakeNotifier struct {
	sent []discord.WebhookPayload
}

func (f *fakeNotifier) NotifyWebhook(ctx context.Context, url string, payload discord.WebhookPayload) error {
	f.sent = append(f.sent, payload)
	return nil
}

const (
	supportRole = "100"
	otherRole   = "200"
)

func newTestService() (*Service, *memStore, *fakeNotifier) {
	store := newMemStore()
	hook := "https://discord.com/api/webhooks/1/abc"
	cats := &fakeCats{cats: map[int64]categories.Category{
		1: {ID: 1, Name: "Support", RequiredRoleID: strPtr(supportRole), WebhookURL: &hook},
		2: {ID: 2, Name: "Staff Only", RequiredRoleID: strPtr(otherRole), IsRestricted: true},
	}}
	notifier := &fakeNotifier{}
	svc := NewService(slog.Default(), store, cats, notifier, nil)
	return svc, store, notifier
}

func strPtr(s string) *string { return &s }

func member(id string, roles ...string) access.Principal {
	return access.Principal{ID: id, Roles: access.NewRoleSet(roles...)}
}

func TestCreateRespectsCategoryGate(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	// Open category: anyone may create.
	tk, err := svc.Create(ctx, member("owner"), CreateInput{CategoryID: 1, Subject: "Help", Body: "please"})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, tk.Status)
	require.Len(t, notifier.sent, 1)

	// Restricted category without the role: forbidden.
	_, err = svc.Create(ctx, member("owner"), CreateInput{CategoryID: 2, Subject: "Help", Body: "please"})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	// Restricted category with the role: allowed.
	_, err = svc.Create(ctx, member("mod", otherRole), CreateInput{CategoryID: 2, Subject: "Help", Body: "please"})
	require.NoError(t, err)

	// Unknown category resolves before any capability question.
	_, err = svc.Create(ctx, member("owner"), CreateInput{CategoryID: 99, Subject: "Help", Body: "please"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFirstMessageStaffFlag(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	tk, err := svc.Create(ctx, member("owner"), CreateInput{CategoryID: 1, Subject: "Help", Body: "please"})
	require.NoError(t, err)
	require.False(t, store.messages[tk.ID][0].IsStaff)

	staffTk, err := svc.Create(ctx, member("staff", supportRole), CreateInput{CategoryID: 1, Subject: "Note", Body: "internal"})
	require.NoError(t, err)
	require.True(t, store.messages[staffTk.ID][0].IsStaff)
}

func TestStrangerGetsForbiddenNotHidden(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tk, err := svc.Create(ctx, member("owner"), CreateInput{CategoryID: 1, Subject: "Help", Body: "please"})
	require.NoError(t, err)

	_, _, err = svc.Get(ctx, member("stranger"), tk.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	_, _, err = svc.Get(ctx, member("owner"), 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOwnerCanCloseButNotReopen(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	owner := member("owner")

	tk, err := svc.Create(ctx, owner, CreateInput{CategoryID: 1, Subject: "Help", Body: "please"})
	require.NoError(t, err)

	closed, err := svc.ChangeStatus(ctx, owner, tk.ID, StatusClosed)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)

	_, err = svc.ChangeStatus(ctx, owner, tk.ID, StatusOpen)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	// Support staff may reopen.
	reopened, err := svc.ChangeStatus(ctx, member("staff", supportRole), tk.ID, StatusOpen)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, reopened.Status)
}

func TestParticipantViewsButCannotClose(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tk, err := svc.Create(ctx, member("owner"), CreateInput{CategoryID: 1, Subject: "Help", Body: "please"})
	require.NoError(t, err)

	staff := member("staff", supportRole)
	require.NoError(t, svc.AddParticipant(ctx, staff, tk.ID, "friend"))

	friend := member("friend")
	_, acc, err := svc.Get(ctx, friend, tk.ID)
	require.NoError(t, err)
	require.True(t, acc.CanReply)
	require.False(t, acc.CanClose)

	m, err := svc.PostMessage(ctx, friend, tk.ID, "chiming in")
	require.NoError(t, err)
	require.False(t, m.IsStaff)

	_, err = svc.ChangeStatus(ctx, friend, tk.ID, StatusClosed)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestAddParticipantRules(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tk, err := svc.Create(ctx, member("owner"), CreateInput{CategoryID: 1, Subject: "Help", Body: "please"})
	require.NoError(t, err)

	// Owner holds no support access and cannot manage participants.
	err = svc.AddParticipant(ctx, member("owner"), tk.ID, "friend")
	require.ErrorIs(t, err, httpx.ErrForbidden)

	staff := member("staff", supportRole)
	require.ErrorIs(t, svc.AddParticipant(ctx, staff, tk.ID, "owner"), httpx.ErrValidation)
	require.NoError(t, svc.AddParticipant(ctx, staff, tk.ID, "friend"))
}

func TestClaimConflictAndGate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tk, err := svc.Create(ctx, member("owner"), CreateInput{CategoryID: 1, Subject: "Help", Body: "please"})
	require.NoError(t, err)

	claimed, err := svc.Claim(ctx, member("staff", supportRole), tk.ID)
	require.NoError(t, err)
	require.Equal(t, "staff", *claimed.ClaimedBy)
	require.Equal(t, StatusInProgress, claimed.Status)

	// Second claim races to a conflict, never a silent overwrite.
	_, err = svc.Claim(ctx, member("staff2", supportRole), tk.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)

	_, err = svc.Unclaim(ctx, member("staff", supportRole), tk.ID)
	require.NoError(t, err)
	_, err = svc.Unclaim(ctx, member("staff", supportRole), tk.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestAssignedHandlerCannotClaim(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tk, err := svc.Create(ctx, member("owner"), CreateInput{CategoryID: 1, Subject: "Help", Body: "please"})
	require.NoError(t, err)

	handler := "helper"
	_, err = svc.Assign(ctx, member("staff", supportRole), tk.ID, &handler)
	require.NoError(t, err)

	// Assignment grants staff treatment but not the claim right.
	_, acc, err := svc.Get(ctx, member("helper"), tk.ID)
	require.NoError(t, err)
	require.True(t, acc.IsTreatedAsStaff)
	require.False(t, acc.CanClaim)

	_, err = svc.Claim(ctx, member("helper"), tk.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestTransferUsesStaffAnywhereGate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tk, err := svc.Create(ctx, member("owner"), CreateInput{CategoryID: 1, Subject: "Help", Body: "please"})
	require.NoError(t, err)

	// Owner is not staff anywhere.
	_, err = svc.Transfer(ctx, member("owner"), tk.ID, 2)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	// Staff of an unrelated category may transfer.
	moved, err := svc.Transfer(ctx, member("mod", otherRole), tk.ID, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), *moved.CategoryID)

	// Target must exist.
	_, err = svc.Transfer(ctx, member("mod", otherRole), tk.ID, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListVisibility(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, member("alice"), CreateInput{CategoryID: 1, Subject: "A", Body: "a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, member("bob", otherRole), CreateInput{CategoryID: 2, Subject: "B", Body: "b"})
	require.NoError(t, err)

	page := shared.Pagination{Page: 1, PerPage: 20}

	own, _, err := svc.List(ctx, member("alice"), nil, nil, page)
	require.NoError(t, err)
	require.Len(t, own, 1)

	// Support access to category 1 exposes alice's ticket to staff.
	staff, _, err := svc.List(ctx, member("staff", supportRole), nil, nil, page)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	require.Equal(t, "alice", staff[0].OwnerID)

	all, _, err := svc.List(ctx, access.Principal{ID: "root", IsSystemAdmin: true}, nil, nil, page)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestLogIsStaffOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tk, err := svc.Create(ctx, member("owner"), CreateInput{CategoryID: 1, Subject: "Help", Body: "please"})
	require.NoError(t, err)

	_, err = svc.ListLog(ctx, member("owner"), tk.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	entries, err := svc.ListLog(ctx, member("staff", supportRole), tk.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, LogCreated, entries[0].Action)
}
