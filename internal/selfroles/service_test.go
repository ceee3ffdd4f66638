package selfroles

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

type memStore struct {
	roles  map[int64]SelfRole
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{roles: make(map[int64]SelfRole)}
}

func (m *memStore) List(ctx context.Context) ([]SelfRole, error) {
	var out []SelfRole
	for _, s := range m.roles {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) Get(ctx context.Context, id int64) (SelfRole, error) {
	s, ok := m.roles[id]
	if !ok {
		return SelfRole{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *memStore) Create(ctx context.Context, in Input) (SelfRole, error) {
	m.nextID++
	s := SelfRole{ID: m.nextID, RoleID: in.RoleID, Label: in.Label, Emoji: in.Emoji, Position: in.Position}
	m.roles[s.ID] = s
	return s, nil
}

func (m *memStore) Update(ctx context.Context, id int64, in Input) (SelfRole, error) {
	s, ok := m.roles[id]
	if !ok {
		return SelfRole{}, shared.ErrNotFound
	}
	s.RoleID = in.RoleID
	s.Label = in.Label
	m.roles[id] = s
	return s, nil
}

func (m *memStore) Delete(ctx context.Context, id int64) error {
	if _, ok := m.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

type syncCall struct {
	userID string
	roleID string
	grant  bool
}

type fakeSyncer struct {
	calls []syncCall
}

func (f *fakeSyncer) SyncRole(ctx context.Context, userID, roleID string, grant bool) error {
	f.calls = append(f.calls, syncCall{userID: userID, roleID: roleID, grant: grant})
	return nil
}

func TestClaimEnqueuesGrant(t *testing.T) {
	store := newMemStore()
	syncer := &fakeSyncer{}
	svc := NewService(slog.Default(), store, syncer)
	ctx := context.Background()

	sr, err := svc.Create(ctx, Input{RoleID: "777", Label: "Events"})
	require.NoError(t, err)

	member := access.Principal{ID: "alice", Roles: access.NewRoleSet()}
	_, err = svc.Claim(ctx, member, sr.ID)
	require.NoError(t, err)
	require.Equal(t, []syncCall{{userID: "alice", roleID: "777", grant: true}}, syncer.calls)

	// Already holding the role conflicts instead of re-queuing.
	holder := access.Principal{ID: "bob", Roles: access.NewRoleSet("777")}
	_, err = svc.Claim(ctx, holder, sr.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestRemoveEnqueuesRevoke(t *testing.T) {
	store := newMemStore()
	syncer := &fakeSyncer{}
	svc := NewService(slog.Default(), store, syncer)
	ctx := context.Background()

	sr, err := svc.Create(ctx, Input{RoleID: "777", Label: "Events"})
	require.NoError(t, err)

	holder := access.Principal{ID: "bob", Roles: access.NewRoleSet("777")}
	_, err = svc.Remove(ctx, holder, sr.ID)
	require.NoError(t, err)
	require.Equal(t, []syncCall{{userID: "bob", roleID: "777", grant: false}}, syncer.calls)

	member := access.Principal{ID: "alice", Roles: access.NewRoleSet()}
	_, err = svc.Remove(ctx, member, sr.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(slog.Default(), newMemStore(), &fakeSyncer{})
	_, err := svc.Create(context.Background(), Input{RoleID: " ", Label: "x"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}
