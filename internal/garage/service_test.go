package garage

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

type memStore struct {
	vehicles map[int64]Vehicle
	credits  map[string]int64
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{vehicles: make(map[int64]Vehicle), credits: make(map[string]int64)}
}

func (m *memStore) ListByOwner(ctx context.Context, ownerID string) ([]Vehicle, error) {
	var out []Vehicle
	for _, v := range m.vehicles {
		if v.OwnerID == ownerID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memStore) Get(ctx context.Context, id int64) (Vehicle, error) {
	v, ok := m.vehicles[id]
	if !ok {
		return Vehicle{}, shared.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Register(ctx context.Context, ownerID string, in RegisterInput) (Vehicle, error) {
	if m.credits[ownerID] < in.Cost {
		return Vehicle{}, fmt.Errorf("%w: insufficient credits", httpx.ErrConflict)
	}
	m.credits[ownerID] -= in.Cost
	m.nextID++
	v := Vehicle{ID: m.nextID, OwnerID: ownerID, Name: in.Name, Model: in.Model, Plate: in.Plate, Cost: in.Cost, CreatedAt: time.Now()}
	m.vehicles[v.ID] = v
	return v, nil
}

func (m *memStore) Delete(ctx context.Context, id int64) error {
	if _, ok := m.vehicles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.vehicles, id)
	return nil
}

func (m *memStore) Balance(ctx context.Context, userID string) (int64, error) {
	return m.credits[userID], nil
}

func (m *memStore) GrantCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	m.credits[userID] += amount
	return m.credits[userID], nil
}

func member(id string) access.Principal {
	return access.Principal{ID: id, Roles: access.NewRoleSet()}
}

func TestRegisterDeductsCredits(t *testing.T) {
	store := newMemStore()
	store.credits["alice"] = 500
	svc := NewService(slog.Default(), store, nil)
	ctx := context.Background()

	v, err := svc.Register(ctx, member("alice"), RegisterInput{Name: "Sultan", Plate: "abc123", Cost: 300})
	require.NoError(t, err)
	require.Equal(t, "ABC123", v.Plate)
	require.EqualValues(t, 200, store.credits["alice"])

	// The next purchase exceeds the balance: conflict, balance untouched.
	_, err = svc.Register(ctx, member("alice"), RegisterInput{Name: "Buffalo", Plate: "xyz789", Cost: 300})
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.EqualValues(t, 200, store.credits["alice"])
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(slog.Default(), newMemStore(), nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, member("alice"), RegisterInput{Plate: "X"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Register(ctx, member("alice"), RegisterInput{Name: "Car", Plate: "X", Cost: -5})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDeleteOwnershipGate(t *testing.T) {
	store := newMemStore()
	store.credits["alice"] = 100
	svc := NewService(slog.Default(), store, nil)
	ctx := context.Background()

	v, err := svc.Register(ctx, member("alice"), RegisterInput{Name: "Sultan", Plate: "A1", Cost: 100})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, member("bob"), v.ID), httpx.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, access.Principal{ID: "root", IsSystemAdmin: true}, v.ID))
	require.ErrorIs(t, svc.Delete(ctx, member("alice"), v.ID), shared.ErrNotFound)
}

func TestGrantCredits(t *testing.T) {
	store := newMemStore()
	svc := NewService(slog.Default(), store, nil)
	ctx := context.Background()
	admin := access.Principal{ID: "root", IsSystemAdmin: true}

	balance, err := svc.GrantCredits(ctx, admin, "alice", 250)
	require.NoError(t, err)
	require.EqualValues(t, 250, balance)

	_, err = svc.GrantCredits(ctx, admin, "alice", 0)
	require.ErrorIs(t, err, httpx.ErrValidation)
}
