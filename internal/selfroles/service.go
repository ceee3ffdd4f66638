package selfroles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/db"
	"github.com/haven-community/haven/internal/platform/httpx"
)

// Store defines the persistence contract the service needs.
type Store interface {
	List(ctx context.Context) ([]SelfRole, error)
	Get(ctx context.Context, id int64) (SelfRole, error)
	Create(ctx context.Context, in Input) (SelfRole, error)
	Update(ctx context.Context, id int64, in Input) (SelfRole, error)
	Delete(ctx context.Context, id int64) error
}

// RoleSyncer enqueues Discord role grants and revokes. *jobs.Client
// satisfies it.
type RoleSyncer interface {
	SyncRole(ctx context.Context, userID, roleID string, grant bool) error
}

// Service orchestrates self-assignable roles.
type Service struct {
	logger *slog.Logger
	repo   Store
	syncer RoleSyncer
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, repo Store, syncer RoleSyncer) *Service {
	return &Service{logger: logger, repo: repo, syncer: syncer}
}

// List returns all claimable roles, annotated per caller by the handler.
func (s *Service) List(ctx context.Context) ([]SelfRole, error) {
	return s.repo.List(ctx)
}

// Create inserts a self-assignable role. Admin-only, enforced by routing.
func (s *Service) Create(ctx context.Context, in Input) (SelfRole, error) {
	if err := validate(&in); err != nil {
		return SelfRole{}, err
	}
	sr, err := s.repo.Create(ctx, in)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return SelfRole{}, fmt.Errorf("%w: role is already self-assignable", httpx.ErrConflict)
		}
		return SelfRole{}, err
	}
	return sr, nil
}

// Update replaces a self-assignable role's attributes. Admin-only.
func (s *Service) Update(ctx context.Context, id int64, in Input) (SelfRole, error) {
	if err := validate(&in); err != nil {
		return SelfRole{}, err
	}
	sr, err := s.repo.Update(ctx, id, in)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return SelfRole{}, fmt.Errorf("%w: role is already self-assignable", httpx.ErrConflict)
		}
		return SelfRole{}, err
	}
	return sr, nil
}

// Delete removes a self-assignable role. Admin-only.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// Claim enqueues a grant of the role to the caller. Discord is the
// authority on membership; the hub only queues the change.
func (s *Service) Claim(ctx context.Context, p access.Principal, id int64) (SelfRole, error) {
	sr, err := s.repo.Get(ctx, id)
	if err != nil {
		return SelfRole{}, err
	}
	if p.Roles.Has(sr.RoleID) {
		return SelfRole{}, fmt.Errorf("%w: role already held", httpx.ErrConflict)
	}
	if err := s.syncer.SyncRole(ctx, p.ID, sr.RoleID, true); err != nil {
		return SelfRole{}, err
	}
	return sr, nil
}

// Remove enqueues a revoke of the role from the caller.
func (s *Service) Remove(ctx context.Context, p access.Principal, id int64) (SelfRole, error) {
	sr, err := s.repo.Get(ctx, id)
	if err != nil {
		return SelfRole{}, err
	}
	if !p.Roles.Has(sr.RoleID) {
		return SelfRole{}, fmt.Errorf("%w: role not held", httpx.ErrConflict)
	}
	if err := s.syncer.SyncRole(ctx, p.ID, sr.RoleID, false); err != nil {
		return SelfRole{}, err
	}
	return sr, nil
}

func validate(in *Input) error {
	in.RoleID = strings.TrimSpace(in.RoleID)
	in.Label = strings.TrimSpace(in.Label)
	if in.RoleID == "" || in.Label == "" {
		return fmt.Errorf("%w: role id and label are required", httpx.ErrValidation)
	}
	return nil
}
