package categories

import (
	"context"
	"fmt"
	"strings"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/httpx"
)

// Store defines the persistence contract the service needs.
type Store interface {
	List(ctx context.Context) ([]Category, error)
	Get(ctx context.Context, id int64) (Category, error)
	Create(ctx context.Context, in CreateInput) (Category, error)
	Update(ctx context.Context, id int64, in CreateInput) (Category, error)
	Delete(ctx context.Context, id int64) error
	CountTickets(ctx context.Context, id int64) (int, error)
	AnySupportRoleHeld(ctx context.Context, roleIDs []string) (bool, error)
}

// Service orchestrates category management.
type Service struct {
	repo Store
}

// NewService constructs a Service.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// List returns all categories.
func (s *Service) List(ctx context.Context) ([]Category, error) {
	return s.repo.List(ctx)
}

// Get fetches one category.
func (s *Service) Get(ctx context.Context, id int64) (Category, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a category after validation.
func (s *Service) Create(ctx context.Context, in CreateInput) (Category, error) {
	if err := validate(&in); err != nil {
		return Category{}, err
	}
	return s.repo.Create(ctx, in)
}

// Update replaces a category.
func (s *Service) Update(ctx context.Context, id int64, in CreateInput) (Category, error) {
	if err := validate(&in); err != nil {
		return Category{}, err
	}
	return s.repo.Update(ctx, id, in)
}

// Delete removes a category, refusing while tickets still reference it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	count, err := s.repo.CountTickets(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: category has %d tickets", httpx.ErrConflict, count)
	}
	return s.repo.Delete(ctx, id)
}

// IsStaffAnywhere reports whether the principal holds support access to
// any category. Admins qualify without a lookup.
func (s *Service) IsStaffAnywhere(ctx context.Context, p access.Principal) (bool, error) {
	if p.IsSystemAdmin {
		return true, nil
	}
	return s.repo.AnySupportRoleHeld(ctx, p.Roles.IDs())
}

func validate(in *CreateInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: category name is required", httpx.ErrValidation)
	}
	if in.RequiredRoleID != nil && strings.TrimSpace(*in.RequiredRoleID) == "" {
		in.RequiredRoleID = nil
	}
	if in.WebhookURL != nil && strings.TrimSpace(*in.WebhookURL) == "" {
		in.WebhookURL = nil
	}
	return nil
}
