package garage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// Store defines the persistence contract the service needs.
type Store interface {
	ListByOwner(ctx context.Context, ownerID string) ([]Vehicle, error)
	Get(ctx context.Context, id int64) (Vehicle, error)
	Register(ctx context.Context, ownerID string, in RegisterInput) (Vehicle, error)
	Delete(ctx context.Context, id int64) error
	Balance(ctx context.Context, userID string) (int64, error)
	GrantCredits(ctx context.Context, userID string, amount int64) (int64, error)
}

// Auditor records admin credit grants.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the vehicle garage and its credit economy.
type Service struct {
	logger *slog.Logger
	repo   Store
	audit  Auditor
}

// NewService constructs a Service. audit may be nil in tests.
func NewService(logger *slog.Logger, repo Store, audit Auditor) *Service {
	return &Service{logger: logger, repo: repo, audit: audit}
}

// List returns the caller's vehicles and balance.
func (s *Service) List(ctx context.Context, p access.Principal) ([]Vehicle, int64, error) {
	vehicles, err := s.repo.ListByOwner(ctx, p.ID)
	if err != nil {
		return nil, 0, err
	}
	balance, err := s.repo.Balance(ctx, p.ID)
	if err != nil {
		return nil, 0, err
	}
	return vehicles, balance, nil
}

// Register buys a vehicle for the caller. Insufficient credits surface as
// a conflict from the conditional deduction.
func (s *Service) Register(ctx context.Context, p access.Principal, in RegisterInput) (Vehicle, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Model = strings.TrimSpace(in.Model)
	in.Plate = strings.ToUpper(strings.TrimSpace(in.Plate))
	if in.Name == "" || in.Plate == "" {
		return Vehicle{}, fmt.Errorf("%w: vehicle name and plate are required", httpx.ErrValidation)
	}
	if in.Cost < 0 {
		return Vehicle{}, fmt.Errorf("%w: cost cannot be negative", httpx.ErrValidation)
	}
	return s.repo.Register(ctx, p.ID, in)
}

// Delete removes one of the caller's vehicles. Admins may remove any.
// Credits are not refunded.
func (s *Service) Delete(ctx context.Context, p access.Principal, id int64) error {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if v.OwnerID != p.ID && !access.CanManageSystem(p) {
		return httpx.ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

// GrantCredits adds credits to a user's balance. Admin-only, enforced by
// routing.
func (s *Service) GrantCredits(ctx context.Context, p access.Principal, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: grant must be positive", httpx.ErrValidation)
	}
	balance, err := s.repo.GrantCredits(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  p.ID,
			Action:   "garage.grant_credits",
			Entity:   "user",
			EntityID: userID,
			Meta:     map[string]any{"amount": amount, "balance": balance},
		})
	}
	return balance, nil
}
