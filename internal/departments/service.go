package departments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/discord"
	"github.com/haven-community/haven/internal/platform/db"
	"github.com/haven-community/haven/internal/platform/httpx"
)

// summaryConcurrency caps the parallel per-member aggregate queries.
const summaryConcurrency = 8

// Store defines the persistence contract the service needs.
type Store interface {
	List(ctx context.Context) ([]Department, error)
	Get(ctx context.Context, id int64) (Department, error)
	Create(ctx context.Context, in DepartmentInput) (Department, error)
	Update(ctx context.Context, id int64, in DepartmentInput) (Department, error)
	Delete(ctx context.Context, id int64) error
	CountRoster(ctx context.Context, id int64) (int, error)
	ListRoster(ctx context.Context, departmentID int64) ([]RosterEntry, error)
	GetRosterEntry(ctx context.Context, departmentID, entryID int64) (RosterEntry, error)
	IsRosterMember(ctx context.Context, departmentID int64, userID string) (bool, error)
	AddRosterEntry(ctx context.Context, departmentID int64, in RosterInput) (RosterEntry, error)
	UpdateRosterEntry(ctx context.Context, departmentID, entryID int64, in RosterInput) (RosterEntry, error)
	RemoveRosterEntry(ctx context.Context, departmentID, entryID int64) error
	OpenShift(ctx context.Context, departmentID int64, userID string) (*TimeclockEntry, error)
	ClockIn(ctx context.Context, departmentID int64, userID string) (TimeclockEntry, error)
	ClockOut(ctx context.Context, departmentID int64, userID string) (*TimeclockEntry, error)
	MemberMinutes(ctx context.Context, departmentID int64, userID string, since, until time.Time) (minutes, shifts int, err error)
	ListShifts(ctx context.Context, departmentID int64, userID string, since, until time.Time) ([]TimeclockEntry, error)
}

// Notifier enqueues webhook deliveries.
type Notifier interface {
	NotifyWebhook(ctx context.Context, url string, payload discord.WebhookPayload) error
}

// Service orchestrates departments, rosters, and the timeclock.
type Service struct {
	logger   *slog.Logger
	repo     Store
	notifier Notifier
}

// NewService constructs a Service. notifier may be nil in tests.
func NewService(logger *slog.Logger, repo Store, notifier Notifier) *Service {
	return &Service{logger: logger, repo: repo, notifier: notifier}
}

// List returns all departments with the caller's roster capability.
func (s *Service) List(ctx context.Context) ([]Department, error) {
	return s.repo.List(ctx)
}

// Get fetches a department.
func (s *Service) Get(ctx context.Context, id int64) (Department, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a department. Admin-only, enforced by routing.
func (s *Service) Create(ctx context.Context, in DepartmentInput) (Department, error) {
	if err := validateDepartment(&in); err != nil {
		return Department{}, err
	}
	return s.repo.Create(ctx, in)
}

// Update replaces a department's attributes. Admin-only.
func (s *Service) Update(ctx context.Context, id int64, in DepartmentInput) (Department, error) {
	if err := validateDepartment(&in); err != nil {
		return Department{}, err
	}
	return s.repo.Update(ctx, id, in)
}

// Delete removes a department. Refused while roster entries exist so an
// admin cannot wipe a roster by accident.
func (s *Service) Delete(ctx context.Context, id int64) error {
	count, err := s.repo.CountRoster(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: department has %d roster entries", httpx.ErrConflict, count)
	}
	return s.repo.Delete(ctx, id)
}

// roster resolves the department and enforces the single roster gate.
func (s *Service) roster(ctx context.Context, p access.Principal, departmentID int64) (Department, error) {
	d, err := s.repo.Get(ctx, departmentID)
	if err != nil {
		return Department{}, err
	}
	if !access.ForDepartment(p, d.Access()) {
		return Department{}, httpx.ErrForbidden
	}
	return d, nil
}

// ListRoster returns the department roster to a role holder.
func (s *Service) ListRoster(ctx context.Context, p access.Principal, departmentID int64) ([]RosterEntry, error) {
	if _, err := s.roster(ctx, p, departmentID); err != nil {
		return nil, err
	}
	return s.repo.ListRoster(ctx, departmentID)
}

// AddRosterEntry adds a member to the roster.
func (s *Service) AddRosterEntry(ctx context.Context, p access.Principal, departmentID int64, in RosterInput) (RosterEntry, error) {
	d, err := s.roster(ctx, p, departmentID)
	if err != nil {
		return RosterEntry{}, err
	}
	if err := validateRoster(d, &in); err != nil {
		return RosterEntry{}, err
	}
	e, err := s.repo.AddRosterEntry(ctx, departmentID, in)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return RosterEntry{}, fmt.Errorf("%w: already on the roster", httpx.ErrConflict)
		}
		return RosterEntry{}, err
	}
	s.notify(ctx, d, "Roster updated", fmt.Sprintf("%s joined %s", e.DisplayName, d.Name))
	return e, nil
}

// UpdateRosterEntry edits a roster entry.
func (s *Service) UpdateRosterEntry(ctx context.Context, p access.Principal, departmentID, entryID int64, in RosterInput) (RosterEntry, error) {
	d, err := s.roster(ctx, p, departmentID)
	if err != nil {
		return RosterEntry{}, err
	}
	current, err := s.repo.GetRosterEntry(ctx, departmentID, entryID)
	if err != nil {
		return RosterEntry{}, err
	}
	in.UserID = current.UserID
	if err := validateRoster(d, &in); err != nil {
		return RosterEntry{}, err
	}
	return s.repo.UpdateRosterEntry(ctx, departmentID, entryID, in)
}

// RemoveRosterEntry drops a member from the roster.
func (s *Service) RemoveRosterEntry(ctx context.Context, p access.Principal, departmentID, entryID int64) error {
	d, err := s.roster(ctx, p, departmentID)
	if err != nil {
		return err
	}
	e, err := s.repo.GetRosterEntry(ctx, departmentID, entryID)
	if err != nil {
		return err
	}
	if err := s.repo.RemoveRosterEntry(ctx, departmentID, entryID); err != nil {
		return err
	}
	s.notify(ctx, d, "Roster updated", fmt.Sprintf("%s left %s", e.DisplayName, d.Name))
	return nil
}

// ClockIn opens a shift for the caller. Requires roster membership, not
// the roster role: a member manages their own clock.
func (s *Service) ClockIn(ctx context.Context, p access.Principal, departmentID int64) (TimeclockEntry, error) {
	if _, err := s.repo.Get(ctx, departmentID); err != nil {
		return TimeclockEntry{}, err
	}
	member, err := s.repo.IsRosterMember(ctx, departmentID, p.ID)
	if err != nil {
		return TimeclockEntry{}, err
	}
	if !member {
		return TimeclockEntry{}, httpx.ErrForbidden
	}
	open, err := s.repo.OpenShift(ctx, departmentID, p.ID)
	if err != nil {
		return TimeclockEntry{}, err
	}
	if open != nil {
		return TimeclockEntry{}, fmt.Errorf("%w: already clocked in", httpx.ErrConflict)
	}
	e, err := s.repo.ClockIn(ctx, departmentID, p.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return TimeclockEntry{}, fmt.Errorf("%w: already clocked in", httpx.ErrConflict)
		}
		return TimeclockEntry{}, err
	}
	return e, nil
}

// ClockOut closes the caller's open shift.
func (s *Service) ClockOut(ctx context.Context, p access.Principal, departmentID int64) (TimeclockEntry, error) {
	if _, err := s.repo.Get(ctx, departmentID); err != nil {
		return TimeclockEntry{}, err
	}
	closed, err := s.repo.ClockOut(ctx, departmentID, p.ID)
	if err != nil {
		return TimeclockEntry{}, err
	}
	if closed == nil {
		return TimeclockEntry{}, fmt.Errorf("%w: not clocked in", httpx.ErrConflict)
	}
	return *closed, nil
}

// Summary aggregates every roster member's time over the window. The
// per-member queries run in parallel with a bounded errgroup.
func (s *Service) Summary(ctx context.Context, p access.Principal, departmentID int64, since, until time.Time) ([]MemberSummary, error) {
	if _, err := s.roster(ctx, p, departmentID); err != nil {
		return nil, err
	}
	if until.IsZero() {
		until = farFuture()
	}
	roster, err := s.repo.ListRoster(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	out := make([]MemberSummary, len(roster))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i, entry := range roster {
		i, entry := i, entry
		g.Go(func() error {
			minutes, shifts, err := s.repo.MemberMinutes(gctx, departmentID, entry.UserID, since, until)
			if err != nil {
				return err
			}
			open, err := s.repo.OpenShift(gctx, departmentID, entry.UserID)
			if err != nil {
				return err
			}
			out[i] = MemberSummary{
				UserID:       entry.UserID,
				DisplayName:  entry.DisplayName,
				Callsign:     entry.Callsign,
				Rank:         entry.Rank,
				TotalMinutes: minutes,
				ShiftCount:   shifts,
				ClockedIn:    open != nil,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MyShifts returns the caller's own shifts within the window.
func (s *Service) MyShifts(ctx context.Context, p access.Principal, departmentID int64, since, until time.Time) ([]TimeclockEntry, error) {
	if _, err := s.repo.Get(ctx, departmentID); err != nil {
		return nil, err
	}
	if until.IsZero() {
		until = farFuture()
	}
	return s.repo.ListShifts(ctx, departmentID, p.ID, since, until)
}

func (s *Service) notify(ctx context.Context, d Department, title, description string) {
	if s.notifier == nil || d.WebhookURL == nil {
		return
	}
	payload := discord.WebhookPayload{
		Embeds: []discord.WebhookEmbed{{Title: title, Description: description}},
	}
	if err := s.notifier.NotifyWebhook(ctx, *d.WebhookURL, payload); err != nil {
		s.logger.Error("enqueue webhook", slog.String("department", d.Name), slog.Any("error", err))
	}
}

func validateDepartment(in *DepartmentInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.RosterViewID = strings.TrimSpace(in.RosterViewID)
	if in.Name == "" {
		return fmt.Errorf("%w: department name is required", httpx.ErrValidation)
	}
	if in.RosterViewID == "" {
		return fmt.Errorf("%w: roster role is required", httpx.ErrValidation)
	}
	if !in.Classification.Valid() {
		return fmt.Errorf("%w: unknown classification", httpx.ErrValidation)
	}
	if in.WebhookURL != nil && strings.TrimSpace(*in.WebhookURL) == "" {
		in.WebhookURL = nil
	}
	return nil
}

// validateRoster enforces the callsign policy: required unless the
// department disables callsigns, in which case none may be stored.
func validateRoster(d Department, in *RosterInput) error {
	in.UserID = strings.TrimSpace(in.UserID)
	in.DisplayName = NormalizeDisplayName(strings.TrimSpace(in.DisplayName))
	in.Rank = strings.TrimSpace(in.Rank)
	if in.UserID == "" || in.DisplayName == "" {
		return fmt.Errorf("%w: user id and display name are required", httpx.ErrValidation)
	}
	if in.Callsign != nil && strings.TrimSpace(*in.Callsign) == "" {
		in.Callsign = nil
	}
	if d.DisableCallsigns {
		if in.Callsign != nil {
			return fmt.Errorf("%w: department does not use callsigns", httpx.ErrValidation)
		}
		return nil
	}
	if in.Callsign == nil {
		return fmt.Errorf("%w: callsign is required", httpx.ErrValidation)
	}
	return nil
}

func farFuture() time.Time {
	return time.Now().Add(100 * 365 * 24 * time.Hour)
}
