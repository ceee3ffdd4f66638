package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/categories"
	"github.com/haven-community/haven/internal/discord"
	"github.com/haven-community/haven/internal/platform/db"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// Store defines the persistence contract the service needs.
type Store interface {
	Create(ctx context.Context, in CreateInput, ownerID string, firstIsStaff bool) (Ticket, error)
	Get(ctx context.Context, id int64) (Ticket, error)
	List(ctx context.Context, f ListFilter) ([]Ticket, int, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	Claim(ctx context.Context, id int64, userID string) (bool, error)
	Unclaim(ctx context.Context, id int64) (bool, error)
	Assign(ctx context.Context, id int64, userID *string) error
	Transfer(ctx context.Context, id, categoryID int64) error
	AddMessage(ctx context.Context, ticketID int64, authorID, body string, isStaff bool) (Message, error)
	ListMessages(ctx context.Context, ticketID int64) ([]Message, error)
	IsParticipant(ctx context.Context, ticketID int64, userID string) (bool, error)
	AddParticipant(ctx context.Context, ticketID int64, userID, addedBy string) error
	RemoveParticipant(ctx context.Context, ticketID int64, userID string) error
	ListParticipants(ctx context.Context, ticketID int64) ([]Participant, error)
	AppendLog(ctx context.Context, ticketID int64, actorID, action, detail string) error
	ListLog(ctx context.Context, ticketID int64) ([]LogEntry, error)
}

// CategoryDirectory exposes the category lookups tickets depend on.
// *categories.Service satisfies it.
type CategoryDirectory interface {
	Get(ctx context.Context, id int64) (categories.Category, error)
	List(ctx context.Context) ([]categories.Category, error)
	IsStaffAnywhere(ctx context.Context, p access.Principal) (bool, error)
}

// Notifier enqueues webhook deliveries. *jobs.Client satisfies it.
type Notifier interface {
	NotifyWebhook(ctx context.Context, url string, payload discord.WebhookPayload) error
}

// Auditor records admin/staff mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the ticket desk.
type Service struct {
	logger   *slog.Logger
	repo     Store
	cats     CategoryDirectory
	notifier Notifier
	audit    Auditor
}

// NewService constructs a Service. notifier and audit may be nil in tests.
func NewService(logger *slog.Logger, repo Store, cats CategoryDirectory, notifier Notifier, audit Auditor) *Service {
	return &Service{logger: logger, repo: repo, cats: cats, notifier: notifier, audit: audit}
}

// category resolves the ticket's category, treating a deleted category as
// nil so the evaluator falls back to admin-only support access.
func (s *Service) category(ctx context.Context, t Ticket) (*categories.Category, error) {
	if t.CategoryID == nil {
		return nil, nil
	}
	cat, err := s.cats.Get(ctx, *t.CategoryID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cat, nil
}

// resolve loads the ticket, its category, and the caller's capability set.
// Not-found is surfaced before any capability question.
func (s *Service) resolve(ctx context.Context, p access.Principal, id int64) (Ticket, *categories.Category, access.TicketAccess, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ticket{}, nil, access.TicketAccess{}, err
	}
	cat, err := s.category(ctx, t)
	if err != nil {
		return Ticket{}, nil, access.TicketAccess{}, err
	}
	isParticipant, err := s.repo.IsParticipant(ctx, id, p.ID)
	if err != nil {
		return Ticket{}, nil, access.TicketAccess{}, err
	}
	acc := access.ForTicket(p, t.Access(), cat.Access(), isParticipant)
	return t, cat, acc, nil
}

// Create opens a ticket in the given category.
func (s *Service) Create(ctx context.Context, p access.Principal, in CreateInput) (Ticket, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	if in.Subject == "" || in.Body == "" {
		return Ticket{}, fmt.Errorf("%w: subject and body are required", httpx.ErrValidation)
	}
	cat, err := s.cats.Get(ctx, in.CategoryID)
	if err != nil {
		return Ticket{}, err
	}
	ca := access.ForCategory(p, cat.Access())
	if !ca.CanCreateTicket {
		return Ticket{}, fmt.Errorf("%w: category is restricted", httpx.ErrForbidden)
	}

	t, err := s.repo.Create(ctx, in, p.ID, ca.HasSupportAccess)
	if err != nil {
		// The category can disappear between the gate check and the
		// insert when an admin deletes an empty category.
		if db.IsForeignKeyViolation(err) {
			return Ticket{}, fmt.Errorf("%w: category no longer exists", httpx.ErrNotFound)
		}
		return Ticket{}, err
	}
	s.notify(ctx, &cat, "Ticket opened", fmt.Sprintf("#%d %s", t.ID, t.Subject))
	return t, nil
}

// Get returns a ticket together with the caller's capabilities on it.
func (s *Service) Get(ctx context.Context, p access.Principal, id int64) (Ticket, access.TicketAccess, error) {
	t, _, acc, err := s.resolve(ctx, p, id)
	if err != nil {
		return Ticket{}, access.TicketAccess{}, err
	}
	if !acc.CanView {
		return Ticket{}, access.TicketAccess{}, httpx.ErrForbidden
	}
	return t, acc, nil
}

// List returns the tickets visible to the caller.
func (s *Service) List(ctx context.Context, p access.Principal, status *Status, categoryID *int64, page shared.Pagination) ([]Ticket, int, error) {
	if status != nil && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status", httpx.ErrValidation)
	}
	f := ListFilter{
		UserID:     p.ID,
		All:        p.IsSystemAdmin,
		Status:     status,
		CategoryID: categoryID,
		Limit:      page.PerPage,
		Offset:     page.Offset(),
	}
	if !f.All {
		cats, err := s.cats.List(ctx)
		if err != nil {
			return nil, 0, err
		}
		for _, c := range cats {
			if access.ForCategory(p, c.Access()).HasSupportAccess {
				f.SupportCategoryIDs = append(f.SupportCategoryIDs, c.ID)
			}
		}
	}
	return s.repo.List(ctx, f)
}

// PostMessage appends a reply. The staff flag is frozen from the caller's
// standing at post time.
func (s *Service) PostMessage(ctx context.Context, p access.Principal, ticketID int64, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, fmt.Errorf("%w: message body is required", httpx.ErrValidation)
	}
	t, cat, acc, err := s.resolve(ctx, p, ticketID)
	if err != nil {
		return Message{}, err
	}
	if !acc.CanReply {
		return Message{}, httpx.ErrForbidden
	}
	m, err := s.repo.AddMessage(ctx, ticketID, p.ID, body, acc.IsTreatedAsStaff)
	if err != nil {
		return Message{}, err
	}
	if acc.IsTreatedAsStaff {
		s.notify(ctx, cat, "Staff reply", fmt.Sprintf("#%d %s", t.ID, t.Subject))
	}
	return m, nil
}

// ListMessages returns the ticket conversation.
func (s *Service) ListMessages(ctx context.Context, p access.Principal, ticketID int64) ([]Message, error) {
	_, _, acc, err := s.resolve(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	if !acc.CanView {
		return nil, httpx.ErrForbidden
	}
	return s.repo.ListMessages(ctx, ticketID)
}

// ChangeStatus moves the ticket to target. Closing is gated separately
// from every other transition: owners may close but never reopen.
func (s *Service) ChangeStatus(ctx context.Context, p access.Principal, ticketID int64, target Status) (Ticket, error) {
	if !target.Valid() {
		return Ticket{}, fmt.Errorf("%w: unknown status", httpx.ErrValidation)
	}
	t, cat, acc, err := s.resolve(ctx, p, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	allowed := acc.CanChangeStatusForward
	if target.Terminal() {
		allowed = acc.CanClose
	}
	if !allowed {
		return Ticket{}, httpx.ErrForbidden
	}
	if t.Status == target {
		return t, nil
	}
	if err := s.repo.UpdateStatus(ctx, ticketID, target); err != nil {
		return Ticket{}, err
	}
	s.log(ctx, ticketID, p.ID, LogStatusChange, fmt.Sprintf("%s to %s", t.Status, target))
	if target.Terminal() {
		s.notify(ctx, cat, "Ticket closed", fmt.Sprintf("#%d %s", t.ID, t.Subject))
	}
	t.Status = target
	return t, nil
}

// Claim takes the ticket for the caller. The claim is a compare-and-swap:
// if another handler got there first the caller gets a conflict, never a
// silent overwrite.
func (s *Service) Claim(ctx context.Context, p access.Principal, ticketID int64) (Ticket, error) {
	_, cat, acc, err := s.resolve(ctx, p, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if !acc.CanClaim {
		return Ticket{}, httpx.ErrForbidden
	}
	ok, err := s.repo.Claim(ctx, ticketID, p.ID)
	if err != nil {
		return Ticket{}, err
	}
	if !ok {
		return Ticket{}, fmt.Errorf("%w: ticket is already claimed", httpx.ErrConflict)
	}
	s.log(ctx, ticketID, p.ID, LogClaimed, "")
	s.notify(ctx, cat, "Ticket claimed", fmt.Sprintf("#%d", ticketID))
	return s.repo.Get(ctx, ticketID)
}

// Unclaim releases the ticket's claim.
func (s *Service) Unclaim(ctx context.Context, p access.Principal, ticketID int64) (Ticket, error) {
	_, _, acc, err := s.resolve(ctx, p, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if !acc.CanClaim {
		return Ticket{}, httpx.ErrForbidden
	}
	ok, err := s.repo.Unclaim(ctx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if !ok {
		return Ticket{}, fmt.Errorf("%w: ticket is not claimed", httpx.ErrConflict)
	}
	s.log(ctx, ticketID, p.ID, LogUnclaimed, "")
	return s.repo.Get(ctx, ticketID)
}

// Assign sets or clears the ticket's assigned handler. Assignment shares
// the support-or-admin gate with claiming.
func (s *Service) Assign(ctx context.Context, p access.Principal, ticketID int64, userID *string) (Ticket, error) {
	_, _, acc, err := s.resolve(ctx, p, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if !acc.CanClaim {
		return Ticket{}, httpx.ErrForbidden
	}
	if err := s.repo.Assign(ctx, ticketID, userID); err != nil {
		return Ticket{}, err
	}
	if userID != nil {
		s.log(ctx, ticketID, p.ID, LogAssigned, *userID)
	} else {
		s.log(ctx, ticketID, p.ID, LogUnassigned, "")
	}
	return s.repo.Get(ctx, ticketID)
}

// AddParticipant grants an extra user view/reply on the ticket.
func (s *Service) AddParticipant(ctx context.Context, p access.Principal, ticketID int64, userID string) error {
	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	cat, err := s.category(ctx, t)
	if err != nil {
		return err
	}
	if !access.CanManageParticipants(p, cat.Access()) {
		return httpx.ErrForbidden
	}
	if userID == t.OwnerID {
		return fmt.Errorf("%w: owner is always a participant", httpx.ErrValidation)
	}
	if err := s.repo.AddParticipant(ctx, ticketID, userID, p.ID); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: already a participant", httpx.ErrConflict)
		}
		return err
	}
	s.log(ctx, ticketID, p.ID, LogParticipant, userID)
	return nil
}

// RemoveParticipant revokes a participant grant.
func (s *Service) RemoveParticipant(ctx context.Context, p access.Principal, ticketID int64, userID string) error {
	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	cat, err := s.category(ctx, t)
	if err != nil {
		return err
	}
	if !access.CanManageParticipants(p, cat.Access()) {
		return httpx.ErrForbidden
	}
	if err := s.repo.RemoveParticipant(ctx, ticketID, userID); err != nil {
		return err
	}
	s.log(ctx, ticketID, p.ID, LogUnwatched, userID)
	return nil
}

// ListParticipants returns the ticket's participant grants.
func (s *Service) ListParticipants(ctx context.Context, p access.Principal, ticketID int64) ([]Participant, error) {
	_, _, acc, err := s.resolve(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	if !acc.CanView {
		return nil, httpx.ErrForbidden
	}
	return s.repo.ListParticipants(ctx, ticketID)
}

// Transfer moves the ticket to another category. The gate is the broad
// staff-anywhere-or-admin check, with no capability check against the
// source or target category beyond the target existing.
func (s *Service) Transfer(ctx context.Context, p access.Principal, ticketID, targetCategoryID int64) (Ticket, error) {
	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	target, err := s.cats.Get(ctx, targetCategoryID)
	if err != nil {
		return Ticket{}, err
	}
	staffAnywhere, err := s.cats.IsStaffAnywhere(ctx, p)
	if err != nil {
		return Ticket{}, err
	}
	if !access.CanTransferTicket(p, staffAnywhere) {
		return Ticket{}, httpx.ErrForbidden
	}
	if err := s.repo.Transfer(ctx, ticketID, targetCategoryID); err != nil {
		return Ticket{}, err
	}
	s.log(ctx, ticketID, p.ID, LogTransferred, fmt.Sprintf("to category %d", targetCategoryID))
	s.notify(ctx, &target, "Ticket transferred", fmt.Sprintf("#%d %s", t.ID, t.Subject))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  p.ID,
			Action:   "ticket.transfer",
			Entity:   "ticket",
			EntityID: fmt.Sprint(ticketID),
			Meta:     map[string]any{"category_id": targetCategoryID},
		})
	}
	return s.repo.Get(ctx, ticketID)
}

// ListLog returns the ticket's activity log, staff only.
func (s *Service) ListLog(ctx context.Context, p access.Principal, ticketID int64) ([]LogEntry, error) {
	_, _, acc, err := s.resolve(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	if !acc.IsTreatedAsStaff {
		return nil, httpx.ErrForbidden
	}
	return s.repo.ListLog(ctx, ticketID)
}

// log appends a ticket log entry, never failing the caller.
func (s *Service) log(ctx context.Context, ticketID int64, actorID, action, detail string) {
	if err := s.repo.AppendLog(ctx, ticketID, actorID, action, detail); err != nil {
		s.logger.Error("append ticket log", slog.Int64("ticket_id", ticketID), slog.Any("error", err))
	}
}

// notify enqueues a webhook embed when the category carries a webhook URL.
// Delivery failures never gate the mutation.
func (s *Service) notify(ctx context.Context, cat *categories.Category, title, description string) {
	if s.notifier == nil || cat == nil || cat.WebhookURL == nil {
		return
	}
	payload := discord.WebhookPayload{
		Embeds: []discord.WebhookEmbed{{
			Title:       title,
			Description: description,
			Fields:      []discord.WebhookEmbedField{{Name: "Category", Value: cat.Name, Inline: true}},
		}},
	}
	if err := s.notifier.NotifyWebhook(ctx, *cat.WebhookURL, payload); err != nil {
		s.logger.Error("enqueue webhook", slog.String("category", cat.Name), slog.Any("error", err))
	}
}
