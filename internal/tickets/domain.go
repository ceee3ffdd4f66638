package tickets

import (
	"time"

	"github.com/haven-community/haven/internal/access"
)

// Status is a ticket lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status ends the ticket.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// Ticket is a support request. CategoryID is nullable because deleting a
// category sets it to NULL rather than cascading.
type Ticket struct {
	ID         int64
	CategoryID *int64
	OwnerID    string
	AssignedTo *string
	ClaimedBy  *string
	Subject    string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Access converts the row into the evaluator's ticket view.
func (t Ticket) Access() access.Ticket {
	return access.Ticket{ID: t.ID, OwnerID: t.OwnerID, AssignedTo: t.AssignedTo, ClaimedBy: t.ClaimedBy}
}

// Message is a single ticket reply. IsStaff is frozen at post time from
// the author's standing on the ticket, so later role changes do not
// rewrite history.
type Message struct {
	ID        int64
	TicketID  int64
	AuthorID  string
	Body      string
	IsStaff   bool
	CreatedAt time.Time
}

// Participant is an extra user granted view/reply on a ticket. The owner
// is never stored as a participant.
type Participant struct {
	TicketID int64
	UserID   string
	AddedBy  string
	AddedAt  time.Time
}

// LogEntry records a ticket lifecycle event.
type LogEntry struct {
	ID        int64
	TicketID  int64
	ActorID   string
	Action    string
	Detail    string
	CreatedAt time.Time
}

// Log actions.
const (
	LogCreated      = "created"
	LogStatusChange = "status_changed"
	LogClaimed      = "claimed"
	LogUnclaimed    = "unclaimed"
	LogAssigned     = "assigned"
	LogUnassigned   = "unassigned"
	LogParticipant  = "participant_added"
	LogUnwatched    = "participant_removed"
	LogTransferred  = "transferred"
)

// CreateInput carries the fields for opening a ticket.
type CreateInput struct {
	CategoryID int64
	Subject    string
	Body       string
}

// ListFilter narrows a ticket listing. SupportCategoryIDs holds the
// categories where the caller has support access; All bypasses the
// visibility clause entirely (admins).
type ListFilter struct {
	UserID             string
	SupportCategoryIDs []int64
	All                bool
	Status             *Status
	CategoryID         *int64
	Limit              int
	Offset             int
}
