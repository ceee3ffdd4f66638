package tickets

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haven-community/haven/internal/platform/db"
	"github.com/haven-community/haven/internal/shared"
)

// Repository provides PostgreSQL backed persistence for tickets.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ticketColumns = `id, category_id, owner_id, assigned_to, claimed_by, subject, status, created_at, updated_at`

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.CategoryID, &t.OwnerID, &t.AssignedTo, &t.ClaimedBy, &t.Subject, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// Create inserts the ticket, its opening message, and the creation log
// entry in one transaction.
func (r *Repository) Create(ctx context.Context, in CreateInput, ownerID string, firstIsStaff bool) (Ticket, error) {
	var t Ticket
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO tickets (category_id, owner_id, subject, status, created_at, updated_at)
			VALUES ($1, $2, $3, 'open', NOW(), NOW())
			RETURNING `+ticketColumns,
			in.CategoryID, ownerID, in.Subject)
		var err error
		t, err = scanTicket(row)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO ticket_messages (ticket_id, author_id, body, is_staff, created_at)
			VALUES ($1, $2, $3, $4, NOW())`,
			t.ID, ownerID, in.Body, firstIsStaff); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO ticket_log (ticket_id, actor_id, action, detail, created_at)
			VALUES ($1, $2, $3, '', NOW())`,
			t.ID, ownerID, LogCreated)
		return err
	})
	return t, err
}

// Get fetches a ticket by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Ticket, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ticket{}, shared.ErrNotFound
		}
		return Ticket{}, err
	}
	return t, nil
}

// List returns tickets visible under the filter, newest first, with the
// total matching count for pagination.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Ticket, int, error) {
	where := `WHERE ($1::bool OR owner_id = $2 OR assigned_to = $2 OR claimed_by = $2
		OR category_id = ANY($3)
		OR EXISTS (SELECT 1 FROM ticket_participants tp WHERE tp.ticket_id = tickets.id AND tp.user_id = $2))
		AND ($4::text IS NULL OR status = $4)
		AND ($5::bigint IS NULL OR category_id = $5)`
	args := []any{f.All, f.UserID, f.SupportCategoryIDs, f.Status, f.CategoryID}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets `+where+` ORDER BY created_at DESC, id DESC LIMIT $6 OFFSET $7`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// UpdateStatus sets the ticket status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tickets SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Claim atomically sets claimed_by if and only if the ticket is
// unclaimed. Returns false when another handler already holds the claim.
func (r *Repository) Claim(ctx context.Context, id int64, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tickets SET claimed_by = $2, status = CASE WHEN status = 'open' THEN 'in_progress' ELSE status END, updated_at = NOW()
		 WHERE id = $1 AND claimed_by IS NULL`,
		id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Unclaim clears claimed_by. Returns false when the ticket was not
// claimed.
func (r *Repository) Unclaim(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tickets SET claimed_by = NULL, updated_at = NOW() WHERE id = $1 AND claimed_by IS NOT NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Assign sets or clears assigned_to.
func (r *Repository) Assign(ctx context.Context, id int64, userID *string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tickets SET assigned_to = $2, updated_at = NOW() WHERE id = $1`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Transfer moves the ticket to another category.
func (r *Repository) Transfer(ctx context.Context, id, categoryID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tickets SET category_id = $2, updated_at = NOW() WHERE id = $1`, id, categoryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddMessage inserts a reply.
func (r *Repository) AddMessage(ctx context.Context, ticketID int64, authorID, body string, isStaff bool) (Message, error) {
	var m Message
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ticket_messages (ticket_id, author_id, body, is_staff, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, ticket_id, author_id, body, is_staff, created_at`,
		ticketID, authorID, body, isStaff).
		Scan(&m.ID, &m.TicketID, &m.AuthorID, &m.Body, &m.IsStaff, &m.CreatedAt)
	return m, err
}

// ListMessages returns the ticket's messages oldest first.
func (r *Repository) ListMessages(ctx context.Context, ticketID int64) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, ticket_id, author_id, body, is_staff, created_at FROM ticket_messages WHERE ticket_id = $1 ORDER BY created_at, id`,
		ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.TicketID, &m.AuthorID, &m.Body, &m.IsStaff, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IsParticipant reports membership in the ticket's participant list.
func (r *Repository) IsParticipant(ctx context.Context, ticketID int64, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ticket_participants WHERE ticket_id = $1 AND user_id = $2)`,
		ticketID, userID).Scan(&ok)
	return ok, err
}

// AddParticipant inserts a participant row. Duplicate adds are mapped to
// shared-level conflict by the service through db.IsUniqueViolation.
func (r *Repository) AddParticipant(ctx context.Context, ticketID int64, userID, addedBy string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ticket_participants (ticket_id, user_id, added_by, added_at) VALUES ($1, $2, $3, NOW())`,
		ticketID, userID, addedBy)
	return err
}

// RemoveParticipant deletes a participant row.
func (r *Repository) RemoveParticipant(ctx context.Context, ticketID int64, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM ticket_participants WHERE ticket_id = $1 AND user_id = $2`, ticketID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListParticipants returns the ticket's participants.
func (r *Repository) ListParticipants(ctx context.Context, ticketID int64) ([]Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ticket_id, user_id, added_by, added_at FROM ticket_participants WHERE ticket_id = $1 ORDER BY added_at`,
		ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.TicketID, &p.UserID, &p.AddedBy, &p.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AppendLog inserts a ticket log entry.
func (r *Repository) AppendLog(ctx context.Context, ticketID int64, actorID, action, detail string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ticket_log (ticket_id, actor_id, action, detail, created_at) VALUES ($1, $2, $3, $4, NOW())`,
		ticketID, actorID, action, detail)
	return err
}

// ListLog returns the ticket's log entries oldest first.
func (r *Repository) ListLog(ctx context.Context, ticketID int64) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, ticket_id, actor_id, action, detail, created_at FROM ticket_log WHERE ticket_id = $1 ORDER BY created_at, id`,
		ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.TicketID, &e.ActorID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
