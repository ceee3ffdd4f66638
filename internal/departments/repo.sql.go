package departments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haven-community/haven/internal/shared"
)

// Repository provides PostgreSQL backed persistence for departments,
// rosters, and the timeclock.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const departmentColumns = `id, name, classification, roster_view_id, disable_callsigns, webhook_url, created_at, updated_at`

func scanDepartment(row pgx.Row) (Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Name, &d.Classification, &d.RosterViewID, &d.DisableCallsigns, &d.WebhookURL, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// List returns all departments ordered by name.
func (r *Repository) List(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+departmentColumns+` FROM departments ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Get fetches a department by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Department, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id = $1`, id)
	d, err := scanDepartment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Department{}, shared.ErrNotFound
		}
		return Department{}, err
	}
	return d, nil
}

// Create inserts a department.
func (r *Repository) Create(ctx context.Context, in DepartmentInput) (Department, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO departments (name, classification, roster_view_id, disable_callsigns, webhook_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+departmentColumns,
		in.Name, in.Classification, in.RosterViewID, in.DisableCallsigns, in.WebhookURL)
	return scanDepartment(row)
}

// Update replaces a department's attributes.
func (r *Repository) Update(ctx context.Context, id int64, in DepartmentInput) (Department, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE departments
		SET name = $2, classification = $3, roster_view_id = $4, disable_callsigns = $5, webhook_url = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+departmentColumns,
		id, in.Name, in.Classification, in.RosterViewID, in.DisableCallsigns, in.WebhookURL)
	d, err := scanDepartment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Department{}, shared.ErrNotFound
		}
		return Department{}, err
	}
	return d, nil
}

// Delete removes a department.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountRoster returns the department's roster size.
func (r *Repository) CountRoster(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roster_entries WHERE department_id = $1`, id).Scan(&count)
	return count, err
}

const rosterColumns = `id, department_id, user_id, display_name, callsign, rank, created_at, updated_at`

func scanRosterEntry(row pgx.Row) (RosterEntry, error) {
	var e RosterEntry
	err := row.Scan(&e.ID, &e.DepartmentID, &e.UserID, &e.DisplayName, &e.Callsign, &e.Rank, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// ListRoster returns a department's roster ordered by callsign then name.
func (r *Repository) ListRoster(ctx context.Context, departmentID int64) ([]RosterEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+rosterColumns+` FROM roster_entries WHERE department_id = $1 ORDER BY callsign NULLS LAST, display_name`,
		departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RosterEntry
	for rows.Next() {
		e, err := scanRosterEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetRosterEntry fetches a roster entry within a department.
func (r *Repository) GetRosterEntry(ctx context.Context, departmentID, entryID int64) (RosterEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+rosterColumns+` FROM roster_entries WHERE department_id = $1 AND id = $2`,
		departmentID, entryID)
	e, err := scanRosterEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RosterEntry{}, shared.ErrNotFound
		}
		return RosterEntry{}, err
	}
	return e, nil
}

// IsRosterMember reports whether the user appears on the department's
// roster.
func (r *Repository) IsRosterMember(ctx context.Context, departmentID int64, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM roster_entries WHERE department_id = $1 AND user_id = $2)`,
		departmentID, userID).Scan(&ok)
	return ok, err
}

// AddRosterEntry inserts a roster entry. A unique index on
// (department_id, user_id) rejects duplicate membership.
func (r *Repository) AddRosterEntry(ctx context.Context, departmentID int64, in RosterInput) (RosterEntry, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roster_entries (department_id, user_id, display_name, callsign, rank, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+rosterColumns,
		departmentID, in.UserID, in.DisplayName, in.Callsign, in.Rank)
	return scanRosterEntry(row)
}

// UpdateRosterEntry replaces a roster entry's attributes.
func (r *Repository) UpdateRosterEntry(ctx context.Context, departmentID, entryID int64, in RosterInput) (RosterEntry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roster_entries
		SET display_name = $3, callsign = $4, rank = $5, updated_at = NOW()
		WHERE department_id = $1 AND id = $2
		RETURNING `+rosterColumns,
		departmentID, entryID, in.DisplayName, in.Callsign, in.Rank)
	e, err := scanRosterEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RosterEntry{}, shared.ErrNotFound
		}
		return RosterEntry{}, err
	}
	return e, nil
}

// RemoveRosterEntry deletes a roster entry.
func (r *Repository) RemoveRosterEntry(ctx context.Context, departmentID, entryID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM roster_entries WHERE department_id = $1 AND id = $2`, departmentID, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// OpenShift returns the user's open timeclock entry, if any.
func (r *Repository) OpenShift(ctx context.Context, departmentID int64, userID string) (*TimeclockEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, department_id, user_id, started_at, ended_at, minutes
		 FROM timeclock_entries WHERE department_id = $1 AND user_id = $2 AND ended_at IS NULL`,
		departmentID, userID)
	var e TimeclockEntry
	err := row.Scan(&e.ID, &e.DepartmentID, &e.UserID, &e.StartedAt, &e.EndedAt, &e.Minutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// ClockIn opens a shift. A partial unique index on (department_id,
// user_id) WHERE ended_at IS NULL rejects a double clock-in under races.
func (r *Repository) ClockIn(ctx context.Context, departmentID int64, userID string) (TimeclockEntry, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO timeclock_entries (department_id, user_id, started_at, minutes)
		VALUES ($1, $2, NOW(), 0)
		RETURNING id, department_id, user_id, started_at, ended_at, minutes`,
		departmentID, userID)
	var e TimeclockEntry
	err := row.Scan(&e.ID, &e.DepartmentID, &e.UserID, &e.StartedAt, &e.EndedAt, &e.Minutes)
	return e, err
}

// ClockOut closes the user's open shift and computes its minutes,
// returning the closed entry. Returns nil when no shift was open.
func (r *Repository) ClockOut(ctx context.Context, departmentID int64, userID string) (*TimeclockEntry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE timeclock_entries
		SET ended_at = NOW(), minutes = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - started_at))::int / 60)
		WHERE department_id = $1 AND user_id = $2 AND ended_at IS NULL
		RETURNING id, department_id, user_id, started_at, ended_at, minutes`,
		departmentID, userID)
	var e TimeclockEntry
	err := row.Scan(&e.ID, &e.DepartmentID, &e.UserID, &e.StartedAt, &e.EndedAt, &e.Minutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// MemberMinutes sums a member's closed shift minutes within the window
// and counts the shifts.
func (r *Repository) MemberMinutes(ctx context.Context, departmentID int64, userID string, since, until time.Time) (minutes, shifts int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(minutes), 0), COUNT(*)
		FROM timeclock_entries
		WHERE department_id = $1 AND user_id = $2 AND ended_at IS NOT NULL AND started_at >= $3 AND started_at < $4`,
		departmentID, userID, since, until).Scan(&minutes, &shifts)
	return minutes, shifts, err
}

// ListShifts returns a member's shifts within the window, newest first.
func (r *Repository) ListShifts(ctx context.Context, departmentID int64, userID string, since, until time.Time) ([]TimeclockEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, department_id, user_id, started_at, ended_at, minutes
		FROM timeclock_entries
		WHERE department_id = $1 AND user_id = $2 AND started_at >= $3 AND started_at < $4
		ORDER BY started_at DESC`,
		departmentID, userID, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimeclockEntry
	for rows.Next() {
		var e TimeclockEntry
		if err := rows.Scan(&e.ID, &e.DepartmentID, &e.UserID, &e.StartedAt, &e.EndedAt, &e.Minutes); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
