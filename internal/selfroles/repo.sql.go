package selfroles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haven-community/haven/internal/shared"
)

// Repository provides PostgreSQL backed persistence for self-assignable
// roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selfRoleColumns = `id, role_id, label, emoji, position, created_at, updated_at`

func scanSelfRole(row pgx.Row) (SelfRole, error) {
	var s SelfRole
	err := row.Scan(&s.ID, &s.RoleID, &s.Label, &s.Emoji, &s.Position, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// List returns all self-assignable roles in display order.
func (r *Repository) List(ctx context.Context) ([]SelfRole, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selfRoleColumns+` FROM self_roles ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SelfRole
	for rows.Next() {
		s, err := scanSelfRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get fetches a self-assignable role by ID.
func (r *Repository) Get(ctx context.Context, id int64) (SelfRole, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selfRoleColumns+` FROM self_roles WHERE id = $1`, id)
	s, err := scanSelfRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SelfRole{}, shared.ErrNotFound
		}
		return SelfRole{}, err
	}
	return s, nil
}

// Create inserts a self-assignable role. role_id carries a unique index.
func (r *Repository) Create(ctx context.Context, in Input) (SelfRole, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO self_roles (role_id, label, emoji, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+selfRoleColumns,
		in.RoleID, in.Label, in.Emoji, in.Position)
	return scanSelfRole(row)
}

// Update replaces a self-assignable role's attributes.
func (r *Repository) Update(ctx context.Context, id int64, in Input) (SelfRole, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE self_roles
		SET role_id = $2, label = $3, emoji = $4, position = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+selfRoleColumns,
		id, in.RoleID, in.Label, in.Emoji, in.Position)
	s, err := scanSelfRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SelfRole{}, shared.ErrNotFound
		}
		return SelfRole{}, err
	}
	return s, nil
}

// Delete removes a self-assignable role.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM self_roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
