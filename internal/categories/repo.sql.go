package categories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haven-community/haven/internal/shared"
)

// Repository provides PostgreSQL backed persistence for categories.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const categoryColumns = `id, name, description, required_role_id, is_restricted, webhook_url, position, created_at, updated_at`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.RequiredRoleID, &c.IsRestricted, &c.WebhookURL, &c.Position, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// List returns all categories ordered by position.
func (r *Repository) List(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cats []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cats, nil
}

// Get fetches a category by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Category, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, shared.ErrNotFound
		}
		return Category{}, err
	}
	return c, nil
}

// Create inserts a new category.
func (r *Repository) Create(ctx context.Context, in CreateInput) (Category, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO categories (name, description, required_role_id, is_restricted, webhook_url, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+categoryColumns,
		in.Name, in.Description, in.RequiredRoleID, in.IsRestricted, in.WebhookURL, in.Position)
	return scanCategory(row)
}

// Update replaces a category's attributes.
func (r *Repository) Update(ctx context.Context, id int64, in CreateInput) (Category, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE categories
		SET name = $2, description = $3, required_role_id = $4, is_restricted = $5, webhook_url = $6, position = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING `+categoryColumns,
		id, in.Name, in.Description, in.RequiredRoleID, in.IsRestricted, in.WebhookURL, in.Position)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, shared.ErrNotFound
		}
		return Category{}, err
	}
	return c, nil
}

// Delete removes a category. Returns shared.ErrNotFound when nothing was
// deleted.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountTickets returns how many tickets still reference the category.
func (r *Repository) CountTickets(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE category_id = $1`, id).Scan(&count)
	return count, err
}

// AnySupportRoleHeld reports whether any category's required role appears
// in the given role set. This backs the broader staff-or-admin gate used
// by ticket transfer.
func (r *Repository) AnySupportRoleHeld(ctx context.Context, roleIDs []string) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}
	var held bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE required_role_id = ANY($1))`, roleIDs).Scan(&held)
	return held, err
}
