package garage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haven-community/haven/internal/platform/db"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the garage.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const vehicleColumns = `id, owner_id, name, model, plate, cost, created_at`

func scanVehicle(row pgx.Row) (Vehicle, error) {
	var v Vehicle
	err := row.Scan(&v.ID, &v.OwnerID, &v.Name, &v.Model, &v.Plate, &v.Cost, &v.CreatedAt)
	return v, err
}

// ListByOwner returns a user's vehicles newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]Vehicle, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Get fetches a vehicle by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Vehicle, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	v, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vehicle{}, shared.ErrNotFound
		}
		return Vehicle{}, err
	}
	return v, nil
}

// Register deducts the cost and inserts the vehicle in one transaction.
// The conditional update is the whole integrity story: the balance can
// never go negative because the deduction only fires while credits cover
// the cost.
func (r *Repository) Register(ctx context.Context, ownerID string, in RegisterInput) (Vehicle, error) {
	var v Vehicle
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET credits = credits - $2 WHERE id = $1 AND credits >= $2`,
			ownerID, in.Cost)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: insufficient credits", httpx.ErrConflict)
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO vehicles (owner_id, name, model, plate, cost, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING `+vehicleColumns,
			ownerID, in.Name, in.Model, in.Plate, in.Cost)
		v, err = scanVehicle(row)
		return err
	})
	return v, err
}

// Delete removes a vehicle.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vehicles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Balance returns a user's credit balance.
func (r *Repository) Balance(ctx context.Context, userID string) (int64, error) {
	var credits int64
	err := r.pool.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return credits, nil
}

// GrantCredits adds credits to a user's balance.
func (r *Repository) GrantCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	var credits int64
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET credits = credits + $2 WHERE id = $1 RETURNING credits`,
		userID, amount).Scan(&credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return credits, nil
}
