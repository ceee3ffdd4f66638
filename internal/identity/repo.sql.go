package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haven-community/haven/internal/shared"
)

// Repository provides PostgreSQL backed persistence for users and bot keys.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, avatar, roles, is_admin, is_banned, credits, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Avatar, &u.Roles, &u.IsAdmin, &u.IsBanned, &u.Credits, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetUser fetches a user by Discord ID.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// UpsertUser inserts the user on first login and refreshes profile and
// role data on subsequent logins. Admin, ban, and credit state are never
// touched here.
func (r *Repository) UpsertUser(ctx context.Context, id, username, avatar string, roles []byte) (User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, avatar, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    avatar = EXCLUDED.avatar,
		    roles = EXCLUDED.roles,
		    updated_at = NOW()
		RETURNING `+userColumns,
		id, username, avatar, roles)
	return scanUser(row)
}

// UpdateRoles replaces the cached role list for a user.
func (r *Repository) UpdateRoles(ctx context.Context, id string, roles []byte) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET roles = $2, updated_at = NOW() WHERE id = $1`, id, roles)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetBanned toggles the hub ban flag.
func (r *Repository) SetBanned(ctx context.Context, id string, banned bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_banned = $2, updated_at = NOW() WHERE id = $1`, id, banned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetAdmin toggles the sticky system-admin flag.
func (r *Repository) SetAdmin(ctx context.Context, id string, admin bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_admin = $2, updated_at = NOW() WHERE id = $1`, id, admin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListUsers returns users ordered by username for the admin panel.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// ListBotKeys returns all stored bot key hashes.
func (r *Repository) ListBotKeys(ctx context.Context) ([]BotKey, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, key_hash, created_at FROM bot_keys ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []BotKey
	for rows.Next() {
		var k BotKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// TouchLastSeen is called lazily by the principal middleware.
func (r *Repository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}
