// Package branding stores the hub's single-row appearance settings.
package branding

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Settings is the hub's branding row. There is exactly one.
type Settings struct {
	CommunityName string    `json:"community_name"`
	AccentColor   string    `json:"accent_color"`
	LogoURL       string    `json:"logo_url,omitempty"`
	BannerURL     string    `json:"banner_url,omitempty"`
	UpdatedBy     string    `json:"updated_by,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Defaults returned before an admin has written the row.
var defaults = Settings{
	CommunityName: "Haven",
	AccentColor:   "#5865F2",
}

// Repository provides PostgreSQL backed persistence for branding.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the settings row, or the defaults when none exists yet.
func (r *Repository) Get(ctx context.Context) (Settings, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT community_name, accent_color, logo_url, banner_url, updated_by, updated_at FROM branding_settings WHERE id = 1`)
	var s Settings
	err := row.Scan(&s.CommunityName, &s.AccentColor, &s.LogoURL, &s.BannerURL, &s.UpdatedBy, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return defaults, nil
		}
		return Settings{}, err
	}
	return s, nil
}

// Update upserts the single settings row.
func (r *Repository) Update(ctx context.Context, s Settings) (Settings, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO branding_settings (id, community_name, accent_color, logo_url, banner_url, updated_by, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE
		SET community_name = EXCLUDED.community_name, accent_color = EXCLUDED.accent_color,
		    logo_url = EXCLUDED.logo_url, banner_url = EXCLUDED.banner_url,
		    updated_by = EXCLUDED.updated_by, updated_at = NOW()
		RETURNING community_name, accent_color, logo_url, banner_url, updated_by, updated_at`,
		s.CommunityName, s.AccentColor, s.LogoURL, s.BannerURL, s.UpdatedBy)
	var out Settings
	err := row.Scan(&out.CommunityName, &out.AccentColor, &out.LogoURL, &out.BannerURL, &out.UpdatedBy, &out.UpdatedAt)
	return out, err
}
