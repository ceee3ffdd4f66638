package identity

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/discord"
	"github.com/haven-community/haven/internal/shared"
)

const oauthStateKey = "oauth_state"

// Store defines the persistence contract the service needs.
type Store interface {
	GetUser(ctx context.Context, id string) (User, error)
	UpsertUser(ctx context.Context, id, username, avatar string, roles []byte) (User, error)
	UpdateRoles(ctx context.Context, id string, roles []byte) error
	SetBanned(ctx context.Context, id string, banned bool) error
	SetAdmin(ctx context.Context, id string, admin bool) error
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	ListBotKeys(ctx context.Context) ([]BotKey, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

// RoleSource is the slice of the Discord client the service consumes.
type RoleSource interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchIdentity(ctx context.Context, accessToken string) (discord.User, error)
	FetchMemberRoles(ctx context.Context, userID string) ([]string, error)
}

// Service wraps login and principal resolution.
type Service struct {
	repo    Store
	discord RoleSource
	now     func() time.Time
}

// NewService constructs a Service.
func NewService(repo Store, dc RoleSource) *Service {
	return &Service{repo: repo, discord: dc, now: time.Now}
}

// BeginLogin stores a fresh state nonce in the session and returns the
// Discord authorization URL.
func (s *Service) BeginLogin(sess *shared.Session) string {
	state := uuid.NewString()
	sess.Set(oauthStateKey, state)
	return s.discord.AuthURL(state)
}

// CompleteLogin verifies the OAuth state, exchanges the code, loads the
// member's profile and current guild roles, and upserts the user row.
// The role list is stored as the canonical JSON array the principal
// decoder reads back.
func (s *Service) CompleteLogin(ctx context.Context, sess *shared.Session, state, code string) (User, error) {
	expected := sess.Get(oauthStateKey)
	sess.Delete(oauthStateKey)
	if expected == "" || !hmac.Equal([]byte(expected), []byte(state)) {
		return User{}, ErrStateMismatch
	}

	token, err := s.discord.ExchangeCode(ctx, code)
	if err != nil {
		return User{}, fmt.Errorf("identity: exchange code: %w", err)
	}
	profile, err := s.discord.FetchIdentity(ctx, token)
	if err != nil {
		return User{}, fmt.Errorf("identity: fetch identity: %w", err)
	}
	roles, err := s.discord.FetchMemberRoles(ctx, profile.ID)
	if err != nil {
		// Not a guild member (or the bot lost permission): store an empty
		// role list rather than failing the login.
		roles = nil
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return User{}, err
	}

	user, err := s.repo.UpsertUser(ctx, profile.ID, profile.Username, profile.Avatar, rolesJSON)
	if err != nil {
		return User{}, fmt.Errorf("identity: upsert user: %w", err)
	}
	return user, nil
}

// RefreshRoles re-reads the member's guild roles and stores them.
func (s *Service) RefreshRoles(ctx context.Context, userID string) (access.RoleSet, error) {
	roles, err := s.discord.FetchMemberRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("identity: fetch member roles: %w", err)
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRoles(ctx, userID, rolesJSON); err != nil {
		return nil, err
	}
	return access.NewRoleSet(roles...), nil
}

// PrincipalFor loads the user row and decodes it into a typed principal.
// Malformed role data decodes to an empty set: fail closed.
func (s *Service) PrincipalFor(ctx context.Context, userID string) (*access.Principal, User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, User{}, err
	}
	p := &access.Principal{
		ID:            user.ID,
		IsSystemAdmin: user.IsAdmin,
		Roles:         access.DecodeRoleSet(user.Roles),
		IsHubBanned:   user.IsBanned,
	}
	return p, user, nil
}

// VerifyBotKey checks a presented bot key against the stored hashes.
func (s *Service) VerifyBotKey(ctx context.Context, key string) error {
	if key == "" {
		return ErrBadBotKey
	}
	keys, err := s.repo.ListBotKeys(ctx)
	if err != nil {
		return err
	}
	for _, stored := range keys {
		if bcrypt.CompareHashAndPassword([]byte(stored.KeyHash), []byte(key)) == nil {
			return nil
		}
	}
	return ErrBadBotKey
}

// SetBanned toggles the hub ban flag for a user.
func (s *Service) SetBanned(ctx context.Context, userID string, banned bool) error {
	return s.repo.SetBanned(ctx, userID, banned)
}

// SetAdmin toggles the sticky admin flag for a user.
func (s *Service) SetAdmin(ctx context.Context, userID string, admin bool) error {
	return s.repo.SetAdmin(ctx, userID, admin)
}

// ListUsers returns a page of users with the total count.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	pagination := shared.NewPagination(page, perPage, 0)
	users, total, err := s.repo.ListUsers(ctx, pagination.PerPage, pagination.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(page, perPage, total), nil
}

// MarkSeen records activity for a user, best effort.
func (s *Service) MarkSeen(ctx context.Context, userID string) {
	_ = s.repo.TouchLastSeen(ctx, userID, s.now())
}
