package app_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/haven-community/haven/internal/app"
	"github.com/haven-community/haven/internal/applications"
	"github.com/haven-community/haven/internal/audit"
	"github.com/haven-community/haven/internal/branding"
	"github.com/haven-community/haven/internal/categories"
	"github.com/haven-community/haven/internal/departments"
	"github.com/haven-community/haven/internal/discord"
	"github.com/haven-community/haven/internal/garage"
	"github.com/haven-community/haven/internal/identity"
	"github.com/haven-community/haven/internal/selfroles"
	"github.com/haven-community/haven/internal/shared"
	"github.com/haven-community/haven/internal/tickets"
	_ "github.com/haven-community/haven/testing"
)

type routerUserStore struct {
	users map[string]identity.User
}

func (s *routerUserStore) GetUser(ctx context.Context, id string) (identity.User, error) {
	u, ok := s.users[id]
	if !ok {
		return identity.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *routerUserStore) UpsertUser(ctx context.Context, id, username, avatar string, roles []byte) (identity.User, error) {
	u := identity.User{ID: id, Username: username, Avatar: avatar, Roles: roles}
	s.users[id] = u
	return u, nil
}

func (s *routerUserStore) UpdateRoles(ctx context.Context, id string, roles []byte) error {
	u := s.users[id]
	u.Roles = roles
	s.users[id] = u
	return nil
}

func (s *routerUserStore) SetBanned(ctx context.Context, id string, banned bool) error { return nil }
func (s *routerUserStore) SetAdmin(ctx context.Context, id string, admin bool) error   { return nil }

func (s *routerUserStore) ListUsers(ctx context.Context, limit, offset int) ([]identity.User, int, error) {
	return nil, 0, nil
}

func (s *routerUserStore) ListBotKeys(ctx context.Context) ([]identity.BotKey, error) {
	return nil, nil
}

func (s *routerUserStore) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	return nil
}

type routerRoleSource struct{}

func (routerRoleSource) AuthURL(state string) string { return "https://discord.test/oauth?" + state }

func (routerRoleSource) ExchangeCode(ctx context.Context, code string) (string, error) {
	return "token", nil
}

func (routerRoleSource) FetchIdentity(ctx context.Context, accessToken string) (discord.User, error) {
	return discord.User{}, nil
}

func (routerRoleSource) FetchMemberRoles(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

// newTestRouter builds the full router with a miniredis session store and
// one stored user, and returns a session cookie for that user.
func newTestRouter(t *testing.T) (http.Handler, *http.Cookie) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	logger := slog.Default()

	roles, _ := json.Marshal([]string{"100"})
	store := &routerUserStore{users: map[string]identity.User{
		"42": {ID: "42", Username: "sam", Roles: roles, Credits: 250},
	}}
	identityService := identity.NewService(store, routerRoleSource{})
	identityHandler := identity.NewHandler(logger, identityService, sessions, csrf, "/")
	identityMiddleware := identity.Middleware{Service: identityService, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         &app.Config{},
		SessionManager: sessions,
		CSRFManager:    csrf,
		Identity:       identityMiddleware,

		IdentityHandler:     identityHandler,
		CategoriesHandler:   categories.NewHandler(logger, nil),
		TicketsHandler:      tickets.NewHandler(logger, nil),
		ApplicationsHandler: applications.NewHandler(logger, nil),
		DepartmentsHandler:  departments.NewHandler(logger, nil),
		GarageHandler:       garage.NewHandler(logger, nil),
		SelfRolesHandler:    selfroles.NewHandler(logger, nil),
		BrandingHandler:     branding.NewHandler(logger, nil),
		AuditHandler:        audit.NewHandler(logger, nil),
	})

	ctx := context.Background()
	sess, err := sessions.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser("42")
	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Commit(ctx, rec, sess))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	return router, cookies[0]
}

func TestAuthMeResolvesSessionPrincipal(t *testing.T) {
	router, cookie := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ID        string   `json:"id"`
		Username  string   `json:"username"`
		Roles     []string `json:"roles"`
		CSRFToken string   `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "42", body.ID)
	require.Equal(t, "sam", body.Username)
	require.Contains(t, body.Roles, "100")
	require.NotEmpty(t, body.CSRFToken)
}

func TestAuthMeWithoutSessionIsUnauthorized(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCSRFTokenFromMeUnlocksWrites(t *testing.T) {
	router, cookie := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.CSRFToken)

	// A session-bearing write without the header is rejected at the
	// CSRF gate, and accepted once the issued token is attached.
	blocked := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	blocked.AddCookie(cookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, blocked)
	require.Equal(t, http.StatusForbidden, rec.Code)

	allowed := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	allowed.AddCookie(cookie)
	allowed.Header.Set(shared.CSRFHeader, body.CSRFToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, allowed)
	require.Equal(t, http.StatusOK, rec.Code)
}
