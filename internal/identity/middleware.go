package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// BotKeyHeader carries the bot gateway API key on internal bot calls.
const BotKeyHeader = "X-Haven-Bot-Key"

// Middleware resolves the request principal from the session. The role
// list is decoded here, once, and never re-parsed downstream. Banned
// principals are rejected at this boundary so the access evaluator is
// never invoked for them.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// ResolvePrincipal loads the principal for logged-in sessions and stores
// it in context. Anonymous requests pass through without a principal.
func (m Middleware) ResolvePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			next.ServeHTTP(w, r)
			return
		}

		principal, _, err := m.Service.PrincipalFor(r.Context(), sess.User())
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// Stale session referencing a deleted user.
				next.ServeHTTP(w, r)
				return
			}
			m.Logger.Error("resolve principal", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if principal.IsHubBanned {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "account is banned from the hub")
			return
		}

		m.Service.MarkSeen(r.Context(), principal.ID)
		ctx := shared.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests without a principal.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.PrincipalFromContext(r.Context()) == nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose principal is not a system admin.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := shared.PrincipalFromContext(r.Context())
		if p == nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		if !access.CanManageSystem(*p) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireBotKey authenticates the Discord bot on internal endpoints and
// grants it a synthetic admin principal.
func (m Middleware) RequireBotKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(BotKeyHeader)
		if err := m.Service.VerifyBotKey(r.Context(), key); err != nil {
			if errors.Is(err, ErrBadBotKey) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bot key rejected")
				return
			}
			m.Logger.Error("verify bot key", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		bot := &access.Principal{ID: "bot", IsSystemAdmin: true, Roles: access.RoleSet{}}
		ctx := shared.ContextWithPrincipal(r.Context(), bot)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
