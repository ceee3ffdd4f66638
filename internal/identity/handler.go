package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// Handler wires HTTP endpoints for login and account state.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	// postLoginURL is where the browser lands after the OAuth callback.
	postLoginURL string
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, postLoginURL string) *Handler {
	if postLoginURL == "" {
		postLoginURL = "/"
	}
	return &Handler{logger: logger, service: service, sessions: sessions, csrf: csrf, postLoginURL: postLoginURL}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.handleLogin)
	r.Get("/callback", h.handleCallback)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
	r.Post("/refresh", h.handleRefresh)
}

// MountAdminRoutes registers admin-only user management routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/", h.handleListUsers)
	r.Put("/{userID}/ban", h.handleSetBanned(true))
	r.Delete("/{userID}/ban", h.handleSetBanned(false))
	r.Put("/{userID}/admin", h.handleSetAdmin(true))
	r.Delete("/{userID}/admin", h.handleSetAdmin(false))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	url := h.service.BeginLogin(sess)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	q := r.URL.Query()
	user, err := h.service.CompleteLogin(r.Context(), sess, q.Get("state"), q.Get("code"))
	if err != nil {
		if errors.Is(err, ErrStateMismatch) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "oauth state mismatch")
			return
		}
		h.logger.Error("oauth callback", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Login Failed", "could not complete Discord login")
		return
	}
	if user.IsBanned {
		h.sessions.Destroy(sess)
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "account is banned from the hub")
		return
	}
	sess.SetUser(user.ID)
	http.Redirect(w, r, h.postLoginURL, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.sessions.Destroy(sess)
	}
	httpx.NoContent(w)
}

type meResponse struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Avatar    string   `json:"avatar"`
	IsAdmin   bool     `json:"is_admin"`
	Roles     []string `json:"roles"`
	Credits   int64    `json:"credits"`
	CSRFToken string   `json:"csrf_token"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	_, user, err := h.service.PrincipalFor(r.Context(), p.ID)
	if err != nil {
		h.logger.Error("load me", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	token, _ := h.csrf.EnsureToken(r.Context(), sess)
	httpx.JSON(w, http.StatusOK, meResponse{
		ID:        user.ID,
		Username:  user.Username,
		Avatar:    user.Avatar,
		IsAdmin:   user.IsAdmin,
		Roles:     p.Roles.IDs(),
		Credits:   user.Credits,
		CSRFToken: token,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	roles, err := h.service.RefreshRoles(r.Context(), p.ID)
	if err != nil {
		h.logger.Error("refresh roles", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Refresh Failed", "could not refresh Discord roles")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles.IDs()})
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	IsAdmin  bool   `json:"is_admin"`
	IsBanned bool   `json:"is_banned"`
	Credits  int64  `json:"credits"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r, 100)
	users, pagination, err := h.service.ListUsers(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = userResponse{ID: u.ID, Username: u.Username, Avatar: u.Avatar, IsAdmin: u.IsAdmin, IsBanned: u.IsBanned, Credits: u.Credits}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out, "pagination": pagination})
}

func (h *Handler) handleSetBanned(banned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if err := h.service.SetBanned(r.Context(), userID, banned); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
				return
			}
			h.logger.Error("set banned", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.NoContent(w)
	}
}

func (h *Handler) handleSetAdmin(admin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		p := shared.PrincipalFromContext(r.Context())
		if p != nil && p.ID == userID && !admin {
			httpx.Problem(w, http.StatusConflict, "Conflict", "cannot remove your own admin flag")
			return
		}
		if err := h.service.SetAdmin(r.Context(), userID, admin); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
				return
			}
			h.logger.Error("set admin", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.NoContent(w)
	}
}
