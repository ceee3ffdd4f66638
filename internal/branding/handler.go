package branding

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// Store is the persistence contract for branding.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, s Settings) (Settings, error)
}

// Handler wires the branding endpoints.
type Handler struct {
	logger   *slog.Logger
	store    Store
	validate *validator.Validate
}

// NewHandler constructs a branding handler.
func NewHandler(logger *slog.Logger, store Store) *Handler {
	return &Handler{logger: logger, store: store, validate: validator.New()}
}

// MountRoutes registers the public read endpoint. Branding is the one
// surface served without authentication so login pages can render it.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleGet)
}

// MountAdminRoutes registers the admin update endpoint.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Put("/", h.handleUpdate)
}

type updateRequest struct {
	CommunityName string `json:"community_name" validate:"required,max=100"`
	AccentColor   string `json:"accent_color" validate:"required,hexcolor"`
	LogoURL       string `json:"logo_url" validate:"omitempty,url"`
	BannerURL     string `json:"banner_url" validate:"omitempty,url"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("get branding", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := shared.PrincipalFromContext(r.Context())
	s, err := h.store.Update(r.Context(), Settings{
		CommunityName: req.CommunityName,
		AccentColor:   req.AccentColor,
		LogoURL:       req.LogoURL,
		BannerURL:     req.BannerURL,
		UpdatedBy:     p.ID,
	})
	if err != nil {
		h.logger.Error("update branding", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}
