package categories

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// Handler wires HTTP endpoints for ticket categories.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a category handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers member-visible category routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
}

// MountAdminRoutes registers admin CRUD routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Put("/{categoryID}", h.handleUpdate)
	r.Delete("/{categoryID}", h.handleDelete)
}

type categoryRequest struct {
	Name           string  `json:"name" validate:"required,max=100"`
	Description    string  `json:"description" validate:"max=1000"`
	RequiredRoleID *string `json:"required_role_id"`
	IsRestricted   bool    `json:"is_restricted"`
	WebhookURL     *string `json:"webhook_url" validate:"omitempty,url"`
	Position       int     `json:"position" validate:"gte=0"`
}

type categoryResponse struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	RequiredRoleID *string `json:"required_role_id,omitempty"`
	IsRestricted   bool    `json:"is_restricted"`
	WebhookURL     *string `json:"webhook_url,omitempty"`
	Position       int     `json:"position"`

	// Caller-specific capabilities so the frontend can filter.
	CanCreateTicket  bool `json:"can_create_ticket"`
	HasSupportAccess bool `json:"has_support_access"`
}

func toResponse(c Category, p *access.Principal) categoryResponse {
	resp := categoryResponse{
		ID:             c.ID,
		Name:           c.Name,
		Description:    c.Description,
		RequiredRoleID: c.RequiredRoleID,
		IsRestricted:   c.IsRestricted,
		WebhookURL:     c.WebhookURL,
		Position:       c.Position,
	}
	if p != nil {
		ca := access.ForCategory(*p, c.Access())
		resp.CanCreateTicket = ca.CanCreateTicket
		resp.HasSupportAccess = ca.HasSupportAccess
		if !resp.HasSupportAccess && !p.IsSystemAdmin {
			// Gate details non-staff have no use for.
			resp.RequiredRoleID = nil
			resp.WebhookURL = nil
		}
	}
	return resp
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	cats, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list categories", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]categoryResponse, len(cats))
	for i, c := range cats {
		out[i] = toResponse(c, p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (h *Handler) decode(r *http.Request) (CreateInput, error) {
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return CreateInput{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return CreateInput{}, err
	}
	return CreateInput{
		Name:           req.Name,
		Description:    req.Description,
		RequiredRoleID: req.RequiredRoleID,
		IsRestricted:   req.IsRestricted,
		WebhookURL:     req.WebhookURL,
		Position:       req.Position,
	}, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, err := h.decode(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cat, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create category", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(cat, shared.PrincipalFromContext(r.Context())))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := paramID(r, "categoryID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid category id")
		return
	}
	in, err := h.decode(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cat, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "category not found")
			return
		}
		h.logger.Error("update category", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(cat, shared.PrincipalFromContext(r.Context())))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := paramID(r, "categoryID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid category id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "category not found")
			return
		}
		h.logger.Error("delete category", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func paramID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
