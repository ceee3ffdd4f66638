package selfroles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// Handler wires HTTP endpoints for self-assignable roles.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a self-roles handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers member self-role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/{selfRoleID}/claim", h.handleClaim)
	r.Delete("/{selfRoleID}/claim", h.handleRemove)
}

// MountAdminRoutes registers admin CRUD routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Put("/{selfRoleID}", h.handleUpdate)
	r.Delete("/{selfRoleID}", h.handleDelete)
}

type selfRoleRequest struct {
	RoleID   string `json:"role_id" validate:"required"`
	Label    string `json:"label" validate:"required,max=100"`
	Emoji    string `json:"emoji" validate:"max=64"`
	Position int    `json:"position" validate:"gte=0"`
}

type selfRoleResponse struct {
	ID       int64  `json:"id"`
	RoleID   string `json:"role_id"`
	Label    string `json:"label"`
	Emoji    string `json:"emoji,omitempty"`
	Position int    `json:"position"`
	Held     bool   `json:"held"`
}

func toResponse(s SelfRole, p access.Principal) selfRoleResponse {
	return selfRoleResponse{ID: s.ID, RoleID: s.RoleID, Label: s.Label, Emoji: s.Emoji, Position: s.Position, Held: p.Roles.Has(s.RoleID)}
}

func (h *Handler) principal(r *http.Request) access.Principal {
	return *shared.PrincipalFromContext(r.Context())
}

func paramID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "selfRoleID"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p := h.principal(r)
	roles, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list self roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]selfRoleResponse, len(roles))
	for i, s := range roles {
		out[i] = toResponse(s, p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"self_roles": out})
}

func (h *Handler) decode(r *http.Request) (Input, error) {
	var req selfRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return Input{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return Input{}, err
	}
	return Input{RoleID: req.RoleID, Label: req.Label, Emoji: req.Emoji, Position: req.Position}, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, err := h.decode(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	s, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(s, h.principal(r)))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid self role id")
		return
	}
	in, err := h.decode(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	s, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(s, h.principal(r)))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid self role id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid self role id")
		return
	}
	s, err := h.service.Claim(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	// 202: the grant lands once the bot processes the queued task.
	httpx.JSON(w, http.StatusAccepted, toResponse(s, h.principal(r)))
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid self role id")
		return
	}
	s, err := h.service.Remove(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, toResponse(s, h.principal(r)))
}
