package garage

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/haven-community/haven/internal/access"
	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// Handler wires HTTP endpoints for the garage.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a garage handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers member garage routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleRegister)
	r.Delete("/{vehicleID}", h.handleDelete)
}

// MountAdminRoutes registers admin credit routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/credits/{userID}", h.handleGrantCredits)
}

type registerRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Model string `json:"model" validate:"max=100"`
	Plate string `json:"plate" validate:"required,max=12"`
	Cost  int64  `json:"cost" validate:"gte=0"`
}

type grantRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type vehicleResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Model     string    `json:"model,omitempty"`
	Plate     string    `json:"plate"`
	Cost      int64     `json:"cost"`
	CreatedAt time.Time `json:"created_at"`
}

func toVehicleResponse(v Vehicle) vehicleResponse {
	return vehicleResponse{ID: v.ID, Name: v.Name, Model: v.Model, Plate: v.Plate, Cost: v.Cost, CreatedAt: v.CreatedAt}
}

func (h *Handler) principal(r *http.Request) access.Principal {
	return *shared.PrincipalFromContext(r.Context())
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	vehicles, balance, err := h.service.List(r.Context(), h.principal(r))
	if err != nil {
		h.logger.Error("list vehicles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]vehicleResponse, len(vehicles))
	for i, v := range vehicles {
		out[i] = toVehicleResponse(v)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vehicles": out, "credits": balance})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	v, err := h.service.Register(r.Context(), h.principal(r), RegisterInput{
		Name:  req.Name,
		Model: req.Model,
		Plate: req.Plate,
		Cost:  req.Cost,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toVehicleResponse(v))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "vehicleID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid vehicle id")
		return
	}
	if err := h.service.Delete(r.Context(), h.principal(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleGrantCredits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balance, err := h.service.GrantCredits(r.Context(), h.principal(r), userID, req.Amount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "credits": balance})
}
