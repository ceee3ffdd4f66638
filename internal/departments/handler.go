package departments

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

// Handler wires HTTP endpoints for departments and the timeclock.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a departments handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers member-visible department routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Route("/{departmentID}", func(r chi.Router) {
		r.Get("/roster", h.handleListRoster)
		r.Post("/roster", h.handleAddRoster)
		r.Put("/roster/{entryID}", h.handleUpdateRoster)
		r.Delete("/roster/{entryID}", h.handleRemoveRoster)
		r.Post("/timeclock/in", h.handleClockIn)
		r.Post("/timeclock/out", h.handleClockOut)
		r.Get("/timeclock/mine", h.handleMyShifts)
		r.Get("/timeclock/summary", h.handleSummary)
	})
}

// MountAdminRoutes registers admin CRUD routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Put("/{departmentID}", h.handleUpdate)
	r.Delete("/{departmentID}", h.handleDelete)
}

type departmentRequest struct {
	Name             string  `json:"name" validate:"required,max=100"`
	Classification   string  `json:"classification" validate:"required,oneof=department organization"`
	RosterViewID     string  `json:"roster_view_id" validate:"required"`
	DisableCallsigns bool    `json:"disable_callsigns"`
	WebhookURL       *string `json:"webhook_url" validate:"omitempty,url"`
}

type rosterRequest struct {
	UserID      string  `json:"user_id" validate:"required"`
	DisplayName string  `json:"display_name" validate:"required,max=100"`
	Callsign    *string `json:"callsign" validate:"omitempty,max=20"`
	Rank        string  `json:"rank" validate:"max=100"`
}

type departmentResponse struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	Classification   Classification `json:"classification"`
	DisableCallsigns bool           `json:"disable_callsigns"`
	CanViewRoster    bool           `json:"can_view_roster"`
}

type rosterResponse struct {
	ID          int64   `json:"id"`
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Callsign    *string `json:"callsign,omitempty"`
	Rank        string  `json:"rank,omitempty"`
}

type shiftResponse struct {
	ID        int64      `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Minutes   int        `json:"minutes"`
}

func toDepartmentResponse(d Department, p access.Principal) departmentResponse {
	return departmentResponse{
		ID:               d.ID,
		Name:             d.Name,
		Classification:   d.Classification,
		DisableCallsigns: d.DisableCallsigns,
		CanViewRoster:    access.ForDepartment(p, d.Access()),
	}
}

func toRosterResponse(e RosterEntry) rosterResponse {
	return rosterResponse{ID: e.ID, UserID: e.UserID, DisplayName: e.DisplayName, Callsign: e.Callsign, Rank: e.Rank}
}

func toShiftResponse(e TimeclockEntry) shiftResponse {
	return shiftResponse{ID: e.ID, StartedAt: e.StartedAt, EndedAt: e.EndedAt, Minutes: e.Minutes}
}

func (h *Handler) principal(r *http.Request) access.Principal {
	return *shared.PrincipalFromContext(r.Context())
}

func paramID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// window reads the optional since/until RFC3339 query parameters.
func window(r *http.Request) (since, until time.Time, ok bool) {
	q := r.URL.Query()
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return since, until, false
		}
		since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return since, until, false
		}
		until = t
	}
	return since, until, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p := h.principal(r)
	depts, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list departments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]departmentResponse, len(depts))
	for i, d := range depts {
		out[i] = toDepartmentResponse(d, p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"departments": out})
}

func (h *Handler) decodeDepartment(r *http.Request) (DepartmentInput, error) {
	var req departmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return DepartmentInput{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return DepartmentInput{}, err
	}
	return DepartmentInput{
		Name:             req.Name,
		Classification:   Classification(req.Classification),
		RosterViewID:     req.RosterViewID,
		DisableCallsigns: req.DisableCallsigns,
		WebhookURL:       req.WebhookURL,
	}, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeDepartment(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	d, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create department", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDepartmentResponse(d, h.principal(r)))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "departmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	in, err := h.decodeDepartment(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	d, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDepartmentResponse(d, h.principal(r)))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "departmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleListRoster(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "departmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	roster, err := h.service.ListRoster(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]rosterResponse, len(roster))
	for i, e := range roster {
		out[i] = toRosterResponse(e)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roster": out})
}

func (h *Handler) decodeRoster(r *http.Request) (RosterInput, error) {
	var req rosterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return RosterInput{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return RosterInput{}, err
	}
	return RosterInput{UserID: req.UserID, DisplayName: req.DisplayName, Callsign: req.Callsign, Rank: req.Rank}, nil
}

func (h *Handler) handleAddRoster(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "departmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	in, err := h.decodeRoster(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	e, err := h.service.AddRosterEntry(r.Context(), h.principal(r), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRosterResponse(e))
}

func (h *Handler) handleUpdateRoster(w http.ResponseWriter, r *http.Request) {
	deptID, ok := paramID(r, "departmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	entryID, ok := paramID(r, "entryID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid roster entry id")
		return
	}
	in, err := h.decodeRoster(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	e, err := h.service.UpdateRosterEntry(r.Context(), h.principal(r), deptID, entryID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRosterResponse(e))
}

func (h *Handler) handleRemoveRoster(w http.ResponseWriter, r *http.Request) {
	deptID, ok := paramID(r, "departmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	entryID, ok := paramID(r, "entryID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid roster entry id")
		return
	}
	if err := h.service.RemoveRosterEntry(r.Context(), h.principal(r), deptID, entryID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleClockIn(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "departmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	e, err := h.service.ClockIn(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toShiftResponse(e))
}

func (h *Handler) handleClockOut(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "departmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	e, err := h.service.ClockOut(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toShiftResponse(e))
}

func (h *Handler) handleMyShifts(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "departmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	since, until, ok := window(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "since/until must be RFC3339")
		return
	}
	shifts, err := h.service.MyShifts(r.Context(), h.principal(r), id, since, until)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]shiftResponse, len(shifts))
	for i, e := range shifts {
		out[i] = toShiftResponse(e)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shifts": out})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "departmentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department id")
		return
	}
	since, until, ok := window(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "since/until must be RFC3339")
		return
	}
	summary, err := h.service.Summary(r.Context(), h.principal(r), id, since, until)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"summary": summary})
}
