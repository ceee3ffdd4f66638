package tickets

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

// Handler wires HTTP endpoints for the ticket desk.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a ticket handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ticket routes. All require an authenticated
// principal; finer gates are evaluated per ticket.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{ticketID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/messages", h.handleListMessages)
		r.Post("/messages", h.handlePostMessage)
		r.Post("/status", h.handleStatus)
		r.Post("/claim", h.handleClaim)
		r.Delete("/claim", h.handleUnclaim)
		r.Post("/assign", h.handleAssign)
		r.Get("/participants", h.handleListParticipants)
		r.Post("/participants", h.handleAddParticipant)
		r.Delete("/participants/{userID}", h.handleRemoveParticipant)
		r.Post("/transfer", h.handleTransfer)
		r.Get("/log", h.handleLog)
	})
}

type createTicketRequest struct {
	CategoryID int64  `json:"category_id" validate:"required,gt=0"`
	Subject    string `json:"subject" validate:"required,max=200"`
	Body       string `json:"body" validate:"required,max=4000"`
}

type messageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type assignRequest struct {
	UserID *string `json:"user_id"`
}

type participantRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type transferRequest struct {
	CategoryID int64 `json:"category_id" validate:"required,gt=0"`
}

type ticketResponse struct {
	ID         int64     `json:"id"`
	CategoryID *int64    `json:"category_id,omitempty"`
	OwnerID    string    `json:"owner_id"`
	AssignedTo *string   `json:"assigned_to,omitempty"`
	ClaimedBy  *string   `json:"claimed_by,omitempty"`
	Subject    string    `json:"subject"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ticketDetailResponse struct {
	ticketResponse

	// Caller-specific capabilities so the frontend can render controls.
	CanReply               bool `json:"can_reply"`
	CanClose               bool `json:"can_close"`
	CanChangeStatusForward bool `json:"can_change_status_forward"`
	CanClaim               bool `json:"can_claim"`
	IsTreatedAsStaff       bool `json:"is_treated_as_staff"`
}

type messageResponse struct {
	ID        int64     `json:"id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	IsStaff   bool      `json:"is_staff"`
	CreatedAt time.Time `json:"created_at"`
}

type logEntryResponse struct {
	ID        int64     `json:"id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toTicketResponse(t Ticket) ticketResponse {
	return ticketResponse{
		ID:         t.ID,
		CategoryID: t.CategoryID,
		OwnerID:    t.OwnerID,
		AssignedTo: t.AssignedTo,
		ClaimedBy:  t.ClaimedBy,
		Subject:    t.Subject,
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func (h *Handler) principal(r *http.Request) access.Principal {
	// RequireAuth guarantees a principal on these routes.
	return *shared.PrincipalFromContext(r.Context())
}

func (h *Handler) ticketID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ticketID"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p := h.principal(r)
	page, perPage := shared.PageParams(r, 100)

	var status *Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := Status(raw)
		status = &s
	}
	var categoryID *int64
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid category_id")
			return
		}
		categoryID = &id
	}

	list, total, err := h.service.List(r.Context(), p, status, categoryID, shared.Pagination{Page: page, PerPage: perPage})
	if err != nil {
		h.logger.Error("list tickets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]ticketResponse, len(list))
	for i, t := range list {
		out[i] = toTicketResponse(t)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"tickets":    out,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	t, err := h.service.Create(r.Context(), h.principal(r), CreateInput{
		CategoryID: req.CategoryID,
		Subject:    req.Subject,
		Body:       req.Body,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTicketResponse(t))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	t, acc, err := h.service.Get(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ticketDetailResponse{
		ticketResponse:         toTicketResponse(t),
		CanReply:               acc.CanReply,
		CanClose:               acc.CanClose,
		CanChangeStatusForward: acc.CanChangeStatusForward,
		CanClaim:               acc.CanClaim,
		IsTreatedAsStaff:       acc.IsTreatedAsStaff,
	})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	msgs, err := h.service.ListMessages(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = messageResponse{ID: m.ID, AuthorID: m.AuthorID, Body: m.Body, IsStaff: m.IsStaff, CreatedAt: m.CreatedAt}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	var req messageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.PostMessage(r.Context(), h.principal(r), id, req.Body)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, messageResponse{ID: m.ID, AuthorID: m.AuthorID, Body: m.Body, IsStaff: m.IsStaff, CreatedAt: m.CreatedAt})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	t, err := h.service.ChangeStatus(r.Context(), h.principal(r), id, Status(req.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	t, err := h.service.Claim(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handler) handleUnclaim(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	t, err := h.service.Unclaim(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	t, err := h.service.Assign(r.Context(), h.principal(r), id, req.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handler) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	parts, err := h.service.ListParticipants(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type participantResponse struct {
		UserID  string    `json:"user_id"`
		AddedBy string    `json:"added_by"`
		AddedAt time.Time `json:"added_at"`
	}
	out := make([]participantResponse, len(parts))
	for i, p := range parts {
		out[i] = participantResponse{UserID: p.UserID, AddedBy: p.AddedBy, AddedAt: p.AddedAt}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"participants": out})
}

func (h *Handler) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	var req participantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddParticipant(r.Context(), h.principal(r), id, req.UserID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := h.service.RemoveParticipant(r.Context(), h.principal(r), id, userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	t, err := h.service.Transfer(r.Context(), h.principal(r), id, req.CategoryID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handler) handleLog(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ticket id")
		return
	}
	entries, err := h.service.ListLog(r.Context(), h.principal(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]logEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = logEntryResponse{ID: e.ID, ActorID: e.ActorID, Action: e.Action, Detail: e.Detail, CreatedAt: e.CreatedAt}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"log": out})
}
