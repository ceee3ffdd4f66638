package applications

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

// Handler wires HTTP endpoints for application forms.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs an applications handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers member-visible application routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleListForms)
	r.Get("/mine", h.handleMySubmissions)
	r.Route("/{formID}", func(r chi.Router) {
		r.Get("/", h.handleGetForm)
		r.Post("/submissions", h.handleSubmit)
		r.Get("/submissions", h.handleListSubmissions)
	})
	r.Post("/submissions/{submissionID}/decision", h.handleDecide)
}

// MountAdminRoutes registers admin form CRUD routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/", h.handleCreateForm)
	r.Put("/{formID}", h.handleUpdateForm)
	r.Delete("/{formID}", h.handleDeleteForm)
}

type questionPayload struct {
	ID       string `json:"id" validate:"required,max=64"`
	Prompt   string `json:"prompt" validate:"required,max=500"`
	Required bool   `json:"required"`
}

type formRequest struct {
	Title           string            `json:"title" validate:"required,max=200"`
	Description     string            `json:"description" validate:"max=2000"`
	AdminRoleID     *string           `json:"admin_role_id"`
	ModeratorRoleID *string           `json:"moderator_role_id"`
	ViewerRoleID    *string           `json:"viewer_role_id"`
	IsActive        bool              `json:"is_active"`
	Questions       []questionPayload `json:"questions" validate:"dive"`
}

type submitRequest struct {
	Answers map[string]string `json:"answers" validate:"required"`
}

type decisionRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted denied"`
	Note   string `json:"note" validate:"max=1000"`
}

type formResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	IsActive    bool       `json:"is_active"`
	Questions   []Question `json:"questions"`

	CanSubmit     bool `json:"can_submit"`
	CanReview     bool `json:"can_review"`
	CanAdminister bool `json:"can_administer"`
}

type submissionResponse struct {
	ID           int64             `json:"id"`
	FormID       int64             `json:"form_id"`
	UserID       string            `json:"user_id"`
	Answers      map[string]string `json:"answers"`
	Status       SubmissionStatus  `json:"status"`
	DecidedBy    *string           `json:"decided_by,omitempty"`
	DecidedAt    *time.Time        `json:"decided_at,omitempty"`
	DecisionNote string            `json:"decision_note,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func toFormResponse(f Form, p access.Principal) formResponse {
	acc := access.ForApplication(p, f.Access())
	return formResponse{
		ID:            f.ID,
		Title:         f.Title,
		Description:   f.Description,
		IsActive:      f.IsActive,
		Questions:     f.Questions,
		CanSubmit:     acc.CanSubmit,
		CanReview:     acc.CanReview,
		CanAdminister: acc.CanAdminister,
	}
}

func toSubmissionResponse(s Submission) submissionResponse {
	return submissionResponse{
		ID:           s.ID,
		FormID:       s.FormID,
		UserID:       s.UserID,
		Answers:      s.Answers,
		Status:       s.Status,
		DecidedBy:    s.DecidedBy,
		DecidedAt:    s.DecidedAt,
		DecisionNote: s.DecisionNote,
		CreatedAt:    s.CreatedAt,
	}
}

func (h *Handler) principal(r *http.Request) access.Principal {
	return *shared.PrincipalFromContext(r.Context())
}

func paramID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleListForms(w http.ResponseWriter, r *http.Request) {
	p := h.principal(r)
	forms, err := h.service.ListForms(r.Context(), p)
	if err != nil {
		h.logger.Error("list forms", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]formResponse, len(forms))
	for i, f := range forms {
		out[i] = toFormResponse(f, p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"forms": out})
}

func (h *Handler) handleGetForm(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "formID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid form id")
		return
	}
	p := h.principal(r)
	f, _, err := h.service.GetForm(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFormResponse(f, p))
}

func (h *Handler) decodeForm(r *http.Request) (FormInput, error) {
	var req formRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return FormInput{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return FormInput{}, err
	}
	questions := make([]Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = Question{ID: q.ID, Prompt: q.Prompt, Required: q.Required}
	}
	return FormInput{
		Title:           req.Title,
		Description:     req.Description,
		AdminRoleID:     req.AdminRoleID,
		ModeratorRoleID: req.ModeratorRoleID,
		ViewerRoleID:    req.ViewerRoleID,
		IsActive:        req.IsActive,
		Questions:       questions,
	}, nil
}

func (h *Handler) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeForm(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	f, err := h.service.CreateForm(r.Context(), in)
	if err != nil {
		h.logger.Error("create form", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFormResponse(f, h.principal(r)))
}

func (h *Handler) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "formID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid form id")
		return
	}
	in, err := h.decodeForm(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	f, err := h.service.UpdateForm(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFormResponse(f, h.principal(r)))
}

func (h *Handler) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "formID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid form id")
		return
	}
	if err := h.service.DeleteForm(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "formID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid form id")
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sub, err := h.service.Submit(r.Context(), h.principal(r), id, req.Answers)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSubmissionResponse(sub))
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "formID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid form id")
		return
	}
	var status *SubmissionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := SubmissionStatus(raw)
		if s != StatusPending && s != StatusAccepted && s != StatusDenied {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status")
			return
		}
		status = &s
	}
	subs, err := h.service.ListSubmissions(r.Context(), h.principal(r), id, status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]submissionResponse, len(subs))
	for i, s := range subs {
		out[i] = toSubmissionResponse(s)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"submissions": out})
}

func (h *Handler) handleMySubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.MySubmissions(r.Context(), h.principal(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]submissionResponse, len(subs))
	for i, s := range subs {
		out[i] = toSubmissionResponse(s)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"submissions": out})
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "submissionID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid submission id")
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sub, err := h.service.Decide(r.Context(), h.principal(r), id, SubmissionStatus(req.Status), req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSubmissionResponse(sub))
}
