package audit

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haven-community/haven/internal/platform/httpx"
	"github.com/haven-community/haven/internal/shared"
)

// Lister is the read contract the handler needs.
type Lister interface {
	List(ctx context.Context, f Filter) ([]Entry, int, error)
}

// Handler wires the admin audit log listing.
type Handler struct {
	logger *slog.Logger
	repo   Lister
}

// NewHandler constructs an audit handler.
func NewHandler(logger *slog.Logger, repo Lister) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountAdminRoutes registers the listing route.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r, 200)
	q := r.URL.Query()
	pagination := shared.Pagination{Page: page, PerPage: perPage}

	entries, total, err := h.repo.List(r.Context(), Filter{
		ActorID: q.Get("actor_id"),
		Entity:  q.Get("entity"),
		Limit:   perPage,
		Offset:  pagination.Offset(),
	})
	if err != nil {
		h.logger.Error("list audit log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}
