package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/haven-community/haven/internal/applications"
	"github.com/haven-community/haven/internal/audit"
	"github.com/haven-community/haven/internal/branding"
	"github.com/haven-community/haven/internal/categories"
	"github.com/haven-community/haven/internal/departments"
	"github.com/haven-community/haven/internal/garage"
	"github.com/haven-community/haven/internal/identity"
	"github.com/haven-community/haven/internal/observability"
	"github.com/haven-community/haven/internal/selfroles"
	"github.com/haven-community/haven/internal/shared"
	"github.com/haven-community/haven/internal/tickets"
	"github.com/haven-community/haven/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Identity       identity.Middleware

	IdentityHandler     *identity.Handler
	CategoriesHandler   *categories.Handler
	TicketsHandler      *tickets.Handler
	ApplicationsHandler *applications.Handler
	DepartmentsHandler  *departments.Handler
	GarageHandler       *garage.Handler
	SelfRolesHandler    *selfroles.Handler
	BrandingHandler     *branding.Handler
	AuditHandler        *audit.Handler
	JobHandler          *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Haven defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Resolved for the whole tree: login and callback tolerate a
		// missing principal, and /auth/me needs one to hand out the
		// CSRF token.
		r.Use(params.Identity.ResolvePrincipal)

		r.Route("/auth", params.IdentityHandler.MountRoutes)

		// Branding is readable before login so the landing page can
		// render the community name and colors.
		r.Route("/branding", params.BrandingHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.Identity.RequireAuth)

			r.Route("/categories", params.CategoriesHandler.MountRoutes)
			r.Route("/tickets", params.TicketsHandler.MountRoutes)
			r.Route("/applications", params.ApplicationsHandler.MountRoutes)
			r.Route("/departments", params.DepartmentsHandler.MountRoutes)
			r.Route("/garage", params.GarageHandler.MountRoutes)
			r.Route("/selfroles", params.SelfRolesHandler.MountRoutes)

			r.Route("/admin", func(r chi.Router) {
				r.Use(params.Identity.RequireAdmin)

				r.Route("/users", params.IdentityHandler.MountAdminRoutes)
				r.Route("/categories", params.CategoriesHandler.MountAdminRoutes)
				r.Route("/applications", params.ApplicationsHandler.MountAdminRoutes)
				r.Route("/departments", params.DepartmentsHandler.MountAdminRoutes)
				r.Route("/garage", params.GarageHandler.MountAdminRoutes)
				r.Route("/selfroles", params.SelfRolesHandler.MountAdminRoutes)
				r.Route("/branding", params.BrandingHandler.MountAdminRoutes)
				r.Route("/audit", params.AuditHandler.MountAdminRoutes)
				if params.JobHandler != nil {
					r.Route("/jobs", params.JobHandler.MountRoutes)
				}
			})
		})

		// Internal surface for the Discord bot. The key check installs a
		// synthetic admin principal, so the same handlers serve both.
		r.Route("/bot", func(r chi.Router) {
			r.Use(params.Identity.RequireBotKey)

			r.Route("/tickets", params.TicketsHandler.MountRoutes)
			r.Route("/selfroles", params.SelfRolesHandler.MountRoutes)
			r.Route("/departments", params.DepartmentsHandler.MountRoutes)
		})
	})

	return r
}
