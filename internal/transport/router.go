package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/repairdesk/internal/command"
	"github.com/pitabwire/repairdesk/internal/config"
	"github.com/pitabwire/repairdesk/internal/metadata"
	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/internal/search"
	"github.com/pitabwire/repairdesk/internal/session"
	"github.com/pitabwire/repairdesk/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Sessions *session.Manager
	Resolver model.CapabilityResolver
	Menu     *metadata.MenuProvider
	Pages    *metadata.PageProvider
	Search   *search.SearchProvider
	// Guard may be nil, in which case idempotency keys are ignored.
	Guard *command.Guard

	// Metrics and Gatherer back /metrics. When Metrics is nil a private
	// registry is used and /metrics is not mounted.
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
	Readiness observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Login, health, readiness, and metrics endpoints
// bypass the session middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.InitMetrics(prometheus.NewRegistry())
	}
	cfg := deps.Config.Server

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(CORS(cfg.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(ContextLogger(logger))
	if deps.Config.Observability.Metrics.Enabled {
		r.Use(metrics.MetricsMiddleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "no route for "+r.URL.Path)
	})

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled && deps.Gatherer != nil {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(HandlerTimeout(cfg.HandlerTimeout))
		r.Use(RequestLogging)

		r.Post("/ui/login", handleLogin(deps.Sessions, deps.Resolver, deps.Menu, metrics))
	})

	r.Group(func(r chi.Router) {
		r.Use(SessionAuth(deps.Sessions))
		r.Use(ResolveCapabilities(deps.Resolver))
		r.Use(HandlerTimeout(cfg.HandlerTimeout))
		r.Use(RequestLogging)

		r.Post("/ui/logout", handleLogout(deps.Sessions, metrics))
		r.Get("/ui/navigation", handleNavigation(deps.Menu))
		r.Get("/ui/search", handleSearch(deps.Search, metrics))

		r.Get("/ui/sections/{id}", handleGetSection(deps.Pages))
		r.Get("/ui/sections/{id}/rows", handleGetRows(deps.Pages, metrics))
		r.Post("/ui/sections/{id}/view", handleView(deps.Pages, metrics))
		r.Post("/ui/sections/{id}/actions", handleAction(deps.Pages, metrics))

		r.Get("/ui/sections/{id}/form", handleGetForm(deps.Pages))
		r.Post("/ui/sections/{id}/form/open", handleOpenForm(deps.Pages, metrics))
		r.Post("/ui/sections/{id}/form/change", handleChangeForm(deps.Pages))
		r.Post("/ui/sections/{id}/form/submit", handleSubmitForm(deps.Pages, deps.Guard, metrics))
		r.Post("/ui/sections/{id}/form/delete", handleDeleteForm(deps.Pages, metrics))
		r.Post("/ui/sections/{id}/form/close", handleCloseForm(deps.Pages))
	})

	return r
}
