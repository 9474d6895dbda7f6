package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appmiddleware "clinicore/internal/middleware"
	"clinicore/internal/services"
	"clinicore/internal/websocket"
)

// RouterDeps bundles the dependencies the HTTP surface needs
type RouterDeps struct {
	Service services.ActivationService
	Gate    *appmiddleware.LicenseGate
	Hub     *websocket.Hub
	Logger  *slog.Logger
}

// NewRouter builds the application router: license management endpoints,
// health, metrics and the status websocket. Application routes mounted
// behind the gate are blocked whenever the engine says not to proceed.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(deps.Gate.Handler)

	r.Route("/api", func(api chi.Router) {
		api.Mount("/license", NewLicenseHandler(deps.Service, deps.Logger).Routes())
		api.Get("/health", NewHealthHandler(deps.Service, deps.Logger).Handle)
	})

	r.Handle("/metrics", promhttp.Handler())

	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.ServeWS)
	}

	return r
}

// NotFound is the JSON 404 handler shared by mounted subrouters
func NotFound(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, map[string]string{"error": "not found"})
}
