package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/simgate/internal/middleware"
)

// widgetPages maps each public path to the static file it serves.
var widgetPages = map[string]string{
	"/widget":                 "simulation-widget.html",
	"/simulation-widget.html": "simulation-widget.html",
	"/test":                   "widget-test.html",
	"/widget-test.html":       "widget-test.html",
	"/viewer":                 "viewer.html",
	"/viewer.html":            "viewer.html",
}

// discoveryPaths are the OAuth discovery and registration endpoints clients
// probe before connecting.
var discoveryPaths = []string{
	"/.well-known/*",
	"/register",
	"/authorize",
	"/token",
}

// RouterDeps holds what NewRouter needs beyond the handlers.
type RouterDeps struct {
	RateLimiter *middleware.RateLimiter
	// Observe wraps the router for tracing. Optional.
	Observe func(http.Handler) http.Handler
}

// NewRouter builds the gateway router with its middleware stack. Admission
// control runs before any session or simulation work.
func NewRouter(h *Handlers, deps RouterDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	if deps.Observe != nil {
		r.Use(deps.Observe)
	}
	r.Use(Logger)
	r.Use(CORS("*"))
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Handler)
	}
	MountRoutes(r, h)
	return r
}

// MountRoutes registers all gateway routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/", h.Identity)
	r.Get("/health", h.Health)

	// Session transport
	r.Get("/mcp", h.OpenStream)
	r.Post(MessagesPath, h.PostMessage)

	// Rendering widget and viewer
	for path, file := range widgetPages {
		r.Get(path, h.StaticFile(file))
	}
	r.Get("/assets/*", h.Asset)

	// No authentication: discovery probes get a definitive 404.
	for _, path := range discoveryPaths {
		r.HandleFunc(path, h.NoAuth)
	}
}
