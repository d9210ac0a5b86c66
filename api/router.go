package api

import (
	"net/http"

	"bacman/api/router/handlers"
	"bacman/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the API router. All registered paths are relative to the /api base path.
func NewRouter(d handlers.Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	handlers.RegisterHealthRoutes(router, d)
	handlers.RegisterGateRoutes(router, d)
	handlers.RegisterResultRoutes(router, d)
	handlers.RegisterProbeRoutes(router, d)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logger.Error("API SUB-ROUTER CATCH-ALL: Unhandled route relative to /api: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	return router
}

// NewServerHandler mounts the API router under /api.
func NewServerHandler(d handlers.Deps) http.Handler {
	mainMux := http.NewServeMux()
	mainMux.Handle("/api/", http.StripPrefix("/api", NewRouter(d)))
	return mainMux
}
