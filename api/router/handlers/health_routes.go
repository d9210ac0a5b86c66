package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func RegisterHealthRoutes(r chi.Router, d Deps) {
	r.Get("/health", healthCheckHandler(d))
}

func healthCheckHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{"ok": true}
		if d.Coordinator != nil {
			resp["run_id"] = d.Coordinator.RunID()
			resp["in_flight"] = d.Coordinator.InFlight()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
