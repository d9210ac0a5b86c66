package handlers

import (
	"encoding/json"
	"net/http"

	"bacman/core"
	"bacman/database"
	"bacman/logger"
	"bacman/models"

	"github.com/go-chi/chi/v5"
)

func RegisterGateRoutes(r chi.Router, d Deps) {
	r.Route("/gate", func(r chi.Router) {
		r.Get("/", getGateHandler(d))
		r.Put("/", updateGateHandler(d))
		r.Post("/toggle", toggleGateHandler(d))
	})
}

// GateStatusResponse is the gate state plus what the probes will actually send.
type GateStatusResponse struct {
	models.ActivationState
	ParsedHeaders  []models.HeaderLine `json:"parsed_headers"`
	AllowedOrigins []models.ToolOrigin `json:"allowed_origins"`
	RunID          string              `json:"run_id,omitempty"`
	InFlight       int64               `json:"in_flight"`
}

// UpdateGateRequest changes only the fields that are present.
type UpdateGateRequest struct {
	Active          *bool   `json:"active"`
	OverrideHeaders *string `json:"override_headers"`
}

func gateStatus(d Deps) GateStatusResponse {
	resp := GateStatusResponse{
		ActivationState: d.Gate.Snapshot(),
		ParsedHeaders:   d.Gate.OverrideHeaders(),
		AllowedOrigins:  d.Gate.AllowedOrigins(),
	}
	if resp.ParsedHeaders == nil {
		resp.ParsedHeaders = []models.HeaderLine{}
	}
	if d.Coordinator != nil {
		resp.RunID = d.Coordinator.RunID()
		resp.InFlight = d.Coordinator.InFlight()
	}
	return resp
}

// persistGate stores the gate state so the next start restores it. Failures are logged only.
func persistGate(g *core.ActivationGate) {
	if database.DB == nil {
		return
	}
	if err := database.SaveActivationState(g.Snapshot()); err != nil {
		logger.Error("persistGate: failed to save activation state: %v", err)
	}
}

func getGateHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, gateStatus(d))
	}
}

func updateGateHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateGateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("updateGateHandler: Error decoding request body: %v", err)
			writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
			return
		}
		defer r.Body.Close()

		if req.Active == nil && req.OverrideHeaders == nil {
			writeError(w, http.StatusBadRequest, "Nothing to update: provide active and/or override_headers")
			return
		}
		if req.OverrideHeaders != nil {
			d.Gate.SetOverrideHeaderText(*req.OverrideHeaders)
			logger.Info("Gate: override headers updated (%d parsed header lines)", len(d.Gate.OverrideHeaders()))
		}
		if req.Active != nil {
			d.Gate.SetActive(*req.Active)
			logger.Info("Gate: active set to %t", *req.Active)
		}
		persistGate(d.Gate)
		writeJSON(w, http.StatusOK, gateStatus(d))
	}
}

func toggleGateHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := d.Gate.Toggle()
		logger.Info("Gate: toggled, now active=%t", active)
		persistGate(d.Gate)
		writeJSON(w, http.StatusOK, gateStatus(d))
	}
}
