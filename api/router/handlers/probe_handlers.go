package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"bacman/core"
	"bacman/database"
	"bacman/logger"
	"bacman/models"

	"github.com/go-chi/chi/v5"
)

func RegisterProbeRoutes(r chi.Router, d Deps) {
	r.Post("/probes", submitProbeHandler(d))

	r.Route("/settings/probe-exclusions", func(r chi.Router) {
		r.Get("/", getProbeExclusionRulesHandler)
		r.Put("/", setProbeExclusionRulesHandler)
	})
}

// SubmitProbeRequest hands one raw request to the coordinator as if a tool had produced it.
type SubmitProbeRequest struct {
	Origin           models.ToolOrigin `json:"origin"`
	Scheme           string            `json:"scheme"`
	Host             string            `json:"host"`
	Port             int               `json:"port"`
	RawRequest       string            `json:"raw_request"`
	OriginalResponse string            `json:"original_response,omitempty"`
}

func submitProbeHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitProbeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("submitProbeHandler: Error decoding request body: %v", err)
			writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
			return
		}
		defer r.Body.Close()

		if strings.TrimSpace(req.Host) == "" || strings.TrimSpace(req.RawRequest) == "" {
			writeError(w, http.StatusBadRequest, "host and raw_request are required")
			return
		}
		scheme := strings.ToLower(req.Scheme)
		if scheme == "" {
			scheme = "https"
		}
		if scheme != "http" && scheme != "https" {
			writeError(w, http.StatusBadRequest, "scheme must be http or https")
			return
		}
		port := req.Port
		if port == 0 {
			port = 443
			if scheme == "http" {
				port = 80
			}
		}
		if port < 1 || port > 65535 {
			writeError(w, http.StatusBadRequest, "port out of range")
			return
		}
		origin := req.Origin
		if origin == "" {
			origin = models.OriginRepeater
		}

		service := models.Service{Scheme: scheme, Host: req.Host, Port: port}
		rec, err := core.ParseRawRequest(service, []byte(req.RawRequest))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid raw_request: "+err.Error())
			return
		}
		msg := models.InterceptedMessage{Origin: origin, IsRequest: true, Request: rec}
		if req.OriginalResponse != "" {
			msg.RawResponse = []byte(req.OriginalResponse)
		}

		accepted := d.Coordinator.Submit(msg)
		logger.Info("Manual probe submission %s %s from %s: accepted=%t", rec.Method, rec.URL, origin, accepted)
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": accepted, "run_id": d.Coordinator.RunID()})
	}
}

func getProbeExclusionRulesHandler(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "Settings storage is not available")
		return
	}
	rules, err := database.GetProbeExclusionRules()
	if err != nil {
		logger.Error("getProbeExclusionRulesHandler: Error getting rules: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve probe exclusion rules")
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func setProbeExclusionRulesHandler(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "Settings storage is not available")
		return
	}
	var rules []models.ProbeExclusionRule
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		logger.Error("setProbeExclusionRulesHandler: Error decoding request body: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	for _, rule := range rules {
		switch rule.RuleType {
		case models.RuleTypeFileExtension, models.RuleTypeURLRegex, models.RuleTypeDomain:
		default:
			writeError(w, http.StatusBadRequest, "Unknown rule_type: "+rule.RuleType)
			return
		}
	}

	if err := database.SetProbeExclusionRules(rules); err != nil {
		logger.Error("setProbeExclusionRulesHandler: Error saving rules: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save probe exclusion rules")
		return
	}
	logger.Info("Saved %d probe exclusion rules (applied on next proxy start).", len(rules))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Probe exclusion rules saved successfully."})
}
