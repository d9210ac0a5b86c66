package handlers

import (
	"encoding/json"
	"net/http"

	"bacman/core"
	"bacman/logger"
	"bacman/models"
)

// Deps is what the handlers need from the running process. Live may be nil when no
// in-memory log is kept.
type Deps struct {
	Gate        *core.ActivationGate
	Coordinator *core.Coordinator
	Live        *core.ResultLog
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("writeJSON: error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Message: msg})
}
