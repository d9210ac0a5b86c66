package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"bacman/database"
	"bacman/logger"
	"bacman/models"

	"github.com/go-chi/chi/v5"
)

const (
	defaultResultsLimit = 50
	maxResultsLimit     = 500
)

func RegisterResultRoutes(r chi.Router, d Deps) {
	r.Route("/results", func(r chi.Router) {
		r.Get("/", listResultsHandler)
		r.Delete("/", deleteResultsHandler)
		r.Get("/live", liveResultsHandler(d))
		r.Get("/{id}", getResultHandler)
	})
}

// ResultsPage is one page of stored probe results.
type ResultsPage struct {
	Results []models.StoredProbeResult `json:"results"`
	Total   int64                      `json:"total"`
	Page    int                        `json:"page"`
	Limit   int                        `json:"limit"`
}

func listResultsHandler(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "Result storage is not available")
		return
	}
	q := r.URL.Query()

	filter := models.ProbeResultFilter{RunID: q.Get("run_id")}
	if riskStr := q.Get("risk"); riskStr != "" {
		risk, err := models.ParseRiskCategory(riskStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Risk = &risk
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = defaultResultsLimit
	} else if limit > maxResultsLimit {
		limit = maxResultsLimit
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	results, total, err := database.GetProbeResults(filter)
	if err != nil {
		logger.Error("listResultsHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve probe results")
		return
	}
	writeJSON(w, http.StatusOK, ResultsPage{Results: results, Total: total, Page: page, Limit: limit})
}

func getResultHandler(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "Result storage is not available")
		return
	}
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid result ID")
		return
	}
	result, err := database.GetProbeResultByID(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Probe result not found")
		return
	}
	if err != nil {
		logger.Error("getResultHandler: id %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve probe result")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func deleteResultsHandler(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "Result storage is not available")
		return
	}
	n, err := database.DeleteAllProbeResults()
	if err != nil {
		logger.Error("deleteResultsHandler: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete probe results")
		return
	}
	logger.Info("Deleted %d stored probe results.", n)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func liveResultsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := []models.ProbeResult{}
		if d.Live != nil {
			results = d.Live.Snapshot()
		}
		writeJSON(w, http.StatusOK, results)
	}
}
