package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bacman/logger"
	"bacman/models"
)

const probeResultColumns = "id, run_id, sequence_id, origin, method, url, original_status, original_length, test_status, test_length, risk, started_at, duration_ms, replay_error, response_preview, created_at"

// InsertProbeResult stores a finished probe. A second insert for the same
// (run_id, sequence_id) is ignored and returns the existing row id.
func InsertProbeResult(r models.ProbeResult, preview string) (int64, error) {
	res, err := DB.Exec(`INSERT OR IGNORE INTO probe_results
		(run_id, sequence_id, origin, method, url, original_status, original_length, test_status, test_length, risk, started_at, duration_ms, replay_error, response_preview)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.SequenceID, string(r.Origin), r.Method, r.URL,
		r.OriginalSummary.StatusCode, r.OriginalSummary.ByteLength,
		r.TestSummary.StatusCode, r.TestSummary.ByteLength,
		r.RiskCategory.String(), r.StartedAt.UTC(), r.DurationMs,
		nullIfEmpty(r.ReplayError), nullIfEmpty(preview),
	)
	if err != nil {
		logger.Error("InsertProbeResult: run %s seq %d: %v", r.RunID, r.SequenceID, err)
		return 0, fmt.Errorf("failed to insert probe result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var id int64
		err := DB.QueryRow("SELECT id FROM probe_results WHERE run_id = ? AND sequence_id = ?", r.RunID, r.SequenceID).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to look up existing probe result: %w", err)
		}
		return id, nil
	}
	return res.LastInsertId()
}

// GetProbeResults returns a page of stored results, newest first, plus the total matching count.
func GetProbeResults(filter models.ProbeResultFilter) ([]models.StoredProbeResult, int64, error) {
	var whereClauses []string
	var args []interface{}
	if filter.RunID != "" {
		whereClauses = append(whereClauses, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Risk != nil {
		whereClauses = append(whereClauses, "risk = ?")
		args = append(args, filter.Risk.String())
	}
	finalWhereClause := ""
	if len(whereClauses) > 0 {
		finalWhereClause = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int64
	if err := DB.QueryRow("SELECT COUNT(id) FROM probe_results "+finalWhereClause, args...).Scan(&total); err != nil {
		logger.Error("GetProbeResults: Error counting records: %v", err)
		return nil, 0, fmt.Errorf("failed to count probe results: %w", err)
	}
	results := []models.StoredProbeResult{}
	if total == 0 {
		return results, 0, nil
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM probe_results %s ORDER BY id DESC LIMIT ? OFFSET ?", probeResultColumns, finalWhereClause)
	rows, err := DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		logger.Error("GetProbeResults: Error querying records: %v. Query: %s", err, query)
		return nil, 0, fmt.Errorf("failed to query probe results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanProbeResult(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating probe results: %w", err)
	}
	return results, total, nil
}

func GetProbeResultByID(id int64) (models.StoredProbeResult, error) {
	row := DB.QueryRow("SELECT "+probeResultColumns+" FROM probe_results WHERE id = ?", id)
	r, err := scanProbeResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredProbeResult{}, ErrNotFound
	}
	return r, err
}

// DeleteAllProbeResults removes every stored result and returns how many were deleted.
func DeleteAllProbeResults() (int64, error) {
	res, err := DB.Exec("DELETE FROM probe_results")
	if err != nil {
		return 0, fmt.Errorf("failed to delete probe results: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProbeResult(s rowScanner) (models.StoredProbeResult, error) {
	var r models.StoredProbeResult
	var origin, risk string
	var replayErr, preview sql.NullString
	err := s.Scan(&r.ID, &r.RunID, &r.SequenceID, &origin, &r.Method, &r.URL,
		&r.OriginalSummary.StatusCode, &r.OriginalSummary.ByteLength,
		&r.TestSummary.StatusCode, &r.TestSummary.ByteLength,
		&risk, &r.StartedAt, &r.DurationMs, &replayErr, &preview, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan probe result: %w", err)
	}
	r.Origin = models.ToolOrigin(origin)
	r.ReplayError = replayErr.String
	r.ResponsePreview = preview.String
	if r.RiskCategory, err = models.ParseRiskCategory(risk); err != nil {
		logger.Warn("scanProbeResult: row %d has unknown risk %q", r.ID, risk)
	}
	return r, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
