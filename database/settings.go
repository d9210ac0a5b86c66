package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"bacman/logger"
	"bacman/models"
)

// GetSetting retrieves a specific setting value from the app_settings table.
func GetSetting(key string) (string, error) {
	var value string
	err := DB.QueryRow("SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil // Return empty string if not found, not an error
		}
		return "", fmt.Errorf("failed to get setting '%s': %w", key, err)
	}
	return value, nil
}

// SetSetting saves or updates a specific setting value in the app_settings table.
func SetSetting(key, value string) error {
	stmt, err := DB.Prepare("INSERT OR REPLACE INTO app_settings (key, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare set setting statement for key '%s': %w", key, err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(key, value); err != nil {
		return fmt.Errorf("failed to execute set setting for key '%s': %w", key, err)
	}
	return nil
}

// GetProbeExclusionRules retrieves the rules that keep traffic away from the coordinator.
func GetProbeExclusionRules() ([]models.ProbeExclusionRule, error) {
	rulesJSON, err := GetSetting(models.ProbeExclusionRulesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get probe exclusion rules setting: %w", err)
	}
	if rulesJSON == "" {
		return []models.ProbeExclusionRule{}, nil
	}

	var rules []models.ProbeExclusionRule
	if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
		logger.Error("GetProbeExclusionRules: Error unmarshalling rules JSON: %v. Stored value: %s", err, rulesJSON)
		return nil, fmt.Errorf("failed to unmarshal probe exclusion rules: %w", err)
	}
	return rules, nil
}

// SetProbeExclusionRules saves the probe exclusion rules. nil stores an empty list.
func SetProbeExclusionRules(rules []models.ProbeExclusionRule) error {
	if rules == nil {
		rules = []models.ProbeExclusionRule{}
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("failed to marshal probe exclusion rules to JSON: %w", err)
	}
	if err := SetSetting(models.ProbeExclusionRulesKey, string(rulesJSON)); err != nil {
		return fmt.Errorf("failed to save probe exclusion rules setting: %w", err)
	}
	return nil
}

// LoadActivationState returns the persisted gate state. Keys never written fall back to def.
func LoadActivationState(def models.ActivationState) (models.ActivationState, error) {
	state := def
	active, err := GetSetting(models.GateActiveKey)
	if err != nil {
		return def, err
	}
	if active != "" {
		b, err := strconv.ParseBool(active)
		if err != nil {
			logger.Warn("LoadActivationState: ignoring invalid %s value %q", models.GateActiveKey, active)
		} else {
			state.Active = b
		}
	}

	var headers sql.NullString
	err = DB.QueryRow("SELECT value FROM app_settings WHERE key = ?", models.OverrideHeadersKey).Scan(&headers)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return def, fmt.Errorf("failed to get setting '%s': %w", models.OverrideHeadersKey, err)
	}
	if err == nil && headers.Valid {
		state.OverrideHeaderText = headers.String
	}
	return state, nil
}

// SaveActivationState persists both gate settings in one transaction.
func SaveActivationState(state models.ActivationState) error {
	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO app_settings (key, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare activation state statement: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(models.GateActiveKey, strconv.FormatBool(state.Active)); err != nil {
		return fmt.Errorf("failed to save %s: %w", models.GateActiveKey, err)
	}
	if _, err := stmt.Exec(models.OverrideHeadersKey, state.OverrideHeaderText); err != nil {
		return fmt.Errorf("failed to save %s: %w", models.OverrideHeadersKey, err)
	}
	return tx.Commit()
}
