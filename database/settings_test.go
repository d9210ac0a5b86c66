package database

import (
	"path/filepath"
	"testing"

	"bacman/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	require.NoError(t, InitDB(filepath.Join(t.TempDir(), "data", "bacman.db")))
	t.Cleanup(func() { _ = CloseDB() })
}

func TestInitDB_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bacman.db")
	require.NoError(t, InitDB(path))
	require.NoError(t, SetSetting("k", "v"))
	require.NoError(t, InitDB(path))
	t.Cleanup(func() { _ = CloseDB() })

	v, err := GetSetting("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestSettings_GetSet(t *testing.T) {
	setupTestDB(t)

	v, err := GetSetting("missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, SetSetting("theme", "dark"))
	require.NoError(t, SetSetting("theme", "light"))
	v, err = GetSetting("theme")
	require.NoError(t, err)
	assert.Equal(t, "light", v)
}

func TestProbeExclusionRules(t *testing.T) {
	setupTestDB(t)

	rules, err := GetProbeExclusionRules()
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.NotNil(t, rules)

	want := []models.ProbeExclusionRule{
		{ID: "a", RuleType: models.RuleTypeFileExtension, Pattern: ".css", Description: "styles", IsEnabled: true},
		{ID: "b", RuleType: models.RuleTypeDomain, Pattern: "*.google-analytics.com", IsEnabled: false},
	}
	require.NoError(t, SetProbeExclusionRules(want))
	rules, err = GetProbeExclusionRules()
	require.NoError(t, err)
	assert.Equal(t, want, rules)

	require.NoError(t, SetProbeExclusionRules(nil))
	rules, err = GetProbeExclusionRules()
	require.NoError(t, err)
	assert.Empty(t, rules)

	require.NoError(t, SetSetting(models.ProbeExclusionRulesKey, "{broken"))
	_, err = GetProbeExclusionRules()
	assert.Error(t, err)
}

func TestActivationState(t *testing.T) {
	setupTestDB(t)
	def := models.ActivationState{Active: false, OverrideHeaderText: "Cookie: default"}

	state, err := LoadActivationState(def)
	require.NoError(t, err)
	assert.Equal(t, def, state, "nothing persisted yet")

	saved := models.ActivationState{Active: true, OverrideHeaderText: "Authorization: Bearer userB"}
	require.NoError(t, SaveActivationState(saved))
	state, err = LoadActivationState(def)
	require.NoError(t, err)
	assert.Equal(t, saved, state)

	// An explicitly cleared header text is kept rather than replaced by the default.
	require.NoError(t, SaveActivationState(models.ActivationState{Active: false}))
	state, err = LoadActivationState(def)
	require.NoError(t, err)
	assert.False(t, state.Active)
	assert.Empty(t, state.OverrideHeaderText)
}

func TestActivationState_InvalidStoredToggle(t *testing.T) {
	setupTestDB(t)
	require.NoError(t, SetSetting(models.GateActiveKey, "maybe"))

	state, err := LoadActivationState(models.ActivationState{Active: true})
	require.NoError(t, err)
	assert.True(t, state.Active)
}
