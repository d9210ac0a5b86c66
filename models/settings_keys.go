package models

// GateActiveKey is the app_settings key holding the last activation toggle ("true"/"false").
const GateActiveKey = "gate_active"

// OverrideHeadersKey is the app_settings key holding the override header text.
const OverrideHeadersKey = "override_headers"

// ProbeExclusionRulesKey is the app_settings key for the JSON-encoded probe exclusion rules.
const ProbeExclusionRulesKey = "probe_exclusion_rules"
