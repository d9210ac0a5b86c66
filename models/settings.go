package models

// ProbeExclusionRule keeps matching traffic away from the probe coordinator.
type ProbeExclusionRule struct {
	ID          string `json:"id"`
	RuleType    string `json:"rule_type"` // "file_extension", "url_regex" or "domain"
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
	IsEnabled   bool   `json:"is_enabled"`
}

const (
	RuleTypeFileExtension = "file_extension"
	RuleTypeURLRegex      = "url_regex"
	RuleTypeDomain        = "domain"
)
