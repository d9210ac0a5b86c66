package models

import (
	"fmt"
	"strings"
)

// RiskCategory is the coarse label a probe result gets. It surfaces candidates for
// manual review; it never confirms a vulnerability.
type RiskCategory int

const (
	RiskNone RiskCategory = iota
	RiskMedium
	RiskHigh
)

func (r RiskCategory) String() string {
	switch r {
	case RiskHigh:
		return "HIGH_RISK"
	case RiskMedium:
		return "MEDIUM_RISK"
	default:
		return "NONE"
	}
}

// Label is the human-readable meaning of the category.
func (r RiskCategory) Label() string {
	switch r {
	case RiskHigh:
		return "potential BAC"
	case RiskMedium:
		return "potential IDOR"
	default:
		return ""
	}
}

// ParseRiskCategory accepts the String() form or a short alias (high, medium, none).
func ParseRiskCategory(s string) (RiskCategory, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH_RISK", "HIGH", "BAC":
		return RiskHigh, nil
	case "MEDIUM_RISK", "MEDIUM", "IDOR":
		return RiskMedium, nil
	case "NONE", "":
		return RiskNone, nil
	}
	return RiskNone, fmt.Errorf("unknown risk category %q", s)
}

func (r RiskCategory) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RiskCategory) UnmarshalText(b []byte) error {
	parsed, err := ParseRiskCategory(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ToolOrigin tags which tool produced a piece of traffic.
type ToolOrigin string

const (
	OriginProxy     ToolOrigin = "proxy"
	OriginRepeater  ToolOrigin = "repeater"
	OriginIntruder  ToolOrigin = "intruder"
	OriginScanner   ToolOrigin = "scanner"
	OriginSpider    ToolOrigin = "spider"
	OriginSequencer ToolOrigin = "sequencer"
	OriginExtender  ToolOrigin = "extender"
)

// ProbeState is a step of a single probe's lifecycle.
type ProbeState int

const (
	StateIdle ProbeState = iota
	StateSubstituting
	StateReplaying
	StateAnalyzing
	StateClassifying
	StateCompleted
	StateAborted
)

func (s ProbeState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSubstituting:
		return "Substituting"
	case StateReplaying:
		return "Replaying"
	case StateAnalyzing:
		return "Analyzing"
	case StateClassifying:
		return "Classifying"
	case StateCompleted:
		return "Completed"
	case StateAborted:
		return "Aborted"
	}
	return fmt.Sprintf("ProbeState(%d)", int(s))
}
