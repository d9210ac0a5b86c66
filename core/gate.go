package core

import (
	"sync/atomic"

	"bacman/models"
)

// DefaultAllowedOrigins are the interactive tools whose traffic gets probed: a human or
// semi-automated test is driving them. Passive and bulk-scanning origins are left out.
var DefaultAllowedOrigins = []models.ToolOrigin{
	models.OriginProxy,
	models.OriginRepeater,
	models.OriginIntruder,
}

// ActivationGate is the on/off switch plus the override header text. It is written by a
// single control surface (API, CLI, startup) and read by every probe when it starts.
type ActivationGate struct {
	active     atomic.Bool
	headerText atomic.Value // string
	allowed    map[models.ToolOrigin]struct{}
	origins    []models.ToolOrigin
}

// NewActivationGate builds a gate with a fixed origin allow-list. A nil list means
// DefaultAllowedOrigins.
func NewActivationGate(state models.ActivationState, allowed []models.ToolOrigin) *ActivationGate {
	if allowed == nil {
		allowed = DefaultAllowedOrigins
	}
	g := &ActivationGate{allowed: make(map[models.ToolOrigin]struct{}, len(allowed))}
	for _, o := range allowed {
		if _, dup := g.allowed[o]; dup {
			continue
		}
		g.allowed[o] = struct{}{}
		g.origins = append(g.origins, o)
	}
	g.active.Store(state.Active)
	g.headerText.Store(state.OverrideHeaderText)
	return g
}

// ShouldProbe is true only when the gate is active, the message is a request and it
// came from an allowed origin.
func (g *ActivationGate) ShouldProbe(origin models.ToolOrigin, isRequest bool) bool {
	if !g.active.Load() || !isRequest {
		return false
	}
	_, ok := g.allowed[origin]
	return ok
}

func (g *ActivationGate) Active() bool {
	return g.active.Load()
}

func (g *ActivationGate) SetActive(active bool) {
	g.active.Store(active)
}

// Toggle flips the switch and returns the new value.
func (g *ActivationGate) Toggle() bool {
	for {
		old := g.active.Load()
		if g.active.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (g *ActivationGate) OverrideHeaderText() string {
	s, _ := g.headerText.Load().(string)
	return s
}

func (g *ActivationGate) SetOverrideHeaderText(text string) {
	g.headerText.Store(text)
}

// OverrideHeaders parses the current text on every call so edits apply to the next probe.
func (g *ActivationGate) OverrideHeaders() []models.HeaderLine {
	return ParseOverrideHeaders(g.OverrideHeaderText())
}

// AllowedOrigins lists the fixed allow-list in construction order.
func (g *ActivationGate) AllowedOrigins() []models.ToolOrigin {
	return append([]models.ToolOrigin(nil), g.origins...)
}

func (g *ActivationGate) Snapshot() models.ActivationState {
	return models.ActivationState{Active: g.Active(), OverrideHeaderText: g.OverrideHeaderText()}
}
