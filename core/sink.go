package core

import (
	"sort"
	"sync"

	"bacman/database"
	"bacman/logger"
	"bacman/models"
)

// ResultSink receives completed probe results. Implementations must accept concurrent
// pushes and must not modify the results they receive. Arrival order is not sequence order.
type ResultSink interface {
	Push(result models.ProbeResult)
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc func(models.ProbeResult)

func (f SinkFunc) Push(r models.ProbeResult) { f(r) }

// MultiSink pushes every result to each sink in turn.
type MultiSink []ResultSink

func (m MultiSink) Push(r models.ProbeResult) {
	for _, s := range m {
		if s != nil {
			s.Push(r)
		}
	}
}

// ResultLog keeps the most recent results of this run in memory.
type ResultLog struct {
	mu      sync.Mutex
	max     int
	results []models.ProbeResult
}

// NewResultLog creates a log holding at most max results (0 means unbounded).
func NewResultLog(max int) *ResultLog {
	return &ResultLog{max: max}
}

func (l *ResultLog) Push(r models.ProbeResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
	if l.max > 0 && len(l.results) > l.max {
		l.results = append(l.results[:0:0], l.results[len(l.results)-l.max:]...)
	}
}

func (l *ResultLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.results)
}

// Snapshot returns a copy ordered by sequence id.
func (l *ResultLog) Snapshot() []models.ProbeResult {
	l.mu.Lock()
	out := make([]models.ProbeResult, 0, len(l.results))
	out = append(out, l.results...)
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceID < out[j].SequenceID })
	return out
}

// StoreSink persists results to the probe_results table.
type StoreSink struct{}

func (StoreSink) Push(r models.ProbeResult) {
	if database.DB == nil {
		logger.ProxyError("StoreSink: database is not initialized; dropping result #%d", r.SequenceID)
		return
	}
	preview := ResponsePreview(r.TestResponse, previewLimit)
	if _, err := database.InsertProbeResult(r, preview); err != nil {
		logger.ProxyError("StoreSink: failed to store result #%d (%s %s): %v", r.SequenceID, r.Method, r.URL, err)
	}
}

// LogSink writes one line per result to the proxy log.
type LogSink struct{}

func (LogSink) Push(r models.ProbeResult) {
	if r.RiskCategory == models.RiskNone {
		logger.ProxyInfo("PROBE #%d %s %s original=%s test=%s risk=%s", r.SequenceID, r.Method, r.URL,
			r.OriginalSummary.StatusText(), r.TestSummary.StatusText(), r.RiskCategory)
		return
	}
	logger.ProxyInfo("PROBE #%d %s %s original=%s test=%s risk=%s (%s)", r.SequenceID, r.Method, r.URL,
		r.OriginalSummary.StatusText(), r.TestSummary.StatusText(), r.RiskCategory, r.RiskCategory.Label())
}
