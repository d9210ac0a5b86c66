package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"bacman/logger"
	"bacman/models"

	"github.com/google/uuid"
)

// StateObserver is told about every probe state transition. Rejected messages are
// reported as Aborted with sequence id 0.
type StateObserver func(sequenceID int64, state models.ProbeState)

type CoordinatorOptions struct {
	RunID    string // generated when empty
	Observer StateObserver
}

// Coordinator runs one independent probe per accepted intercepted request. The sequence
// counter is the only state shared between probes; the gate is only read.
type Coordinator struct {
	gate     *ActivationGate
	executor *ReplayExecutor
	sink     ResultSink
	runID    string
	observer StateObserver

	seq      atomic.Int64
	inFlight atomic.Int64
	wg       sync.WaitGroup

	mu     sync.RWMutex // orders Submit's wg.Add against Close
	closed bool
}

func NewCoordinator(gate *ActivationGate, executor *ReplayExecutor, sink ResultSink, opts CoordinatorOptions) *Coordinator {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if sink == nil {
		sink = SinkFunc(func(models.ProbeResult) {})
	}
	return &Coordinator{
		gate:     gate,
		executor: executor,
		sink:     sink,
		runID:    runID,
		observer: opts.Observer,
	}
}

func (c *Coordinator) RunID() string {
	return c.runID
}

func (c *Coordinator) Gate() *ActivationGate {
	return c.gate
}

// InFlight is the number of probes started but not yet finished.
func (c *Coordinator) InFlight() int64 {
	return c.inFlight.Load()
}

// NextSequenceID hands out 1, 2, 3, ... across all goroutines.
func (c *Coordinator) NextSequenceID() int64 {
	return c.seq.Add(1)
}

// Submit performs the gate check and, if it passes, starts a probe in its own goroutine.
// It never blocks on the probe itself. A rejected message consumes no sequence id, and
// every message is rejected once the coordinator is closed.
func (c *Coordinator) Submit(msg models.InterceptedMessage) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.gate == nil || !c.gate.ShouldProbe(msg.Origin, msg.IsRequest) {
		c.notify(0, models.StateAborted)
		return false
	}
	c.wg.Add(1)
	c.inFlight.Add(1)
	go c.run(msg)
	return true
}

// Close stops accepting new probes. Probes already started keep running; call Wait to
// drain them. Interception hooks may still fire after their server has shut down.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Wait blocks until every probe started so far has finished. In-flight probes are never
// cancelled; each one is bounded by the sender's own timeout.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) notify(seq int64, state models.ProbeState) {
	if c.observer != nil {
		c.observer(seq, state)
	}
}

func (c *Coordinator) run(msg models.InterceptedMessage) {
	defer c.wg.Done()
	defer c.inFlight.Add(-1)

	req := msg.Request
	started := time.Now()
	seq := c.NextSequenceID()
	pushed := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.ProxyError("Probe #%d (%s %s) panicked: %v\n%s", seq, req.Method, req.URL, r, debug.Stack())
		if pushed {
			return
		}
		// The id is already taken; emit an unknown result so the sequence has no gap.
		c.push(models.ProbeResult{
			RunID:           c.runID,
			SequenceID:      seq,
			Origin:          msg.Origin,
			Method:          req.Method,
			URL:             req.URL,
			OriginalSummary: AnalyzeResponse(msg.RawResponse),
			TestSummary:     models.UnknownSummary(),
			RiskCategory:    models.RiskNone,
			StartedAt:       started,
			DurationMs:      time.Since(started).Milliseconds(),
			ReplayError:     fmt.Sprintf("probe panicked: %v", r),
		})
	}()

	c.notify(seq, models.StateIdle)

	c.notify(seq, models.StateSubstituting)
	headers := SubstituteHeaders(req.Headers, c.gate.OverrideHeaders())

	c.notify(seq, models.StateReplaying)
	outcome := c.executor.ReplayWithEvidence(context.Background(), req, headers)
	var replayErr string
	if outcome.Err != nil {
		replayErr = outcome.Err.Error()
	}

	c.notify(seq, models.StateAnalyzing)
	original := AnalyzeResponse(msg.RawResponse)

	c.notify(seq, models.StateClassifying)
	risk := Classify(original, outcome.Summary)

	result := models.ProbeResult{
		RunID:           c.runID,
		SequenceID:      seq,
		Origin:          msg.Origin,
		Method:          req.Method,
		URL:             req.URL,
		OriginalSummary: original,
		TestSummary:     outcome.Summary,
		RiskCategory:    risk,
		StartedAt:       started,
		DurationMs:      time.Since(started).Milliseconds(),
		ReplayError:     replayErr,
		TestResponse:    outcome.Raw,
	}
	c.notify(seq, models.StateCompleted)
	pushed = true
	c.sink.Push(result)
}

// push delivers a result produced while recovering, never letting a sink panic escape.
func (c *Coordinator) push(r models.ProbeResult) {
	defer func() {
		if p := recover(); p != nil {
			logger.ProxyError("Probe #%d: result sink panicked: %v", r.SequenceID, p)
		}
	}()
	c.sink.Push(r)
}
