package core

import (
	"context"
	"errors"
	"fmt"

	"bacman/logger"
	"bacman/models"
)

// Sender is the send capability of the interception layer: raw request bytes in, raw
// response bytes out.
type Sender interface {
	Send(ctx context.Context, service models.Service, raw []byte) ([]byte, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, service models.Service, raw []byte) ([]byte, error)

func (f SenderFunc) Send(ctx context.Context, service models.Service, raw []byte) ([]byte, error) {
	return f(ctx, service, raw)
}

var ErrNoSender = errors.New("no send capability configured")

// ReplayExecutor re-sends a request with rewritten headers against its original destination.
type ReplayExecutor struct {
	Sender Sender
}

// Capture builds the wire request from the rewritten headers and the original body, sends
// it and returns the raw response.
func (e *ReplayExecutor) Capture(ctx context.Context, req models.RequestRecord, headers []models.HeaderLine) ([]byte, error) {
	if e == nil || e.Sender == nil {
		return nil, ErrNoSender
	}
	raw := BuildHTTPMessage(req.RequestLine(), headers, req.Body)
	resp, err := e.Sender.Send(ctx, req.Service, raw)
	if err != nil {
		return nil, fmt.Errorf("replay %s %s: %w", req.Method, req.URL, err)
	}
	return resp, nil
}

// Replay is Capture followed by AnalyzeResponse. Any failure yields the unknown summary:
// a blocked, reset or timed-out replay is an expected outcome, not an error.
func (e *ReplayExecutor) Replay(ctx context.Context, req models.RequestRecord, headers []models.HeaderLine) models.ResponseSummary {
	return e.ReplayWithEvidence(ctx, req, headers).Summary
}

// ReplayOutcome is a replay's summary plus the raw response and failure kept as evidence.
type ReplayOutcome struct {
	Summary models.ResponseSummary
	Raw     []byte // nil when the replay failed
	Err     error
}

// ReplayWithEvidence is Replay, keeping the raw response bytes and the failure, if any.
func (e *ReplayExecutor) ReplayWithEvidence(ctx context.Context, req models.RequestRecord, headers []models.HeaderLine) ReplayOutcome {
	raw, err := e.Capture(ctx, req, headers)
	if err != nil {
		logger.ProxyDebug("Replay: %v", err)
		return ReplayOutcome{Summary: models.UnknownSummary(), Err: err}
	}
	return ReplayOutcome{Summary: AnalyzeResponse(raw), Raw: raw}
}
