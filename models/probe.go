package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StatusUnknown marks a ResponseSummary for which no response was captured or the
// captured bytes could not be parsed. Real status codes are always in 100-999.
const StatusUnknown = 0

// HeaderLine is one "Name: value" header in wire order.
type HeaderLine struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// String renders the header the way it goes on the wire.
func (h HeaderLine) String() string {
	return h.Name + ": " + h.Value
}

// Service is the destination of an intercepted request.
type Service struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// Addr returns host:port.
func (s Service) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// BaseURL returns scheme://host[:port], omitting default ports.
func (s Service) BaseURL() string {
	scheme := strings.ToLower(s.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	if (scheme == "http" && s.Port == 80) || (scheme == "https" && s.Port == 443) || s.Port == 0 {
		return scheme + "://" + s.Host
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.Host, s.Port)
}

// RequestRecord is an immutable snapshot of an intercepted request. Probes only read it.
type RequestRecord struct {
	Method  string       `json:"method"`
	URL     string       `json:"url"`
	Target  string       `json:"target"` // request-target as sent on the wire
	Proto   string       `json:"proto"`
	Headers []HeaderLine `json:"headers"`
	Body    []byte       `json:"body,omitempty"`
	Service Service      `json:"service"`
}

// RequestLine returns "METHOD target PROTO".
func (r RequestRecord) RequestLine() string {
	proto := r.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	return r.Method + " " + r.Target + " " + proto
}

// ResponseSummary is what classification and display need from a response.
type ResponseSummary struct {
	StatusCode int   `json:"status_code"`
	ByteLength int64 `json:"byte_length"`
}

// Known reports whether a status code was actually captured.
func (s ResponseSummary) Known() bool {
	return s.StatusCode != StatusUnknown
}

// StatusText renders the status code, or "-" when unknown.
func (s ResponseSummary) StatusText() string {
	if !s.Known() {
		return "-"
	}
	return strconv.Itoa(s.StatusCode)
}

// UnknownSummary is the summary used for absent responses and failed replays.
func UnknownSummary() ResponseSummary {
	return ResponseSummary{StatusCode: StatusUnknown}
}

// InterceptedMessage is what the interception layer hands to the probe coordinator.
type InterceptedMessage struct {
	Origin      ToolOrigin
	IsRequest   bool
	Request     RequestRecord
	RawResponse []byte // nil when the original response is not (yet) available
}

// ProbeResult is one completed probe. It is never modified after it is pushed to a sink.
type ProbeResult struct {
	RunID           string          `json:"run_id"`
	SequenceID      int64           `json:"sequence_id"`
	Origin          ToolOrigin      `json:"origin"`
	Method          string          `json:"method"`
	URL             string          `json:"url"`
	OriginalSummary ResponseSummary `json:"original"`
	TestSummary     ResponseSummary `json:"test"`
	RiskCategory    RiskCategory    `json:"risk"`
	StartedAt       time.Time       `json:"started_at"`
	DurationMs      int64           `json:"duration_ms"`
	ReplayError     string          `json:"replay_error,omitempty"`
	TestResponse    []byte          `json:"-"`
}

// StoredProbeResult is a ProbeResult as read back from the database.
type StoredProbeResult struct {
	ID int64 `json:"id"`
	ProbeResult
	ResponsePreview string    `json:"response_preview,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProbeResultFilter narrows stored result queries.
type ProbeResultFilter struct {
	RunID  string
	Risk   *RiskCategory
	Limit  int
	Offset int
}

// ActivationState is the control surface the gate exposes.
type ActivationState struct {
	Active             bool   `json:"active"`
	OverrideHeaderText string `json:"override_headers"`
}

// DefaultOverrideHeaderText is the placeholder shown before the tester configures a session.
const DefaultOverrideHeaderText = "Cookie: your_cookie_here\nAuthorization: Bearer your_token_here"
