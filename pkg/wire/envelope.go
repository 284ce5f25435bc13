package wire

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Request is the envelope for one operation invocation crossing the
// remote boundary. Envelopes are created, owned, and discarded per call;
// they are immutable once sent and never shared across calls.
type Request struct {
	ID      string          `json:"id"`
	Version string          `json:"version"`
	Target  string          `json:"target"`
	Kind    string          `json:"kind"`
	Args    json.RawMessage `json:"args"`
}

// NewRequest builds a request envelope for the current protocol version.
func NewRequest(target, kind string, args json.RawMessage) *Request {
	return &Request{
		ID:      uuid.NewString(),
		Version: ProtocolVersion,
		Target:  target,
		Kind:    kind,
		Args:    args,
	}
}

// Outcome classifies a response envelope.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeFaulted Outcome = "faulted"
)

// Response is the envelope returned for a request. Exactly one of Result
// (success) or Fault (denied/faulted) is populated.
type Response struct {
	ID      string          `json:"id"`
	Outcome Outcome         `json:"outcome"`
	Result  json.RawMessage `json:"result,omitempty"`
	Fault   *Fault          `json:"fault,omitempty"`
}

// Success builds a success response for the given request.
func Success(reqID string, result json.RawMessage) *Response {
	return &Response{ID: reqID, Outcome: OutcomeSuccess, Result: result}
}

// Denied builds a denial response: a normal business answer the caller
// can branch on, not a terminal fault.
func Denied(reqID, reason string) *Response {
	return &Response{
		ID:      reqID,
		Outcome: OutcomeDenied,
		Fault:   &Fault{Kind: FaultDenied, Message: reason},
	}
}

// Faulted builds a fault response of the given kind.
func Faulted(reqID string, f *Fault) *Response {
	return &Response{ID: reqID, Outcome: OutcomeFaulted, Fault: f}
}
