package portal

import (
	"errors"
	"fmt"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/operation"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/wire"
)

// DeniedError reports that an authorization rule declined the operation.
// A normal, typed outcome the caller can branch on; never retried.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "portal: not authorized: " + e.Reason
}

// ForbiddenError reports a remote policy failure under the forbid
// escalation. Terminal: the session should be abandoned.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "portal: forbidden: " + e.Reason
}

// ResolutionError mirrors operation.ResolutionError for faults
// reconstructed from a response envelope, where the server's target and
// kind are only known as text. A configuration defect either way.
type ResolutionError struct {
	Message string
}

func (e *ResolutionError) Error() string {
	return "portal: resolution fault: " + e.Message
}

// TransportError reports that the remote endpoint could not be reached or
// violated the protocol, distinct from "the server declined".
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("portal: transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BusinessError is a target-method failure reconstructed from a response
// envelope; the server's concrete error type does not exist here.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	return "portal: operation failed: " + e.Message
}

// FaultFromError classifies an error into a wire fault for the response
// envelope. Anything unrecognized is a business fault: the target method
// itself raised it.
func FaultFromError(err error) *wire.Fault {
	var (
		res       *operation.ResolutionError
		dec       *wire.DecodeError
		denied    *DeniedError
		forbidden *ForbiddenError
	)
	switch {
	case errors.As(err, &res):
		return &wire.Fault{Kind: wire.FaultResolution, Message: res.Error()}
	case errors.As(err, &dec):
		return &wire.Fault{Kind: wire.FaultDecode, Message: dec.Error()}
	case errors.As(err, &denied):
		return &wire.Fault{Kind: wire.FaultDenied, Message: denied.Reason}
	case errors.As(err, &forbidden):
		return &wire.Fault{Kind: wire.FaultForbidden, Message: forbidden.Reason}
	default:
		return &wire.Fault{Kind: wire.FaultBusiness, Message: err.Error()}
	}
}

// ErrorFromFault reconstructs the typed error for a wire fault on the
// caller side.
func ErrorFromFault(f *wire.Fault) error {
	if f == nil {
		return errors.New("portal: response fault missing")
	}
	switch f.Kind {
	case wire.FaultResolution:
		return &ResolutionError{Message: f.Message}
	case wire.FaultDecode:
		return &wire.DecodeError{Detail: f.Message}
	case wire.FaultDenied:
		return &DeniedError{Reason: f.Message}
	case wire.FaultForbidden:
		return &ForbiddenError{Reason: f.Message}
	case wire.FaultTransport:
		return &TransportError{Op: "remote", Err: errors.New(f.Message)}
	default:
		return &BusinessError{Message: f.Message}
	}
}
