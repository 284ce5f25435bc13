package wire

import "fmt"

// FaultKind classifies a failure crossing the boundary. Every kind is
// distinguishable by the caller; nothing is folded into a generic error.
type FaultKind string

const (
	// FaultResolution: no method satisfies the requested operation. A
	// configuration defect, never retried.
	FaultResolution FaultKind = "resolution"
	// FaultDecode: the payload did not match the declared shapes.
	FaultDecode FaultKind = "decode"
	// FaultDenied: an authorization rule declined the operation.
	FaultDenied FaultKind = "denied"
	// FaultForbidden: a remote policy failed under the forbid escalation.
	// Terminal for the session, unlike a denial.
	FaultForbidden FaultKind = "forbidden"
	// FaultTransport: the remote endpoint could not be reached or spoke
	// the protocol incorrectly.
	FaultTransport FaultKind = "transport"
	// FaultBusiness: the target method itself raised an error.
	FaultBusiness FaultKind = "business"
)

// Fault carries enough structure to reconstruct a typed failure on the
// caller side without the original error type existing remotely.
type Fault struct {
	Kind    FaultKind `json:"kind"`
	Message string    `json:"message"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s fault: %s", f.Kind, f.Message)
}
