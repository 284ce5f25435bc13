// Package wire implements the serialization layer of the remote factory:
// the two payload formats (ordinal and named), the request/response
// envelopes that cross the HTTP boundary, and the fault taxonomy that
// lets a caller reconstruct a typed failure without sharing error types
// with the server.
package wire

import "strings"

// Format selects how argument and result payloads are rendered.
type Format uint8

const (
	// FormatOrdinal renders payloads as a positional JSON array. Compact,
	// but encoder and decoder must agree exactly on argument order and
	// count; any mismatch is a hard decode fault.
	FormatOrdinal Format = iota
	// FormatNamed renders payloads as a JSON object keyed by declared
	// argument name. Self-describing: unknown names are ignored on decode
	// and missing optional names take their declared defaults.
	FormatNamed
)

// FormatHeader is the HTTP header carrying the negotiated format. The
// responder must echo the value it received.
const FormatHeader = "X-Factory-Format"

func (f Format) String() string {
	if f == FormatNamed {
		return "named"
	}
	return "ordinal"
}

// ParseFormat maps a header value to a Format. Absent or unrecognized
// values fall back to ordinal, per the transport contract.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "named") {
		return FormatNamed
	}
	return FormatOrdinal
}
