// Package portal is the dispatch router: the single entry point every
// generated or hand-written stub calls. Given the execution mode fixed at
// process start, it either runs the operation in-process (Local,
// Logical) or serializes it into a request envelope and sends it to the
// remote endpoint (Remote). The same business code runs unmodified under
// all three topologies.
package portal

import "fmt"

// Mode is the execution topology, fixed for the process lifetime.
type Mode uint8

const (
	// ModeLocal runs authorization and the operation model in the
	// caller's stack; no serialization occurs. Remote policies do not
	// apply.
	ModeLocal Mode = iota
	// ModeRemote never executes the target method itself: every
	// invocation becomes a request envelope sent to the transport
	// endpoint.
	ModeRemote
	// ModeLogical behaves like Local but also evaluates the remote
	// policy tier, so a single-process full-stack run exercises every
	// rule that would run remotely.
	ModeLogical
)

var modeNames = [...]string{"local", "remote", "logical"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", m)
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("portal: unknown execution mode %q", s)
}
