// Package operation defines the operation model: the closed vocabulary of
// operation kinds, the lifecycle flags that steer save-intent routing, and
// the per-target method registry that resolves a requested operation to a
// registered handler.
//
// Registration is explicit and happens once at process start; nothing in
// this package discovers methods by reflection at call time.
package operation

import "fmt"

// Kind identifies what a domain method accomplishes. Exactly one kind per
// invocation.
type Kind uint8

const (
	// KindCreate instantiates a new, never-persisted target.
	KindCreate Kind = iota
	// KindFetch loads an existing target.
	KindFetch
	// KindUpdate persists changes to an existing target.
	KindUpdate
	// KindInsert persists a target for the first time.
	KindInsert
	// KindDelete removes a target from persistence.
	KindDelete
	// KindExecute runs an ad-hoc command against the target type.
	KindExecute
	// KindEvent is a fire-and-forget notification; its result payload is
	// discarded.
	KindEvent
)

var kindNames = [...]string{"create", "fetch", "update", "insert", "delete", "execute", "event"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// ParseKind maps a wire string back to a Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("operation: unknown kind %q", s)
}

// IsSave reports whether the kind is one of the three save-style
// mutations derived from a save intent.
func (k Kind) IsSave() bool {
	return k == KindInsert || k == KindUpdate || k == KindDelete
}
