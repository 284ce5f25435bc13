package operation

import (
	"context"
	"fmt"
	"sync"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/wire"
)

// Scope resolves server-only dependencies for a single invocation. Each
// call gets its own scope; scoped instances are never shared across
// concurrent invocations and never appear on the wire.
type Scope interface {
	Resolve(name string) (any, error)
}

// Handler is a registered operation body. It receives already-decoded,
// already-authorized arguments plus the per-call dependency scope.
type Handler func(ctx context.Context, scope Scope, args []any) (any, error)

// Method binds one operation kind of a target to its handler and declared
// wire shapes. Thin clients may register methods with a nil Handler: the
// shapes are still needed to encode requests, but the body only exists on
// the server.
type Method struct {
	Target  string
	Kind    Kind
	Name    string
	Params  []wire.Shape
	Results []wire.Shape
	Handler Handler
}

// ResolutionError reports that no method satisfies the requested
// operation. It is a configuration defect, distinct by type from
// authorization and business failures, and is never retried.
type ResolutionError struct {
	Target string
	Kind   Kind
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("operation: no %s method registered for target %q", e.Kind, e.Target)
}

// AmbiguityError reports two registrations competing for the same
// operation kind on one target. Surfaced at startup, not at call time.
type AmbiguityError struct {
	Target    string
	Kind      Kind
	Existing  string
	Duplicate string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("operation: target %q already has a %s method (%q); cannot also register %q",
		e.Target, e.Kind, e.Existing, e.Duplicate)
}

type target struct {
	name    string
	methods map[Kind]*Method
}

// Registry is the typed operation table. It is built once at process
// start and is read-only thereafter; concurrent resolution is safe.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]*target
}

func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]*target)}
}

// Register adds a method to the table. Registering a second method for
// the same (target, kind) pair is an AmbiguityError.
func (r *Registry) Register(m *Method) error {
	if m == nil || m.Target == "" {
		return fmt.Errorf("operation: method registration requires a target name")
	}
	if int(m.Kind) >= len(kindNames) {
		return fmt.Errorf("operation: method %q has invalid kind", m.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.targets[m.Target]
	if !ok {
		t = &target{name: m.Target, methods: make(map[Kind]*Method)}
		r.targets[m.Target] = t
	}
	if existing, ok := t.methods[m.Kind]; ok {
		return &AmbiguityError{Target: m.Target, Kind: m.Kind, Existing: existing.Name, Duplicate: m.Name}
	}
	t.methods[m.Kind] = m
	return nil
}

// MustRegister panics on registration failure. Registration runs during
// process bootstrap where a defect should stop startup.
func (r *Registry) MustRegister(m *Method) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Resolve returns the method registered for the operation, or a
// ResolutionError. Resolution is pure: no side effects, safe to call from
// any goroutine.
func (r *Registry) Resolve(targetName string, kind Kind) (*Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[targetName]
	if !ok {
		return nil, &ResolutionError{Target: targetName, Kind: kind}
	}
	m, ok := t.methods[kind]
	if !ok {
		return nil, &ResolutionError{Target: targetName, Kind: kind}
	}
	return m, nil
}

// Targets lists the registered target names, for diagnostics.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	return names
}
