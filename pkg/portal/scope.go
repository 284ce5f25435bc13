package portal

import (
	"context"
	"fmt"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/operation"
)

// ScopeFactory builds the per-invocation dependency scope. The router
// and the transport endpoint call it once per invocation; scoped
// instances are never shared across concurrent calls and never cross the
// wire.
type ScopeFactory func(ctx context.Context) (operation.Scope, error)

// ProviderSet maps dependency names to constructors. Each scope built
// from the set constructs its own instances, lazily, at most once per
// scope.
type ProviderSet map[string]func(ctx context.Context) (any, error)

// NewScope implements ScopeFactory for a ProviderSet.
func (ps ProviderSet) NewScope(ctx context.Context) (operation.Scope, error) {
	return &providerScope{ctx: ctx, providers: ps, built: make(map[string]any)}, nil
}

type providerScope struct {
	ctx       context.Context
	providers ProviderSet
	built     map[string]any
}

func (s *providerScope) Resolve(name string) (any, error) {
	if v, ok := s.built[name]; ok {
		return v, nil
	}
	provider, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("portal: no provider registered for dependency %q", name)
	}
	v, err := provider(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("portal: build dependency %q: %w", name, err)
	}
	s.built[name] = v
	return v, nil
}
