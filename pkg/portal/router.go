package portal

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/authz"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/identity"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/operation"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/wire"
)

// Transport sends a request envelope and returns the response envelope.
// The HTTP client implements it; tests substitute fakes.
type Transport interface {
	Do(ctx context.Context, req *wire.Request, format wire.Format) (*wire.Response, error)
}

// Router dispatches operation invocations according to the execution
// mode. One router is built at process start and shared by every stub;
// it is safe for concurrent use.
type Router struct {
	mode      Mode
	registry  *operation.Registry
	engine    *authz.Engine
	transport Transport
	scopes    ScopeFactory
	format    wire.Format
	log       *slog.Logger
	tracer    trace.Tracer
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithTransport sets the remote transport. Required in Remote mode.
func WithTransport(t Transport) RouterOption {
	return func(r *Router) { r.transport = t }
}

// WithScopeFactory sets the per-invocation dependency scope factory used
// in Local and Logical modes.
func WithScopeFactory(f ScopeFactory) RouterOption {
	return func(r *Router) { r.scopes = f }
}

// WithFormat sets the process-wide default wire format for Remote mode.
func WithFormat(f wire.Format) RouterOption {
	return func(r *Router) { r.format = f }
}

// WithRouterLogger sets the router logger.
func WithRouterLogger(log *slog.Logger) RouterOption {
	return func(r *Router) { r.log = log }
}

// WithTracer sets the tracer for invocation spans.
func WithTracer(t trace.Tracer) RouterOption {
	return func(r *Router) { r.tracer = t }
}

// NewRouter builds a router for the given mode. The registry and engine
// are always required: Remote mode still consults both — the registry
// for declared shapes, the engine for the local rule pre-filter that
// must run before any envelope is built.
func NewRouter(mode Mode, registry *operation.Registry, engine *authz.Engine, opts ...RouterOption) (*Router, error) {
	if registry == nil || engine == nil {
		return nil, errors.New("portal: router requires a registry and an authorization engine")
	}
	r := &Router{
		mode:     mode,
		registry: registry,
		engine:   engine,
		format:   wire.FormatOrdinal,
		log:      slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("portal"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if mode == ModeRemote && r.transport == nil {
		return nil, errors.New("portal: remote mode requires a transport")
	}
	return r, nil
}

// Mode reports the execution mode the router was built with.
func (r *Router) Mode() Mode { return r.mode }

// Invoke runs one operation: authorize, resolve, execute (or ship to the
// remote endpoint), returning the result value or a typed fault.
func (r *Router) Invoke(ctx context.Context, target string, kind operation.Kind, args ...any) (any, error) {
	ctx, span := r.tracer.Start(ctx, "portal.invoke", trace.WithAttributes(
		attribute.String("factory.target", target),
		attribute.String("factory.kind", kind.String()),
		attribute.String("factory.mode", r.mode.String()),
	))
	defer span.End()

	var (
		out any
		err error
	)
	switch r.mode {
	case ModeRemote:
		out, err = r.invokeRemote(ctx, target, kind, args)
	case ModeLogical:
		out, err = r.invokeLocal(ctx, target, kind, args, authz.TierHosted)
	default:
		out, err = r.invokeLocal(ctx, target, kind, args, authz.TierLocal)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// Save dispatches a save intent: the concrete operation (insert, update
// or delete) is derived from the target's lifecycle flags, never from
// the caller.
func (r *Router) Save(ctx context.Context, target string, obj operation.Persistable) (any, error) {
	return r.Invoke(ctx, target, operation.ResolveSaveKind(obj))
}

// SaveArgs is Save for targets whose save methods take the instance as an
// explicit argument (the common case for generated stubs).
func (r *Router) SaveArgs(ctx context.Context, target string, obj operation.Persistable, args ...any) (any, error) {
	return r.Invoke(ctx, target, operation.ResolveSaveKind(obj), args...)
}

// Notify dispatches a fire-and-forget event. The operation is still
// authorized and resolved synchronously — a denial is observable — but
// any result payload is discarded.
func (r *Router) Notify(ctx context.Context, target string, args ...any) error {
	_, err := r.Invoke(ctx, target, operation.KindEvent, args...)
	return err
}

func (r *Router) invokeLocal(ctx context.Context, target string, kind operation.Kind, args []any, tier authz.Tier) (any, error) {
	subject := authz.Subject{
		Principal: identity.FromContext(ctx),
		Target:    target,
		Kind:      kind,
		Args:      args,
	}
	switch res := r.engine.Authorize(ctx, subject, tier); res.Verdict {
	case authz.VerdictDenied:
		return nil, &DeniedError{Reason: res.Reason}
	case authz.VerdictForbidden:
		return nil, &ForbiddenError{Reason: res.Reason}
	}

	m, err := r.registry.Resolve(target, kind)
	if err != nil {
		return nil, err
	}
	if m.Handler == nil {
		return nil, &operation.ResolutionError{Target: target, Kind: kind}
	}

	var scope operation.Scope
	if r.scopes != nil {
		scope, err = r.scopes(ctx)
		if err != nil {
			return nil, err
		}
	}

	out, err := m.Handler(ctx, scope, args)
	if err != nil {
		return nil, err
	}
	if kind == operation.KindEvent {
		return nil, nil
	}
	return out, nil
}

func (r *Router) invokeRemote(ctx context.Context, target string, kind operation.Kind, args []any) (any, error) {
	subject := authz.Subject{
		Principal: identity.FromContext(ctx),
		Target:    target,
		Kind:      kind,
		Args:      args,
	}
	// Local rules are a pre-filter: a denial here means no envelope is
	// ever built and nothing touches the network.
	switch res := r.engine.Authorize(ctx, subject, authz.TierLocal); res.Verdict {
	case authz.VerdictDenied:
		return nil, &DeniedError{Reason: res.Reason}
	case authz.VerdictForbidden:
		return nil, &ForbiddenError{Reason: res.Reason}
	}

	m, err := r.registry.Resolve(target, kind)
	if err != nil {
		return nil, err
	}

	payload, err := wire.EncodeArgs(r.format, m.Params, args)
	if err != nil {
		return nil, err
	}
	req := wire.NewRequest(target, kind.String(), payload)

	resp, err := r.transport.Do(ctx, req, r.format)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, &TransportError{Op: "send", Err: err}
	}

	switch resp.Outcome {
	case wire.OutcomeSuccess:
		if kind == operation.KindEvent || len(m.Results) == 0 {
			return nil, nil
		}
		out, err := wire.DecodeResult(r.format, m.Results, resp.Result)
		if err != nil {
			return nil, err
		}
		return out, nil
	case wire.OutcomeDenied, wire.OutcomeFaulted:
		return nil, ErrorFromFault(resp.Fault)
	default:
		return nil, &TransportError{Op: "response", Err: errors.New("unknown outcome " + string(resp.Outcome))}
	}
}
