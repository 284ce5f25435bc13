package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/authz"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/identity"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/operation"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/portal"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/session"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/wire"
)

const defaultMaxBodyBytes = 4 << 20

// Handler serves the invocation endpoint: it decodes a request envelope,
// runs the hosted authorization tier, executes the resolved method
// against a fresh dependency scope, and answers with a response envelope
// in the same wire format the caller spoke.
type Handler struct {
	registry *operation.Registry
	engine   *authz.Engine
	scopes   portal.ScopeFactory
	sessions session.Store
	ttl      time.Duration
	log      *slog.Logger
	maxBody  int64
	observe  func(target, kind, outcome string, d time.Duration)
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithSessionStore lets the handler revoke the caller's session when a
// forbidden fault fires. ttl should cover the longest-lived token the
// endpoint accepts, so the revocation outlives the token it kills.
func WithSessionStore(s session.Store, ttl time.Duration) HandlerOption {
	return func(h *Handler) {
		h.sessions = s
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) { h.log = log }
}

// WithMaxBodyBytes bounds the request body size.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) { h.maxBody = n }
}

// WithObserver installs a callback recording each invocation's target,
// kind, outcome, and duration, for metrics.
func WithObserver(fn func(target, kind, outcome string, d time.Duration)) HandlerOption {
	return func(h *Handler) { h.observe = fn }
}

// NewHandler builds the invocation handler.
func NewHandler(registry *operation.Registry, engine *authz.Engine, scopes portal.ScopeFactory, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry: registry,
		engine:   engine,
		scopes:   scopes,
		ttl:      time.Hour,
		log:      slog.Default(),
		maxBody:  defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles one invocation. Protocol-level rejects (method, body,
// schema, version) are RFC 7807 problems; everything the factory decides
// is an HTTP 200 response envelope, including denials and faults.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}

	format := wire.ParseFormat(r.Header.Get(wire.FormatHeader))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeBadRequest(w, r, "Request body unreadable or too large")
		return
	}
	if err := wire.ValidateRequest(body); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	var req wire.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeBadRequest(w, r, "Malformed request envelope")
		return
	}
	if err := wire.CheckProtocol(req.Version); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	start := time.Now()
	resp := h.invoke(r, &req, format)
	if h.observe != nil {
		h.observe(req.Target, req.Kind, string(resp.Outcome), time.Since(start))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(wire.FormatHeader, format.String())
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.ErrorContext(r.Context(), "encode response envelope", "error", err, "request_id", req.ID)
	}
}

func (h *Handler) invoke(r *http.Request, req *wire.Request, format wire.Format) *wire.Response {
	ctx := r.Context()

	// Schema validation already constrained kind to the known names.
	kind, err := operation.ParseKind(req.Kind)
	if err != nil {
		return wire.Faulted(req.ID, &wire.Fault{Kind: wire.FaultDecode, Message: err.Error()})
	}

	// Arguments decode against the shapes this process registered, never
	// against anything the caller asserts.
	m, err := h.registry.Resolve(req.Target, kind)
	if err != nil {
		return wire.Faulted(req.ID, portal.FaultFromError(err))
	}
	if m.Handler == nil {
		return wire.Faulted(req.ID, portal.FaultFromError(&operation.ResolutionError{Target: req.Target, Kind: kind}))
	}

	args, err := wire.DecodeArgs(format, m.Params, req.Args)
	if err != nil {
		return wire.Faulted(req.ID, portal.FaultFromError(err))
	}

	subject := authz.Subject{
		Principal: identity.FromContext(ctx),
		Target:    req.Target,
		Kind:      kind,
		Args:      args,
	}
	switch res := h.engine.Authorize(ctx, subject, authz.TierHosted); res.Verdict {
	case authz.VerdictDenied:
		return wire.Denied(req.ID, res.Reason)
	case authz.VerdictForbidden:
		h.revokeSession(r)
		return wire.Faulted(req.ID, &wire.Fault{Kind: wire.FaultForbidden, Message: res.Reason})
	}

	var scope operation.Scope
	if h.scopes != nil {
		scope, err = h.scopes(ctx)
		if err != nil {
			h.log.ErrorContext(ctx, "build invocation scope", "error", err, "target", req.Target)
			return wire.Faulted(req.ID, &wire.Fault{Kind: wire.FaultBusiness, Message: "invocation scope unavailable"})
		}
	}

	out, err := m.Handler(ctx, scope, args)
	if err != nil {
		return wire.Faulted(req.ID, portal.FaultFromError(err))
	}

	if kind == operation.KindEvent {
		out = nil
	}
	result, err := wire.EncodeResult(format, resultShapes(m, kind), out)
	if err != nil {
		h.log.ErrorContext(ctx, "encode result", "error", err, "target", req.Target)
		return wire.Faulted(req.ID, &wire.Fault{Kind: wire.FaultBusiness, Message: "result encoding failed"})
	}
	return wire.Success(req.ID, result)
}

// resultShapes drops the declared result for events: the caller treats
// them as fire-and-forget and never decodes a payload.
func resultShapes(m *operation.Method, kind operation.Kind) []wire.Shape {
	if kind == operation.KindEvent {
		return nil
	}
	return m.Results
}

// revokeSession puts the caller's session on the revocation list after a
// forbidden fault, so subsequent requests on the same token fail
// authentication outright.
func (h *Handler) revokeSession(r *http.Request) {
	if h.sessions == nil {
		return
	}
	ctx := r.Context()
	jti := identity.SessionIDFromContext(ctx)
	if jti == "" {
		return
	}
	entry := session.Entry{
		PrincipalID: identity.FromContext(ctx).ID,
		TenantID:    identity.FromContext(ctx).TenantID,
		Reason:      "forbidden fault",
		RevokedAt:   time.Now().UTC(),
	}
	if err := h.sessions.Put(ctx, jti, entry, h.ttl); err != nil {
		h.log.ErrorContext(ctx, "revoke session", "error", err, "session", jti)
	}
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
