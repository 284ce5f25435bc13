// Package authz implements the two-tier authorization engine: local
// declarative rules evaluated in-process, and remote policies evaluated
// through a pluggable Policy Decision Point when the call is in the
// hosted tier.
//
// Rule sets are built once per target type at process start and are
// read-only afterward; concurrent invocations share them safely. Within
// one invocation rules run strictly sequentially and authorization always
// completes before the target method starts.
package authz

import (
	"context"
	"sync"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/identity"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/operation"
)

// Action is the bitmask of operation classes a local rule governs.
type Action uint8

const (
	ActionCreate Action = 1 << iota
	ActionRead
	ActionWrite
	ActionExecute
)

// ActionAll covers every operation class.
const ActionAll = ActionCreate | ActionRead | ActionWrite | ActionExecute

// Has reports whether the mask includes the given action.
func (a Action) Has(b Action) bool { return a&b != 0 }

// ActionForKind maps an operation kind to its authorization class.
// Save-style mutations are Write; execute and events are Execute.
func ActionForKind(k operation.Kind) Action {
	switch k {
	case operation.KindCreate:
		return ActionCreate
	case operation.KindFetch:
		return ActionRead
	case operation.KindInsert, operation.KindUpdate, operation.KindDelete:
		return ActionWrite
	default:
		return ActionExecute
	}
}

// Effect is a single rule's answer.
type Effect uint8

const (
	EffectAllow Effect = iota
	EffectDeny
)

// Decision is a rule result: allow, or deny with an optional reason.
type Decision struct {
	Effect Effect
	Reason string
}

func Allow() Decision { return Decision{Effect: EffectAllow} }

func Deny(reason string) Decision { return Decision{Effect: EffectDeny, Reason: reason} }

// Subject describes one invocation under authorization. The principal is
// read fresh from the execution context for every call; it may change
// between calls within one session.
type Subject struct {
	Principal identity.Principal
	Target    string
	Kind      operation.Kind
	Args      []any
}

// Rule is a local declarative rule. A rule is either synchronous
// (SyncRule) or deferred (DeferredRule); the engine awaits a deferred
// result to completion before the next rule runs.
type Rule interface {
	Name() string
	Actions() Action
}

// SyncRule answers immediately.
type SyncRule interface {
	Rule
	Authorize(ctx context.Context, s Subject) Decision
}

// DeferredRule answers through a Future, for rules that consult slow
// collaborators. Deferred rules never run concurrently with each other
// for one invocation.
type DeferredRule interface {
	Rule
	AuthorizeDeferred(ctx context.Context, s Subject) *Future
}

// Future is the explicit deferred-decision primitive. Resolve may be
// called from any goroutine; only the first resolution counts.
type Future struct {
	once sync.Once
	ch   chan Decision
}

func NewFuture() *Future {
	return &Future{ch: make(chan Decision, 1)}
}

// Resolve completes the future.
func (f *Future) Resolve(d Decision) {
	f.once.Do(func() { f.ch <- d })
}

// Await blocks until the future resolves or the context is cancelled.
// Cancellation denies, fail-closed.
func (f *Future) Await(ctx context.Context) Decision {
	select {
	case d := <-f.ch:
		return d
	case <-ctx.Done():
		return Deny("authorization cancelled: " + ctx.Err().Error())
	}
}

// Resolved returns an already-completed future.
func Resolved(d Decision) *Future {
	f := NewFuture()
	f.Resolve(d)
	return f
}

type funcRule struct {
	name    string
	actions Action
	fn      func(ctx context.Context, s Subject) Decision
}

func (r *funcRule) Name() string    { return r.name }
func (r *funcRule) Actions() Action { return r.actions }
func (r *funcRule) Authorize(ctx context.Context, s Subject) Decision {
	return r.fn(ctx, s)
}

// RuleFunc builds a synchronous rule from a function.
func RuleFunc(name string, actions Action, fn func(ctx context.Context, s Subject) Decision) Rule {
	return &funcRule{name: name, actions: actions, fn: fn}
}

type deferredFuncRule struct {
	name    string
	actions Action
	fn      func(ctx context.Context, s Subject) *Future
}

func (r *deferredFuncRule) Name() string    { return r.name }
func (r *deferredFuncRule) Actions() Action { return r.actions }
func (r *deferredFuncRule) AuthorizeDeferred(ctx context.Context, s Subject) *Future {
	return r.fn(ctx, s)
}

// DeferredRuleFunc builds a deferred rule from a function.
func DeferredRuleFunc(name string, actions Action, fn func(ctx context.Context, s Subject) *Future) Rule {
	return &deferredFuncRule{name: name, actions: actions, fn: fn}
}

// PolicyRef names a remote policy plus the roles it requires. Remote
// policies are evaluated only in the hosted tier.
type PolicyRef struct {
	Policy string
	Roles  []string
}

// RuleSet is the per-target authorization declaration: ordered local
// rules, ordered remote policy references, and the forbid escalation
// flag. When Forbid is set, a failing remote policy raises a forbidden
// fault (terminal for the session) instead of a denial.
type RuleSet struct {
	Target string
	Local  []Rule
	Remote []PolicyRef
	Forbid bool
}
