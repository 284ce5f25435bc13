package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/pdp"
)

// Tier tells the engine whether the invocation is crossing (or emulating)
// the remote boundary. Remote policies run only in the hosted tier; the
// Logical execution mode uses the hosted tier so a single-process
// full-stack run exercises every rule that would run remotely.
type Tier uint8

const (
	TierLocal Tier = iota
	TierHosted
)

// Verdict is the engine's answer for one invocation.
type Verdict uint8

const (
	VerdictAllowed Verdict = iota
	// VerdictDenied is a normal business answer the caller can branch on.
	VerdictDenied
	// VerdictForbidden is a terminal fault: the session should be
	// rejected, not just this call.
	VerdictForbidden
)

// Result carries the verdict and, for non-allow verdicts, the reason.
type Result struct {
	Verdict Verdict
	Reason  string
}

// Engine evaluates rule sets. Register every rule set during process
// bootstrap, then treat the engine as read-only; Authorize is safe for
// concurrent use.
type Engine struct {
	rules     map[string]*RuleSet
	evaluator pdp.Evaluator
	log       *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithEvaluator sets the PDP backend for the remote tier. Without one,
// remote policy references deny fail-closed in the hosted tier.
func WithEvaluator(ev pdp.Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rules: make(map[string]*RuleSet),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterRuleSet adds a target's rule set. Duplicate targets and rules
// that are neither synchronous nor deferred are startup errors.
func (e *Engine) RegisterRuleSet(rs *RuleSet) error {
	if rs == nil || rs.Target == "" {
		return fmt.Errorf("authz: rule set requires a target name")
	}
	if _, ok := e.rules[rs.Target]; ok {
		return fmt.Errorf("authz: rule set for target %q already registered", rs.Target)
	}
	for _, r := range rs.Local {
		switch r.(type) {
		case SyncRule, DeferredRule:
		default:
			return fmt.Errorf("authz: rule %q on target %q implements neither SyncRule nor DeferredRule", r.Name(), rs.Target)
		}
	}
	e.rules[rs.Target] = rs
	return nil
}

// Authorize gates one invocation. Local rules whose bitmask includes the
// requested operation run first, in declaration order, strictly
// sequentially, short-circuiting on the first denial. Remote policies run
// only in the hosted tier and only after every local rule passed; a
// policy failure is a denial, escalated to forbidden when the rule set's
// forbid flag is set. No result is cached across calls.
func (e *Engine) Authorize(ctx context.Context, s Subject, tier Tier) Result {
	rs, ok := e.rules[s.Target]
	if !ok {
		// No declared rules for the target: nothing to gate on.
		return Result{Verdict: VerdictAllowed}
	}

	action := ActionForKind(s.Kind)

	for _, rule := range rs.Local {
		if !rule.Actions().Has(action) {
			continue
		}
		d := e.evaluateLocal(ctx, rule, s)
		if d.Effect == EffectDeny {
			e.log.DebugContext(ctx, "local rule denied operation",
				"target", s.Target, "kind", s.Kind.String(), "rule", rule.Name(), "reason", d.Reason)
			return Result{Verdict: VerdictDenied, Reason: denialReason(rule.Name(), d.Reason)}
		}
	}

	if tier != TierHosted || len(rs.Remote) == 0 {
		return Result{Verdict: VerdictAllowed}
	}
	return e.evaluateRemote(ctx, rs, s)
}

func (e *Engine) evaluateLocal(ctx context.Context, rule Rule, s Subject) Decision {
	switch r := rule.(type) {
	case SyncRule:
		return r.Authorize(ctx, s)
	case DeferredRule:
		// Awaited to completion before the next rule runs.
		return r.AuthorizeDeferred(ctx, s).Await(ctx)
	default:
		// Unreachable after RegisterRuleSet validation; deny fail-closed.
		return Deny("rule has no evaluation path")
	}
}

func (e *Engine) evaluateRemote(ctx context.Context, rs *RuleSet, s Subject) Result {
	fail := func(reason string) Result {
		if rs.Forbid {
			return Result{Verdict: VerdictForbidden, Reason: reason}
		}
		return Result{Verdict: VerdictDenied, Reason: reason}
	}

	if e.evaluator == nil {
		return fail("no policy evaluator configured")
	}

	for _, ref := range rs.Remote {
		resp, err := e.evaluator.Evaluate(ctx, &pdp.DecisionRequest{
			Principal:     s.Principal.ID,
			Tenant:        s.Principal.TenantID,
			Roles:         s.Principal.Roles,
			Policy:        ref.Policy,
			RequiredRoles: ref.Roles,
			Target:        s.Target,
			Action:        s.Kind.String(),
			Timestamp:     time.Now().UTC(),
		})
		if err != nil || resp == nil {
			e.log.WarnContext(ctx, "policy evaluation failed",
				"target", s.Target, "policy", ref.Policy, "error", err)
			return fail(fmt.Sprintf("policy %q evaluation failed", ref.Policy))
		}
		if !resp.Allow {
			e.log.DebugContext(ctx, "remote policy denied operation",
				"target", s.Target, "policy", ref.Policy, "reason", resp.ReasonCode,
				"decision_hash", resp.DecisionHash)
			return fail(fmt.Sprintf("policy %q: %s", ref.Policy, resp.ReasonCode))
		}
	}
	return Result{Verdict: VerdictAllowed}
}

func denialReason(rule, reason string) string {
	if reason == "" {
		return fmt.Sprintf("rule %q denied the operation", rule)
	}
	return reason
}
