package authz

import (
	"context"
	"testing"
	"time"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/identity"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/operation"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/pdp"
)

func subject(kind operation.Kind, roles ...string) Subject {
	return Subject{
		Principal: identity.Principal{ID: "user:alice", Roles: roles},
		Target:    "tasks.Task",
		Kind:      kind,
	}
}

func TestUnregisteredTargetAllows(t *testing.T) {
	e := NewEngine()
	res := e.Authorize(context.Background(), subject(operation.KindFetch), TierLocal)
	if res.Verdict != VerdictAllowed {
		t.Errorf("target with no rules: %+v", res)
	}
}

func TestLocalRulesShortCircuit(t *testing.T) {
	var evaluated []string
	rule := func(name string, d Decision) Rule {
		return RuleFunc(name, ActionAll, func(context.Context, Subject) Decision {
			evaluated = append(evaluated, name)
			return d
		})
	}

	e := NewEngine()
	if err := e.RegisterRuleSet(&RuleSet{
		Target: "tasks.Task",
		Local:  []Rule{rule("first", Allow()), rule("second", Deny("no")), rule("third", Allow())},
	}); err != nil {
		t.Fatal(err)
	}

	res := e.Authorize(context.Background(), subject(operation.KindFetch), TierLocal)
	if res.Verdict != VerdictDenied {
		t.Fatalf("verdict: %+v", res)
	}
	if len(evaluated) != 2 || evaluated[1] != "second" {
		t.Errorf("rules after the denial must not run: %v", evaluated)
	}
}

func TestActionMaskFiltersRules(t *testing.T) {
	var writeChecked bool
	e := NewEngine()
	_ = e.RegisterRuleSet(&RuleSet{
		Target: "tasks.Task",
		Local: []Rule{
			RuleFunc("writes-only", ActionWrite, func(context.Context, Subject) Decision {
				writeChecked = true
				return Deny("writes are closed")
			}),
		},
	})

	// Fetch is a read; the write rule must not fire.
	res := e.Authorize(context.Background(), subject(operation.KindFetch), TierLocal)
	if res.Verdict != VerdictAllowed || writeChecked {
		t.Errorf("read invocation triggered write rule: %+v checked=%v", res, writeChecked)
	}

	res = e.Authorize(context.Background(), subject(operation.KindUpdate), TierLocal)
	if res.Verdict != VerdictDenied || !writeChecked {
		t.Errorf("write invocation must trigger the rule: %+v", res)
	}
}

func TestDeferredRuleAwaited(t *testing.T) {
	e := NewEngine()
	_ = e.RegisterRuleSet(&RuleSet{
		Target: "tasks.Task",
		Local: []Rule{
			DeferredRuleFunc("slow", ActionAll, func(context.Context, Subject) *Future {
				f := NewFuture()
				go func() {
					time.Sleep(10 * time.Millisecond)
					f.Resolve(Deny("deferred no"))
				}()
				return f
			}),
		},
	})

	res := e.Authorize(context.Background(), subject(operation.KindFetch), TierLocal)
	if res.Verdict != VerdictDenied {
		t.Errorf("deferred denial lost: %+v", res)
	}
}

func TestFutureCancellationDenies(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if d := f.Await(ctx); d.Effect != EffectDeny {
		t.Errorf("cancelled await must deny, got %+v", d)
	}
}

func TestFutureFirstResolutionWins(t *testing.T) {
	f := NewFuture()
	f.Resolve(Allow())
	f.Resolve(Deny("late"))
	if d := f.Await(context.Background()); d.Effect != EffectAllow {
		t.Errorf("later resolution overrode the first: %+v", d)
	}
}

func TestRemotePoliciesOnlyInHostedTier(t *testing.T) {
	e := NewEngine(WithEvaluator(pdp.NewRoleEvaluator()))
	_ = e.RegisterRuleSet(&RuleSet{
		Target: "tasks.Task",
		Remote: []PolicyRef{{Policy: "write", Roles: []string{"editor"}}},
	})

	// Local tier skips remote policies entirely.
	res := e.Authorize(context.Background(), subject(operation.KindUpdate), TierLocal)
	if res.Verdict != VerdictAllowed {
		t.Errorf("local tier must skip remote policies: %+v", res)
	}

	// Hosted tier enforces them.
	res = e.Authorize(context.Background(), subject(operation.KindUpdate), TierHosted)
	if res.Verdict != VerdictDenied {
		t.Errorf("hosted tier without the role: %+v", res)
	}

	res = e.Authorize(context.Background(), subject(operation.KindUpdate, "editor"), TierHosted)
	if res.Verdict != VerdictAllowed {
		t.Errorf("hosted tier with the role: %+v", res)
	}
}

func TestForbidEscalation(t *testing.T) {
	e := NewEngine(WithEvaluator(pdp.NewRoleEvaluator()))
	_ = e.RegisterRuleSet(&RuleSet{
		Target: "tasks.Task",
		Remote: []PolicyRef{{Policy: "write", Roles: []string{"editor"}}},
		Forbid: true,
	})

	res := e.Authorize(context.Background(), subject(operation.KindUpdate), TierHosted)
	if res.Verdict != VerdictForbidden {
		t.Errorf("forbid flag must escalate the failure: %+v", res)
	}
}

func TestNoEvaluatorFailsClosed(t *testing.T) {
	e := NewEngine()
	_ = e.RegisterRuleSet(&RuleSet{
		Target: "tasks.Task",
		Remote: []PolicyRef{{Policy: "write"}},
	})

	res := e.Authorize(context.Background(), subject(operation.KindUpdate, "editor"), TierHosted)
	if res.Verdict != VerdictDenied {
		t.Errorf("missing evaluator must deny: %+v", res)
	}
}

func TestRegisterRuleSetValidation(t *testing.T) {
	e := NewEngine()
	if err := e.RegisterRuleSet(&RuleSet{Target: "tasks.Task"}); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterRuleSet(&RuleSet{Target: "tasks.Task"}); err == nil {
		t.Error("duplicate target must be rejected")
	}
	if err := e.RegisterRuleSet(nil); err == nil {
		t.Error("nil rule set must be rejected")
	}

	type bareRule struct{ Rule }
	if err := e.RegisterRuleSet(&RuleSet{
		Target: "docs.Other",
		Local:  []Rule{bareRule{RuleFunc("x", ActionAll, nil)}},
	}); err == nil {
		t.Error("rule implementing neither evaluation interface must be rejected")
	}
}

func TestActionForKind(t *testing.T) {
	cases := map[operation.Kind]Action{
		operation.KindCreate:  ActionCreate,
		operation.KindFetch:   ActionRead,
		operation.KindInsert:  ActionWrite,
		operation.KindUpdate:  ActionWrite,
		operation.KindDelete:  ActionWrite,
		operation.KindExecute: ActionExecute,
		operation.KindEvent:   ActionExecute,
	}
	for k, want := range cases {
		if got := ActionForKind(k); got != want {
			t.Errorf("ActionForKind(%s) = %v, want %v", k, got, want)
		}
	}
}
