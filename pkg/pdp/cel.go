package pdp

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// CELEvaluator evaluates named policies written as CEL expressions. All
// expressions are compiled at construction so a malformed policy is a
// startup error, not a call-time surprise. Unknown policy names and
// evaluation errors deny, fail-closed.
//
// Expressions see these variables:
//
//	principal      string        caller id ("" when unauthenticated)
//	tenant         string        caller tenant
//	roles          list(string)  caller roles
//	required_roles list(string)  roles declared on the policy reference
//	target         string        target type name
//	action         string        operation kind ("create", "fetch", ...)
//	context        dyn           free-form request context
type CELEvaluator struct {
	programs map[string]cel.Program
	hash     string
}

// NewCELEvaluator compiles the given policy set (name → CEL expression).
func NewCELEvaluator(policies map[string]string) (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("principal", cel.StringType),
		cel.Variable("tenant", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("required_roles", cel.ListType(cel.StringType)),
		cel.Variable("target", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("context", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("pdp: create CEL environment: %w", err)
	}

	programs := make(map[string]cel.Program, len(policies))
	for name, expr := range policies {
		ast, iss := env.Compile(expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("pdp: compile policy %q: %w", name, iss.Err())
		}
		if ast.OutputType().String() != cel.BoolType.String() {
			return nil, fmt.Errorf("pdp: policy %q must evaluate to bool, got %s", name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("pdp: build program for policy %q: %w", name, err)
		}
		programs[name] = prg
	}

	return &CELEvaluator{programs: programs, hash: PolicySetHash(policies)}, nil
}

func (e *CELEvaluator) Backend() Backend   { return BackendCEL }
func (e *CELEvaluator) PolicyHash() string { return e.hash }

// Evaluate implements Evaluator. Fail-closed on all errors.
func (e *CELEvaluator) Evaluate(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error) {
	if req == nil {
		return e.deny("", "DENY_NIL_REQUEST"), nil
	}
	prg, ok := e.programs[req.Policy]
	if !ok {
		return e.deny(req.Policy, "DENY_UNKNOWN_POLICY"), nil
	}

	roles := req.Roles
	if roles == nil {
		roles = []string{}
	}
	required := req.RequiredRoles
	if required == nil {
		required = []string{}
	}
	evalCtx := req.Context
	if evalCtx == nil {
		evalCtx = map[string]any{}
	}

	out, _, err := prg.ContextEval(ctx, map[string]any{
		"principal":      req.Principal,
		"tenant":         req.Tenant,
		"roles":          roles,
		"required_roles": required,
		"target":         req.Target,
		"action":         req.Action,
		"context":        evalCtx,
	})
	if err != nil {
		return e.deny(req.Policy, "DENY_EVAL_ERROR"), nil
	}
	allow, ok := out.Value().(bool)
	if !ok {
		return e.deny(req.Policy, "DENY_NON_BOOL_RESULT"), nil
	}

	reason := "ALLOW"
	if !allow {
		reason = "DENY_POLICY"
	}
	return sealed(&DecisionResponse{
		Allow:      allow,
		ReasonCode: reason,
		PolicyRef:  e.policyRef(req.Policy),
	}), nil
}

func (e *CELEvaluator) deny(policy, reason string) *DecisionResponse {
	return sealed(&DecisionResponse{
		Allow:      false,
		ReasonCode: reason,
		PolicyRef:  e.policyRef(policy),
	})
}

func (e *CELEvaluator) policyRef(policy string) string {
	return fmt.Sprintf("cel:%s@%s", policy, e.hash)
}
