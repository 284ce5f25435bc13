package pdp

import "context"

// RoleEvaluator is the simplest backend: a policy passes when the caller
// holds every role declared on the policy reference. A reference with no
// roles passes for any authenticated principal.
type RoleEvaluator struct{}

func NewRoleEvaluator() *RoleEvaluator { return &RoleEvaluator{} }

func (e *RoleEvaluator) Backend() Backend   { return BackendRoles }
func (e *RoleEvaluator) PolicyHash() string { return "sha256:roles:static" }

func (e *RoleEvaluator) Evaluate(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error) {
	if req == nil {
		return sealed(&DecisionResponse{Allow: false, ReasonCode: "DENY_NIL_REQUEST", PolicyRef: e.PolicyHash()}), nil
	}
	if req.Principal == "" {
		return sealed(&DecisionResponse{Allow: false, ReasonCode: "DENY_ANONYMOUS", PolicyRef: e.ref(req)}), nil
	}

	held := make(map[string]struct{}, len(req.Roles))
	for _, r := range req.Roles {
		held[r] = struct{}{}
	}
	for _, want := range req.RequiredRoles {
		if _, ok := held[want]; !ok {
			return sealed(&DecisionResponse{Allow: false, ReasonCode: "DENY_MISSING_ROLE", PolicyRef: e.ref(req)}), nil
		}
	}
	return sealed(&DecisionResponse{Allow: true, ReasonCode: "ALLOW", PolicyRef: e.ref(req)}), nil
}

func (e *RoleEvaluator) ref(req *DecisionRequest) string {
	return "roles:" + req.Policy
}
