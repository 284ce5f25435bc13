// Package pdp defines the Policy Decision Point abstraction for the
// remote authorization tier.
//
// The authorization engine delegates remote-tier policy evaluation to a
// pluggable PDP backend, so an organization can keep its existing policy
// language while the factory remains the enforcement point.
//
// Every PDP implementation MUST:
//   - Be fail-closed (deny on error/timeout)
//   - Produce deterministic decision hashes (JCS canonical JSON → SHA-256)
//   - Return a stable PolicyRef for audit binding
package pdp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// Backend identifies the policy engine.
type Backend string

const (
	BackendCEL   Backend = "cel"
	BackendRoles Backend = "roles"
	BackendHTTP  Backend = "http"
)

// DecisionRequest is the canonical structured input to a policy
// evaluation. Principal fields are read fresh per call; nothing here is
// cached across invocations.
type DecisionRequest struct {
	Principal     string         `json:"principal"`
	Tenant        string         `json:"tenant,omitempty"`
	Roles         []string       `json:"roles,omitempty"`
	Policy        string         `json:"policy"`
	RequiredRoles []string       `json:"required_roles,omitempty"`
	Target        string         `json:"target"`
	Action        string         `json:"action"`
	Context       map[string]any `json:"context,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// DecisionResponse is the canonical output of a policy evaluation.
type DecisionResponse struct {
	Allow        bool   `json:"allow"`
	ReasonCode   string `json:"reason_code"`
	PolicyRef    string `json:"policy_ref"`
	DecisionHash string `json:"decision_hash"`
}

// Evaluator is the stable interface for remote policy evaluation. The
// authorization engine calls it once per policy reference, in order.
type Evaluator interface {
	// Evaluate runs the policy evaluation. MUST be fail-closed.
	Evaluate(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error)

	// Backend returns the backend identifier.
	Backend() Backend

	// PolicyHash returns a content-addressed hash of the active policy set.
	PolicyHash() string
}

// ComputeDecisionHash produces a deterministic SHA-256 hash of the
// decision using JCS canonicalization. The hash field itself is excluded
// from the canonical form.
func ComputeDecisionHash(resp *DecisionResponse) (string, error) {
	hashInput := struct {
		Allow      bool   `json:"allow"`
		ReasonCode string `json:"reason_code"`
		PolicyRef  string `json:"policy_ref"`
	}{
		Allow:      resp.Allow,
		ReasonCode: resp.ReasonCode,
		PolicyRef:  resp.PolicyRef,
	}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("pdp: decision hash marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("pdp: decision hash canonicalization failed: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// sealed stamps the decision hash onto a response, fail-closed: a hashing
// failure turns the decision into a deny.
func sealed(resp *DecisionResponse) *DecisionResponse {
	hash, err := ComputeDecisionHash(resp)
	if err != nil {
		resp.Allow = false
		resp.ReasonCode = "DENY_HASH_ERROR"
		hash, _ = ComputeDecisionHash(resp)
	}
	resp.DecisionHash = hash
	return resp
}

// PolicySetHash hashes an arbitrary policy-set representation for use as
// a PolicyHash.
func PolicySetHash(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "sha256:invalid"
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "sha256:invalid"
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:])
}
