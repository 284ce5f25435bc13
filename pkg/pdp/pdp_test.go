package pdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// allBackends returns an evaluator per backend, each configured so that
// policy "write" allows the editor role and denies everyone else. The
// HTTP backend runs against an httptest sidecar.
func allBackends(t *testing.T) map[Backend]Evaluator {
	t.Helper()

	celEval, err := NewCELEvaluator(map[string]string{
		"write": `required_roles.all(r, r in roles)`,
	})
	if err != nil {
		t.Fatalf("cel evaluator: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/decide", func(w http.ResponseWriter, r *http.Request) {
		var req DecisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		held := map[string]bool{}
		for _, role := range req.Roles {
			held[role] = true
		}
		allow := true
		for _, want := range req.RequiredRoles {
			if !held[want] {
				allow = false
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sidecarResponse{Allow: allow})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	httpEval := NewHTTPEvaluator(SidecarConfig{URL: server.URL, PolicyVersion: "test-v1"})

	return map[Backend]Evaluator{
		BackendCEL:   celEval,
		BackendRoles: NewRoleEvaluator(),
		BackendHTTP:  httpEval,
	}
}

func writeRequest(roles []string) *DecisionRequest {
	return &DecisionRequest{
		Principal:     "user:alice",
		Tenant:        "acme",
		Roles:         roles,
		Policy:        "write",
		RequiredRoles: []string{"editor"},
		Target:        "tasks.Task",
		Action:        "update",
		Timestamp:     time.Now().UTC(),
	}
}

func TestEvaluatorConformance_Allow(t *testing.T) {
	for name, ev := range allBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			resp, err := ev.Evaluate(context.Background(), writeRequest([]string{"editor"}))
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if !resp.Allow {
				t.Errorf("editor must be allowed, got %s", resp.ReasonCode)
			}
			if !strings.HasPrefix(resp.DecisionHash, "sha256:") {
				t.Errorf("decision hash missing: %q", resp.DecisionHash)
			}
		})
	}
}

func TestEvaluatorConformance_Deny(t *testing.T) {
	for name, ev := range allBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			resp, err := ev.Evaluate(context.Background(), writeRequest([]string{"viewer"}))
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if resp.Allow {
				t.Error("viewer must be denied")
			}
		})
	}
}

func TestEvaluatorConformance_NilRequest(t *testing.T) {
	for name, ev := range allBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			resp, err := ev.Evaluate(context.Background(), nil)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if resp.Allow {
				t.Error("nil request must deny, fail-closed")
			}
		})
	}
}

func TestCELUnknownPolicyDenies(t *testing.T) {
	ev, err := NewCELEvaluator(map[string]string{"write": "true"})
	if err != nil {
		t.Fatal(err)
	}
	req := writeRequest([]string{"editor"})
	req.Policy = "nonexistent"
	resp, _ := ev.Evaluate(context.Background(), req)
	if resp.Allow || resp.ReasonCode != "DENY_UNKNOWN_POLICY" {
		t.Errorf("unknown policy: %+v", resp)
	}
}

func TestCELCompileErrorAtStartup(t *testing.T) {
	if _, err := NewCELEvaluator(map[string]string{"bad": `roles +`}); err == nil {
		t.Fatal("malformed expression must fail construction")
	}
	if _, err := NewCELEvaluator(map[string]string{"nonbool": `principal`}); err == nil {
		t.Fatal("non-boolean expression must fail construction")
	}
}

func TestHTTPEvaluatorFailClosed(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"malformed body": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			ev := NewHTTPEvaluator(SidecarConfig{URL: server.URL})
			resp, err := ev.Evaluate(context.Background(), writeRequest([]string{"editor"}))
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if resp.Allow {
				t.Error("sidecar failure must deny")
			}
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		ev := NewHTTPEvaluator(SidecarConfig{URL: "http://127.0.0.1:1", Timeout: time.Second})
		resp, err := ev.Evaluate(context.Background(), writeRequest([]string{"editor"}))
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if resp.Allow || resp.ReasonCode != "DENY_UNREACHABLE" {
			t.Errorf("unreachable sidecar: %+v", resp)
		}
	})
}

func TestRoleEvaluatorDeniesAnonymous(t *testing.T) {
	ev := NewRoleEvaluator()
	req := writeRequest(nil)
	req.Principal = ""
	resp, _ := ev.Evaluate(context.Background(), req)
	if resp.Allow || resp.ReasonCode != "DENY_ANONYMOUS" {
		t.Errorf("anonymous caller: %+v", resp)
	}
}

func TestDecisionHashDeterministic(t *testing.T) {
	resp := &DecisionResponse{Allow: true, ReasonCode: "ALLOW", PolicyRef: "cel:write@x"}
	h1, err := ComputeDecisionHash(resp)
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := ComputeDecisionHash(resp)
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s vs %s", h1, h2)
	}

	other := &DecisionResponse{Allow: false, ReasonCode: "ALLOW", PolicyRef: "cel:write@x"}
	h3, _ := ComputeDecisionHash(other)
	if h1 == h3 {
		t.Error("different decisions must hash differently")
	}
}
