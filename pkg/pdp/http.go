package pdp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultSidecarTimeout = 5 * time.Second
	defaultSidecarPath    = "/decide"
)

// SidecarConfig configures the HTTP PDP adapter.
type SidecarConfig struct {
	// URL is the base URL of the PDP sidecar (e.g. "http://localhost:8182").
	URL string `json:"url"`
	// DecidePath overrides the default decision path. Default: "/decide".
	DecidePath string `json:"decide_path,omitempty"`
	// Timeout sets the HTTP call timeout. Default: 5s.
	Timeout time.Duration `json:"timeout,omitempty"`
	// PolicyVersion is a human-readable identifier for the sidecar's
	// policy set.
	PolicyVersion string `json:"policy_version,omitempty"`
}

// HTTPEvaluator delegates policy evaluation to a sidecar process over
// HTTP, for organizations whose policy engine has no Go evaluator.
//
// Strict fail-closed: any communication failure results in DENY.
type HTTPEvaluator struct {
	config     SidecarConfig
	client     *http.Client
	policyHash string
}

// NewHTTPEvaluator creates a sidecar-backed PDP.
func NewHTTPEvaluator(cfg SidecarConfig) *HTTPEvaluator {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultSidecarTimeout
	}
	if cfg.DecidePath == "" {
		cfg.DecidePath = defaultSidecarPath
	}
	return &HTTPEvaluator{
		config:     cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		policyHash: fmt.Sprintf("sha256:sidecar:%s", cfg.PolicyVersion),
	}
}

func (e *HTTPEvaluator) Backend() Backend   { return BackendHTTP }
func (e *HTTPEvaluator) PolicyHash() string { return e.policyHash }

// sidecarResponse is the expected sidecar output.
type sidecarResponse struct {
	Allow      bool   `json:"allow"`
	ReasonCode string `json:"reason_code,omitempty"`
}

// Evaluate implements Evaluator. Fail-closed on all errors.
func (e *HTTPEvaluator) Evaluate(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error) {
	if req == nil {
		return e.deny("DENY_NIL_REQUEST"), nil
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return e.deny("DENY_MARSHAL_ERROR"), nil
	}

	url := e.config.URL + e.config.DecidePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return e.deny("DENY_REQUEST_ERROR"), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return e.deny("DENY_UNREACHABLE"), nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return e.deny(fmt.Sprintf("DENY_SIDECAR_STATUS_%d", resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return e.deny("DENY_READ_ERROR"), nil
	}
	var out sidecarResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return e.deny("DENY_MALFORMED_RESPONSE"), nil
	}

	reason := out.ReasonCode
	if reason == "" {
		if out.Allow {
			reason = "ALLOW"
		} else {
			reason = "DENY_POLICY"
		}
	}
	return sealed(&DecisionResponse{
		Allow:      out.Allow,
		ReasonCode: reason,
		PolicyRef:  e.policyHash,
	}), nil
}

func (e *HTTPEvaluator) deny(reason string) *DecisionResponse {
	return sealed(&DecisionResponse{Allow: false, ReasonCode: reason, PolicyRef: e.policyHash})
}
