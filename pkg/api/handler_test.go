package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/authz"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/identity"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/operation"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/pdp"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/session"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/wire"
)

type widget struct {
	operation.Lifecycle
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

func testHandler(t *testing.T, opts ...HandlerOption) *Handler {
	t.Helper()

	reg := operation.NewRegistry()
	reg.MustRegister(&operation.Method{
		Target:  "widgets.Widget",
		Kind:    operation.KindFetch,
		Name:    "FetchWidget",
		Params:  []wire.Shape{wire.ShapeOf[int64]("id")},
		Results: []wire.Shape{wire.ShapeOf[*widget]("widget")},
		Handler: func(_ context.Context, _ operation.Scope, args []any) (any, error) {
			return &widget{ID: args[0].(int64), Label: "found"}, nil
		},
	})
	reg.MustRegister(&operation.Method{
		Target: "widgets.Widget",
		Kind:   operation.KindUpdate,
		Name:   "UpdateWidget",
		Params: []wire.Shape{wire.ShapeOf[*widget]("widget")},
		Handler: func(_ context.Context, _ operation.Scope, args []any) (any, error) {
			return nil, errors.New("widget storage offline")
		},
	})

	evaluator, err := pdp.NewCELEvaluator(map[string]string{
		"widgets.write": `"editor" in roles`,
	})
	require.NoError(t, err)

	engine := authz.NewEngine(authz.WithEvaluator(evaluator))
	require.NoError(t, engine.RegisterRuleSet(&authz.RuleSet{
		Target: "widgets.Widget",
		Local: []authz.Rule{
			authz.RuleFunc("authenticated", authz.ActionAll, func(_ context.Context, s authz.Subject) authz.Decision {
				if s.Principal.IsZero() {
					return authz.Deny("caller is not authenticated")
				}
				return authz.Allow()
			}),
		},
		Remote: []authz.PolicyRef{{Policy: "widgets.write", Roles: []string{"editor"}}},
		Forbid: true,
	}))

	return NewHandler(reg, engine, nil, opts...)
}

func post(t *testing.T, h http.Handler, req *wire.Request, format wire.Format, p identity.Principal) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/v1/factory/invoke", bytes.NewReader(body))
	r.Header.Set(wire.FormatHeader, format.String())
	if !p.IsZero() {
		r = r.WithContext(identity.WithPrincipal(r.Context(), p))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) *wire.Response {
	t.Helper()
	var resp wire.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func editor() identity.Principal {
	return identity.Principal{ID: "user:alice", Roles: []string{"editor"}}
}

func TestHandlerSuccessBothFormats(t *testing.T) {
	h := testHandler(t)

	for _, format := range []wire.Format{wire.FormatOrdinal, wire.FormatNamed} {
		t.Run(format.String(), func(t *testing.T) {
			args, err := wire.EncodeArgs(format, []wire.Shape{wire.ShapeOf[int64]("id")}, []any{int64(7)})
			require.NoError(t, err)
			req := wire.NewRequest("widgets.Widget", "fetch", args)

			w := post(t, h, req, format, editor())
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, format.String(), w.Header().Get(wire.FormatHeader))

			resp := decodeResponse(t, w)
			assert.Equal(t, req.ID, resp.ID)
			require.Equal(t, wire.OutcomeSuccess, resp.Outcome)

			out, err := wire.DecodeResult(format, []wire.Shape{wire.ShapeOf[*widget]("widget")}, resp.Result)
			require.NoError(t, err)
			assert.Equal(t, "found", out.(*widget).Label)
		})
	}
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	h := testHandler(t)
	r := httptest.NewRequest(http.MethodGet, "/v1/factory/invoke", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestHandlerRejectsMalformedEnvelope(t *testing.T) {
	h := testHandler(t)
	bodies := []string{
		`not json`,
		`{"id":"1","version":"1.0.0","kind":"fetch"}`,
		`{"id":"1","version":"1.0.0","target":"t","kind":"save"}`,
	}
	for _, body := range bodies {
		r := httptest.NewRequest(http.MethodPost, "/v1/factory/invoke", bytes.NewReader([]byte(body)))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
	}
}

func TestHandlerRejectsProtocolDrift(t *testing.T) {
	h := testHandler(t)
	req := wire.NewRequest("widgets.Widget", "fetch", json.RawMessage(`[1]`))
	req.Version = "2.0.0"
	w := post(t, h, req, wire.FormatOrdinal, editor())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerResolutionFault(t *testing.T) {
	h := testHandler(t)
	req := wire.NewRequest("widgets.Unknown", "fetch", json.RawMessage(`[1]`))
	w := post(t, h, req, wire.FormatOrdinal, editor())
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	require.Equal(t, wire.OutcomeFaulted, resp.Outcome)
	assert.Equal(t, wire.FaultResolution, resp.Fault.Kind)
}

func TestHandlerDecodeFault(t *testing.T) {
	h := testHandler(t)
	req := wire.NewRequest("widgets.Widget", "fetch", json.RawMessage(`[1, "extra"]`))
	w := post(t, h, req, wire.FormatOrdinal, editor())
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	require.Equal(t, wire.OutcomeFaulted, resp.Outcome)
	assert.Equal(t, wire.FaultDecode, resp.Fault.Kind)
}

func TestHandlerDeniedOutcome(t *testing.T) {
	h := testHandler(t)
	req := wire.NewRequest("widgets.Widget", "fetch", json.RawMessage(`[1]`))
	w := post(t, h, req, wire.FormatOrdinal, identity.Principal{})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	require.Equal(t, wire.OutcomeDenied, resp.Outcome)
	assert.Equal(t, wire.FaultDenied, resp.Fault.Kind)
}

func TestHandlerForbiddenRevokesSession(t *testing.T) {
	sessions := session.NewMemoryStore()
	defer sessions.Close()
	h := testHandler(t, WithSessionStore(sessions, time.Minute))

	// Authenticated but lacking the editor role: the hosted-tier policy
	// fails and the rule set escalates to forbidden.
	args, err := wire.EncodeArgs(wire.FormatOrdinal, []wire.Shape{wire.ShapeOf[*widget]("widget")}, []any{&widget{ID: 1}})
	require.NoError(t, err)
	req := wire.NewRequest("widgets.Widget", "update", args)

	body, err := json.Marshal(req)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/v1/factory/invoke", bytes.NewReader(body))
	ctx := identity.WithPrincipal(r.Context(), identity.Principal{ID: "user:bob", Roles: []string{"viewer"}})
	ctx = identity.WithSessionID(ctx, "jti-bob")
	r = r.WithContext(ctx)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	require.Equal(t, wire.OutcomeFaulted, resp.Outcome)
	assert.Equal(t, wire.FaultForbidden, resp.Fault.Kind)

	// The JTI must now be on the revocation list.
	entry, err := sessions.Get(context.Background(), "jti-bob")
	require.NoError(t, err)
	assert.Equal(t, "user:bob", entry.PrincipalID)
}

func TestHandlerBusinessFault(t *testing.T) {
	h := testHandler(t)
	args, err := wire.EncodeArgs(wire.FormatOrdinal, []wire.Shape{wire.ShapeOf[*widget]("widget")}, []any{&widget{ID: 1}})
	require.NoError(t, err)
	req := wire.NewRequest("widgets.Widget", "update", args)

	w := post(t, h, req, wire.FormatOrdinal, editor())
	resp := decodeResponse(t, w)
	require.Equal(t, wire.OutcomeFaulted, resp.Outcome)
	assert.Equal(t, wire.FaultBusiness, resp.Fault.Kind)
	assert.Contains(t, resp.Fault.Message, "widget storage offline")
}

func TestAuthenticatorMiddleware(t *testing.T) {
	tokens, err := identity.NewTokenManager([]byte("0123456789abcdef"), "factory", time.Minute)
	require.NoError(t, err)
	sessions := session.NewMemoryStore()
	defer sessions.Close()

	var seen identity.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	auth := NewAuthenticator(tokens, sessions, nil)
	handler := auth.Middleware(next)

	t.Run("missing credentials", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	token, jti, err := tokens.Issue(identity.Principal{ID: "user:alice", Roles: []string{"editor"}})
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user:alice", seen.ID)
	})

	t.Run("revoked session", func(t *testing.T) {
		require.NoError(t, sessions.Put(context.Background(), jti, session.Entry{PrincipalID: "user:alice"}, time.Minute))
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("api key", func(t *testing.T) {
		hash, err := identity.HashAPIKey("sk-test")
		require.NoError(t, err)
		withKeys := NewAuthenticator(tokens, sessions, []identity.APIKeyEntry{
			{Hash: hash, Principal: identity.Principal{ID: "svc:batch", Roles: []string{"editor"}}},
		})
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("X-API-Key", "sk-test")
		w := httptest.NewRecorder()
		withKeys.Middleware(next).ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "svc:batch", seen.ID)

		r = httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("X-API-Key", "sk-wrong")
		w = httptest.NewRecorder()
		withKeys.Middleware(next).ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Close()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := rl.Middleware(next)

	ctx := identity.WithPrincipal(context.Background(), identity.Principal{ID: "user:burst"})
	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		r := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2], "burst exhausted")

	// A different principal has its own bucket.
	other := identity.WithPrincipal(context.Background(), identity.Principal{ID: "user:other"})
	r := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(other)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	w := httptest.NewRecorder()
	RequestID(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-supplied")
	RequestID(next).ServeHTTP(w, r)
	assert.Equal(t, "req-supplied", w.Header().Get("X-Request-ID"))
}
