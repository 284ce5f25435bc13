package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/identity"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/session"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request an identifier, echoed in the response
// and available to problem responses as the trace id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// Authenticator resolves the caller's principal from a bearer token or a
// service API key and attaches it to the request context. The endpoint
// never trusts identity asserted inside a request envelope.
type Authenticator struct {
	tokens   *identity.TokenManager
	sessions session.Store
	apiKeys  []identity.APIKeyEntry
}

// NewAuthenticator builds the middleware. sessions may be nil, in which
// case tokens are accepted on signature and expiry alone; with a store,
// a token whose JTI appears on the revocation list is rejected even
// while its signature still verifies.
func NewAuthenticator(tokens *identity.TokenManager, sessions session.Store, apiKeys []identity.APIKeyEntry) *Authenticator {
	return &Authenticator{tokens: tokens, sessions: sessions, apiKeys: apiKeys}
}

// Middleware authenticates the request. Missing or invalid credentials
// are a 401; the factory's own authorization rules decide everything
// past that point.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-API-Key"); key != "" {
			for _, entry := range a.apiKeys {
				if identity.VerifyAPIKey(entry.Hash, key) {
					ctx := identity.WithPrincipal(r.Context(), entry.Principal)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			writeUnauthorized(w, r, "Unknown API key")
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeUnauthorized(w, r, "")
			return
		}
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			writeUnauthorized(w, r, "Authorization header must use the Bearer scheme")
			return
		}

		principal, jti, err := a.tokens.Validate(token)
		if err != nil {
			writeUnauthorized(w, r, "Invalid or expired token")
			return
		}
		if a.sessions != nil {
			if _, err := a.sessions.Get(r.Context(), jti); err == nil {
				writeUnauthorized(w, r, "Session has been revoked")
				return
			}
		}

		ctx := identity.WithPrincipal(r.Context(), principal)
		ctx = identity.WithSessionID(ctx, jti)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimiter enforces a per-caller request rate, keyed by principal when
// authenticated and by client IP otherwise.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	stop     chan struct{}
	once     sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds the limiter and starts its stale-visitor sweep.
func NewRateLimiter(rps, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go rl.cleanupVisitors()
	return rl
}

func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		limiter := rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[key] = &visitor{limiter, time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitors removes entries idle for more than 3 minutes, checking
// every minute, so the visitor map cannot grow without bound.
func (rl *RateLimiter) cleanupVisitors() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-t.C:
			rl.mu.Lock()
			for key, v := range rl.visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Close stops the sweep goroutine.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// Middleware enforces the limit. Runs after the authenticator so
// authenticated callers are limited per principal rather than per IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := identity.FromContext(r.Context()).ID
		if key == "" {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = strings.Trim(r.RemoteAddr, "[]")
			}
			key = "ip:" + ip
		}

		if !rl.getVisitor(key).Allow() {
			writeTooManyRequests(w, r, 5)
			return
		}
		next.ServeHTTP(w, r)
	})
}
