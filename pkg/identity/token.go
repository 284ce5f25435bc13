package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims the factory endpoint accepts.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// TokenManager signs and validates principal tokens with an HMAC secret
// shared by the issuing and validating processes.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenManager builds a manager. ttl bounds the lifetime of issued
// tokens; validation enforces expiry regardless.
func NewTokenManager(secret []byte, issuer string, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("identity: signing secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Issue signs a token for the principal. The JTI doubles as the server
// session identifier.
func (tm *TokenManager) Issue(p Principal) (token string, jti string, err error) {
	if p.IsZero() {
		return "", "", errors.New("identity: cannot issue a token for the zero principal")
	}
	now := time.Now().UTC()
	jti = uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   p.ID,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		},
		TenantID: p.TenantID,
		Roles:    p.Roles,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", "", fmt.Errorf("identity: sign token: %w", err)
	}
	return token, jti, nil
}

// Validate parses a token and returns the principal it carries plus the
// session identifier (JTI). Fails on expiry, bad signature, or an
// unexpected signing method.
func (tm *TokenManager) Validate(token string) (Principal, string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tm.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, "", fmt.Errorf("identity: token validation failed: %w", err)
	}
	if !parsed.Valid {
		return Principal{}, "", errors.New("identity: invalid token")
	}
	return Principal{ID: claims.Subject, TenantID: claims.TenantID, Roles: claims.Roles}, claims.ID, nil
}
