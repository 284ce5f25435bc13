// Package session tracks revoked sessions so a forbidden fault can kill
// the caller's token for good. The store is a revocation list keyed by
// token JTI: a token whose JTI appears here is rejected even while its
// signature still verifies. Entries expire with the token they shadow,
// so the list never outgrows the set of live tokens.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports an id with no entry — for a revocation list, the
// normal answer for a healthy session.
var ErrNotFound = errors.New("session: not found")

// Entry records why and for whom a session was revoked.
type Entry struct {
	PrincipalID string    `json:"principal_id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RevokedAt   time.Time `json:"revoked_at"`
}

// Store is the revocation registry. Put records a revocation for ttl,
// Get looks one up, and Delete clears it — deleting an absent id is not
// an error.
type Store interface {
	Put(ctx context.Context, id string, e Entry, ttl time.Duration) error
	Get(ctx context.Context, id string) (Entry, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
