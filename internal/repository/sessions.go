package repository

import (
	"context"
	"time"

	"github.com/ambrosia-fish/armatillo-api/internal/pkce"
)

// SessionStore keeps the per-session OAuth CSRF state and the pending
// PKCE challenge in a shared, request-independent store. Entries carry
// their own expiry; a read past expiry behaves as absent.
type SessionStore interface {
	SaveState(ctx context.Context, sessionID, state string, ttl time.Duration) error
	State(ctx context.Context, sessionID string) (string, error)
	DeleteState(ctx context.Context, sessionID string) error

	SavePKCE(ctx context.Context, sessionID string, challenge pkce.Challenge, ttl time.Duration) error
	PKCE(ctx context.Context, sessionID string) (*pkce.Challenge, error)
	DeletePKCE(ctx context.Context, sessionID string) error
}
