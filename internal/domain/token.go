package domain

import "time"

// RefreshToken is one row per currently valid refresh token. Rotation
// consumes the row; a token string never appears in two rows.
type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Token types recorded in the revocation ledger.
const (
	TokenTypeAccess   = "access"
	TokenTypeRefresh  = "refresh"
	TokenTypeAuthCode = "auth_code"
)

// BlacklistedToken is a revocation-ledger entry keyed by a one-way
// fingerprint of the token, never the raw token.
type BlacklistedToken struct {
	Fingerprint   string
	TokenType     string
	UserID        int64
	Reason        string
	IPAddress     string
	DeviceInfo    string
	BlacklistedAt time.Time
	ExpiresAt     time.Time
}

// Access request statuses.
const (
	AccessStatusPending  = "pending"
	AccessStatusApproved = "approved"
	AccessStatusRejected = "rejected"
)

// AccessRequest tracks a gated-access request from an identity that has
// not been approved yet.
type AccessRequest struct {
	ID        int64     `json:"id,string"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
