// Package token issues, verifies, and fingerprints the three signed
// token kinds (access, refresh, auth_code). All kinds share one
// server-held symmetric secret; the revocation ledger is consulted on
// every verification.
package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// Kind distinguishes token intent. Verifiers must reject a token
// presented as the wrong kind.
type Kind string

const (
	KindAccess   Kind = "access"
	KindRefresh  Kind = "refresh"
	KindAuthCode Kind = "auth_code"
)

// Rejection reasons. Callers map all three to the same user-facing
// message; the distinction is for logging and policy only.
var (
	ErrInvalid = errors.New("token invalid")
	ErrExpired = errors.New("token expired")
	ErrRevoked = errors.New("token revoked")
)

// Ledger is the revocation lookup consulted before any cryptographic
// verification.
type Ledger interface {
	Contains(ctx context.Context, fingerprint string) (bool, error)
}

// Claims is the decoded payload of a verified token.
type Claims struct {
	UserID    int64
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn returns the actual remaining lifetime in whole seconds,
// computed from the decoded expiry rather than the nominal TTL.
func (c Claims) ExpiresIn(now time.Time) int {
	return int(c.ExpiresAt.Sub(now).Seconds())
}

type wireClaims struct {
	Type string `json:"type,omitempty"`
}

// Service signs and validates tokens with a single HS256 secret.
type Service struct {
	secret []byte
	ledger Ledger
}

// NewService builds a token service. ledger may be nil in tests that do
// not exercise revocation.
func NewService(secret string, ledger Ledger) *Service {
	return &Service{secret: []byte(secret), ledger: ledger}
}

// Issue signs a token of the given kind for the subject user and
// returns the embedded expiry.
func (s *Service) Issue(kind Kind, userID int64, ttl time.Duration) (string, time.Time, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: s.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl).Truncate(time.Second)
	std := gojwt.Claims{
		Subject:  strconv.FormatInt(userID, 10),
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(expiresAt),
	}
	custom := wireClaims{}
	if kind != KindAccess {
		custom.Type = string(kind)
	}

	signed, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("serialize token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks revocation, signature, and expiry, in that order, and
// returns the decoded claims.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalid
	}

	if s.ledger != nil {
		revoked, err := s.ledger.Contains(ctx, Fingerprint(raw))
		if err != nil {
			return nil, fmt.Errorf("revocation lookup: %w", err)
		}
		if revoked {
			return nil, ErrRevoked
		}
	}

	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, ErrInvalid
	}

	var std gojwt.Claims
	var custom wireClaims
	if err := parsed.Claims(s.secret, &std, &custom); err != nil {
		return nil, ErrInvalid
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil || std.Expiry == nil {
		return nil, ErrInvalid
	}

	if time.Now().After(std.Expiry.Time()) {
		return nil, ErrExpired
	}

	kind := Kind(custom.Type)
	if kind == "" {
		kind = KindAccess
	}

	claims := &Claims{
		UserID:    userID,
		Kind:      kind,
		ExpiresAt: std.Expiry.Time(),
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	return claims, nil
}

// Fingerprint returns the deterministic one-way hash used as the
// revocation-ledger key. It is never reversible to the token.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
