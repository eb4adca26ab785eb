// Package pkce implements the Proof Key for Code Exchange challenge
// math (RFC 7636).
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Challenge methods. S256 is the default when the client omits the
// method parameter.
const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// Challenge is a pending code_challenge awaiting verifier exchange.
type Challenge struct {
	Value     string    `json:"value"`
	Method    string    `json:"method"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeMethod maps an absent method to S256 and rejects unknown
// methods.
func NormalizeMethod(method string) (string, error) {
	switch strings.TrimSpace(method) {
	case "", MethodS256:
		return MethodS256, nil
	case MethodPlain:
		return MethodPlain, nil
	default:
		return "", fmt.Errorf("unsupported code challenge method: %s", method)
	}
}

// ComputeS256 derives the S256 challenge for a verifier:
// base64url(SHA-256(verifier)) without padding.
func ComputeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify reports whether the verifier satisfies the stored challenge.
func Verify(verifier string, challenge Challenge) bool {
	var computed string
	switch challenge.Method {
	case MethodPlain:
		computed = verifier
	default:
		computed = ComputeS256(verifier)
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge.Value)) == 1
}
