package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ambrosia-fish/armatillo-api/internal/config"
	"github.com/ambrosia-fish/armatillo-api/internal/service"
	"github.com/ambrosia-fish/armatillo-api/internal/token"
)

func testConfig() config.Config {
	return config.Config{
		Environment:        "test",
		JWTSecret:          "0123456789abcdef0123456789abcdef",
		AccessTokenTTL:     time.Hour,
		RefreshTokenTTL:    30 * 24 * time.Hour,
		AuthCodeTTL:        5 * time.Minute,
		PKCEMaxAge:         10 * time.Minute,
		StateMaxAge:        10 * time.Minute,
		BlacklistTTL:       90 * 24 * time.Hour,
		AppScheme:          "armatillo://",
		APIBaseURL:         "http://localhost:8080",
		ApprovalTestDomain: "example.dev",
	}
}

type authFixture struct {
	users     *memoryUserRepo
	refresh   *memoryRefreshRepo
	blacklist *memoryBlacklistRepo
	tokens    *token.Service
	svc       *service.AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	cfg := testConfig()
	users := newMemoryUserRepo()
	refresh := newMemoryRefreshRepo()
	blacklist := newMemoryBlacklistRepo()
	tokens := token.NewService(cfg.JWTSecret, blacklist)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &authFixture{
		users:     users,
		refresh:   refresh,
		blacklist: blacklist,
		tokens:    tokens,
		svc:       service.NewAuthService(users, refresh, blacklist, tokens, node, cfg, zap.NewNop()),
	}
}

func TestRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	summary, err := f.svc.Register(ctx, "Alice@Example.com", "long-enough-password", "Alice")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", summary.Email)

	// Fresh accounts are gated until an admin approves them.
	_, _, err = f.svc.Login(ctx, "alice@example.com", "long-enough-password")
	svcErr := requireServiceError(t, err, 403)
	require.Equal(t, "account_not_approved", svcErr.Code)

	f.users.approve(summary.ID)

	pair, user, err := f.svc.Login(ctx, "alice@example.com", "long-enough-password")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.InDelta(t, 3600, pair.ExpiresIn, 5)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.Register(ctx, "not-an-email", "long-enough-password", "")
	requireServiceError(t, err, 400)

	_, err = f.svc.Register(ctx, "short@example.com", "short", "")
	requireServiceError(t, err, 400)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.Register(ctx, "dup@example.com", "long-enough-password", "")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "dup@example.com", "another-password-1", "")
	svcErr := requireServiceError(t, err, 400)
	require.Equal(t, "email_taken", svcErr.Code)
}

func TestRegisterTestDomainAutoApproved(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	_, err := f.svc.Register(ctx, "dev@example.dev", "long-enough-password", "")
	require.NoError(t, err)

	_, _, err = f.svc.Login(ctx, "dev@example.dev", "long-enough-password")
	require.NoError(t, err)
}

// The response for an unknown email and a wrong password must be
// indistinguishable.
func TestLoginUniformFailure(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	summary, err := f.svc.Register(ctx, "bob@example.com", "long-enough-password", "")
	require.NoError(t, err)
	f.users.approve(summary.ID)

	_, _, errUnknown := f.svc.Login(ctx, "nobody@example.com", "whatever-password")
	_, _, errWrongPw := f.svc.Login(ctx, "bob@example.com", "wrong-password-123")

	a := requireServiceError(t, errUnknown, 401)
	b := requireServiceError(t, errWrongPw, 401)
	require.Equal(t, a.Code, b.Code)
	require.Equal(t, a.Description, b.Description)
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	meta := service.RequestMeta{IPAddress: "10.0.0.1", DeviceInfo: "test"}

	summary, err := f.svc.Register(ctx, "carol@example.com", "long-enough-password", "")
	require.NoError(t, err)
	f.users.approve(summary.ID)

	pair, _, err := f.svc.Login(ctx, "carol@example.com", "long-enough-password")
	require.NoError(t, err)

	rotated, err := f.svc.Refresh(ctx, pair.RefreshToken, meta)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The consumed token is gone from the store and in the ledger.
	_, err = f.svc.Refresh(ctx, pair.RefreshToken, meta)
	requireServiceError(t, err, 401)

	revoked, err := f.blacklist.Contains(ctx, token.Fingerprint(pair.RefreshToken))
	require.NoError(t, err)
	require.True(t, revoked)

	// The replacement still works.
	_, err = f.svc.Refresh(ctx, rotated.RefreshToken, meta)
	require.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	meta := service.RequestMeta{}

	summary, err := f.svc.Register(ctx, "dave@example.com", "long-enough-password", "")
	require.NoError(t, err)
	f.users.approve(summary.ID)

	pair, _, err := f.svc.Login(ctx, "dave@example.com", "long-enough-password")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, pair.AccessToken, meta)
	requireServiceError(t, err, 401)

	// Presenting the wrong kind is a security event; the token is
	// actively revoked, so it no longer authenticates either.
	_, err = f.svc.Authenticate(ctx, pair.AccessToken, meta)
	requireServiceError(t, err, 401)
}

func TestLogoutRevokesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	meta := service.RequestMeta{}

	summary, err := f.svc.Register(ctx, "erin@example.com", "long-enough-password", "")
	require.NoError(t, err)
	f.users.approve(summary.ID)

	pair, _, err := f.svc.Login(ctx, "erin@example.com", "long-enough-password")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, meta))

	_, err = f.svc.Refresh(ctx, pair.RefreshToken, meta)
	requireServiceError(t, err, 401)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, meta))
	require.NoError(t, f.svc.Logout(ctx, "", meta))
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	meta := service.RequestMeta{}

	summary, err := f.svc.Register(ctx, "frank@example.com", "long-enough-password", "")
	require.NoError(t, err)
	f.users.approve(summary.ID)

	pair, _, err := f.svc.Login(ctx, "frank@example.com", "long-enough-password")
	require.NoError(t, err)

	user, err := f.svc.Authenticate(ctx, pair.AccessToken, meta)
	require.NoError(t, err)
	require.Equal(t, summary.ID, user.ID)

	// A refresh token is not a bearer credential.
	_, err = f.svc.Authenticate(ctx, pair.RefreshToken, meta)
	requireServiceError(t, err, 401)

	_, err = f.svc.Authenticate(ctx, "garbage", meta)
	requireServiceError(t, err, 401)
}

func requireServiceError(t *testing.T, err error, status int) *service.Error {
	t.Helper()
	require.Error(t, err)
	svcErr, ok := err.(*service.Error)
	require.True(t, ok, "expected *service.Error, got %T: %v", err, err)
	require.Equal(t, status, svcErr.Status)
	return svcErr
}
