package service_test

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	oauthbridge "github.com/ambrosia-fish/armatillo-api/internal/adapter/oauth"
	"github.com/ambrosia-fish/armatillo-api/internal/domain"
	"github.com/ambrosia-fish/armatillo-api/internal/pkce"
	"github.com/ambrosia-fish/armatillo-api/internal/service"
	"github.com/ambrosia-fish/armatillo-api/internal/token"
)

type oauthFixture struct {
	*authFixture
	requests *memoryAccessRequestRepo
	sessions *memorySessionStore
	bridge   *fakeBridge
	svc      *service.OAuthService
}

func newOAuthFixture(t *testing.T, identity *oauthbridge.Identity) *oauthFixture {
	t.Helper()
	cfg := testConfig()
	auth := newAuthFixture(t)
	requests := newMemoryAccessRequestRepo()
	sessions := newMemorySessionStore()
	bridge := &fakeBridge{identity: identity}

	return &oauthFixture{
		authFixture: auth,
		requests:    requests,
		sessions:    sessions,
		bridge:      bridge,
		svc: service.NewOAuthService(
			auth.svc, auth.users, requests, sessions, bridge, auth.tokens, cfg, zap.NewNop(),
		),
	}
}

func TestStartBuildsConsentURL(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, nil)

	authURL, err := f.svc.Start(ctx, service.StartInput{
		SessionID:     "sess-1",
		State:         "csrf-state",
		CodeChallenge: pkce.ComputeS256("verifier-value"),
	})
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(authURL, "https://accounts.google.com/"))
	require.Equal(t, "code", parsed.Query().Get("response_type"))
	require.Equal(t, "profile email", parsed.Query().Get("scope"))
	require.Equal(t, "csrf-state", parsed.Query().Get("state"))
	require.Contains(t, parsed.Query().Get("redirect_uri"), "/api/auth/google-callback")

	state, err := f.sessions.State(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "csrf-state", state)

	challenge, err := f.sessions.PKCE(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, challenge)
	require.Equal(t, pkce.MethodS256, challenge.Method)
}

func TestStartRejectsUnknownChallengeMethod(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, nil)

	_, err := f.svc.Start(ctx, service.StartInput{
		SessionID:           "sess-1",
		CodeChallenge:       "value",
		CodeChallengeMethod: "md5",
	})
	requireServiceError(t, err, 400)
}

func TestCallbackStateMismatch(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, &oauthbridge.Identity{ExternalID: "g-1", Email: "new@example.com"})

	_, err := f.svc.Start(ctx, service.StartInput{SessionID: "sess-1", State: "expected"})
	require.NoError(t, err)

	_, err = f.svc.HandleCallback(ctx, service.CallbackInput{
		SessionID: "sess-1",
		Code:      "idp-code",
		State:     "tampered",
	})
	svcErr := requireServiceError(t, err, 400)
	require.Equal(t, "invalid_state", svcErr.Code)
	require.Zero(t, f.bridge.calls)
}

func TestCallbackUnapprovedUserGetsPendingRequest(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, &oauthbridge.Identity{ExternalID: "g-2", Email: "pending@example.com", DisplayName: "Pending"})

	outcome, err := f.svc.HandleCallback(ctx, service.CallbackInput{SessionID: "sess-1", Code: "idp-code"})
	require.NoError(t, err)
	require.True(t, outcome.Pending)

	req, err := f.requests.GetByEmail(ctx, "pending@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.AccessStatusPending, req.Status)

	// The account exists but cannot sign in yet.
	user, err := f.users.GetByEmail(ctx, "pending@example.com")
	require.NoError(t, err)
	require.False(t, user.Approved)

	// A second callback does not duplicate the request.
	_, err = f.svc.HandleCallback(ctx, service.CallbackInput{SessionID: "sess-1", Code: "idp-code"})
	require.NoError(t, err)
	list, err := f.requests.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCallbackLinksExistingLocalAccount(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, &oauthbridge.Identity{ExternalID: "g-3", Email: "linked@example.com"})

	summary, err := f.authFixture.svc.Register(ctx, "linked@example.com", "long-enough-password", "")
	require.NoError(t, err)
	f.users.approve(summary.ID)

	outcome, err := f.svc.HandleCallback(ctx, service.CallbackInput{SessionID: "sess-1", Code: "idp-code"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Tokens)

	user, err := f.users.GetByGoogleID(ctx, "g-3")
	require.NoError(t, err)
	require.Equal(t, summary.ID, user.ID)
}

func TestPKCECodeExchangeFlow(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, &oauthbridge.Identity{ExternalID: "g-4", Email: "mobile@example.dev"})
	meta := service.RequestMeta{}
	const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	_, err := f.svc.Start(ctx, service.StartInput{
		SessionID:     "sess-1",
		State:         "csrf",
		CodeChallenge: pkce.ComputeS256(verifier),
	})
	require.NoError(t, err)

	outcome, err := f.svc.HandleCallback(ctx, service.CallbackInput{
		SessionID: "sess-1",
		Code:      "idp-code",
		State:     "csrf",
	})
	require.NoError(t, err)
	require.NotEmpty(t, outcome.AuthCode)
	require.Nil(t, outcome.Tokens)

	pair, err := f.svc.ExchangeCode(ctx, "sess-1", outcome.AuthCode, verifier, meta)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	// The code is single use.
	_, err = f.svc.ExchangeCode(ctx, "sess-1", outcome.AuthCode, verifier, meta)
	svcErr := requireServiceError(t, err, 400)
	require.Equal(t, "invalid_grant", svcErr.Code)

	revoked, err := f.blacklist.Contains(ctx, token.Fingerprint(outcome.AuthCode))
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestExchangeCodeWrongVerifier(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, &oauthbridge.Identity{ExternalID: "g-5", Email: "mobile2@example.dev"})
	meta := service.RequestMeta{}

	_, err := f.svc.Start(ctx, service.StartInput{
		SessionID:     "sess-1",
		CodeChallenge: pkce.ComputeS256("right-verifier"),
	})
	require.NoError(t, err)

	outcome, err := f.svc.HandleCallback(ctx, service.CallbackInput{SessionID: "sess-1", Code: "idp-code"})
	require.NoError(t, err)
	require.NotEmpty(t, outcome.AuthCode)

	_, err = f.svc.ExchangeCode(ctx, "sess-1", outcome.AuthCode, "wrong-verifier", meta)
	svcErr := requireServiceError(t, err, 400)
	require.Equal(t, "invalid_grant", svcErr.Code)
}

func TestExchangeCodeRejectsOtherTokenKinds(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, &oauthbridge.Identity{ExternalID: "g-6", Email: "mobile3@example.dev"})
	meta := service.RequestMeta{}

	_, err := f.svc.Start(ctx, service.StartInput{
		SessionID:     "sess-1",
		CodeChallenge: pkce.ComputeS256("verifier"),
	})
	require.NoError(t, err)

	outcome, err := f.svc.HandleCallback(ctx, service.CallbackInput{SessionID: "sess-1", Code: "idp-code"})
	require.NoError(t, err)

	pair, err := f.svc.ExchangeCode(ctx, "sess-1", outcome.AuthCode, "verifier", meta)
	require.NoError(t, err)

	// An access token presented as an authorization code is revoked.
	_, err = f.svc.ExchangeCode(ctx, "sess-1", pair.AccessToken, "verifier", meta)
	requireServiceError(t, err, 400)

	_, err = f.authFixture.svc.Authenticate(ctx, pair.AccessToken, meta)
	requireServiceError(t, err, 401)
}

func TestCallbackWithoutPKCEIssuesTokensDirectly(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, &oauthbridge.Identity{ExternalID: "g-7", Email: "legacy@example.dev"})

	outcome, err := f.svc.HandleCallback(ctx, service.CallbackInput{SessionID: "sess-1", Code: "idp-code", State: "s"})
	require.NoError(t, err)
	require.Empty(t, outcome.AuthCode)
	require.NotNil(t, outcome.Tokens)
	require.Equal(t, "s", outcome.State)
}
