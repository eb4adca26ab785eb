package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	oauthbridge "github.com/ambrosia-fish/armatillo-api/internal/adapter/oauth"
	"github.com/ambrosia-fish/armatillo-api/internal/config"
	"github.com/ambrosia-fish/armatillo-api/internal/domain"
	"github.com/ambrosia-fish/armatillo-api/internal/pkce"
	"github.com/ambrosia-fish/armatillo-api/internal/repository"
	"github.com/ambrosia-fish/armatillo-api/internal/token"
)

// StartInput captures the OAuth initiate parameters.
type StartInput struct {
	SessionID           string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Prompt              string
	ForceLogin          bool
}

// CallbackInput captures the IdP callback parameters.
type CallbackInput struct {
	SessionID string
	Code      string
	State     string
}

// CallbackOutcome is the successful result of an IdP callback. Exactly
// one branch is set: Pending (approval gate), AuthCode (PKCE flow), or
// Tokens (legacy direct flow).
type CallbackOutcome struct {
	Pending  bool
	AuthCode string
	Tokens   *TokenPair
	State    string
}

// OAuthService orchestrates the Google OAuth2 + PKCE flow.
type OAuthService struct {
	auth     *AuthService
	users    repository.UserRepository
	requests repository.AccessRequestRepository
	sessions repository.SessionStore
	bridge   oauthbridge.Bridge
	tokens   *token.Service
	cfg      config.Config
	logger   *zap.Logger
}

// NewOAuthService wires the OAuth orchestration.
func NewOAuthService(
	auth *AuthService,
	users repository.UserRepository,
	requests repository.AccessRequestRepository,
	sessions repository.SessionStore,
	bridge oauthbridge.Bridge,
	tokens *token.Service,
	cfg config.Config,
	logger *zap.Logger,
) *OAuthService {
	return &OAuthService{
		auth:     auth,
		users:    users,
		requests: requests,
		sessions: sessions,
		bridge:   bridge,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start stores the caller's CSRF state and optional PKCE challenge,
// then returns the IdP consent URL to redirect to.
func (s *OAuthService) Start(ctx context.Context, in StartInput) (string, error) {
	if state := strings.TrimSpace(in.State); state != "" {
		if err := s.sessions.SaveState(ctx, in.SessionID, state, s.cfg.StateMaxAge); err != nil {
			return "", fmt.Errorf("persist oauth state: %w", err)
		}
	}

	if challenge := strings.TrimSpace(in.CodeChallenge); challenge != "" {
		method, err := pkce.NormalizeMethod(in.CodeChallengeMethod)
		if err != nil {
			return "", newError("validation", "Unsupported code_challenge_method.", http.StatusBadRequest)
		}
		entry := pkce.Challenge{Value: challenge, Method: method, CreatedAt: time.Now().UTC()}
		if err := s.sessions.SavePKCE(ctx, in.SessionID, entry, s.cfg.PKCEMaxAge); err != nil {
			return "", fmt.Errorf("persist pkce challenge: %w", err)
		}
	}

	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		if in.ForceLogin {
			prompt = "select_account"
		} else {
			prompt = "none"
		}
	}

	authURL, err := url.Parse(oauthbridge.GoogleAuthURL)
	if err != nil {
		return "", fmt.Errorf("parse auth url: %w", err)
	}
	params := authURL.Query()
	params.Set("client_id", s.cfg.GoogleClientID)
	params.Set("redirect_uri", s.callbackURL())
	params.Set("response_type", "code")
	params.Set("scope", "profile email")
	params.Set("prompt", prompt)
	if state := strings.TrimSpace(in.State); state != "" {
		params.Set("state", state)
	}
	authURL.RawQuery = params.Encode()

	return authURL.String(), nil
}

// HandleCallback verifies CSRF state, exchanges the code with the IdP,
// resolves or creates the local user, and applies the approval gate.
func (s *OAuthService) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackOutcome, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, newError("no_code", "Authorization code missing.", http.StatusBadRequest)
	}

	stored, err := s.sessions.State(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load oauth state: %w", err)
	}
	if stored != "" {
		defer func() {
			if err := s.sessions.DeleteState(ctx, in.SessionID); err != nil {
				s.log().Warn("failed to clear oauth state", zap.Error(err))
			}
		}()
		if in.State != stored {
			s.log().Warn("oauth state mismatch")
			return nil, newError("invalid_state", "State parameter mismatch.", http.StatusBadRequest)
		}
	}
	// With no stored state the mismatch cannot be checked; the flow
	// passes through. Known weakening, kept for compatibility with
	// clients that never send state.

	identity, err := s.bridge.Exchange(ctx, in.Code)
	if err != nil {
		s.log().Error("idp code exchange failed", zap.Error(err))
		return nil, newError("server_error", "Failed to authenticate with the identity provider.", http.StatusBadGateway)
	}

	user, err := s.resolveUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	if !user.Approved {
		if err := s.recordAccessRequest(ctx, user.Email); err != nil {
			s.log().Error("failed to record access request", zap.Error(err))
		}
		s.audit("oauth.pending_approval", "user_id", user.ID)
		return &CallbackOutcome{Pending: true, State: in.State}, nil
	}

	challenge, err := s.sessions.PKCE(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load pkce challenge: %w", err)
	}

	if challenge != nil && s.challengeFresh(*challenge) {
		code, _, err := s.tokens.Issue(token.KindAuthCode, user.ID, s.cfg.AuthCodeTTL)
		if err != nil {
			return nil, fmt.Errorf("issue auth code: %w", err)
		}
		s.audit("oauth.auth_code_issued", "user_id", user.ID)
		return &CallbackOutcome{AuthCode: code, State: in.State}, nil
	}

	pair, err := s.auth.IssueTokens(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.audit("oauth.login.success", "user_id", user.ID)
	return &CallbackOutcome{Tokens: pair, State: in.State}, nil
}

// ExchangeCode redeems a PKCE authorization code for a token pair. The
// code is blacklisted on first use so replays fail.
func (s *OAuthService) ExchangeCode(ctx context.Context, sessionID, code, verifier string, meta RequestMeta) (*TokenPair, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(verifier) == "" {
		return nil, newError("invalid_request", "code and code_verifier are required.", http.StatusBadRequest)
	}

	claims, err := s.tokens.Verify(ctx, code)
	if err != nil {
		s.log().Info("auth code rejected", zap.NamedError("kind", err))
		return nil, newError("invalid_grant", msgInvalidGrant, http.StatusBadRequest)
	}
	if claims.Kind != token.KindAuthCode {
		s.auth.blacklistToken(ctx, code, string(claims.Kind), claims.UserID, "auth_code_type_confusion", meta)
		return nil, newError("invalid_grant", msgInvalidGrant, http.StatusBadRequest)
	}

	challenge, err := s.sessions.PKCE(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load pkce challenge: %w", err)
	}
	if challenge == nil || !s.challengeFresh(*challenge) {
		return nil, newError("invalid_grant", msgInvalidGrant, http.StatusBadRequest)
	}
	if !pkce.Verify(verifier, *challenge) {
		s.log().Warn("pkce verifier mismatch", zap.Int64("user_id", claims.UserID))
		return nil, newError("invalid_grant", msgInvalidGrant, http.StatusBadRequest)
	}

	if err := s.sessions.DeletePKCE(ctx, sessionID); err != nil {
		s.log().Warn("failed to clear pkce challenge", zap.Error(err))
	}
	s.auth.blacklistToken(ctx, code, domain.TokenTypeAuthCode, claims.UserID, "auth_code_consumed", meta)

	pair, err := s.auth.IssueTokens(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	s.audit("oauth.code_exchanged", "user_id", claims.UserID)
	return pair, nil
}

// resolveUser finds the local user by external id first, then by email
// (linking pre-existing local accounts), creating one when absent.
func (s *OAuthService) resolveUser(ctx context.Context, identity *oauthbridge.Identity) (domain.User, error) {
	user, err := s.users.GetByGoogleID(ctx, identity.ExternalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("lookup by google id: %w", err)
	}

	user, err = s.users.GetByEmail(ctx, identity.Email)
	if err == nil {
		if linkErr := s.users.LinkGoogleID(ctx, user.ID, identity.ExternalID); linkErr != nil {
			return domain.User{}, fmt.Errorf("link google id: %w", linkErr)
		}
		user.GoogleID = identity.ExternalID
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("lookup by email: %w", err)
	}

	created, err := s.users.Create(ctx, domain.User{
		ID:          s.auth.node.Generate().Int64(),
		Email:       identity.Email,
		GoogleID:    identity.ExternalID,
		DisplayName: identity.DisplayName,
		Approved:    s.auth.isTestIdentity(identity.Email),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("create oauth user: %w", err)
	}
	s.audit("oauth.user_created", "user_id", created.ID)
	return created, nil
}

func (s *OAuthService) recordAccessRequest(ctx context.Context, email string) error {
	if _, err := s.requests.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	_, err := s.requests.Create(ctx, domain.AccessRequest{
		ID:     s.auth.node.Generate().Int64(),
		Email:  email,
		Status: domain.AccessStatusPending,
		Notes:  "Requested via Google sign-in",
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return nil
	}
	return err
}

func (s *OAuthService) challengeFresh(challenge pkce.Challenge) bool {
	if challenge.CreatedAt.IsZero() {
		return true
	}
	return time.Since(challenge.CreatedAt) <= s.cfg.PKCEMaxAge
}

func (s *OAuthService) callbackURL() string {
	return strings.TrimRight(s.cfg.APIBaseURL, "/") + "/api/auth/google-callback"
}

func (s *OAuthService) audit(event string, attrs ...any) {
	s.auth.audit(event, attrs...)
}

func (s *OAuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
